package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeShowFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadShows_WrappedFile(t *testing.T) {
	dir := t.TempDir()
	path := writeShowFile(t, dir, "shows-kings.json", `{
		"shows": [
			{"artist": "Pile", "opener": "Truett", "venue": "Kings", "city": "Raleigh",
			 "date": "2026-09-12", "image": "https://cdn.example.com/pile.jpg",
			 "event_url": "https://kings.example.com/pile"}
		]
	}`)

	shows, err := LoadShows(path)
	require.NoError(t, err)
	require.Len(t, shows, 1)

	s := shows[0]
	assert.Equal(t, "Pile", s.Artist)
	assert.Equal(t, []string{"Truett"}, s.Openers)
	assert.Equal(t, "Kings", s.Venue)
	assert.Equal(t, "Raleigh", s.City)
	assert.Equal(t, "https://kings.example.com/pile", s.ID)
	assert.Equal(t, "https://cdn.example.com/pile.jpg", s.ImageURL)
	assert.Equal(t, time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC), s.Date)
}

func TestLoadShows_WrappedEmptyList(t *testing.T) {
	dir := t.TempDir()
	path := writeShowFile(t, dir, "shows-quiet-night.json", `{"shows": []}`)

	shows, err := LoadShows(path)
	require.NoError(t, err)
	assert.Empty(t, shows, "a wrapper with no shows is a valid empty listing")
}

func TestLoadShows_BareArray(t *testing.T) {
	dir := t.TempDir()
	path := writeShowFile(t, dir, "shows-pinhook.json", `[
		{"artist": "Wednesday", "openers": ["MJ Lenderman", "Truett"], "venue": "The Pinhook", "date": "2026-10-01"},
		{"artist": "", "venue": "The Pinhook", "date": "2026-10-02"}
	]`)

	shows, err := LoadShows(path)
	require.NoError(t, err)
	require.Len(t, shows, 1, "empty artist rows are dropped")
	assert.Equal(t, []string{"MJ Lenderman", "Truett"}, shows[0].Openers)
}

func TestLoadShows_DirectoryMergesFiles(t *testing.T) {
	dir := t.TempDir()
	writeShowFile(t, dir, "shows-a.json", `[{"artist": "Pile", "venue": "Kings", "date": "2026-09-12"}]`)
	writeShowFile(t, dir, "shows-b.json", `[{"artist": "Wednesday", "venue": "Cat's Cradle", "date": "2026-09-13"}]`)
	// Not matched by the shows-*.json glob.
	writeShowFile(t, dir, "venues.json", `[{"artist": "Ignored", "venue": "Nope", "date": "2026-09-14"}]`)

	shows, err := LoadShows(dir)
	require.NoError(t, err)
	require.Len(t, shows, 2)
	assert.Equal(t, "Pile", shows[0].Artist)
	assert.Equal(t, "Wednesday", shows[1].Artist)
}

func TestLoadShows_BadFileSkipped(t *testing.T) {
	dir := t.TempDir()
	writeShowFile(t, dir, "shows-good.json", `[{"artist": "Pile", "venue": "Kings", "date": "2026-09-12"}]`)
	writeShowFile(t, dir, "shows-bad.json", `{not json`)

	shows, err := LoadShows(dir)
	require.NoError(t, err)
	require.Len(t, shows, 1)
	assert.Equal(t, "Pile", shows[0].Artist)
}

func TestLoadShows_MissingPath(t *testing.T) {
	_, err := LoadShows(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestParseShowDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2026-09-12", time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC)},
		{"2026-09-12T20:00:00Z", time.Date(2026, 9, 12, 20, 0, 0, 0, time.UTC)},
		{"September 12, 2026", time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC)},
		{"TBD", time.Time{}},
		{"", time.Time{}},
	}
	for _, tt := range tests {
		got := parseShowDate(tt.in)
		assert.True(t, got.Equal(tt.want), "parseShowDate(%q) = %v, want %v", tt.in, got, tt.want)
	}
}

func TestKeyForBilling(t *testing.T) {
	assert.Equal(t, keyForBilling("Pile"), keyForBilling("  PILE  "))
	assert.NotEmpty(t, keyForBilling("MJ Lenderman"))
}
