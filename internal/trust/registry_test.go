package trust

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRegistryFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trusted.yaml")
	data := `channels:
  - name: Merge Records
    level: label
  - name: Sub Pop
    level: label
  - name: KEXP
    level: curator
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	r, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Len())

	lvl, ok := r.Lookup("merge records")
	assert.True(t, ok)
	assert.Equal(t, LevelLabel, lvl)

	// Normalized lookup ignores punctuation and case.
	lvl, ok = r.Lookup("SUB-POP")
	assert.True(t, ok)
	assert.Equal(t, LevelLabel, lvl)

	_, ok = r.Lookup("Random Uploads")
	assert.False(t, ok)
}

func TestLoadRegistryMissingFile(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 0, r.Len())
}

func TestLoadRegistryMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("channels: {not a list}"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestStructuralDetectors(t *testing.T) {
	assert.True(t, IsTopicChannel("Waxahatchee - Topic"))
	assert.True(t, IsTopicChannel("  Big Thief - Topic  "))
	assert.False(t, IsTopicChannel("Topic Discussions"))

	assert.True(t, IsOfficialDistribution("WednesdayVEVO"))
	assert.True(t, IsOfficialDistribution("adelevevo"))
	assert.False(t, IsOfficialDistribution("Velveteen"))
}

func TestChannelMatchesArtist(t *testing.T) {
	tests := []struct {
		name    string
		channel string
		artist  string
		want    bool
	}{
		{"exact", "Sylvan Esso", "Sylvan Esso", true},
		{"topic suffix stripped", "Waxahatchee - Topic", "Waxahatchee", true},
		{"vevo suffix stripped", "WaxahatcheeVEVO", "Waxahatchee", true},
		{"channel contains artist", "Snail Mail Official", "Snail Mail", true},
		{"unrelated", "Vbox Karaoke Hits", "Snail Mail", false},
		{"empty artist", "Sylvan Esso", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ChannelMatchesArtist(tt.channel, tt.artist))
		})
	}
}

func TestEvaluate(t *testing.T) {
	r := NewRegistry(map[string]Level{
		"Merge Records": LevelLabel,
	})

	d := r.Evaluate("Merge Records", "Anybody At All")
	assert.True(t, d.Bypass)
	assert.Equal(t, "registry:label", d.Reason)

	d = r.Evaluate("Waxahatchee - Topic", "Waxahatchee")
	assert.True(t, d.Bypass)
	assert.Equal(t, "topic-channel-match", d.Reason)

	// Topic channel for a different artist earns nothing.
	d = r.Evaluate("Somebody Else - Topic", "Waxahatchee")
	assert.False(t, d.Bypass)

	d = r.Evaluate("MitskiVEVO", "Mitski")
	assert.True(t, d.Bypass)
	assert.Equal(t, "official-distribution-match", d.Reason)

	d = r.Evaluate("Random Uploads", "Mitski")
	assert.False(t, d.Bypass)
}
