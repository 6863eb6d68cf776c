// Package pipeline implements the three nightly phases over the assignment
// store: propose candidates, verify them through the trust gate, and report
// the resulting delta. Phases are strictly sequential; the verifier must see
// a complete, settled set of proposals.
package pipeline

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/localsoundcheck/soundcheck-cli/internal/artist"
	"github.com/localsoundcheck/soundcheck-cli/internal/model"
)

// rawShow is the flat-file listing format the scrapers emit.
type rawShow struct {
	Artist   string   `json:"artist"`
	Opener   string   `json:"opener,omitempty"`
	Openers  []string `json:"openers,omitempty"`
	Venue    string   `json:"venue"`
	City     string   `json:"city,omitempty"`
	Date     string   `json:"date"`
	Image    string   `json:"image,omitempty"`
	EventURL string   `json:"event_url,omitempty"`
}

type rawShowFile struct {
	Shows []rawShow `json:"shows"`
}

// LoadShows reads show listings from a shows-*.json file or a directory of
// them. Files may hold either a bare array or a {"shows": [...]} wrapper.
// Unparseable files are skipped with a warning; a scraper writing one bad
// file must not block the rest of the night's listings.
func LoadShows(path string) ([]model.Show, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, eris.Wrapf(err, "stat shows path %s", path)
	}

	var files []string
	if info.IsDir() {
		matches, err := filepath.Glob(filepath.Join(path, "shows-*.json"))
		if err != nil {
			return nil, eris.Wrapf(err, "glob shows dir %s", path)
		}
		sort.Strings(matches)
		files = matches
	} else {
		files = []string{path}
	}

	var shows []model.Show
	for _, file := range files {
		loaded, err := loadShowFile(file)
		if err != nil {
			zap.L().Warn("skipping unreadable show file",
				zap.String("file", file), zap.Error(err))
			continue
		}
		shows = append(shows, loaded...)
	}
	return shows, nil
}

func loadShowFile(path string) ([]model.Show, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "read show file")
	}

	// Dispatch on the leading token: an object is the {"shows": [...]}
	// wrapper (possibly with an empty list), anything else is a bare array.
	var raws []rawShow
	if body := bytes.TrimLeft(data, " \t\r\n"); len(body) > 0 && body[0] == '{' {
		var wrapped rawShowFile
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, eris.Wrap(err, "parse show file")
		}
		raws = wrapped.Shows
	} else if err := json.Unmarshal(data, &raws); err != nil {
		return nil, eris.Wrap(err, "parse show file")
	}

	shows := make([]model.Show, 0, len(raws))
	for _, r := range raws {
		if strings.TrimSpace(r.Artist) == "" {
			continue
		}
		openers := r.Openers
		if len(openers) == 0 && strings.TrimSpace(r.Opener) != "" {
			openers = []string{r.Opener}
		}
		shows = append(shows, model.Show{
			ID:       r.EventURL,
			Artist:   r.Artist,
			Openers:  openers,
			Venue:    r.Venue,
			City:     r.City,
			Date:     parseShowDate(r.Date),
			ImageURL: r.Image,
		})
	}
	return shows, nil
}

// keyForBilling derives the identity key for a raw billing name, cleaning
// it the same way the proposer does so every phase lands on the same key.
func keyForBilling(name string) string {
	return artist.Key(artist.CleanForSearch(name))
}

// parseShowDate accepts the date formats the scrapers produce. Unknown
// formats (incl. "TBD") yield the zero time.
func parseShowDate(s string) time.Time {
	for _, layout := range []string{"2006-01-02", time.RFC3339, "January 2, 2006"} {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t
		}
	}
	return time.Time{}
}
