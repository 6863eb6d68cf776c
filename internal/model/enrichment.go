package model

import (
	"strconv"
	"time"
)

// MatchTier classifies how closely a catalog hit matched the queried name.
type MatchTier string

const (
	TierExact   MatchTier = "exact"
	TierClose   MatchTier = "close"
	TierPartial MatchTier = "partial"
	TierNoMatch MatchTier = "no_match"
)

// EnrichmentEntry caches one catalog identity lookup. A TierNoMatch entry
// is still cached so the pipeline does not re-query a name that resolved
// to nothing yesterday.
type EnrichmentEntry struct {
	ArtistKey   string    `json:"artist_key"`
	CatalogID   string    `json:"catalog_id,omitempty"`
	CatalogName string    `json:"catalog_name,omitempty"`
	Popularity  int       `json:"popularity"`
	Followers   int       `json:"followers"`
	Genres      []string  `json:"genres,omitempty"`
	Tier        MatchTier `json:"tier"`
	MatchScore  float64   `json:"match_score"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Found reports whether the lookup resolved to a catalog identity at all.
func (e *EnrichmentEntry) Found() bool {
	return e.Tier != TierNoMatch && e.CatalogID != ""
}

// Fresh reports whether the entry is still within its cache TTL at now.
func (e *EnrichmentEntry) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.FetchedAt) < ttl
}

// Indicator renders the compact report annotation: a check with popularity
// for exact matches, a tilde for weaker tiers, a dash for no match.
func (e *EnrichmentEntry) Indicator() string {
	switch e.Tier {
	case TierExact:
		return "✓ " + strconv.Itoa(e.Popularity)
	case TierClose, TierPartial:
		return "~ " + strconv.Itoa(e.Popularity)
	case TierNoMatch:
		return "—"
	default:
		return ""
	}
}
