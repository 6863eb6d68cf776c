// Package enrich cross-references artists against the streaming catalog and
// caches the results. An enrichment entry confirms an artist's identity and
// carries the popularity signal the verifier uses to pick view caps.
package enrich

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/localsoundcheck/soundcheck-cli/internal/artist"
	"github.com/localsoundcheck/soundcheck-cli/internal/model"
	"github.com/localsoundcheck/soundcheck-cli/internal/quota"
	"github.com/localsoundcheck/soundcheck-cli/pkg/spotify"
)

// DefaultTTL is how long a cached enrichment entry stays fresh.
const DefaultTTL = 30 * 24 * time.Hour

// EnrichmentStore is the cache surface the service needs.
type EnrichmentStore interface {
	GetEnrichment(ctx context.Context, artistKey string) (*model.EnrichmentEntry, error)
	PutEnrichment(ctx context.Context, entry *model.EnrichmentEntry) error
}

// Stats summarizes one enrichment pass.
type Stats struct {
	Fetched   int
	Cached    int
	Confirmed int
	NotFound  int
	Errors    int
}

// Service resolves artists against the catalog, cache first.
type Service struct {
	store    EnrichmentStore
	catalog  spotify.Client
	governor *quota.Governor
	ttl      time.Duration
	now      func() time.Time
}

// NewService creates an enrichment service. A zero ttl uses DefaultTTL.
func NewService(store EnrichmentStore, catalog spotify.Client, governor *quota.Governor, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		store:    store,
		catalog:  catalog,
		governor: governor,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Enrich resolves one artist. Fresh cache entries are returned without any
// catalog call unless force is set. The boolean reports whether a catalog
// lookup happened. Every outcome is cached, including no_match, so repeat
// misses cost nothing until the TTL lapses.
func (s *Service) Enrich(ctx context.Context, name string, force bool) (*model.EnrichmentEntry, bool, error) {
	key := artist.Key(name)

	if !force {
		cached, err := s.store.GetEnrichment(ctx, key)
		if err != nil {
			return nil, false, eris.Wrapf(err, "load cached enrichment for %q", name)
		}
		if cached != nil && cached.Fresh(s.now(), s.ttl) {
			return cached, false, nil
		}
	}

	artists, err := quota.GovernedVal(ctx, s.governor, quota.PoolCatalog, quota.CostCatalog,
		"search_artists", func(ctx context.Context) ([]spotify.Artist, error) {
			return s.catalog.SearchArtists(ctx, name, 5)
		})
	if err != nil {
		return nil, false, eris.Wrapf(err, "catalog search for %q", name)
	}

	entry := s.match(name, artists)
	entry.ArtistKey = key
	entry.FetchedAt = s.now()

	if err := s.store.PutEnrichment(ctx, entry); err != nil {
		return nil, true, eris.Wrapf(err, "cache enrichment for %q", name)
	}

	if entry.Found() {
		zap.L().Info("artist enriched",
			zap.String("artist", name),
			zap.String("catalog_name", entry.CatalogName),
			zap.Int("popularity", entry.Popularity),
			zap.String("tier", string(entry.Tier)))
	} else {
		zap.L().Info("no catalog match", zap.String("artist", name))
	}
	return entry, true, nil
}

// EnrichAll resolves a batch of artist names. Per-artist failures are logged
// and counted; the batch continues. Budget exhaustion stops the pass early
// and returns the stats accumulated so far alongside the error.
func (s *Service) EnrichAll(ctx context.Context, names []string, force bool) (Stats, error) {
	var stats Stats
	for _, name := range names {
		entry, fetched, err := s.Enrich(ctx, name, force)
		if err != nil {
			if eris.Is(err, quota.ErrBudgetExhausted) {
				return stats, eris.Wrap(err, "catalog budget exhausted")
			}
			stats.Errors++
			zap.L().Warn("enrichment failed", zap.String("artist", name), zap.Error(err))
			continue
		}
		if fetched {
			stats.Fetched++
		} else {
			stats.Cached++
		}
		if !entry.Found() {
			stats.NotFound++
		} else if entry.Tier == model.TierExact || entry.Tier == model.TierClose {
			stats.Confirmed++
		}
	}
	return stats, nil
}

// match picks the best candidate by name similarity. Close names get a tiny
// popularity boost so a famous act wins ties against obscure homonyms.
// Multi-word names need a higher floor; short names collide too easily
// otherwise ("COMMON WOMAN CABARET" must not resolve to "Common").
func (s *Service) match(name string, artists []spotify.Artist) *model.EnrichmentEntry {
	var best *spotify.Artist
	bestScore := 0.0
	for i := range artists {
		score := artist.Similarity(name, artists[i].Name)
		if score >= 0.8 {
			score += float64(artists[i].Popularity) / 1000
		}
		if score > bestScore {
			bestScore = score
			best = &artists[i]
		}
	}

	minScore := 0.5
	if len(artist.Tokens(name)) >= 3 {
		minScore = 0.7
	}
	if best == nil || bestScore < minScore {
		return &model.EnrichmentEntry{Tier: model.TierNoMatch}
	}

	tier := model.TierPartial
	switch {
	case bestScore >= 1.0:
		tier = model.TierExact
	case bestScore >= 0.8:
		tier = model.TierClose
	}
	return &model.EnrichmentEntry{
		CatalogID:   best.ID,
		CatalogName: best.Name,
		Popularity:  best.Popularity,
		Followers:   int(best.Followers),
		Genres:      best.Genres,
		Tier:        tier,
		MatchScore:  math.Round(bestScore*1000) / 1000,
	}
}
