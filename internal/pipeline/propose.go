package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/localsoundcheck/soundcheck-cli/internal/artist"
	"github.com/localsoundcheck/soundcheck-cli/internal/model"
	"github.com/localsoundcheck/soundcheck-cli/internal/quota"
	"github.com/localsoundcheck/soundcheck-cli/internal/store"
	"github.com/localsoundcheck/soundcheck-cli/pkg/youtube"
)

// ProposeOutcome says what the proposer did for one artist.
type ProposeOutcome string

const (
	OutcomeProposed     ProposeOutcome = "proposed"
	OutcomeEventListing ProposeOutcome = "event-listing"
	OutcomePreserved    ProposeOutcome = "preserved"
	OutcomePending      ProposeOutcome = "pending"
	OutcomeCooldown     ProposeOutcome = "cooldown"
	OutcomeBelowFloor   ProposeOutcome = "below-floor"
	OutcomeNoResults    ProposeOutcome = "no-results"
)

// ProposeStats summarizes one proposal pass.
type ProposeStats struct {
	Proposed      int
	EventListings int
	Preserved     int
	Cooldown      int
	BelowFloor    int
	NoResults     int
	Errors        int
}

// Proposer writes unverified candidate assignments for artists that need
// one. It never touches terminal assignments and never searches for an
// artist under rejection cooldown.
type Proposer struct {
	store         store.Store
	search        youtube.Client
	governor      *quota.Governor
	ledger        *quota.Ledger
	floor         int
	maxCandidates int
	now           func() time.Time
}

// NewProposer creates a proposer. floor is the minimum candidate score that
// gets written; maxCandidates caps how many search results are scored.
func NewProposer(st store.Store, search youtube.Client, gov *quota.Governor, ledger *quota.Ledger, floor, maxCandidates int) *Proposer {
	if floor <= 0 {
		floor = 60
	}
	if maxCandidates <= 0 {
		maxCandidates = 5
	}
	return &Proposer{
		store:         st,
		search:        search,
		governor:      gov,
		ledger:        ledger,
		floor:         floor,
		maxCandidates: maxCandidates,
		now:           time.Now,
	}
}

// ProposeAll runs the proposer over every billing slot in shows, once per
// artist identity. Per-artist errors are logged and counted; the batch
// continues. Search budget exhaustion stops the pass and returns the stats
// accumulated so far alongside the error.
func (p *Proposer) ProposeAll(ctx context.Context, shows []model.Show) (ProposeStats, error) {
	var stats ProposeStats
	seen := make(map[string]bool)

	for _, show := range shows {
		for _, slot := range show.Billing() {
			key := keyForBilling(slot.Name)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true

			outcome, err := p.Propose(ctx, slot.Name, slot.Role, show.Venue)
			if err != nil {
				if eris.Is(err, quota.ErrBudgetExhausted) {
					return stats, eris.Wrap(err, "search budget exhausted")
				}
				stats.Errors++
				zap.L().Warn("proposal failed",
					zap.String("artist", slot.Name), zap.Error(err))
				continue
			}
			switch outcome {
			case OutcomeProposed:
				stats.Proposed++
			case OutcomeEventListing:
				stats.EventListings++
			case OutcomePreserved, OutcomePending:
				stats.Preserved++
			case OutcomeCooldown:
				stats.Cooldown++
			case OutcomeBelowFloor:
				stats.BelowFloor++
			case OutcomeNoResults:
				stats.NoResults++
			}
		}
	}
	return stats, nil
}

// Propose handles one artist. It issues at most two search calls and at
// most one state write.
func (p *Proposer) Propose(ctx context.Context, rawName string, role model.Role, venue string) (ProposeOutcome, error) {
	cleaned := artist.CleanForSearch(rawName)
	if cleaned == "" || artist.IsEventListing(rawName) || artist.IsEventListing(cleaned) {
		zap.L().Debug("skipping event listing", zap.String("name", rawName))
		return OutcomeEventListing, nil
	}
	key := artist.Key(cleaned)

	existing, err := p.store.GetAssignment(ctx, key)
	if err != nil {
		return "", eris.Wrapf(err, "load assignment for %q", cleaned)
	}
	if existing != nil {
		if existing.State.Terminal() {
			return OutcomePreserved, nil
		}
		if existing.State == model.StateUnverified {
			return OutcomePending, nil
		}
	}

	cooling, err := p.ledger.InCooldown(ctx, key)
	if err != nil {
		return "", eris.Wrapf(err, "check cooldown for %q", cleaned)
	}
	if cooling {
		zap.L().Debug("artist in rejection cooldown", zap.String("artist", cleaned))
		return OutcomeCooldown, nil
	}

	results, err := p.searchCandidates(ctx, cleaned)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return OutcomeNoResults, nil
	}

	if len(results) > p.maxCandidates {
		results = results[:p.maxCandidates]
	}
	best, bestScore, bestSignal := results[0], -1, ""
	for _, r := range results {
		score, signal := artist.ScoreCandidate(cleaned, r.Title, r.ChannelTitle)
		if score > bestScore {
			best, bestScore, bestSignal = r, score, signal
		}
	}

	if bestScore < p.floor {
		zap.L().Info("no candidate above promotion floor",
			zap.String("artist", cleaned),
			zap.Int("best_score", bestScore))
		return OutcomeBelowFloor, nil
	}

	now := p.now()
	videoID := best.VideoID
	assignment := &model.Assignment{
		ArtistKey:   key,
		DisplayName: cleaned,
		Role:        role,
		State:       model.StateUnverified,
		VideoID:     &videoID,
		Score:       bestScore,
		Reasoning:   []string{bestSignal},
		Venue:       venue,
		DecidedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.store.PutAssignment(ctx, assignment); err != nil {
		return "", eris.Wrapf(err, "write proposal for %q", cleaned)
	}

	zap.L().Info("candidate proposed",
		zap.String("artist", cleaned),
		zap.String("video_id", videoID),
		zap.Int("score", bestScore),
		zap.String("signal", bestSignal))
	return OutcomeProposed, nil
}

// searchCandidates issues the primary query and, only when it returns
// nothing, one relaxed fallback. Worst case per artist is two search calls.
func (p *Proposer) searchCandidates(ctx context.Context, name string) ([]youtube.SearchResult, error) {
	primary := fmt.Sprintf("%q official music video", name)
	results, err := quota.GovernedVal(ctx, p.governor, quota.PoolSearch, quota.CostSearch,
		"search", func(ctx context.Context) ([]youtube.SearchResult, error) {
			return p.search.Search(ctx, primary, p.maxCandidates)
		})
	if err != nil {
		return nil, eris.Wrapf(err, "primary search for %q", name)
	}
	if len(results) > 0 {
		return results, nil
	}

	fallback := name + " band music"
	results, err = quota.GovernedVal(ctx, p.governor, quota.PoolSearch, quota.CostSearch,
		"search_fallback", func(ctx context.Context) ([]youtube.SearchResult, error) {
			return p.search.Search(ctx, fallback, p.maxCandidates)
		})
	if err != nil {
		return nil, eris.Wrapf(err, "fallback search for %q", name)
	}
	return results, nil
}
