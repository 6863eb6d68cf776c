package pipeline

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/localsoundcheck/soundcheck-cli/internal/model"
	"github.com/localsoundcheck/soundcheck-cli/internal/quota"
	"github.com/localsoundcheck/soundcheck-cli/internal/store"
	"github.com/localsoundcheck/soundcheck-cli/internal/trust"
	"github.com/localsoundcheck/soundcheck-cli/pkg/youtube"
)

// ViewCaps are the popularity-tiered view-count ceilings. Zero cap means
// uncapped.
type ViewCaps struct {
	LowPopMax  int
	MidPopMax  int
	HighPopMax int
	LowCap     int64
	DefaultCap int64
	HighCap    int64
}

// VerifierOptions are the trust-gate thresholds.
type VerifierOptions struct {
	SubscriberThreshold int64
	MaxAgeYears         int
	RejectOnWeakCatalog bool
	Workers             int
	// VenuePlaceholders maps a venue name to its placeholder artwork
	// filename. A show whose artwork carries the placeholder is an
	// event listing, not a band.
	VenuePlaceholders map[string]string
	Caps              ViewCaps
}

// VerifyStats summarizes one verification pass.
type VerifyStats struct {
	Verified int
	Rejected int
	Deferred int
	Errors   int
}

// Verifier resolves unverified assignments to terminal verdicts. Every
// bypass and every reject reason lands in the assignment's reasoning list;
// the verifier never discards its own evidence.
type Verifier struct {
	store    store.Store
	meta     youtube.Client
	governor *quota.Governor
	registry *trust.Registry
	opts     VerifierOptions
	now      func() time.Time
}

// NewVerifier creates a verifier.
func NewVerifier(st store.Store, meta youtube.Client, gov *quota.Governor, registry *trust.Registry, opts VerifierOptions) *Verifier {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxAgeYears <= 0 {
		opts.MaxAgeYears = 15
	}
	if opts.SubscriberThreshold <= 0 {
		opts.SubscriberThreshold = 2_000_000
	}
	return &Verifier{
		store:    st,
		meta:     meta,
		governor: gov,
		registry: registry,
		opts:     opts,
		now:      time.Now,
	}
}

// VerifyAll runs the trust gate over every unverified assignment. Artists
// are independent, so the pass fans out over a bounded worker pool; each
// assignment has exactly one writer. Metadata budget exhaustion stops
// further fetches and leaves the remaining assignments deferred for the
// next run.
func (v *Verifier) VerifyAll(ctx context.Context, shows []model.Show) (VerifyStats, error) {
	pending, err := v.store.ListAssignments(ctx, store.AssignmentFilter{State: model.StateUnverified})
	if err != nil {
		return VerifyStats{}, eris.Wrap(err, "list unverified assignments")
	}
	artwork := artworkByArtist(shows)

	var (
		stats   VerifyStats
		mu      sync.Mutex
		stopped atomic.Bool
	)

	pool := pond.NewPool(v.opts.Workers)
	defer pool.StopAndWait()
	group := pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	for i := range pending {
		assignment := pending[i]
		group.Submit(func() {
			if groupCtx.Err() != nil || stopped.Load() {
				mu.Lock()
				stats.Deferred++
				mu.Unlock()
				return
			}

			verdict, err := v.Verify(groupCtx, &assignment, artwork[assignment.ArtistKey])
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if eris.Is(err, quota.ErrBudgetExhausted) {
					stopped.Store(true)
					stats.Deferred++
					zap.L().Warn("metadata budget exhausted, deferring remaining assignments")
					return
				}
				stats.Errors++
				zap.L().Warn("verification failed",
					zap.String("artist", assignment.DisplayName), zap.Error(err))
				return
			}
			switch verdict {
			case model.StateVerified:
				stats.Verified++
			case model.StateRejected:
				stats.Rejected++
			default:
				stats.Deferred++
			}
		})
	}
	if err := group.Wait(); err != nil && !eris.Is(err, context.Canceled) {
		return stats, eris.Wrap(err, "verification pool")
	}
	return stats, nil
}

// Verify applies the ordered policy to one unverified assignment and
// returns the state it ended in. StateUnverified means deferral, not a
// verdict. artworkURL is the show artwork for the zero-cost placeholder
// pre-check; empty skips it.
func (v *Verifier) Verify(ctx context.Context, a *model.Assignment, artworkURL string) (model.AssignmentState, error) {
	if a.State != model.StateUnverified {
		return a.State, eris.Errorf("assignment %s is %s, not unverified", a.ArtistKey, a.State)
	}

	// Zero-cost pre-check before any paid call.
	if v.isPlaceholderArtwork(a.Venue, artworkURL) {
		return v.reject(ctx, a, nil, []string{model.ReasonLikelyEventNotBand})
	}

	if !a.HasVideo() {
		return v.reject(ctx, a, nil, []string{model.ReasonVideoRemoved})
	}
	videoID := *a.VideoID

	video, err := quota.GovernedVal(ctx, v.governor, quota.PoolMetadata, quota.CostVideo,
		"video", func(ctx context.Context) (*youtube.VideoMeta, error) {
			return v.meta.Video(ctx, videoID)
		})
	if err != nil {
		if eris.Is(err, youtube.ErrNotFound) {
			return v.reject(ctx, a, nil, []string{model.ReasonVideoRemoved})
		}
		return v.deferVerdict(a, err)
	}

	channel, err := quota.GovernedVal(ctx, v.governor, quota.PoolMetadata, quota.CostChannel,
		"channel", func(ctx context.Context) (*youtube.ChannelMeta, error) {
			return v.meta.Channel(ctx, video.ChannelID)
		})
	if err != nil {
		if eris.Is(err, youtube.ErrNotFound) {
			return v.reject(ctx, a, video, []string{model.ReasonVideoRemoved})
		}
		return v.deferVerdict(a, err)
	}

	decision := v.registry.Evaluate(channel.Name, a.DisplayName)
	channelMatch := trust.ChannelMatchesArtist(channel.Name, a.DisplayName)

	enrichment, err := v.store.GetEnrichment(ctx, a.ArtistKey)
	if err != nil {
		return v.deferVerdict(a, eris.Wrap(err, "load enrichment"))
	}

	var reasons []string
	if decision.Bypass {
		reasons = append(reasons, decision.Reason)
	}

	// View-count cap, tiered by catalog popularity. Trusted channels are
	// uncapped; a label posting a hit is not a misidentification signal.
	if !decision.Bypass {
		if ceiling := v.viewCap(enrichment); ceiling > 0 && video.ViewCount > ceiling {
			return v.reject(ctx, a, video, append(reasons, model.ReasonViewCountExceedsCap))
		}
	}

	// Subscriber count is never a verdict on its own, only a modifier on
	// a mismatched channel.
	if !decision.Bypass && !channelMatch && channel.Subscribers > v.opts.SubscriberThreshold {
		return v.reject(ctx, a, video, append(reasons, model.ReasonChannelMismatchHighSub))
	}

	maxAge := time.Duration(v.opts.MaxAgeYears) * 365 * 24 * time.Hour
	if !decision.Bypass && !channelMatch && !video.PublishedAt.IsZero() && v.now().Sub(video.PublishedAt) > maxAge {
		return v.reject(ctx, a, video, append(reasons, model.ReasonStaleVideoNoChannelMatch))
	}

	if enrichment != nil && !channelMatch && !decision.Bypass {
		switch enrichment.Tier {
		case model.TierNoMatch:
			return v.reject(ctx, a, video, append(reasons, model.ReasonNoCatalogIdentity))
		case model.TierClose, model.TierPartial:
			if v.opts.RejectOnWeakCatalog {
				return v.reject(ctx, a, video, append(reasons, model.ReasonCatalogIdentityWeak))
			}
			reasons = append(reasons, model.ReasonCatalogIdentityWeak)
		}
	}

	return v.promote(ctx, a, reasons)
}

func (v *Verifier) promote(ctx context.Context, a *model.Assignment, reasons []string) (model.AssignmentState, error) {
	now := v.now()
	a.State = model.StateVerified
	a.Reasoning = append(a.Reasoning, reasons...)
	a.DecidedAt = now
	a.UpdatedAt = now
	if err := v.store.PutAssignment(ctx, a); err != nil {
		return model.StateUnverified, eris.Wrapf(err, "write verified verdict for %q", a.DisplayName)
	}
	zap.L().Info("candidate verified",
		zap.String("artist", a.DisplayName),
		zap.Strings("reasoning", a.Reasoning))
	return model.StateVerified, nil
}

// reject writes the terminal verdict, clears the video reference, and
// opens the cooldown window.
func (v *Verifier) reject(ctx context.Context, a *model.Assignment, video *youtube.VideoMeta, reasons []string) (model.AssignmentState, error) {
	now := v.now()
	rejectedVideo := ""
	if a.VideoID != nil {
		rejectedVideo = *a.VideoID
	}

	a.State = model.StateRejected
	a.VideoID = nil
	a.Reasoning = append(a.Reasoning, reasons...)
	a.DecidedAt = now
	a.UpdatedAt = now
	if err := v.store.PutAssignment(ctx, a); err != nil {
		return model.StateUnverified, eris.Wrapf(err, "write rejected verdict for %q", a.DisplayName)
	}
	if err := v.store.AddRejection(ctx, &model.RejectionRecord{
		ArtistKey:  a.ArtistKey,
		VideoID:    rejectedVideo,
		Reasons:    reasons,
		RejectedAt: now,
	}); err != nil {
		return model.StateRejected, eris.Wrapf(err, "write rejection record for %q", a.DisplayName)
	}

	fields := []zap.Field{
		zap.String("artist", a.DisplayName),
		zap.Strings("reasons", reasons),
	}
	if video != nil {
		fields = append(fields, zap.Int64("views", video.ViewCount))
	}
	zap.L().Info("candidate rejected", fields...)
	return model.StateRejected, nil
}

// deferVerdict leaves the assignment unverified. An infrastructure failure is
// not a verdict; the next run retries.
func (v *Verifier) deferVerdict(a *model.Assignment, err error) (model.AssignmentState, error) {
	if eris.Is(err, quota.ErrBudgetExhausted) {
		return model.StateUnverified, err
	}
	zap.L().Warn("metadata fetch failed, deferring",
		zap.String("artist", a.DisplayName), zap.Error(err))
	return model.StateUnverified, nil
}

// viewCap picks the applicable cap. No enrichment entry or no catalog
// match falls back to the default cap. Zero means uncapped.
func (v *Verifier) viewCap(e *model.EnrichmentEntry) int64 {
	caps := v.opts.Caps
	if e == nil || !e.Found() {
		return caps.DefaultCap
	}
	switch {
	case e.Popularity < caps.LowPopMax:
		return caps.LowCap
	case e.Popularity < caps.MidPopMax:
		return caps.DefaultCap
	case e.Popularity < caps.HighPopMax:
		return caps.HighCap
	default:
		return 0
	}
}

func (v *Verifier) isPlaceholderArtwork(venue, artworkURL string) bool {
	if artworkURL == "" {
		return false
	}
	placeholder, ok := v.opts.VenuePlaceholders[venue]
	if !ok || placeholder == "" {
		return false
	}
	return strings.Contains(artworkURL, placeholder)
}

// artworkByArtist maps each billed artist's identity key to the show
// artwork it appeared under, for the placeholder pre-check.
func artworkByArtist(shows []model.Show) map[string]string {
	out := make(map[string]string)
	for _, show := range shows {
		if show.ImageURL == "" {
			continue
		}
		for _, slot := range show.Billing() {
			key := keyForBilling(slot.Name)
			if key != "" && out[key] == "" {
				out[key] = show.ImageURL
			}
		}
	}
	return out
}
