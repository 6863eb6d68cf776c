package pipeline

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/localsoundcheck/soundcheck-cli/internal/artist"
	"github.com/localsoundcheck/soundcheck-cli/internal/model"
	"github.com/localsoundcheck/soundcheck-cli/internal/store"
	"github.com/localsoundcheck/soundcheck-cli/pkg/youtube"
)

// Confidence tier floors for the accuracy audit.
const (
	highConfidenceFloor   = 70
	mediumConfidenceFloor = 40
)

// StateSnapshot is the per-artist state captured before a run, used to
// compute the delta afterward.
type StateSnapshot map[string]model.AssignmentState

// AuditEntry is one verified assignment's independent accuracy check.
type AuditEntry struct {
	Assignment model.Assignment
	Score      int
	Signal     string
	Err        error
}

// AuditStats aggregates the accuracy audit the way the snapshot series
// records it.
type AuditStats struct {
	TotalEntries  int
	WithVideo     int
	NoVideo       int
	HighConf      int
	MediumConf    int
	LowConf       int
	Errors        int
	AccuracyRate  float64
	AvgConfidence float64
}

// NoPreviewEntry is one artist in the no-preview queue with its status and
// catalog indicator.
type NoPreviewEntry struct {
	Artist    string
	Venue     string
	Status    string
	Indicator string
}

// Report is the full delta/inventory/trend artifact for one run.
type Report struct {
	GeneratedAt     time.Time
	NewlyVerified   []model.Assignment
	NewlyRejected   []model.Assignment
	Recovered       []model.Assignment
	Counts          map[model.AssignmentState]int
	VenueRejections map[string]int
	NoPreview       []NoPreviewEntry
	Audit           AuditStats
}

// Reporter diffs the store against a pre-run snapshot and runs the free
// accuracy audit. The audit uses only the keyless lookup, paced by a rate
// limiter; it never draws on the governed pools.
type Reporter struct {
	store   store.Store
	lookup  youtube.Client
	limiter *rate.Limiter
	sample  int
	now     func() time.Time
}

// NewReporter creates a reporter. rps paces the keyless audit lookups;
// sample caps how many verified entries get audited (0 = all).
func NewReporter(st store.Store, lookup youtube.Client, rps float64, sample int) *Reporter {
	if rps <= 0 {
		rps = 3
	}
	return &Reporter{
		store:   st,
		lookup:  lookup,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		sample:  sample,
		now:     time.Now,
	}
}

// Snapshot captures the current per-artist state for later delta
// computation. Taken before propose/verify run.
func (r *Reporter) Snapshot(ctx context.Context) (StateSnapshot, error) {
	assignments, err := r.store.ListAssignments(ctx, store.AssignmentFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "snapshot assignments")
	}
	snap := make(StateSnapshot, len(assignments))
	for _, a := range assignments {
		snap[a.ArtistKey] = a.State
	}
	return snap, nil
}

// Baseline returns the per-artist states persisted at the end of the
// previous report, so a standalone report invocation diffs against the
// last run rather than against itself. Empty when no report has run.
func (r *Reporter) Baseline(ctx context.Context) (StateSnapshot, error) {
	states, err := r.store.GetStateBaseline(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "load report baseline")
	}
	return StateSnapshot(states), nil
}

// Generate builds the report and appends one accuracy snapshot row.
// History is never rewritten.
func (r *Reporter) Generate(ctx context.Context, before StateSnapshot) (*Report, error) {
	assignments, err := r.store.ListAssignments(ctx, store.AssignmentFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "list assignments")
	}

	rep := &Report{
		GeneratedAt:     r.now(),
		Counts:          make(map[model.AssignmentState]int),
		VenueRejections: make(map[string]int),
	}

	for _, a := range assignments {
		rep.Counts[a.State]++
		prior, known := before[a.ArtistKey]

		switch a.State {
		case model.StateVerified:
			if known && prior == model.StateRejected {
				// Recovered entries never double-count as newly verified.
				rep.Recovered = append(rep.Recovered, a)
			} else if !known || prior != model.StateVerified {
				rep.NewlyVerified = append(rep.NewlyVerified, a)
			}
		case model.StateRejected:
			if !known || prior != model.StateRejected {
				rep.NewlyRejected = append(rep.NewlyRejected, a)
			}
			if a.Venue != "" {
				rep.VenueRejections[a.Venue]++
			}
		}

		if !a.HasVideo() {
			rep.NoPreview = append(rep.NoPreview, NoPreviewEntry{
				Artist:    a.DisplayName,
				Venue:     a.Venue,
				Status:    noPreviewStatus(&a),
				Indicator: r.indicator(ctx, a.ArtistKey),
			})
		}
	}
	sort.Slice(rep.NoPreview, func(i, j int) bool {
		return rep.NoPreview[i].Artist < rep.NoPreview[j].Artist
	})

	rep.Audit = r.audit(ctx, assignments)

	snap := &model.AccuracySnapshot{
		CapturedAt:      rep.GeneratedAt,
		TotalEntries:    rep.Audit.TotalEntries,
		VerifiedCount:   rep.Counts[model.StateVerified],
		RejectedCount:   rep.Counts[model.StateRejected],
		OverrideCount:   rep.Counts[model.StateOverride],
		UnverifiedCount: rep.Counts[model.StateUnverified],
		WithVideo:       rep.Audit.WithVideo,
		NoVideo:         rep.Audit.NoVideo,
		HighConf:        rep.Audit.HighConf,
		MediumConf:      rep.Audit.MediumConf,
		LowConf:         rep.Audit.LowConf,
		Errors:          rep.Audit.Errors,
		AccuracyRate:    rep.Audit.AccuracyRate,
		AvgConfidence:   rep.Audit.AvgConfidence,
	}
	if err := r.store.AppendSnapshot(ctx, snap); err != nil {
		return nil, eris.Wrap(err, "append accuracy snapshot")
	}

	after := make(map[string]model.AssignmentState, len(assignments))
	for _, a := range assignments {
		after[a.ArtistKey] = a.State
	}
	if err := r.store.PutStateBaseline(ctx, after); err != nil {
		return nil, eris.Wrap(err, "persist report baseline")
	}
	return rep, nil
}

// audit re-resolves each verified video through the keyless lookup and
// scores title/channel against the artist identity with the same rubric
// the proposer uses.
func (r *Reporter) audit(ctx context.Context, assignments []model.Assignment) AuditStats {
	stats := AuditStats{TotalEntries: len(assignments)}

	var targets []model.Assignment
	for _, a := range assignments {
		if a.State == model.StateVerified && a.HasVideo() {
			targets = append(targets, a)
		} else {
			stats.NoVideo++
		}
	}
	if r.sample > 0 && len(targets) > r.sample {
		targets = targets[:r.sample]
	}
	stats.WithVideo = len(targets)
	if len(targets) == 0 {
		return stats
	}

	scores := make([]int, len(targets))
	errs := make([]error, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i := range targets {
		i := i
		g.Go(func() error {
			if err := r.limiter.Wait(gctx); err != nil {
				errs[i] = err
				return nil
			}
			info, err := r.lookup.Oembed(gctx, *targets[i].VideoID)
			if err != nil {
				errs[i] = err
				return nil
			}
			scores[i], _ = artist.ScoreCandidate(targets[i].DisplayName, info.Title, info.AuthorName)
			return nil
		})
	}
	_ = g.Wait()

	total := 0
	audited := 0
	for i := range targets {
		if errs[i] != nil {
			stats.Errors++
			zap.L().Debug("audit lookup failed",
				zap.String("artist", targets[i].DisplayName), zap.Error(errs[i]))
			continue
		}
		audited++
		total += scores[i]
		switch {
		case scores[i] >= highConfidenceFloor:
			stats.HighConf++
		case scores[i] >= mediumConfidenceFloor:
			stats.MediumConf++
		default:
			stats.LowConf++
		}
	}
	if audited > 0 {
		stats.AccuracyRate = float64(stats.HighConf) / float64(audited) * 100
		stats.AvgConfidence = float64(total) / float64(audited)
	}
	return stats
}

func (r *Reporter) indicator(ctx context.Context, artistKey string) string {
	entry, err := r.store.GetEnrichment(ctx, artistKey)
	if err != nil || entry == nil {
		return ""
	}
	return entry.Indicator()
}

func noPreviewStatus(a *model.Assignment) string {
	switch a.State {
	case model.StateOverride:
		return "override: no video"
	case model.StateRejected:
		if len(a.Reasoning) > 0 {
			return "rejected: " + a.Reasoning[len(a.Reasoning)-1]
		}
		return "rejected"
	case model.StateUnverified:
		return "pending verification"
	default:
		return "never searched"
	}
}

// Render formats the report as text tables.
func (r *Reporter) Render(rep *Report) string {
	var b strings.Builder

	b.WriteString("LOCAL SOUNDCHECK VIDEO REPORT\n")
	b.WriteString("Generated " + rep.GeneratedAt.Format("2006-01-02 15:04 MST") + "\n\n")

	delta := table.NewWriter()
	delta.SetStyle(table.StyleRounded)
	delta.AppendHeader(table.Row{"Change", "Artist", "Venue", "Detail"})
	for _, a := range rep.NewlyVerified {
		delta.AppendRow(table.Row{"verified", a.DisplayName, a.Venue, strings.Join(a.Reasoning, ", ")})
	}
	for _, a := range rep.Recovered {
		delta.AppendRow(table.Row{"recovered", a.DisplayName, a.Venue, strings.Join(a.Reasoning, ", ")})
	}
	for _, a := range rep.NewlyRejected {
		delta.AppendRow(table.Row{"rejected", a.DisplayName, a.Venue, strings.Join(a.Reasoning, ", ")})
	}
	if delta.Length() == 0 {
		b.WriteString("No changes since last run.\n\n")
	} else {
		b.WriteString(delta.Render() + "\n\n")
	}

	inv := table.NewWriter()
	inv.SetStyle(table.StyleRounded)
	inv.AppendHeader(table.Row{"State", "Count"})
	for _, state := range []model.AssignmentState{
		model.StateVerified, model.StateOverride, model.StateUnverified, model.StateRejected,
	} {
		inv.AppendRow(table.Row{string(state), rep.Counts[state]})
	}
	b.WriteString(inv.Render() + "\n\n")

	if len(rep.NoPreview) > 0 {
		np := table.NewWriter()
		np.SetStyle(table.StyleRounded)
		np.AppendHeader(table.Row{"Artist", "Venue", "Status", "Catalog"})
		for _, e := range rep.NoPreview {
			np.AppendRow(table.Row{e.Artist, e.Venue, e.Status, e.Indicator})
		}
		b.WriteString("No-preview queue:\n" + np.Render() + "\n\n")
	}

	b.WriteString(fmt.Sprintf("Accuracy audit: %d checked, %d high / %d medium / %d low, %d errors\n",
		rep.Audit.WithVideo, rep.Audit.HighConf, rep.Audit.MediumConf, rep.Audit.LowConf, rep.Audit.Errors))
	b.WriteString(fmt.Sprintf("Accuracy rate %.1f%%, average confidence %.1f\n",
		rep.Audit.AccuracyRate, rep.Audit.AvgConfidence))
	return b.String()
}

// WriteCSV writes the delta and no-preview sections as a flat CSV artifact.
func (r *Reporter) WriteCSV(rep *Report, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create csv %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"Section", "Artist", "Venue", "URL", "Score", "Detail"}); err != nil {
		return eris.Wrap(err, "write csv header")
	}

	writeRows := func(section string, rows []model.Assignment) error {
		for _, a := range rows {
			url := ""
			if a.HasVideo() {
				url = "https://www.youtube.com/watch?v=" + *a.VideoID
			}
			if err := w.Write([]string{
				section, a.DisplayName, a.Venue, url,
				strconv.Itoa(a.Score), strings.Join(a.Reasoning, "; "),
			}); err != nil {
				return err
			}
		}
		return nil
	}
	if err := writeRows("newly_verified", rep.NewlyVerified); err != nil {
		return eris.Wrap(err, "write csv rows")
	}
	if err := writeRows("recovered", rep.Recovered); err != nil {
		return eris.Wrap(err, "write csv rows")
	}
	if err := writeRows("newly_rejected", rep.NewlyRejected); err != nil {
		return eris.Wrap(err, "write csv rows")
	}
	for _, e := range rep.NoPreview {
		if err := w.Write([]string{"no_preview", e.Artist, e.Venue, "", "", e.Status}); err != nil {
			return eris.Wrap(err, "write csv rows")
		}
	}

	w.Flush()
	return eris.Wrap(w.Error(), "flush csv")
}
