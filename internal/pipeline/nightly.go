package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/localsoundcheck/soundcheck-cli/internal/enrich"
	"github.com/localsoundcheck/soundcheck-cli/internal/model"
	"github.com/localsoundcheck/soundcheck-cli/internal/store"
)

// Nightly orchestrates the full pass: propose, enrich, verify, report.
// Phases are strictly sequential; the verifier needs the complete proposal
// set and the freshest enrichment before it gates anything.
type Nightly struct {
	store    store.Store
	proposer *Proposer
	enricher *enrich.Service
	verifier *Verifier
	reporter *Reporter
}

// NightlyResult carries the report and the run record for the caller.
type NightlyResult struct {
	Run    *model.Run
	Report *Report
}

// NewNightly creates the orchestrator.
func NewNightly(st store.Store, proposer *Proposer, enricher *enrich.Service, verifier *Verifier, reporter *Reporter) *Nightly {
	return &Nightly{
		store:    st,
		proposer: proposer,
		enricher: enricher,
		verifier: verifier,
		reporter: reporter,
	}
}

// Run executes one nightly pass over the listings at showsPath. Every
// invocation is recorded as a run with per-phase rows. A phase error marks
// the run partial and skips downstream phases that depend on it, except the
// report, which always runs so the night still produces an artifact.
func (n *Nightly) Run(ctx context.Context, showsPath string) (*NightlyResult, error) {
	run, err := n.store.CreateRun(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "create run record")
	}
	log := zap.L().With(zap.String("run_id", run.ID))
	log.Info("nightly pass starting")

	failed := false
	trackPhase := func(name string, fn func() (int, error)) error {
		phase, phaseErr := n.store.CreatePhase(ctx, run.ID, name)
		if phaseErr != nil {
			log.Warn("failed to create phase record",
				zap.String("phase", name), zap.Error(phaseErr))
		}

		start := time.Now()
		processed, fnErr := fn()
		duration := time.Since(start)

		status := model.RunCompleted
		errMsg := ""
		if fnErr != nil {
			failed = true
			status = model.RunFailed
			errMsg = fnErr.Error()
			log.Error("phase failed",
				zap.String("phase", name),
				zap.Int64("duration_ms", duration.Milliseconds()),
				zap.Error(fnErr))
		} else {
			log.Info("phase complete",
				zap.String("phase", name),
				zap.Int("processed", processed),
				zap.Int64("duration_ms", duration.Milliseconds()))
		}
		if phase != nil {
			if completeErr := n.store.CompletePhase(ctx, phase.ID, status, processed, errMsg); completeErr != nil {
				log.Warn("failed to complete phase record",
					zap.String("phase", name), zap.Error(completeErr))
			}
		}
		return fnErr
	}

	before, err := n.reporter.Snapshot(ctx)
	if err != nil {
		_ = n.store.FinishRun(ctx, run.ID, model.RunFailed, err.Error())
		return nil, eris.Wrap(err, "pre-run snapshot")
	}

	var shows []model.Show
	if err := trackPhase("load_shows", func() (int, error) {
		loaded, loadErr := LoadShows(showsPath)
		shows = loaded
		return len(loaded), loadErr
	}); err != nil {
		_ = n.store.FinishRun(ctx, run.ID, model.RunFailed, err.Error())
		return nil, eris.Wrap(err, "load shows")
	}

	_ = trackPhase("propose", func() (int, error) {
		stats, proposeErr := n.proposer.ProposeAll(ctx, shows)
		return stats.Proposed, proposeErr
	})

	_ = trackPhase("enrich", func() (int, error) {
		names := BilledArtists(shows)
		stats, enrichErr := n.enricher.EnrichAll(ctx, names, false)
		return stats.Fetched + stats.Cached, enrichErr
	})

	_ = trackPhase("verify", func() (int, error) {
		stats, verifyErr := n.verifier.VerifyAll(ctx, shows)
		return stats.Verified + stats.Rejected + stats.Deferred, verifyErr
	})

	var report *Report
	_ = trackPhase("report", func() (int, error) {
		generated, reportErr := n.reporter.Generate(ctx, before)
		if reportErr != nil {
			return 0, reportErr
		}
		report = generated
		return len(generated.NewlyVerified) + len(generated.NewlyRejected) + len(generated.Recovered), nil
	})

	status := model.RunCompleted
	if failed {
		status = model.RunPartial
	}
	if err := n.store.FinishRun(ctx, run.ID, status, ""); err != nil {
		log.Warn("failed to finish run record", zap.Error(err))
	}
	run.Status = status

	log.Info("nightly pass finished", zap.String("status", string(status)))
	return &NightlyResult{Run: run, Report: report}, nil
}

// BilledArtists collects unique cleaned artist names across shows,
// headliners and openers alike.
func BilledArtists(shows []model.Show) []string {
	seen := make(map[string]bool)
	var names []string
	for _, show := range shows {
		for _, slot := range show.Billing() {
			key := keyForBilling(slot.Name)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			names = append(names, slot.Name)
		}
	}
	return names
}
