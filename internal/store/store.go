package store

import (
	"context"

	"github.com/localsoundcheck/soundcheck-cli/internal/model"
)

// AssignmentFilter specifies criteria for listing assignments.
type AssignmentFilter struct {
	State model.AssignmentState `json:"state,omitempty"`
	Venue string                `json:"venue,omitempty"`
	Limit int                   `json:"limit,omitempty"`
}

// Store defines the persistence interface for the verification pipeline.
type Store interface {
	// Assignments
	GetAssignment(ctx context.Context, artistKey string) (*model.Assignment, error)
	PutAssignment(ctx context.Context, a *model.Assignment) error
	ListAssignments(ctx context.Context, filter AssignmentFilter) ([]model.Assignment, error)
	CountAssignmentsByState(ctx context.Context) (map[model.AssignmentState]int, error)
	DeleteAssignment(ctx context.Context, artistKey string) error

	// Rejection ledger
	AddRejection(ctx context.Context, rec *model.RejectionRecord) error
	LatestRejection(ctx context.Context, artistKey string) (*model.RejectionRecord, error)

	// Enrichment cache
	GetEnrichment(ctx context.Context, artistKey string) (*model.EnrichmentEntry, error)
	PutEnrichment(ctx context.Context, entry *model.EnrichmentEntry) error

	// Accuracy snapshots (append-only)
	AppendSnapshot(ctx context.Context, snap *model.AccuracySnapshot) error
	ListSnapshots(ctx context.Context, limit int) ([]model.AccuracySnapshot, error)

	// Report baseline: per-artist states as of the last generated report,
	// used to compute deltas across separate invocations.
	GetStateBaseline(ctx context.Context) (map[string]model.AssignmentState, error)
	PutStateBaseline(ctx context.Context, states map[string]model.AssignmentState) error

	// Runs
	CreateRun(ctx context.Context) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus, errMsg string) error
	CreatePhase(ctx context.Context, runID, name string) (*model.RunPhase, error)
	CompletePhase(ctx context.Context, phaseID string, status model.RunStatus, processed int, errMsg string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
