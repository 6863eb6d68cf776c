package model

import "time"

// RunStatus is the terminal or in-flight status of a pipeline run or phase.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunPartial   RunStatus = "partial"
)

// Run records one invocation of the nightly pipeline.
type Run struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     RunStatus  `json:"status"`
	Error      string     `json:"error,omitempty"`
}

// RunPhase records one named phase within a run.
type RunPhase struct {
	ID         string     `json:"id"`
	RunID      string     `json:"run_id"`
	Name       string     `json:"name"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     RunStatus  `json:"status"`
	Processed  int        `json:"processed"`
	Error      string     `json:"error,omitempty"`
}

// AccuracySnapshot is an append-only audit measurement of assignment
// health, taken by the report generator. Alongside the audit figures it
// records the per-state inventory at capture time so the trend series
// shows how the verified/rejected split moved between runs.
type AccuracySnapshot struct {
	ID              string    `json:"id"`
	CapturedAt      time.Time `json:"captured_at"`
	TotalEntries    int       `json:"total_entries"`
	VerifiedCount   int       `json:"verified_count"`
	RejectedCount   int       `json:"rejected_count"`
	OverrideCount   int       `json:"override_count"`
	UnverifiedCount int       `json:"unverified_count"`
	WithVideo       int       `json:"with_video"`
	NoVideo         int       `json:"no_video"`
	HighConf        int       `json:"high_confidence"`
	MediumConf      int       `json:"medium_confidence"`
	LowConf         int       `json:"low_confidence"`
	Errors          int       `json:"errors"`
	AccuracyRate    float64   `json:"accuracy_rate"`
	AvgConfidence   float64   `json:"avg_confidence"`
}
