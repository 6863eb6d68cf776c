package model

import "time"

// AssignmentState is the lifecycle state of a video assignment.
type AssignmentState string

const (
	// StateOverride is a manual, terminal assignment. A nil VideoID under
	// override means "deliberately no video", not missing data.
	StateOverride AssignmentState = "override"
	// StateVerified means the candidate passed the trust gate.
	StateVerified AssignmentState = "verified"
	// StateUnverified is a proposed candidate awaiting verification.
	StateUnverified AssignmentState = "unverified"
	// StateRejected means the trust gate rejected the candidate.
	StateRejected AssignmentState = "rejected"
)

// Terminal reports whether automated runs may no longer change the assignment.
func (s AssignmentState) Terminal() bool {
	return s == StateOverride || s == StateVerified
}

// Role distinguishes the billing position of an artist on a show.
type Role string

const (
	RoleHeadliner Role = "headliner"
	RoleOpener    Role = "opener"
)

// Assignment is the durable verdict record for one artist identity.
type Assignment struct {
	ArtistKey   string          `json:"artist_key"`
	DisplayName string          `json:"display_name"`
	Role        Role            `json:"role"`
	State       AssignmentState `json:"state"`
	VideoID     *string         `json:"video_id"`
	Score       int             `json:"score,omitempty"`
	Reasoning   []string        `json:"reasoning,omitempty"`
	Venue       string          `json:"venue,omitempty"`
	DecidedAt   time.Time       `json:"decided_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// HasVideo reports whether the assignment carries a usable video reference.
func (a *Assignment) HasVideo() bool {
	return a.VideoID != nil && *a.VideoID != ""
}

// RejectionRecord suppresses re-search of an artist for the cooldown window.
type RejectionRecord struct {
	ArtistKey  string    `json:"artist_key"`
	VideoID    string    `json:"video_id"`
	Reasons    []string  `json:"reasons"`
	RejectedAt time.Time `json:"rejected_at"`
}

// Active reports whether the record still suppresses searches at now,
// given the cooldown window.
func (r *RejectionRecord) Active(now time.Time, window time.Duration) bool {
	return now.Sub(r.RejectedAt) < window
}
