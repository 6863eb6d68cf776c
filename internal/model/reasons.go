package model

// Rejection and advisory reason codes attached to trust-gate verdicts.
// Hard codes reject the candidate; soft codes annotate without rejecting.
const (
	ReasonLikelyEventNotBand          = "likely-event-not-band"
	ReasonViewCountExceedsCap         = "view-count-exceeds-cap"
	ReasonChannelMismatchHighSub      = "channel-mismatch-high-subscriber"
	ReasonStaleVideoNoChannelMatch    = "stale-video-no-channel-match"
	ReasonVideoRemoved                = "video-removed"
	ReasonNoCatalogIdentity           = "no-catalog-identity"
	ReasonCatalogIdentityWeak         = "catalog-identity-weak" // soft unless configured hard
)
