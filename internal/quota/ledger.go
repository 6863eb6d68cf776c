package quota

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/localsoundcheck/soundcheck-cli/internal/model"
)

// DefaultCooldown is how long a rejection suppresses new search attempts.
const DefaultCooldown = 7 * 24 * time.Hour

// RejectionSource reads the most recent rejection record for an identity.
// Implemented by the store.
type RejectionSource interface {
	LatestRejection(ctx context.Context, artistKey string) (*model.RejectionRecord, error)
}

// Ledger answers "is this identity still cooling down after a rejection".
type Ledger struct {
	source RejectionSource
	window time.Duration
	now    func() time.Time
}

// NewLedger builds a ledger over a rejection source. A zero window uses
// DefaultCooldown.
func NewLedger(source RejectionSource, window time.Duration) *Ledger {
	if window <= 0 {
		window = DefaultCooldown
	}
	return &Ledger{source: source, window: window, now: time.Now}
}

// InCooldown reports whether the identity has an unexpired rejection.
// Expiry is purely a time comparison; nothing is deleted.
func (l *Ledger) InCooldown(ctx context.Context, artistKey string) (bool, error) {
	rec, err := l.source.LatestRejection(ctx, artistKey)
	if err != nil {
		return false, eris.Wrapf(err, "quota: cooldown lookup for %s", artistKey)
	}
	if rec == nil {
		return false, nil
	}
	return rec.Active(l.now(), l.window), nil
}
