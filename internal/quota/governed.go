package quota

import (
	"context"

	"github.com/localsoundcheck/soundcheck-cli/internal/resilience"
)

// Governor wraps external calls with budget reservation and transient
// retry. Every retry attempt is a real API request, so units are reserved
// per attempt, not per logical call.
type Governor struct {
	pools *Pools
	retry resilience.RetryConfig
}

// NewGovernor builds a Governor over the given pools.
func NewGovernor(pools *Pools, retry resilience.RetryConfig) *Governor {
	return &Governor{pools: pools, retry: retry}
}

// Pools exposes the underlying pool set for spend reporting.
func (g *Governor) Pools() *Pools { return g.pools }

func (g *Governor) pool(name string) *Pool {
	switch name {
	case PoolSearch:
		return g.pools.Search
	case PoolMetadata:
		return g.pools.Metadata
	default:
		return g.pools.Catalog
	}
}

// GovernedVal runs fn under the named pool at the given unit cost. The
// reservation happens inside the retry loop so each attempt is budgeted;
// a *BudgetExhaustedError from Reserve is non-retryable and surfaces
// directly to the caller.
func GovernedVal[T any](ctx context.Context, g *Governor, poolName string, cost int, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	p := g.pool(poolName)
	cfg := g.retry
	cfg.OnRetry = resilience.RetryLogger(poolName, op)
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (T, error) {
		var zero T
		if err := p.Reserve(cost); err != nil {
			return zero, err
		}
		// Reserved but cancelled before the request left: put the
		// units back, they were never spent upstream.
		if err := ctx.Err(); err != nil {
			p.Refund(cost)
			return zero, err
		}
		return fn(ctx)
	})
}
