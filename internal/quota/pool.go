// Package quota enforces per-pool budgets over every external API call and
// keeps the rejection cooldown ledger the proposer consults before spending
// search units.
package quota

import (
	"fmt"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Unit costs, in API quota units, for the calls the pipeline makes.
const (
	CostSearch  = 100
	CostVideo   = 1
	CostChannel = 1
	CostCatalog = 1
)

// Canonical pool names.
const (
	PoolSearch   = "search"
	PoolMetadata = "metadata"
	PoolCatalog  = "catalog"
)

// ErrBudgetExhausted is the sentinel matched with errors.Is against a
// *BudgetExhaustedError.
var ErrBudgetExhausted = eris.New("quota: budget exhausted")

// BudgetExhaustedError reports a reservation that would overrun a pool's
// budget. It is never retryable.
type BudgetExhaustedError struct {
	Pool      string
	Requested int
	Remaining int
}

func (e *BudgetExhaustedError) Error() string {
	return fmt.Sprintf("quota: pool %s exhausted (requested %d, remaining %d)",
		e.Pool, e.Requested, e.Remaining)
}

// Is lets errors.Is(err, ErrBudgetExhausted) match.
func (e *BudgetExhaustedError) Is(target error) bool {
	return target == ErrBudgetExhausted
}

// Pool tracks spend against a fixed budget of quota units. Safe for
// concurrent use; verify fans out across workers.
type Pool struct {
	name   string
	budget int

	mu    sync.Mutex
	spent int
}

// NewPool creates a pool. A zero or negative budget means unlimited.
func NewPool(name string, budget int) *Pool {
	return &Pool{name: name, budget: budget}
}

// Reserve debits n units, or returns *BudgetExhaustedError without
// debiting anything when the budget cannot cover the request.
func (p *Pool) Reserve(n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.budget > 0 && p.spent+n > p.budget {
		return &BudgetExhaustedError{
			Pool:      p.name,
			Requested: n,
			Remaining: p.budget - p.spent,
		}
	}
	p.spent += n
	return nil
}

// Refund credits n units back, used when a reserved call never went out.
func (p *Pool) Refund(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.spent -= n
	if p.spent < 0 {
		p.spent = 0
	}
}

// Spent returns the units consumed so far.
func (p *Pool) Spent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.spent
}

// Name returns the pool name.
func (p *Pool) Name() string { return p.name }

// Pools bundles the three budget pools the pipeline runs against.
type Pools struct {
	Search   *Pool
	Metadata *Pool
	Catalog  *Pool
}

// NewPools builds the standard pool set from per-pool budgets.
func NewPools(searchBudget, metadataBudget, catalogBudget int) *Pools {
	return &Pools{
		Search:   NewPool(PoolSearch, searchBudget),
		Metadata: NewPool(PoolMetadata, metadataBudget),
		Catalog:  NewPool(PoolCatalog, catalogBudget),
	}
}

// LogSpend emits one structured line per pool, called at end of run.
func (ps *Pools) LogSpend() {
	for _, p := range []*Pool{ps.Search, ps.Metadata, ps.Catalog} {
		zap.L().Info("quota: pool spend",
			zap.String("pool", p.name),
			zap.Int("spent", p.Spent()),
			zap.Int("budget", p.budget),
		)
	}
}
