package table

import (
	"log/slog"

	"github.com/hupe1980/resgo/cachefile"
	"github.com/hupe1980/resgo/internal/budget"
	"github.com/hupe1980/resgo/resource"
)

// Option configures a Table.
type Option func(*Table)

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(l *slog.Logger) Option {
	return func(t *Table) {
		t.logger = l
	}
}

// WithBudget accounts loaded payloads against c.
func WithBudget(c *budget.Controller) Option {
	return func(t *Table) {
		t.budget = c
	}
}

// WithCachePool enables eviction to p.
func WithCachePool(p *cachefile.Pool) Option {
	return func(t *Table) {
		t.pool = p
	}
}

// WithEraseHook registers fn to be called after a handle left the table.
// Overwriting an occupant does not call fn; the handle stays occupied.
func WithEraseHook(fn func(resource.ID)) Option {
	return func(t *Table) {
		t.onErase = fn
	}
}

// WithDebugNames keeps resource display names and assigns "<kind>#<id>" to
// unnamed resources. Without it, names are cleared on insertion.
func WithDebugNames(enabled bool) Option {
	return func(t *Table) {
		t.debugNames = enabled
	}
}

// WithSweep sets the garbage collection sweep.
func WithSweep(s Sweep) Option {
	return func(t *Table) {
		t.sweep = s
	}
}
