package table

import (
	"context"
	"fmt"
	"io"

	"github.com/hupe1980/resgo/internal/budget"
	"github.com/hupe1980/resgo/resource"
)

// Evict writes the payload of a loaded, cacheable occupant to the cache pool,
// raises Cached, unloads it and clears Loaded.
func (t *Table) Evict(ctx context.Context, id resource.ID) error {
	if t.pool == nil {
		return ErrNoCache
	}
	s, ok := t.slots[id]
	if !ok {
		return fmt.Errorf("evict %d: %w", id, ErrNotFound)
	}
	return t.evict(ctx, id, s)
}

// Restore reads the payload of a cached occupant back, clears Cached and
// raises Loaded. The cache record is dropped.
func (t *Table) Restore(ctx context.Context, id resource.ID) error {
	if t.pool == nil {
		return ErrNoCache
	}
	s, ok := t.slots[id]
	if !ok {
		return fmt.Errorf("restore %d: %w", id, ErrNotFound)
	}
	return t.restore(ctx, id, s)
}

func (t *Table) evict(ctx context.Context, id resource.ID, s *slot) error {
	c, ok := s.res.(resource.Cacheable)
	if !ok {
		return fmt.Errorf("evict %d: %w", id, ErrNotCacheable)
	}
	status := s.res.Status()
	switch {
	case status.Has(resource.Invalid):
		return fmt.Errorf("evict %d: %w", id, ErrInvalidResource)
	case !status.Has(resource.Loaded):
		return fmt.Errorf("evict %d: %w", id, ErrNotLoaded)
	}

	footprint := s.res.UsedMemory()
	err := t.pool.Store(ctx, id, footprint, func(w io.Writer) error {
		return safeCall(func() error { return c.Cache(w) })
	})
	if err != nil {
		return fmt.Errorf("evict %d: %w", id, err)
	}

	resource.Raise(s.res, resource.Cached)
	if err := safeCall(s.res.Unload); err != nil {
		t.pool.Drop(id)
		resource.Lower(s.res, resource.Cached)
		return fmt.Errorf("evict %d: %w", id, err)
	}
	resource.Lower(s.res, resource.Loaded)
	s.cached = footprint
	t.release(s)

	if t.logger != nil {
		t.logger.Debug("resource evicted", "table", t.name, "id", uint32(id), "bytes", footprint)
	}
	return nil
}

func (t *Table) restore(ctx context.Context, id resource.ID, s *slot) error {
	if !s.res.Status().Has(resource.Cached) {
		return fmt.Errorf("restore %d: %w", id, ErrNotCached)
	}
	c, ok := s.res.(resource.Cacheable)
	if !ok {
		return fmt.Errorf("restore %d: %w", id, ErrNotCacheable)
	}

	// reserve the footprint recorded at eviction before the payload lands
	if err := t.reserve(ctx, id, s, s.cached); err != nil {
		return fmt.Errorf("restore %d: %w", id, err)
	}
	err := t.pool.Load(ctx, id, func(r io.Reader) error {
		return safeCall(func() error { return c.Restore(r) })
	})
	if err != nil {
		t.release(s)
		return fmt.Errorf("restore %d: %w", id, err)
	}

	resource.Lower(s.res, resource.Cached)
	resource.Raise(s.res, resource.Loaded)
	s.cached = 0

	if t.logger != nil {
		t.logger.Debug("resource restored", "table", t.name, "id", uint32(id))
	}
	return nil
}

// reserve books need bytes for the occupant of id in the memory budget,
// evicting other loaded resources in handle order while the budget is
// exhausted. A request larger than the whole limit fails without evicting.
func (t *Table) reserve(ctx context.Context, id resource.ID, s *slot, need int64) error {
	if t.budget == nil || need <= 0 {
		return nil
	}
	if limit := t.budget.MemoryLimit(); limit > 0 && need > limit {
		return fmt.Errorf("%w: %d bytes for %d, limit is %d", budget.ErrMemoryLimitExceeded, need, id, limit)
	}
	for {
		err := t.budget.AcquireMemory(need)
		if err == nil {
			s.reserved += need
			return nil
		}
		if !t.evictOne(ctx, id) {
			return fmt.Errorf("%w: %d bytes for %d", err, need, id)
		}
	}
}

func (t *Table) release(s *slot) {
	if s.reserved > 0 {
		t.budget.ReleaseMemory(s.reserved)
		s.reserved = 0
	}
}

// evictOne evicts the lowest loaded, cacheable, unreferenced occupant other
// than except. It reports whether anything was evicted.
func (t *Table) evictOne(ctx context.Context, except resource.ID) bool {
	if t.pool == nil {
		return false
	}
	for _, id := range t.Handles() {
		if id == except {
			continue
		}
		s := t.slots[id]
		status := s.res.Status()
		if s.refs > 0 || !status.Has(resource.Loaded) || status.Has(resource.Invalid) || !resource.IsCacheable(s.res) {
			continue
		}
		if err := t.evict(ctx, id, s); err != nil {
			if t.logger != nil {
				t.logger.Warn("eviction under memory pressure failed", "table", t.name, "id", uint32(id), "error", err)
			}
			continue
		}
		return true
	}
	return false
}
