package table

import (
	"context"
	"fmt"

	"github.com/hupe1980/resgo/resource"
)

// Load loads the occupant of id and raises Loaded. Loading a loaded resource
// is a no-op; loading a cached resource restores it.
func (t *Table) Load(id resource.ID) error {
	s, ok := t.slots[id]
	if !ok {
		return fmt.Errorf("load %d: %w", id, ErrNotFound)
	}
	return t.load(context.Background(), id, s)
}

// Unload unloads the occupant of id and clears Loaded.
func (t *Table) Unload(id resource.ID) error {
	s, ok := t.slots[id]
	if !ok {
		return fmt.Errorf("unload %d: %w", id, ErrNotFound)
	}
	return t.unload(id, s)
}

// Reload reloads the occupant of id and raises Loaded.
func (t *Table) Reload(id resource.ID) error {
	s, ok := t.slots[id]
	if !ok {
		return fmt.Errorf("reload %d: %w", id, ErrNotFound)
	}
	return t.reload(context.Background(), id, s)
}

// LoadAll loads every occupant that is not Invalid. It returns the number of
// successes and a *BatchError if any resource failed.
func (t *Table) LoadAll() (int, error) {
	return t.batch("load", func(id resource.ID, s *slot) error {
		return t.load(context.Background(), id, s)
	})
}

// UnloadAll unloads every occupant that is not Invalid.
func (t *Table) UnloadAll() (int, error) {
	return t.batch("unload", t.unload)
}

// ReloadAll reloads every occupant that is not Invalid.
func (t *Table) ReloadAll() (int, error) {
	return t.batch("reload", func(id resource.ID, s *slot) error {
		return t.reload(context.Background(), id, s)
	})
}

// TryLoadAll is LoadAll reduced to a single success flag.
func (t *Table) TryLoadAll() bool {
	_, err := t.LoadAll()
	return err == nil
}

// TryUnloadAll is UnloadAll reduced to a single success flag.
func (t *Table) TryUnloadAll() bool {
	_, err := t.UnloadAll()
	return err == nil
}

// TryReloadAll is ReloadAll reduced to a single success flag.
func (t *Table) TryReloadAll() bool {
	_, err := t.ReloadAll()
	return err == nil
}

// CollectGarbage erases up to bandwidth collectable occupants and returns
// how many were erased and their combined UsedMemory. A negative bandwidth
// is unbounded, zero is a no-op. Strict tables skip referenced occupants
// without counting them against bandwidth.
func (t *Table) CollectGarbage(bandwidth int) (int, int64) {
	if bandwidth == 0 {
		return 0, 0
	}
	var (
		n     int
		freed int64
	)
	for _, id := range t.Handles() {
		if bandwidth > 0 && n >= bandwidth {
			break
		}
		s := t.slots[id]
		if t.sweep == SweepInvalid && !s.res.Status().Has(resource.Invalid) {
			continue
		}
		if !t.policy.vacate(s.refs) {
			continue
		}
		freed += s.res.UsedMemory()
		t.erase(id, true)
		n++
	}
	if n > 0 && t.logger != nil {
		t.logger.Debug("garbage collected", "table", t.name, "count", n, "bytes", freed)
	}
	return n, freed
}

func (t *Table) batch(op string, fn func(resource.ID, *slot) error) (int, error) {
	var (
		n    int
		berr *BatchError
	)
	for _, id := range t.Handles() {
		s, ok := t.slots[id]
		if !ok || s.res.Status().Has(resource.Invalid) {
			continue
		}
		if err := fn(id, s); err != nil {
			if berr == nil {
				berr = &BatchError{Op: op}
			}
			berr.add(id, err)
			continue
		}
		n++
	}
	if berr != nil {
		berr.Succeeded = n
		if t.logger != nil {
			t.logger.Warn("batch completed with failures", "table", t.name, "op", op,
				"success", n, "failed", len(berr.Failures))
		}
		return n, berr
	}
	return n, nil
}

func (t *Table) load(ctx context.Context, id resource.ID, s *slot) error {
	status := s.res.Status()
	switch {
	case status.Has(resource.Invalid):
		return fmt.Errorf("load %d: %w", id, ErrInvalidResource)
	case status.Has(resource.Loaded):
		return nil
	case status.Has(resource.Cached) && t.pool != nil:
		return t.restore(ctx, id, s)
	}

	if err := safeCall(s.res.Load); err != nil {
		return fmt.Errorf("load %d: %w", id, err)
	}
	if err := t.reserve(ctx, id, s, s.res.UsedMemory()); err != nil {
		_ = safeCall(s.res.Unload)
		return fmt.Errorf("load %d: %w", id, err)
	}
	resource.Raise(s.res, resource.Loaded)
	return nil
}

func (t *Table) unload(id resource.ID, s *slot) error {
	if !s.res.Status().Has(resource.Loaded) {
		return nil
	}
	if err := safeCall(s.res.Unload); err != nil {
		return fmt.Errorf("unload %d: %w", id, err)
	}
	resource.Lower(s.res, resource.Loaded)
	t.release(s)
	return nil
}

func (t *Table) reload(ctx context.Context, id resource.ID, s *slot) error {
	status := s.res.Status()
	if status.Has(resource.Invalid) {
		return fmt.Errorf("reload %d: %w", id, ErrInvalidResource)
	}
	if status.Has(resource.Cached) && t.pool != nil {
		if err := t.restore(ctx, id, s); err != nil {
			return err
		}
	}
	if err := safeCall(s.res.Reload); err != nil {
		return fmt.Errorf("reload %d: %w", id, err)
	}
	t.release(s)
	if err := t.reserve(ctx, id, s, s.res.UsedMemory()); err != nil {
		_ = safeCall(s.res.Unload)
		resource.Lower(s.res, resource.Loaded)
		return fmt.Errorf("reload %d: %w", id, err)
	}
	resource.Raise(s.res, resource.Loaded)
	return nil
}
