package resgo

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/hupe1980/resgo/cachefile"
	"github.com/hupe1980/resgo/internal/budget"
	"github.com/hupe1980/resgo/internal/handle"
	"github.com/hupe1980/resgo/resource"
	"github.com/hupe1980/resgo/table"
)

// Owner names the scope a table belongs to.
type Owner string

// PublicOwner owns the table every engine starts with.
const PublicOwner Owner = "public"

// Engine owns the handle space and one table per owner. Operations are
// routed to the table of the given owner; fresh handles come from a single
// allocator so a handle is never present in two tables at once.
type Engine struct {
	cfg    Config
	policy table.Policy
	sweep  table.Sweep

	alloc  *handle.Buffered
	tables map[Owner]*table.Table
	pool   *cachefile.Pool
	budget *budget.Controller

	metrics MetricsCollector
	logger  *Logger
	closed  bool
}

// New creates an engine with a public table. Zero config fields select their
// defaults.
func New(cfg Config, optFns ...Option) (*Engine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := applyOptions(optFns)

	compression, err := cfg.compression()
	if err != nil {
		return nil, err
	}
	sweep, err := cfg.sweep()
	if err != nil {
		return nil, err
	}

	alloc, err := handle.NewBuffered(1, resource.ID(cfg.MaxHandles), cfg.AllocBandwidth)
	if err != nil {
		return nil, fmt.Errorf("resgo: failed to create allocator: %w", err)
	}

	ctl := budget.NewController(budget.Config{
		MemoryLimitBytes:   cfg.MemoryLimitBytes,
		IOLimitBytesPerSec: cfg.IOLimitBytesPerSec,
	})

	e := &Engine{
		cfg:     cfg,
		policy:  table.PolicyFor(cfg.Strict),
		sweep:   sweep,
		alloc:   alloc,
		tables:  make(map[Owner]*table.Table),
		budget:  ctl,
		metrics: opts.metrics,
		logger:  opts.logger,
	}
	e.pool = cachefile.NewPool(cfg.CacheDir, cfg.CacheFileLimit,
		cachefile.WithPoolLogger(opts.logger.Logger),
		cachefile.WithPoolCompression(compression),
		cachefile.WithBudget(ctl),
	)
	e.tables[PublicOwner] = e.newTable(PublicOwner, e.policy)

	e.logger.Info("engine created",
		"max_handles", cfg.MaxHandles,
		"policy", e.policy.String(),
		"cache_dir", e.pool.Dir(),
		"memory_limit", cfg.MemoryLimitBytes,
	)
	return e, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Public returns the public table.
func (e *Engine) Public() *table.Table { return e.tables[PublicOwner] }

// Pool returns the cache pool shared by all tables.
func (e *Engine) Pool() *cachefile.Pool { return e.pool }

// Register creates a private table for owner with the given policy.
// A nil policy selects the engine default.
func (e *Engine) Register(owner Owner, policy table.Policy) (*table.Table, error) {
	if e.closed {
		return nil, ErrClosed
	}
	if owner == "" {
		return nil, fmt.Errorf("register: %w", ErrInvalidOwner)
	}
	if _, ok := e.tables[owner]; ok {
		return nil, fmt.Errorf("register %q: %w", owner, ErrAlreadyExists)
	}
	if policy == nil {
		policy = e.policy
	}
	t := e.newTable(owner, policy)
	e.tables[owner] = t
	e.logger.Debug("scope registered", "owner", string(owner), "policy", policy.String())
	return t, nil
}

// NewScope registers a private table for owner with the engine default
// policy.
func (e *Engine) NewScope(owner Owner) (*table.Table, error) {
	return e.Register(owner, nil)
}

// Unregister erases every resource of owner, frees their handles and drops
// the table. The public owner cannot be unregistered.
func (e *Engine) Unregister(owner Owner) error {
	if e.closed {
		return ErrClosed
	}
	if owner == PublicOwner {
		return fmt.Errorf("unregister: %w", ErrInvalidOwner)
	}
	t, ok := e.tables[owner]
	if !ok {
		return fmt.Errorf("unregister %q: %w", owner, ErrOwnerNotFound)
	}
	t.Clear()
	delete(e.tables, owner)
	e.logger.Debug("scope unregistered", "owner", string(owner))
	return nil
}

// Scope returns the table of owner. Handles in engine tables are issued by
// the engine, so new resources should enter through Create or Adopt rather
// than being stored into the table directly.
func (e *Engine) Scope(owner Owner) (*table.Table, bool) {
	t, ok := e.tables[owner]
	return t, ok
}

// Owners returns the registered owners in lexical order.
func (e *Engine) Owners() []Owner {
	return slices.Sorted(maps.Keys(e.tables))
}

// OwnerOf returns the owner whose table holds id.
func (e *Engine) OwnerOf(id resource.ID) (Owner, bool) {
	for owner, t := range e.tables {
		if t.Contains(id) {
			return owner, true
		}
	}
	return "", false
}

// Create allocates a handle and stores the resource built by ctor in the
// table of owner. The handle is released again on any failure.
func Create[T resource.Resource](e *Engine, owner Owner, ctor func() (T, error)) (resource.ID, T, error) {
	start := time.Now()
	var zero T

	id, t, err := e.allocate(owner)
	if err != nil {
		err = opError("create", owner, resource.InvalidID, err)
		e.record(start, owner, id, err)
		return resource.InvalidID, zero, err
	}

	res, err := table.Create(t, id, ctor)
	if err != nil {
		e.alloc.Release(id)
		err = opError("create", owner, id, err)
		e.record(start, owner, resource.InvalidID, err)
		return resource.InvalidID, zero, err
	}
	e.record(start, owner, id, nil)
	return id, res, nil
}

// Adopt allocates a handle for an already constructed resource and stores it
// in the table of owner.
func (e *Engine) Adopt(owner Owner, res resource.Resource) (resource.ID, error) {
	start := time.Now()

	id, t, err := e.allocate(owner)
	if err != nil {
		err = opError("adopt", owner, resource.InvalidID, err)
		e.record(start, owner, id, err)
		return resource.InvalidID, err
	}
	err = t.Adopt(id, res)
	if err == nil && !t.Contains(id) {
		// Normal tables accept nil without storing anything
		err = table.ErrNilResource
	}
	if err != nil {
		e.alloc.Release(id)
		err = opError("adopt", owner, id, err)
		e.record(start, owner, resource.InvalidID, err)
		return resource.InvalidID, err
	}
	e.record(start, owner, id, nil)
	return id, nil
}

// Replace stores res under an occupied handle of owner. A nil res erases the
// handle in Normal tables.
func (e *Engine) Replace(owner Owner, id resource.ID, res resource.Resource) error {
	t, err := e.occupied(owner, id)
	if err != nil {
		return opError("replace", owner, id, err)
	}
	return opError("replace", owner, id, t.Replace(id, res))
}

// Lookup returns the resource stored under id in the table of owner.
func (e *Engine) Lookup(owner Owner, id resource.ID) (resource.Resource, error) {
	t, err := e.occupied(owner, id)
	if err != nil {
		return nil, opError("lookup", owner, id, err)
	}
	res, _ := t.Lookup(id)
	return res, nil
}

// Get returns the resource stored under id if its dynamic type is T.
func Get[T resource.Resource](e *Engine, owner Owner, id resource.ID) (T, bool) {
	var zero T
	t, ok := e.tables[owner]
	if !ok {
		return zero, false
	}
	return table.Get[T](t, id)
}

// Delete erases id from the table of owner and frees the handle. It reports
// false for unknown owners, absent handles and refused strict deletes.
func (e *Engine) Delete(owner Owner, id resource.ID) bool {
	start := time.Now()
	t, ok := e.tables[owner]
	deleted := ok && t.Delete(id)
	e.metrics.RecordDelete(time.Since(start), deleted)
	e.logger.LogDelete(context.Background(), owner, id, deleted)
	return deleted
}

// Copy stores a clone of src under a fresh handle in the same table.
func (e *Engine) Copy(owner Owner, src resource.ID) (resource.ID, error) {
	start := time.Now()
	t, err := e.occupied(owner, src)
	if err != nil {
		return resource.InvalidID, opError("copy", owner, src, err)
	}
	dst, err := e.alloc.Allocate()
	if err != nil {
		return resource.InvalidID, opError("copy", owner, src, err)
	}
	if _, err := t.Copy(src, dst); err != nil {
		e.alloc.Release(dst)
		err = opError("copy", owner, src, err)
		e.record(start, owner, resource.InvalidID, err)
		return resource.InvalidID, err
	}
	e.record(start, owner, dst, nil)
	return dst, nil
}

// Move rehomes src under a fresh handle in the same table and frees src.
// Outstanding references follow the resource.
func (e *Engine) Move(owner Owner, src resource.ID) (resource.ID, error) {
	t, err := e.occupied(owner, src)
	if err != nil {
		return resource.InvalidID, opError("move", owner, src, err)
	}
	dst, err := e.alloc.Allocate()
	if err != nil {
		return resource.InvalidID, opError("move", owner, src, err)
	}
	if _, err := t.Move(src, dst); err != nil {
		e.alloc.Release(dst)
		return resource.InvalidID, opError("move", owner, src, err)
	}
	return dst, nil
}

// Transfer moves id from the table of from into the table of to. The handle
// stays issued.
func (e *Engine) Transfer(id resource.ID, from, to Owner) error {
	src, err := e.occupied(from, id)
	if err != nil {
		return opError("transfer", from, id, err)
	}
	dst, ok := e.tables[to]
	if !ok {
		return opError("transfer", to, id, ErrOwnerNotFound)
	}
	if err := table.Transfer(src, dst, id); err != nil {
		return opError("transfer", from, id, err)
	}
	e.logger.Debug("resource transferred", "id", uint32(id), "from", string(from), "to", string(to))
	return nil
}

// Load loads id in the table of owner. Under memory pressure other resources
// of that table are evicted to the cache pool.
func (e *Engine) Load(owner Owner, id resource.ID) error {
	t, err := e.occupied(owner, id)
	if err != nil {
		return opError("load", owner, id, err)
	}
	ctx := context.Background()
	return e.watch(ctx, func() error {
		return opError("load", owner, id, t.Load(id))
	})
}

// Unload unloads id in the table of owner.
func (e *Engine) Unload(owner Owner, id resource.ID) error {
	t, err := e.occupied(owner, id)
	if err != nil {
		return opError("unload", owner, id, err)
	}
	return opError("unload", owner, id, t.Unload(id))
}

// Reload reloads id in the table of owner.
func (e *Engine) Reload(owner Owner, id resource.ID) error {
	t, err := e.occupied(owner, id)
	if err != nil {
		return opError("reload", owner, id, err)
	}
	ctx := context.Background()
	return e.watch(ctx, func() error {
		return opError("reload", owner, id, t.Reload(id))
	})
}

// Evict writes id out to the cache pool and unloads it.
func (e *Engine) Evict(ctx context.Context, owner Owner, id resource.ID) error {
	start := time.Now()
	t, err := e.occupied(owner, id)
	if err != nil {
		return opError("evict", owner, id, err)
	}
	res, _ := t.Lookup(id)
	footprint := res.UsedMemory()

	err = e.watch(ctx, func() error {
		return opError("evict", owner, id, t.Evict(ctx, id))
	})
	e.metrics.RecordEvict(footprint, time.Since(start), err)
	e.logger.LogEvict(ctx, owner, id, footprint, err)
	return err
}

// Restore reads id back from the cache pool.
func (e *Engine) Restore(ctx context.Context, owner Owner, id resource.ID) error {
	start := time.Now()
	t, err := e.occupied(owner, id)
	if err != nil {
		return opError("restore", owner, id, err)
	}
	err = e.watch(ctx, func() error {
		return opError("restore", owner, id, t.Restore(ctx, id))
	})
	e.metrics.RecordRestore(time.Since(start), err)
	e.logger.LogRestore(ctx, owner, id, err)
	return err
}

// CheckFlags matches the status of id in the table of owner. Unknown owners
// behave like an absent handle.
func (e *Engine) CheckFlags(owner Owner, id resource.ID, up, down resource.Status, mode resource.MatchMode) bool {
	t, ok := e.tables[owner]
	if !ok {
		return down.Has(resource.Presented)
	}
	return t.CheckFlags(id, up, down, mode)
}

// CollectGarbage sweeps the tables in owner order, erasing at most bandwidth
// resources in total. A negative bandwidth is unbounded, zero is a no-op.
func (e *Engine) CollectGarbage(bandwidth int) (int, int64) {
	if bandwidth == 0 {
		return 0, 0
	}
	start := time.Now()
	var (
		total int
		freed int64
	)
	for _, owner := range e.Owners() {
		left := bandwidth
		if bandwidth > 0 {
			left = bandwidth - total
			if left <= 0 {
				break
			}
		}
		n, b := e.tables[owner].CollectGarbage(left)
		total += n
		freed += b
	}
	e.metrics.RecordCollect(total, freed, time.Since(start))
	e.logger.LogCollect(context.Background(), total, freed)
	return total, freed
}

// Stats is a snapshot of an engine.
type Stats struct {
	Handles     int
	HandleCap   int
	Staged      int
	Tables      map[Owner]table.Stats
	Cache       cachefile.PoolStats
	MemoryUsage int64
	MemoryLimit int64
	IOBytes     int64
}

// Stats returns a snapshot of the engine.
func (e *Engine) Stats() Stats {
	st := Stats{
		Handles:     e.alloc.Len(),
		HandleCap:   e.alloc.Cap(),
		Staged:      e.alloc.Staged(),
		Tables:      make(map[Owner]table.Stats, len(e.tables)),
		Cache:       e.pool.Stats(),
		MemoryUsage: e.budget.MemoryUsage(),
		MemoryLimit: e.budget.MemoryLimit(),
		IOBytes:     e.budget.IOBytes(),
	}
	for owner, t := range e.tables {
		st.Tables[owner] = t.Stats()
	}
	return st
}

// Close erases every resource, frees all handles and removes the cache
// files. Further operations return ErrClosed.
func (e *Engine) Close() error {
	if e == nil || e.closed {
		return nil
	}
	e.closed = true
	for _, owner := range e.Owners() {
		e.tables[owner].Clear()
	}
	e.alloc.Flush()
	var errs []error
	if err := e.pool.Close(); err != nil {
		errs = append(errs, fmt.Errorf("resgo: close cache pool: %w", err))
	}
	e.logger.Info("engine closed")
	return errors.Join(errs...)
}

func (e *Engine) newTable(owner Owner, policy table.Policy) *table.Table {
	return table.New(string(owner), policy,
		table.WithLogger(e.logger.Logger),
		table.WithBudget(e.budget),
		table.WithCachePool(e.pool),
		table.WithEraseHook(e.erased),
		table.WithDebugNames(e.cfg.DebugNames),
		table.WithSweep(e.sweep),
	)
}

// erased frees the handle of an erased occupant unless another table still
// holds it, which happens when a caller stores into a scope directly.
func (e *Engine) erased(id resource.ID) {
	if _, held := e.OwnerOf(id); held {
		return
	}
	e.alloc.Release(id)
}

// allocate resolves owner and issues a fresh handle.
func (e *Engine) allocate(owner Owner) (resource.ID, *table.Table, error) {
	if e.closed {
		return resource.InvalidID, nil, ErrClosed
	}
	t, ok := e.tables[owner]
	if !ok {
		return resource.InvalidID, nil, ErrOwnerNotFound
	}
	id, err := e.alloc.Allocate()
	if err != nil {
		return resource.InvalidID, nil, err
	}
	return id, t, nil
}

// occupied resolves owner and checks that its table holds id.
func (e *Engine) occupied(owner Owner, id resource.ID) (*table.Table, error) {
	if e.closed {
		return nil, ErrClosed
	}
	t, ok := e.tables[owner]
	if !ok {
		return nil, ErrOwnerNotFound
	}
	if !t.Contains(id) {
		return nil, ErrNotFound
	}
	return t, nil
}

func (e *Engine) record(start time.Time, owner Owner, id resource.ID, err error) {
	e.metrics.RecordCreate(time.Since(start), err)
	e.logger.LogCreate(context.Background(), owner, id, err)
}

// watch runs fn and logs cache file recoveries it caused.
func (e *Engine) watch(ctx context.Context, fn func() error) error {
	before := e.pool.Stats().Recoveries
	err := fn()
	if after := e.pool.Stats().Recoveries; after > before {
		e.logger.LogRecover(ctx, after-before, after)
	}
	return err
}
