package table

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/resgo/cachefile"
	"github.com/hupe1980/resgo/internal/budget"
	"github.com/hupe1980/resgo/resource"
)

type slot struct {
	res      resource.Resource
	refs     int
	reserved int64 // bytes held in the memory budget
	cached   int64 // footprint at eviction time
}

// Table owns resources by handle within one scope.
type Table struct {
	name   string
	policy Policy

	slots map[resource.ID]*slot
	live  *roaring.Bitmap

	logger     *slog.Logger
	budget     *budget.Controller
	pool       *cachefile.Pool
	onErase    func(resource.ID)
	debugNames bool
	sweep      Sweep
}

// New returns an empty table. A nil policy selects Normal.
func New(name string, policy Policy, opts ...Option) *Table {
	if policy == nil {
		policy = Normal
	}
	t := &Table{
		name:   name,
		policy: policy,
		slots:  make(map[resource.ID]*slot),
		live:   roaring.New(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Policy returns the occupancy policy.
func (t *Table) Policy() Policy { return t.policy }

// Len returns the number of occupied handles.
func (t *Table) Len() int { return len(t.slots) }

// Contains reports whether id is occupied.
func (t *Table) Contains(id resource.ID) bool {
	_, ok := t.slots[id]
	return ok
}

// Handles returns the occupied handles in ascending order.
func (t *Table) Handles() []resource.ID {
	raw := t.live.ToArray()
	ids := make([]resource.ID, len(raw))
	for i, v := range raw {
		ids[i] = resource.ID(v)
	}
	return ids
}

// Range calls fn for every occupant in ascending handle order until fn
// returns false. fn must not mutate the table.
func (t *Table) Range(fn func(resource.ID, resource.Resource) bool) {
	it := t.live.Iterator()
	for it.HasNext() {
		id := resource.ID(it.Next())
		if !fn(id, t.slots[id].res) {
			return
		}
	}
}

// Create constructs a resource with ctor and stores it under id.
//
// Normal tables replace an existing occupant. Strict tables return
// ErrAlreadyExists without calling ctor. A failing or panicking ctor yields
// ErrConstruction and leaves the table unchanged.
func Create[T resource.Resource](t *Table, id resource.ID, ctor func() (T, error)) (T, error) {
	var zero T
	if id == resource.InvalidID {
		return zero, ErrInvalidHandle
	}
	if err := t.policy.occupy(t.Contains(id)); err != nil {
		return zero, fmt.Errorf("create %d: %w", id, err)
	}
	res, err := construct(ctor)
	if err != nil {
		return zero, fmt.Errorf("create %d: %w", id, err)
	}
	t.put(id, res)
	return res, nil
}

// ReplaceWith constructs a resource with ctor and stores it under id,
// replacing any occupant. Strict tables return ErrNotFound for absent
// handles.
func ReplaceWith[T resource.Resource](t *Table, id resource.ID, ctor func() (T, error)) (T, error) {
	var zero T
	if id == resource.InvalidID {
		return zero, ErrInvalidHandle
	}
	if !t.Contains(id) && !t.policy.fillAbsent() {
		return zero, fmt.Errorf("replace %d: %w", id, ErrNotFound)
	}
	res, err := construct(ctor)
	if err != nil {
		return zero, fmt.Errorf("replace %d: %w", id, err)
	}
	t.put(id, res)
	return res, nil
}

// Get returns the occupant of id if its dynamic type is T.
func Get[T resource.Resource](t *Table, id resource.ID) (T, bool) {
	var zero T
	s, ok := t.slots[id]
	if !ok {
		return zero, false
	}
	v, ok := s.res.(T)
	return v, ok
}

// Lookup returns the occupant of id.
func (t *Table) Lookup(id resource.ID) (resource.Resource, bool) {
	s, ok := t.slots[id]
	if !ok {
		return nil, false
	}
	return s.res, true
}

// Adopt stores an already constructed resource under id with the same
// occupancy rule as Create. A nil resource erases id in Normal tables and is
// rejected with ErrNilResource in Strict tables.
func (t *Table) Adopt(id resource.ID, res resource.Resource) error {
	if id == resource.InvalidID {
		return ErrInvalidHandle
	}
	if isNil(res) {
		return t.adoptNil(id)
	}
	if err := t.policy.occupy(t.Contains(id)); err != nil {
		return fmt.Errorf("adopt %d: %w", id, err)
	}
	t.put(id, res)
	return nil
}

// Replace stores res under id, replacing any occupant. Strict tables return
// ErrNotFound for absent handles.
func (t *Table) Replace(id resource.ID, res resource.Resource) error {
	if id == resource.InvalidID {
		return ErrInvalidHandle
	}
	if !t.Contains(id) && !t.policy.fillAbsent() {
		return fmt.Errorf("replace %d: %w", id, ErrNotFound)
	}
	if isNil(res) {
		return t.adoptNil(id)
	}
	t.put(id, res)
	return nil
}

// Delete erases id. Strict tables refuse while a Ref is outstanding.
func (t *Table) Delete(id resource.ID) bool {
	s, ok := t.slots[id]
	if !ok || !t.policy.vacate(s.refs) {
		return false
	}
	t.erase(id, true)
	return true
}

// Copy stores a clone of the occupant of src under dst. The clone never
// inherits Cached. A loaded clone books its footprint in the memory budget;
// when that fails the clone is unloaded and dropped.
func (t *Table) Copy(src, dst resource.ID) (resource.Resource, error) {
	if dst == resource.InvalidID {
		return nil, ErrInvalidHandle
	}
	s, ok := t.slots[src]
	if !ok {
		return nil, fmt.Errorf("copy %d: %w", src, ErrNotFound)
	}
	c, ok := s.res.(resource.Cloner)
	if !ok {
		return nil, fmt.Errorf("copy %d: %w", src, ErrNotCopyable)
	}
	if err := t.policy.occupy(t.Contains(dst)); err != nil {
		return nil, fmt.Errorf("copy %d to %d: %w", src, dst, err)
	}
	var clone resource.Resource
	if err := safeCall(func() error { clone = c.Clone(); return nil }); err != nil {
		return nil, fmt.Errorf("copy %d: %w: %w", src, ErrConstruction, err)
	}
	if isNil(clone) {
		return nil, fmt.Errorf("copy %d: %w: nil clone", src, ErrConstruction)
	}
	resource.Lower(clone, resource.Cached)

	cs := &slot{res: clone}
	if clone.Status().Has(resource.Loaded) {
		if err := t.reserve(context.Background(), dst, cs, clone.UsedMemory()); err != nil {
			_ = safeCall(clone.Unload)
			return nil, fmt.Errorf("copy %d to %d: %w", src, dst, err)
		}
	}
	t.store(dst, cs)
	return clone, nil
}

// Move stores the occupant of src under dst and erases src. Outstanding
// references follow the resource. A cached resource is restored first.
func (t *Table) Move(src, dst resource.ID) (resource.Resource, error) {
	if dst == resource.InvalidID {
		return nil, ErrInvalidHandle
	}
	s, ok := t.slots[src]
	if !ok {
		return nil, fmt.Errorf("move %d: %w", src, ErrNotFound)
	}
	if src == dst {
		return s.res, nil
	}
	if err := t.policy.occupy(t.Contains(dst)); err != nil {
		return nil, fmt.Errorf("move %d to %d: %w", src, dst, err)
	}
	if s.res.Status().Has(resource.Cached) {
		if err := t.Restore(context.Background(), src); err != nil {
			return nil, fmt.Errorf("move %d: %w", src, err)
		}
	}

	t.detach(src)
	if old, ok := t.slots[dst]; ok {
		t.discard(dst, old)
	}
	t.attach(dst, s)
	if t.onErase != nil {
		t.onErase(src)
	}
	t.debug("resource moved", "from", uint32(src), "to", uint32(dst))
	return s.res, nil
}

// Transfer moves the occupant of id from src to dst under the same handle.
// The occupancy rule of dst applies. Outstanding references follow the
// resource, as do the memory reservation and the cache record when both
// tables share a budget and a pool. No erase hook fires.
func Transfer(src, dst *Table, id resource.ID) error {
	if src == dst {
		return nil
	}
	s, ok := src.slots[id]
	if !ok {
		return fmt.Errorf("transfer %d: %w", id, ErrNotFound)
	}
	if err := dst.policy.occupy(dst.Contains(id)); err != nil {
		return fmt.Errorf("transfer %d to %s: %w", id, dst.name, err)
	}
	if s.res.Status().Has(resource.Cached) && src.pool != dst.pool {
		if err := src.Restore(context.Background(), id); err != nil {
			return fmt.Errorf("transfer %d: %w", id, err)
		}
	}
	if s.reserved > 0 && src.budget != dst.budget {
		src.budget.ReleaseMemory(s.reserved)
		s.reserved = 0
	}

	src.detach(id)
	if old, ok := dst.slots[id]; ok {
		dst.discard(id, old)
	}
	dst.attach(id, s)
	return nil
}

// Ref is an external reference to a resource. While a Ref is outstanding,
// Strict tables refuse to delete or collect the resource.
type Ref struct {
	s        *slot
	released bool
}

// Resource returns the referenced resource.
func (r *Ref) Resource() resource.Resource { return r.s.res }

// Release drops the reference. It is idempotent.
func (r *Ref) Release() {
	if r.released {
		return
	}
	r.released = true
	r.s.refs--
}

// Share returns a new reference to the occupant of id.
func (t *Table) Share(id resource.ID) (*Ref, bool) {
	s, ok := t.slots[id]
	if !ok {
		return nil, false
	}
	s.refs++
	return &Ref{s: s}, true
}

// UseCount returns 1 plus the number of outstanding references, or 0 for an
// absent handle.
func (t *Table) UseCount(id resource.ID) int {
	s, ok := t.slots[id]
	if !ok {
		return 0
	}
	return 1 + s.refs
}

// CheckFlags matches the status of id against up and down. Presented is
// raised for occupied handles; an absent handle reports whether down asks
// for Presented to be cleared. An Invalid occupant is erased after the check,
// even if referenced.
func (t *Table) CheckFlags(id resource.ID, up, down resource.Status, mode resource.MatchMode) bool {
	s, ok := t.slots[id]
	if !ok {
		return down.Has(resource.Presented)
	}
	status := s.res.Status() | resource.Presented
	matched := resource.Match(status, up, down, mode)
	if status.Has(resource.Invalid) {
		t.erase(id, true)
		t.debug("invalid resource purged", "id", uint32(id))
	}
	return matched
}

// Stats is a snapshot of a table.
type Stats struct {
	Name       string
	Policy     string
	Len        int
	Loaded     int
	Cached     int
	Invalid    int
	Referenced int
	UsedMemory int64
	Reserved   int64
}

// Stats returns a snapshot of the table.
func (t *Table) Stats() Stats {
	st := Stats{Name: t.name, Policy: t.policy.String(), Len: len(t.slots)}
	for _, s := range t.slots {
		status := s.res.Status()
		if status.Has(resource.Loaded) {
			st.Loaded++
		}
		if status.Has(resource.Cached) {
			st.Cached++
		}
		if status.Has(resource.Invalid) {
			st.Invalid++
		}
		if s.refs > 0 {
			st.Referenced++
		}
		st.UsedMemory += s.res.UsedMemory()
		st.Reserved += s.reserved
	}
	return st
}

// Clear erases every occupant.
func (t *Table) Clear() {
	for _, id := range t.Handles() {
		t.erase(id, true)
	}
}

func (t *Table) adoptNil(id resource.ID) error {
	if !t.policy.acceptNil() {
		return fmt.Errorf("adopt %d: %w", id, ErrNilResource)
	}
	if t.Contains(id) {
		t.erase(id, true)
	}
	return nil
}

// put stores res under id, discarding a previous occupant.
func (t *Table) put(id resource.ID, res resource.Resource) {
	t.store(id, &slot{res: res})
}

func (t *Table) store(id resource.ID, s *slot) {
	if old, ok := t.slots[id]; ok {
		t.discard(id, old)
	}
	t.applyName(id, s.res)
	t.attach(id, s)
	t.debug("resource stored", "id", uint32(id), "kind", s.res.Kind().String())
}

func (t *Table) attach(id resource.ID, s *slot) {
	t.slots[id] = s
	t.live.Add(uint32(id))
}

func (t *Table) detach(id resource.ID) *slot {
	s := t.slots[id]
	delete(t.slots, id)
	t.live.Remove(uint32(id))
	return s
}

// erase removes id and releases everything its occupant held.
func (t *Table) erase(id resource.ID, hook bool) {
	s := t.detach(id)
	if s == nil {
		return
	}
	t.discard(id, s)
	if hook && t.onErase != nil {
		t.onErase(id)
	}
}

// discard releases the memory reservation and cache record of an occupant
// that leaves the table and closes it if it is an io.Closer.
func (t *Table) discard(id resource.ID, s *slot) {
	t.release(s)
	if s.res.Status().Has(resource.Cached) && t.pool != nil {
		t.pool.Drop(id)
	}
	if c, ok := s.res.(io.Closer); ok {
		if err := safeCall(c.Close); err != nil && t.logger != nil {
			t.logger.Warn("resource close failed", "table", t.name, "id", uint32(id), "error", err)
		}
	}
}

// applyName applies the debug naming rule.
func (t *Table) applyName(id resource.ID, res resource.Resource) {
	n, ok := res.(resource.Named)
	if !ok {
		return
	}
	if !t.debugNames {
		n.SetName("")
		return
	}
	if n.Name() == "" {
		n.SetName(fmt.Sprintf("%s#%d", res.Kind(), id))
	}
}

func (t *Table) debug(msg string, args ...any) {
	if t.logger == nil {
		return
	}
	t.logger.Debug(msg, append([]any{"table", t.name}, args...)...)
}

func construct[T resource.Resource](ctor func() (T, error)) (T, error) {
	var res T
	err := safeCall(func() error {
		var err error
		res, err = ctor()
		return err
	})
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrConstruction, err)
	}
	if isNil(res) {
		return res, fmt.Errorf("%w: constructor returned nil", ErrConstruction)
	}
	return res, nil
}

func isNil(r resource.Resource) bool {
	if r == nil {
		return true
	}
	v := reflect.ValueOf(r)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}
