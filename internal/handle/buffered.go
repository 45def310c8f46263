package handle

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/hupe1980/resgo/resource"
)

// DefaultMeanRequest is the mean request size used when none is configured.
const DefaultMeanRequest = 32

// Buffered keeps up to 2×mean handles reserved in a ready stack and refills
// from the underlying Linear allocator when the stack drops below mean.
type Buffered struct {
	lin    *Linear
	mean   int
	ready  []resource.ID
	staged *bitset.BitSet
	issued int
}

// NewBuffered wraps a Linear allocator over [lo, hi].
// mean <= 0 selects DefaultMeanRequest.
func NewBuffered(lo, hi resource.ID, mean int) (*Buffered, error) {
	lin, err := NewLinear(lo, hi)
	if err != nil {
		return nil, err
	}
	if mean <= 0 {
		mean = DefaultMeanRequest
	}
	return &Buffered{
		lin:    lin,
		mean:   mean,
		ready:  make([]resource.ID, 0, 2*mean),
		staged: bitset.New(uint(lin.Cap())),
	}, nil
}

// Mean returns the configured mean request size.
func (b *Buffered) Mean() int { return b.mean }

// Cap returns the size of the handle range.
func (b *Buffered) Cap() int { return b.lin.Cap() }

// Len returns the number of issued handles. Staged handles are not counted.
func (b *Buffered) Len() int { return b.issued }

// Staged returns the number of reserved but unissued handles.
func (b *Buffered) Staged() int { return len(b.ready) }

// Allocate pops a handle from the ready stack.
func (b *Buffered) Allocate() (resource.ID, error) {
	if len(b.ready) < b.mean {
		b.refill()
	}
	n := len(b.ready)
	if n == 0 {
		return resource.InvalidID, ErrOutOfHandles
	}
	id := b.ready[n-1]
	b.ready = b.ready[:n-1]
	b.staged.Clear(uint(id - b.lin.Min()))
	b.issued++
	return id, nil
}

// AllocateN pops n handles, stopping early on exhaustion.
func (b *Buffered) AllocateN(n int) ([]resource.ID, error) {
	if n <= 0 {
		return nil, nil
	}
	ids := make([]resource.ID, 0, n)
	for range n {
		id, err := b.Allocate()
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Release frees an issued handle. Staged handles stay in the ready stack.
func (b *Buffered) Release(id resource.ID) {
	if b.isStaged(id) || !b.lin.IsUsed(id) {
		return
	}
	b.lin.Release(id)
	b.issued--
}

// IsUsed reports whether id has been handed to a caller.
func (b *Buffered) IsUsed(id resource.ID) bool {
	return b.lin.IsUsed(id) && !b.isStaged(id)
}

// Flush returns every staged handle to the bitmap.
func (b *Buffered) Flush() {
	for _, id := range b.ready {
		b.staged.Clear(uint(id - b.lin.Min()))
		b.lin.Release(id)
	}
	b.ready = b.ready[:0]
}

// refill tops the stack up to 2×mean. Exhaustion leaves a shorter stack.
// Handles are pushed in reverse so the lowest one is popped first.
func (b *Buffered) refill() {
	want := 2*b.mean - len(b.ready)
	if want <= 0 {
		return
	}
	fresh, _ := b.lin.AllocateN(want)
	for i := len(fresh) - 1; i >= 0; i-- {
		b.staged.Set(uint(fresh[i] - b.lin.Min()))
	}
	// keep older entries on top so they are handed out first
	b.ready = append(reverse(fresh), b.ready...)
}

func (b *Buffered) isStaged(id resource.ID) bool {
	if id < b.lin.Min() || id > b.lin.Max() {
		return false
	}
	return b.staged.Test(uint(id - b.lin.Min()))
}

func reverse(ids []resource.ID) []resource.ID {
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	return ids
}
