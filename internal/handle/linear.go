package handle

import (
	"errors"
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/hupe1980/resgo/resource"
)

// ErrOutOfHandles is returned when the configured range is exhausted.
var ErrOutOfHandles = errors.New("out of handles")

// ErrInvalidRange is returned for an empty or zero-based handle range.
var ErrInvalidRange = errors.New("invalid handle range")

// Allocator issues unique handles from a bounded range.
type Allocator interface {
	// Allocate returns a free handle or ErrOutOfHandles.
	Allocate() (resource.ID, error)

	// AllocateN returns up to n handles. On exhaustion it stops early and
	// returns the handles issued so far together with ErrOutOfHandles.
	AllocateN(n int) ([]resource.ID, error)

	// Release returns id to the free set. Out-of-range and free handles are
	// ignored.
	Release(id resource.ID)

	// IsUsed reports whether id has been issued and not released.
	IsUsed(id resource.ID) bool

	// Len returns the number of issued handles.
	Len() int

	// Cap returns the size of the handle range.
	Cap() int
}

// Linear is a bitmap allocator over [min, max].
type Linear struct {
	min, max resource.ID
	bits     *bitset.BitSet
	cursor   uint
	used     int
}

// NewLinear creates an allocator for handles in [lo, hi].
// lo must be at least 1 because resource.InvalidID is never issued.
func NewLinear(lo, hi resource.ID) (*Linear, error) {
	if lo == resource.InvalidID || hi < lo {
		return nil, fmt.Errorf("%w: [%d, %d]", ErrInvalidRange, lo, hi)
	}
	return &Linear{
		min:  lo,
		max:  hi,
		bits: bitset.New(uint(hi-lo) + 1),
	}, nil
}

// Min returns the smallest handle of the range.
func (l *Linear) Min() resource.ID { return l.min }

// Max returns the largest handle of the range.
func (l *Linear) Max() resource.ID { return l.max }

// Cap returns the number of handles in the range.
func (l *Linear) Cap() int { return int(l.max-l.min) + 1 }

// Len returns the number of set positions.
func (l *Linear) Len() int { return l.used }

// Free returns the number of clear positions.
func (l *Linear) Free() int { return l.Cap() - l.used }

// Allocate scans from the cursor for the first clear bit, wrapping once.
func (l *Linear) Allocate() (resource.ID, error) {
	if l.used == l.Cap() {
		return resource.InvalidID, ErrOutOfHandles
	}

	pos, ok := l.bits.NextClear(l.cursor)
	if !ok && l.cursor > 0 {
		pos, ok = l.bits.NextClear(0)
	}
	if !ok || pos >= l.bits.Len() {
		return resource.InvalidID, ErrOutOfHandles
	}

	l.bits.Set(pos)
	l.used++
	l.cursor = pos + 1
	if l.cursor >= l.bits.Len() {
		l.cursor = 0
	}
	return l.min + resource.ID(pos), nil
}

// AllocateN repeats Allocate n times, stopping early on exhaustion.
func (l *Linear) AllocateN(n int) ([]resource.ID, error) {
	if n <= 0 {
		return nil, nil
	}
	ids := make([]resource.ID, 0, min(n, l.Free()))
	for range n {
		id, err := l.Allocate()
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Release clears the bit for id. The cursor moves back so that low handles
// are reused first.
func (l *Linear) Release(id resource.ID) {
	pos, ok := l.position(id)
	if !ok || !l.bits.Test(pos) {
		return
	}
	l.bits.Clear(pos)
	l.used--
	if pos < l.cursor {
		l.cursor = pos
	}
}

// IsUsed reports whether the bit for id is set.
func (l *Linear) IsUsed(id resource.ID) bool {
	pos, ok := l.position(id)
	return ok && l.bits.Test(pos)
}

// Reset clears every position.
func (l *Linear) Reset() {
	l.bits.ClearAll()
	l.used = 0
	l.cursor = 0
}

func (l *Linear) position(id resource.ID) (uint, bool) {
	if id < l.min || id > l.max {
		return 0, false
	}
	return uint(id - l.min), true
}
