package table

import (
	"fmt"
	"strings"
)

// Policy decides the occupancy and deletion rules of a table.
// The two implementations are Normal and Strict.
type Policy interface {
	fmt.Stringer

	// occupy reports whether a new occupant may take a handle.
	occupy(occupied bool) error
	// vacate reports whether a slot with refs outstanding references may be
	// erased by Delete or CollectGarbage.
	vacate(refs int) bool
	// acceptNil reports whether a nil resource erases the slot instead of
	// being rejected.
	acceptNil() bool
	// fillAbsent reports whether Replace on an absent handle creates it.
	fillAbsent() bool
}

var (
	// Normal overwrites occupants and deletes unconditionally.
	Normal Policy = normalPolicy{}
	// Strict refuses overwrites and refuses to delete referenced resources.
	Strict Policy = strictPolicy{}
)

type normalPolicy struct{}

func (normalPolicy) String() string { return "normal" }

func (normalPolicy) occupy(bool) error { return nil }

func (normalPolicy) vacate(int) bool { return true }

func (normalPolicy) acceptNil() bool { return true }

func (normalPolicy) fillAbsent() bool { return true }

type strictPolicy struct{}

func (strictPolicy) String() string { return "strict" }

func (strictPolicy) occupy(occupied bool) error {
	if occupied {
		return ErrAlreadyExists
	}
	return nil
}

func (strictPolicy) vacate(refs int) bool { return refs == 0 }

func (strictPolicy) acceptNil() bool { return false }

func (strictPolicy) fillAbsent() bool { return false }

// PolicyFor returns Strict if strict is set, Normal otherwise.
func PolicyFor(strict bool) Policy {
	if strict {
		return Strict
	}
	return Normal
}

// Sweep selects which occupants CollectGarbage considers.
type Sweep uint8

const (
	// SweepInvalid collects only resources with Invalid raised.
	SweepInvalid Sweep = iota
	// SweepAll collects every occupant.
	SweepAll
)

func (s Sweep) String() string {
	if s == SweepAll {
		return "all"
	}
	return "invalid"
}

// ParseSweep maps "invalid" and "all" to a Sweep. The empty string selects
// SweepInvalid.
func ParseSweep(s string) (Sweep, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "invalid":
		return SweepInvalid, nil
	case "all":
		return SweepAll, nil
	default:
		return SweepInvalid, fmt.Errorf("unknown sweep %q", s)
	}
}
