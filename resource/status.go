package resource

import "strings"

// Status is the bit-set of lifecycle flags carried by every resource.
type Status uint8

const (
	// Defined is raised when the resource is constructed.
	Defined Status = 1 << iota
	// Loaded is raised by a successful load and cleared by unload.
	Loaded
	// Cached marks a resource whose payload lives in a cache file.
	Cached
	// AllocationStrategyBig hints that the payload is large.
	AllocationStrategyBig
	// Invalid asks the owning table to purge the resource.
	Invalid

	// Presented is a query-only pseudo-flag meaning "the handle exists".
	// It is never stored.
	Presented Status = 1 << 7
)

// StoredMask covers every flag that may be stored in a resource.
const StoredMask = Defined | Loaded | Cached | AllocationStrategyBig | Invalid

// Has reports whether every bit of f is set in s.
func (s Status) Has(f Status) bool {
	return s&f == f
}

// Any reports whether at least one bit of f is set in s.
func (s Status) Any(f Status) bool {
	return s&f != 0
}

// With returns s with f raised.
func (s Status) With(f Status) Status {
	return s | f
}

// Without returns s with f cleared.
func (s Status) Without(f Status) Status {
	return s &^ f
}

var statusNames = []struct {
	flag Status
	name string
}{
	{Defined, "defined"},
	{Loaded, "loaded"},
	{Cached, "cached"},
	{AllocationStrategyBig, "big"},
	{Invalid, "invalid"},
	{Presented, "presented"},
}

func (s Status) String() string {
	if s == 0 {
		return "undefined"
	}
	var parts []string
	for _, n := range statusNames {
		if s&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// MatchMode selects how Match combines the up and down masks.
type MatchMode uint8

const (
	// MatchAll requires every up bit set and every down bit cleared.
	MatchAll MatchMode = iota
	// MatchAny requires one up bit set or one down bit cleared.
	MatchAny
)

func (m MatchMode) String() string {
	if m == MatchAny {
		return "any"
	}
	return "all"
}

// Match evaluates status against the up and down masks.
//
// With MatchAll it reports whether every bit of up is 1 and every bit of down
// is 0. With MatchAny it reports whether at least one bit of up is 1 or at
// least one bit of down is 0. Empty masks are neutral: MatchAll of two empty
// masks is true, MatchAny of two empty masks is false.
func Match(status, up, down Status, mode MatchMode) bool {
	if mode == MatchAny {
		return status&up != 0 || ^status&down != 0
	}
	return status&up == up && status&down == 0
}
