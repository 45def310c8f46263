package cachefile

import "strings"

// State is the bit-set describing a cache file.
type State uint8

const (
	// Closed is the zero state.
	Closed State = 0
	// Created means the backing file exists and belongs to this File.
	Created State = 1 << (iota - 1)
	// Opened means a stream is open.
	Opened
	// Read means the stream is positioned for reading.
	Read
	// Write means the stream is positioned for appending.
	Write
	// Invalid is absorbing: every operation fails until recovery.
	Invalid
)

// Has reports whether every bit of f is set in s.
func (s State) Has(f State) bool { return s&f == f }

func (s State) String() string {
	if s == Closed {
		return "closed"
	}
	var parts []string
	for _, n := range []struct {
		bit  State
		name string
	}{{Created, "created"}, {Opened, "opened"}, {Read, "read"}, {Write, "write"}, {Invalid, "invalid"}} {
		if s&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Mode selects where Open positions the stream.
type Mode uint8

const (
	// ModeRead positions the stream at the start.
	ModeRead Mode = iota + 1
	// ModeWrite positions the stream at the end.
	ModeWrite
)

func (m Mode) state() State {
	if m == ModeWrite {
		return Write
	}
	return Read
}

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	default:
		return "none"
	}
}
