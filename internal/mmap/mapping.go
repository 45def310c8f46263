package mmap

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sync/atomic"
)

// ErrClosed is returned by Advise after Close.
var ErrClosed = errors.New("mmap: mapping is closed")

// Advice is an access hint for the kernel.
type Advice int

const (
	// Normal leaves read-ahead at the platform default.
	Normal Advice = iota
	// Sequential asks for aggressive read-ahead, which suits record scans.
	Sequential
)

// Mapping is a read-only view of a whole file.
type Mapping struct {
	data   []byte
	unmap  func([]byte) error
	closed atomic.Bool
}

// Open maps the file at path. An empty file yields a mapping without data.
func Open(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	switch size := fi.Size(); {
	case size == 0:
		return &Mapping{}, nil
	case size > math.MaxInt:
		return nil, fmt.Errorf("mmap: %s is too large (%d bytes)", path, size)
	default:
		data, unmap, err := osMap(f, int(size))
		if err != nil {
			return nil, fmt.Errorf("mmap: map %s: %w", path, err)
		}
		return &Mapping{data: data, unmap: unmap}, nil
	}
}

// Bytes returns the mapped file, or nil after Close.
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Advise passes an access hint to the kernel.
func (m *Mapping) Advise(a Advice) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if len(m.data) == 0 {
		return nil
	}
	return osAdvise(m.data, a)
}

// Close unmaps the file. Subsequent calls are no-ops.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) || m.unmap == nil {
		return nil
	}
	return m.unmap(m.data)
}
