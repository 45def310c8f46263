package testutil

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"sync"

	"github.com/hupe1980/resgo/resource"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// Bytes returns n pseudo-random bytes.
func (r *RNG) Bytes(n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := make([]byte, n)
	_, _ = r.rand.Read(b)
	return b
}

// ErrInjected is the default error returned by Asset failure switches.
var ErrInjected = errors.New("injected asset failure")

// Asset is a configurable fake resource. It is cacheable and cloneable.
//
// Source holds the bytes Load materializes; Data holds the in-memory payload
// while loaded. The Fail* fields make the matching operation return the given
// error, PanicLoad makes Load panic.
type Asset struct {
	resource.Base

	Source []byte
	Data   []byte

	FailLoad    error
	FailUnload  error
	FailReload  error
	FailCache   error
	FailRestore error
	PanicLoad   bool

	Loads, Unloads, Reloads int
}

// NewAsset returns an asset of the given kind whose Load yields source.
func NewAsset(kind resource.Kind, source []byte) *Asset {
	return &Asset{
		Base:   resource.NewBase(kind),
		Source: source,
	}
}

// NewLoadedAsset returns an asset with Data already materialized.
// The Loaded flag is left to the owning table.
func NewLoadedAsset(kind resource.Kind, data []byte) *Asset {
	a := NewAsset(kind, data)
	a.Data = bytes.Clone(data)
	return a
}

func (a *Asset) Load() error {
	if a.PanicLoad {
		panic("asset load panic")
	}
	if a.FailLoad != nil {
		return a.FailLoad
	}
	a.Data = bytes.Clone(a.Source)
	a.Loads++
	return nil
}

func (a *Asset) Unload() error {
	if a.FailUnload != nil {
		return a.FailUnload
	}
	a.Data = nil
	a.Unloads++
	return nil
}

func (a *Asset) Reload() error {
	if a.FailReload != nil {
		return a.FailReload
	}
	a.Data = bytes.Clone(a.Source)
	a.Reloads++
	return nil
}

func (a *Asset) UsedMemory() int64 {
	return int64(len(a.Data))
}

func (a *Asset) Cache(w io.Writer) error {
	if a.FailCache != nil {
		return a.FailCache
	}
	_, err := w.Write(a.Data)
	return err
}

func (a *Asset) Restore(r io.Reader) error {
	if a.FailRestore != nil {
		return a.FailRestore
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	a.Data = data
	return nil
}

func (a *Asset) Clone() resource.Resource {
	c := *a
	c.Source = bytes.Clone(a.Source)
	c.Data = bytes.Clone(a.Data)
	return &c
}

// Plain is a minimal resource that is neither cacheable nor cloneable.
type Plain struct {
	resource.Base
	Size int64
}

// NewPlain returns a Plain resource of the given kind.
func NewPlain(kind resource.Kind) *Plain {
	return &Plain{Base: resource.NewBase(kind)}
}

func (p *Plain) Load() error       { return nil }
func (p *Plain) Unload() error     { return nil }
func (p *Plain) Reload() error     { return nil }
func (p *Plain) UsedMemory() int64 { return p.Size }
