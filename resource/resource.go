package resource

import "io"

// Resource is the capability surface the engine requires from an asset.
//
// Kind and status bookkeeping is usually inherited by embedding Base.
// Load, Unload and Reload report failure through their error; the owning
// table raises and clears Loaded on success.
type Resource interface {
	Kind() Kind
	Status() Status
	SetStatus(Status)

	Load() error
	Unload() error
	Reload() error

	// UsedMemory reports the in-memory footprint in bytes.
	UsedMemory() int64
}

// Cacheable is implemented by resources that can be spilled to a cache file.
type Cacheable interface {
	Resource

	// Cache writes the payload to w. The resource stays loaded; the table
	// unloads it afterwards.
	Cache(w io.Writer) error

	// Restore rebuilds the in-memory payload from r.
	Restore(r io.Reader) error
}

// Cloner is implemented by resources that support copy construction.
type Cloner interface {
	Resource

	// Clone returns an independent copy. Status is copied as is.
	Clone() Resource
}

// Named is implemented by resources that carry a display name.
type Named interface {
	Name() string
	SetName(string)
}

// Base carries kind, status and an optional name.
// Embed it by value in concrete asset types.
type Base struct {
	kind   Kind
	status Status
	name   string
}

// NewBase returns a Base of the given kind with Defined raised.
func NewBase(kind Kind) Base {
	return Base{kind: kind, status: Defined}
}

// Kind returns the immutable asset kind.
func (b *Base) Kind() Kind { return b.kind }

// Status returns the current flags.
func (b *Base) Status() Status { return b.status }

// SetStatus replaces the flags. Presented is never stored.
func (b *Base) SetStatus(s Status) { b.status = s & StoredMask }

// Name returns the display name, if any.
func (b *Base) Name() string { return b.name }

// SetName sets the display name.
func (b *Base) SetName(name string) { b.name = name }

// Invalidate raises Invalid. The owning table purges the resource at its next
// inspection or sweep.
func (b *Base) Invalidate() { b.status |= Invalid }

// Raise sets f on r's status.
func Raise(r Resource, f Status) {
	r.SetStatus(r.Status() | f)
}

// Lower clears f on r's status.
func Lower(r Resource, f Status) {
	r.SetStatus(r.Status() &^ f)
}

// IsCacheable reports whether r can be spilled to disk.
func IsCacheable(r Resource) bool {
	_, ok := r.(Cacheable)
	return ok
}
