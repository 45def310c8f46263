// Package resource defines the capability surface shared by every asset that
// resgo manages.
//
// # Overview
//
// A resource is any loadable asset (mesh, shader, texture, ...) that lives
// behind a stable integer handle ([ID]). Concrete asset types embed [Base] to
// inherit the kind and status bookkeeping and implement the lifecycle methods
// of [Resource] themselves:
//
//	type Mesh struct {
//	    resource.Base
//	    vertices []float32
//	}
//
//	func NewMesh() *Mesh {
//	    return &Mesh{Base: resource.NewBase(resource.KindMesh)}
//	}
//
//	func (m *Mesh) Load() error        { ... }
//	func (m *Mesh) Unload() error      { ... }
//	func (m *Mesh) Reload() error      { ... }
//	func (m *Mesh) UsedMemory() int64  { return int64(len(m.vertices) * 4) }
//
// Assets that can be spilled to disk additionally implement [Cacheable];
// assets that support copy construction implement [Cloner].
//
// # Status Flags
//
// [Status] is a bit-set. [Defined] is raised at construction, [Loaded] and
// [Cached] are maintained by the owning table, and [Invalid] is raised by the
// resource itself (see [Base.Invalidate]) to ask the table to purge it.
//
// [Match] evaluates a pair of "up" and "down" masks against a status:
//
//	resource.Match(st, resource.Loaded, resource.Cached, resource.MatchAll)
//	// loaded and not cached
//
// The [Presented] pseudo-flag never appears in a stored status. Tables use it
// to let callers ask whether a handle exists at all.
package resource
