// Package resgo provides a handle-based resource management engine for Go.
//
// Resgo tracks the lifecycle of loadable assets (meshes, shaders, textures,
// or anything implementing resource.Resource) behind stable integer handles.
// It enforces ownership and deletion discipline, reclaims memory under a
// budget, and overflows payloads to disk-backed cache files.
//
// # Quick Start
//
//	e, err := resgo.New(resgo.DefaultConfig())
//	if err != nil {
//	    panic(err)
//	}
//	defer e.Close()
//
//	id, mesh, err := resgo.Create(e, resgo.PublicOwner, func() (*Mesh, error) {
//	    return NewMesh("teapot.obj"), nil
//	})
//	if err := e.Load(resgo.PublicOwner, id); err != nil {
//	    // ...
//	}
//
// # Scopes
//
// Every owner maps to one table. The public table exists from construction;
// private scopes are registered per owner:
//
//	level, _ := e.NewScope("level-1")
//	id, _ := e.Adopt("level-1", texture)
//	e.Transfer(id, "level-1", resgo.PublicOwner)
//	e.Unregister("level-1") // erases what is left and frees the handles
//
// # Occupancy Policies
//
// Normal tables overwrite occupied handles and delete unconditionally.
// Strict tables refuse to overwrite, refuse null adoption, and refuse to
// delete or collect a resource while a table.Ref to it is outstanding.
//
// # Memory Budget and Disk Overflow
//
// With MemoryLimitBytes set, loading a resource that does not fit evicts
// other loaded, cacheable, unreferenced resources of the same table to the
// cache pool. Evicted resources carry the Cached flag and are restored on the
// next Load. Cache files recover from a single stream fault in place; a second
// fault hands the catalog over to a fresh file.
//
// # Concurrency
//
// An Engine is not safe for concurrent use. Callers provide mutual exclusion.
package resgo
