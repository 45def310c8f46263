// Package table implements the per-scope resource table.
//
// A [Table] owns resources by handle. Its occupancy and deletion rules come
// from a [Policy]:
//
//   - [Normal] overwrites occupied handles and always deletes.
//   - [Strict] refuses to overwrite ([ErrAlreadyExists]), rejects nil
//     resources and refuses to delete a resource while a [Ref] to it is
//     outstanding.
//
// Every operation is handle-indexed. Batch operations and garbage collection
// walk the live handles in ascending order and never abort on a single
// failing resource.
//
// # Invalid Resources
//
// A resource that raises [resource.Invalid] is purged at the next
// [Table.CheckFlags] on its handle or at the next [Table.CollectGarbage].
// Batch operations skip it.
//
// # Eviction
//
// With a cache pool attached, loaded [resource.Cacheable] resources can be
// spilled to disk with [Table.Evict] and brought back with [Table.Restore].
// With a memory budget attached, a load that cannot reserve its footprint
// evicts other loaded resources of the same table in handle order first.
//
// Tables are not safe for concurrent use.
package table
