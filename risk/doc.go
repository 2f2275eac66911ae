// Package risk provides the Monte Carlo simulation and cache-invalidation
// engine for risk trees.
//
// # Reading Guide
//
// Start with these three files to understand the core:
//   - tree.go: immutable tree snapshots (arena of nodes, version stamps)
//   - engine.go: the trial fan-out/fan-in and bottom-up loss aggregation
//   - cache.go: version-keyed aggregate cache and ancestor invalidation
//
// # Architecture
//
// A GetAggregate request flows cache -> governor -> engine -> aggregator ->
// cache; a node edit flows tree_edit.go -> TreeStore -> CacheManager
// invalidation -> InvalidationEvent. Service (service.go) sequences both
// paths and is the seam external transports call into.
//
// Snapshots are immutable: an edit produces a new snapshot at Version+1
// that shares untouched nodes with its predecessor, so a running simulation
// never observes a tree mutated mid-run and the cache can key results by
// (tree, node, version) alone.
//
// # Collaborators
//
// Persistence and the shared cache are injected through small interfaces:
//   - TreeStore: version-stamped tree read/write (risk/store has memory and
//     SQLite implementations)
//   - CacheStore: per-key aggregate storage (in-memory, or Redis for shared
//     deployments)
package risk
