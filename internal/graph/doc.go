// Package graph defines the content graph as seen by the query engine and
// the reindexing crawler: node keys, names and paths, node snapshots, and
// the WorkspaceCache / RepositoryCache read interfaces.
//
// The graph is live. Caches may observe concurrent mutation, so a key that
// fails to resolve is reported as (nil, nil) rather than an error.
//
// MemoryRepository is the in-memory implementation used by tests, CLI
// fixtures, and the SQLite store's loaded snapshots. PathCache memoizes
// paths for a single traversal and is bounded by an LRU.
package graph
