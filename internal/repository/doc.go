// Package repository ties the query engine, the index backend and
// reindexing together for one content repository.
//
// LIFECYCLE:
//
// A Manager builds its engine lazily on the first Engine, Query, Indexes
// or reindex call. Building opens the configured index backend, assembles
// the planner and optimizer and, for a kafka-master backend, starts the
// remote indexing feed on the new index. Shutdown stops the reindex pool
// and tears the engine down; a later call builds a new one.
//
// REINDEXING:
//
// Workspace and path reindexes run synchronously or as jobs on a bounded
// pool. A full-repository reindex started asynchronously is tracked: at
// most one runs at a time, and StopReindexing waits for it for a grace
// period before cancelling it.
package repository
