// Package index defines the index backend contract (Indexing), the
// transaction context passed with every write, and two backends:
//
//   - MemoryIndex: a map-backed index for tests and the default repository
//   - BadgerIndex: a persistent index on Badger, with fingerprint-based
//     skipping of unchanged documents
//
// Documents record a node's workspace, key, path, types, and properties,
// plus the supertype closure of its primary type and mixins so that a
// search for a supertype finds every subtype's nodes.
//
// NoTransaction is the context reindexing submits with. It never reports a
// transaction in progress and panics on Identifier or
// RegisterSynchronization.
package index
