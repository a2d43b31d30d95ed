// Package harness runs reindexing and query scenarios end to end.
//
// A scenario seeds a fresh in-memory SQLite content graph from a YAML
// fixture, compiles CUE documents of node types and named queries, and
// then drives a repository.Manager through a list of steps. Every node
// submitted to the index and every query result is recorded in a trace
// that assertions and golden files check.
//
// # Scenario Format
//
//	name: blog_reindex
//	description: "Full reindex then a ranked query"
//	fixture: content.yaml
//	documents:
//	  - blog.cue
//	steps:
//	  - reindex: {includeSystem: false}
//	  - query: {name: top-posts}
//	  - remove: {workspace: default, path: /posts/beta}
//	  - query: {name: top-posts, expect: {rows: 1}}
//	assertions:
//	  - type: indexed
//	    workspace: default
//	    paths: [/posts, /posts/alpha]
//	  - type: index_count
//	    count: 4
//
// Paths of fixture, documents are relative to the scenario file.
//
// # Step Types
//
//   - reindex: full (default), workspace, path with depth, or system content
//   - query: runs a named query from the documents, with optional variable
//     overrides and an expect clause on row count, columns and values
//   - remove: deletes a node from the content graph; its document stays in
//     the index until the next reindex, but queries stop returning it
//
// # Assertion Types
//
//   - indexed / not_indexed: paths present in (absent from) the index
//   - index_count: total number of index documents
//   - trace_order: indexed "workspace:path" entries appear in this order
//   - query_rows: the last run of a query returned this many rows
//
// # Deterministic Testing
//
// Each run uses its own in-memory database and a recording index; crawls
// are synchronous and breadth-first, so traces are reproducible and
// suitable for golden comparison (RunWithGolden).
package harness
