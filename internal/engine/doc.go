// Package engine compiles and runs queries against the content index.
//
// The engine is the (planner, optimizer, index backend) triple the
// repository constructs lazily and tears down on shutdown.
//
// ARCHITECTURE:
//
// Compilation (QueryEngine.Query):
// 1. The canonical planner validates the command and builds the naive plan
// 2. The rule-based optimizer rewrites it to a fixed point
// 3. Validation problems become a QueryError with ErrCodeInvalidQuery
// 4. The optimized plan is wrapped in a CancellableQuery
//
// Execution (CancellableQuery.Execute):
// 1. SOURCE nodes search the index for their node type
// 2. Documents whose node no longer resolves in the graph snapshot are dropped
// 3. Access projections trim documents to the properties the plan reads
// 4. Joins, criteria, duplicate removal, sorting and limits run bottom-up
//
// Queries see the index, not the live graph: a node indexed before its
// last change matches on its indexed properties. The snapshot check only
// removes rows for nodes that have since been deleted.
//
// CANCELLATION:
//
// Execute observes both its ctx and CancellableQuery.Cancel. The executor
// checks for cancellation before every plan node and periodically inside
// scans and joins; a cancelled execution returns an error wrapping
// context.Canceled.
package engine
