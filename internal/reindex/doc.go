// Package reindex rebuilds index state from the content graph.
//
// ARCHITECTURE:
//
// A Crawler walks the content graph breadth-first and submits each
// queryable node to the index backend outside any transaction:
//
//  1. ReindexAll crawls the system content, then every workspace root.
//  2. ReindexWorkspace crawls one workspace root without a depth limit.
//  3. ReindexPath resolves a path segment by segment and crawls the
//     subtree it names to a given depth. A path that no longer resolves
//     is silently ignored.
//  4. ReindexSystemContent indexes /jcr:system and its children.
//
// The system branch (/jcr:system) is shared by every workspace but is
// indexed only under the system workspace. A crawl from a workspace root
// reaches it only when the crawl asks for system content.
//
// ASYNCHRONOUS JOBS:
//
// A Pool runs crawls in the background with bounded concurrency and
// returns a Job handle for each. A Coordinator sits on top of a Pool and
// tracks at most one full-repository reindex; a second request while one
// is tracked fails with ErrReindexInProgress.
//
// Every crawl checks its context before each node, so cancelling a Job
// stops its crawl at the next queue pop.
package reindex
