// Package store persists the content graph in SQLite.
//
// A Store implements graph.RepositoryCache, so the reindexing crawler and
// the query engine read it directly; every read sees committed writes.
//
// # Layout
//
//   - workspaces: name and root key, in creation order
//   - nodes: one row per node, properties as canonical JSON
//   - children: ordered child references per parent
//
// Child references live apart from nodes because every workspace root,
// the system workspace's included, references the single /jcr:system node
// owned by the system workspace. Removing a subtree never removes that
// node.
//
// # Fixtures
//
// ParseFixture and Store.Load add YAML-described content, which is how
// the CLI seeds a repository before reindexing it.
package store
