package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/arbor/internal/graph"
)

// WorkspaceNames implements graph.RepositoryCache. Names are returned in
// creation order, the system workspace first.
func (s *Store) WorkspaceNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM workspaces ORDER BY rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("query workspaces: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workspaces: %w", err)
	}
	return names, nil
}

// WorkspaceCache implements graph.RepositoryCache.
func (s *Store) WorkspaceCache(ctx context.Context, name string) (graph.WorkspaceCache, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT root_key FROM workspaces WHERE name = ?`, name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", graph.ErrWorkspaceNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup workspace %q: %w", name, err)
	}
	root, err := parseKey(raw)
	if err != nil {
		return nil, err
	}
	return &workspace{store: s, name: name, root: root}, nil
}

// SystemWorkspaceName implements graph.RepositoryCache.
func (s *Store) SystemWorkspaceName() string {
	return s.systemWorkspace
}

// SystemWorkspaceKey implements graph.RepositoryCache.
func (s *Store) SystemWorkspaceKey() string {
	return s.systemWorkspace
}

// SystemKey implements graph.RepositoryCache.
func (s *Store) SystemKey() graph.NodeKey {
	return graph.NodeKey{Source: s.source, Workspace: s.systemWorkspace, Identifier: string(graph.SystemName)}
}

// Len returns the number of nodes across all workspaces.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count nodes: %w", err)
	}
	return n, nil
}

// node reads one node and its child references. It returns nil, nil when
// the key is unknown.
func (s *Store) node(ctx context.Context, key graph.NodeKey) (*graph.Node, error) {
	var (
		parent, name, primaryType, mixins, props string
		index                                    int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT parent_key, name, sns_index, primary_type, mixins, properties
		FROM nodes WHERE node_key = ?
	`, key.String()).Scan(&parent, &name, &index, &primaryType, &mixins, &props)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read node %s: %w", key, err)
	}

	n := &graph.Node{
		Key:         key,
		Segment:     graph.Segment{Name: graph.Name(name), Index: index},
		PrimaryType: graph.Name(primaryType),
	}
	if n.Parent, err = parseKey(parent); err != nil {
		return nil, err
	}
	if n.Mixins, err = unmarshalMixins(mixins); err != nil {
		return nil, err
	}
	if n.Properties, err = unmarshalProperties(props); err != nil {
		return nil, err
	}
	if n.Children, err = s.children(ctx, key); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *Store) children(ctx context.Context, parent graph.NodeKey) ([]graph.ChildReference, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, sns_index, child_key FROM children
		WHERE parent_key = ?
		ORDER BY position ASC
	`, parent.String())
	if err != nil {
		return nil, fmt.Errorf("query children of %s: %w", parent, err)
	}
	defer rows.Close()

	var refs []graph.ChildReference
	for rows.Next() {
		var (
			name, child string
			index       int
		)
		if err := rows.Scan(&name, &index, &child); err != nil {
			return nil, fmt.Errorf("scan child: %w", err)
		}
		key, err := parseKey(child)
		if err != nil {
			return nil, err
		}
		refs = append(refs, graph.ChildReference{Name: graph.Name(name), Index: index, Key: key})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate children: %w", err)
	}
	return refs, nil
}

// workspace is the graph.WorkspaceCache of one workspace. Reads go
// straight to SQLite, so every call sees committed writes.
type workspace struct {
	store *Store
	name  string
	root  graph.NodeKey
}

func (w *workspace) WorkspaceName() string { return w.name }

func (w *workspace) RootKey() graph.NodeKey { return w.root }

func (w *workspace) Node(ctx context.Context, key graph.NodeKey) (*graph.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Nodes of other regular workspaces are invisible; system nodes are shared.
	if key.Workspace != w.name && key.Workspace != w.store.systemWorkspace {
		return nil, nil
	}
	return w.store.node(ctx, key)
}
