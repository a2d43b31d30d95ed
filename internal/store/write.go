package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/arbor/internal/graph"
	"github.com/roach88/arbor/internal/ir"
)

// CreateWorkspace adds a workspace with an empty root carrying the
// jcr:system reference, and returns the root key. Creating an existing
// workspace returns its current root key.
func (s *Store) CreateWorkspace(ctx context.Context, name string) (graph.NodeKey, error) {
	var root graph.NodeKey
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var existing string
		err := tx.QueryRowContext(ctx, `SELECT root_key FROM workspaces WHERE name = ?`, name).Scan(&existing)
		if err == nil {
			root, err = parseKey(existing)
			return err
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("lookup workspace: %w", err)
		}

		root, err = s.createRootTx(ctx, tx, name)
		if err != nil {
			return err
		}
		return appendChild(ctx, tx, root, graph.SystemName, 1, s.SystemKey())
	})
	if err != nil {
		return graph.NodeKey{}, fmt.Errorf("create workspace %q: %w", name, err)
	}
	return root, nil
}

func (s *Store) createRootTx(ctx context.Context, tx *sql.Tx, workspace string) (graph.NodeKey, error) {
	root := graph.NodeKey{Source: s.source, Workspace: workspace, Identifier: "root"}
	if err := insertNode(ctx, tx, root, graph.NodeKey{}, "", 0, graph.RootType, nil, nil); err != nil {
		return graph.NodeKey{}, err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO workspaces (name, root_key) VALUES (?, ?)`,
		workspace, root.String()); err != nil {
		return graph.NodeKey{}, fmt.Errorf("insert workspace: %w", err)
	}
	return root, nil
}

// AddNode creates a child of parent owned by the parent's workspace, with
// a UUIDv7 identifier, and returns its key.
func (s *Store) AddNode(ctx context.Context, parent graph.NodeKey, name, primaryType graph.Name,
	props map[graph.Name]ir.Value, mixins ...graph.Name) (graph.NodeKey, error) {

	key := parent.WithIdentifier(uuid.Must(uuid.NewV7()).String())
	if err := s.Put(ctx, parent, key, name, primaryType, props, mixins...); err != nil {
		return graph.NodeKey{}, err
	}
	return key, nil
}

// Put inserts a node with an explicit key as the last child of parent.
// Same-name siblings get increasing indexes.
func (s *Store) Put(ctx context.Context, parent, key graph.NodeKey, name, primaryType graph.Name,
	props map[graph.Name]ir.Value, mixins ...graph.Name) error {

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var found int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes WHERE node_key = ?`, parent.String()).Scan(&found)
		if err != nil {
			return fmt.Errorf("lookup parent: %w", err)
		}
		if found == 0 {
			return fmt.Errorf("parent %s not found", parent)
		}

		var index int
		err = tx.QueryRowContext(ctx, `SELECT COUNT(*) + 1 FROM children WHERE parent_key = ? AND name = ?`,
			parent.String(), string(name)).Scan(&index)
		if err != nil {
			return fmt.Errorf("count siblings: %w", err)
		}

		if err := insertNode(ctx, tx, key, parent, name, index, primaryType, mixins, props); err != nil {
			return err
		}
		return appendChild(ctx, tx, parent, name, index, key)
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// SetProperty sets (or with a nil value removes) a property.
func (s *Store) SetProperty(ctx context.Context, key graph.NodeKey, name graph.Name, value ir.Value) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var raw string
		err := tx.QueryRowContext(ctx, `SELECT properties FROM nodes WHERE node_key = ?`, key.String()).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("node %s not found", key)
		}
		if err != nil {
			return err
		}
		props, err := unmarshalProperties(raw)
		if err != nil {
			return err
		}
		if value == nil {
			delete(props, name)
		} else {
			props[name] = value
		}
		text, err := marshalProperties(props)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE nodes SET properties = ? WHERE node_key = ?`, text, key.String())
		return err
	})
	if err != nil {
		return fmt.Errorf("set property %s on %s: %w", name, key, err)
	}
	return nil
}

// Remove deletes a node, its subtree and the parent's reference to it.
// The shared /jcr:system node is never removed through a workspace root.
// Removing a missing node is a no-op.
func (s *Store) Remove(ctx context.Context, key graph.NodeKey) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM children WHERE child_key = ?`, key.String()); err != nil {
			return fmt.Errorf("unlink: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			WITH RECURSIVE subtree(k) AS (
				SELECT ?
				UNION
				SELECT c.child_key FROM children c JOIN subtree ON c.parent_key = subtree.k
				WHERE c.child_key != ?
			)
			DELETE FROM nodes WHERE node_key IN (SELECT k FROM subtree)
		`, key.String(), s.SystemKey().String())
		if err != nil {
			return fmt.Errorf("delete subtree: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func insertNode(ctx context.Context, tx *sql.Tx, key, parent graph.NodeKey, name graph.Name, index int,
	primaryType graph.Name, mixins []graph.Name, props map[graph.Name]ir.Value) error {

	propsText, err := marshalProperties(emptyProps(props))
	if err != nil {
		return err
	}
	mixinsText, err := marshalMixins(mixins)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO nodes (node_key, workspace, parent_key, name, sns_index, primary_type, mixins, properties)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		key.String(),
		key.Workspace,
		formatKey(parent),
		string(name),
		index,
		string(primaryType),
		mixinsText,
		propsText,
	)
	if err != nil {
		return fmt.Errorf("insert node %s: %w", key, err)
	}
	return nil
}

func appendChild(ctx context.Context, tx *sql.Tx, parent graph.NodeKey, name graph.Name, index int, child graph.NodeKey) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO children (parent_key, position, name, sns_index, child_key)
		VALUES (?, (SELECT COALESCE(MAX(position), 0) + 1 FROM children WHERE parent_key = ?), ?, ?, ?)
	`, parent.String(), parent.String(), string(name), index, child.String())
	if err != nil {
		return fmt.Errorf("link %s under %s: %w", child, parent, err)
	}
	return nil
}

func workspaceExists(ctx context.Context, tx *sql.Tx, name string) (bool, error) {
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM workspaces WHERE name = ?`, name).Scan(&n); err != nil {
		return false, fmt.Errorf("lookup workspace: %w", err)
	}
	return n > 0, nil
}
