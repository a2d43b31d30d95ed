package index

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/arbor/internal/graph"
	"github.com/roach88/arbor/internal/ir"
	"github.com/roach88/arbor/internal/queryir"
)

// MemoryIndex is an Indexing held entirely in memory.
type MemoryIndex struct {
	mu     sync.RWMutex
	docs   map[string]map[graph.NodeKey]Document
	closed bool
	logger *slog.Logger
}

// NewMemoryIndex returns an empty in-memory index.
func NewMemoryIndex(logger *slog.Logger) *MemoryIndex {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryIndex{
		docs:   make(map[string]map[graph.NodeKey]Document),
		logger: logger,
	}
}

// UpdateIndex implements Indexing.
func (m *MemoryIndex) UpdateIndex(ctx context.Context, workspace string, key graph.NodeKey, path graph.Path,
	primaryType graph.Name, mixins []graph.Name, props map[graph.Name]ir.Value,
	schemata *queryir.Schemata, txn TransactionContext) error {

	if err := ctx.Err(); err != nil {
		return err
	}
	doc, err := NewDocument(workspace, key, path, primaryType, mixins, props, schemata)
	if err != nil {
		return err
	}

	return applyOrDefer(txn, m.logger, "update", func() error {
		m.mu.Lock()
		defer m.mu.Unlock()

		if m.closed {
			return ErrClosed
		}
		ws, ok := m.docs[workspace]
		if !ok {
			ws = make(map[graph.NodeKey]Document)
			m.docs[workspace] = ws
		}
		ws[key] = doc
		return nil
	})
}

// RemoveFromIndex implements Indexing.
func (m *MemoryIndex) RemoveFromIndex(ctx context.Context, workspace string, key graph.NodeKey, txn TransactionContext) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return applyOrDefer(txn, m.logger, "remove", func() error {
		m.mu.Lock()
		defer m.mu.Unlock()

		if m.closed {
			return ErrClosed
		}
		delete(m.docs[workspace], key)
		return nil
	})
}

// InitializedIndexes implements Indexing.
func (m *MemoryIndex) InitializedIndexes() (bool, error) {
	n, err := m.Count(context.Background())
	return n == 0, err
}

// Search implements Indexing.
func (m *MemoryIndex) Search(ctx context.Context, workspaces []string, nodeType string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	var out []Document
	for ws, docs := range m.docs {
		if !slices.Contains(workspaces, ws) {
			continue
		}
		for _, doc := range docs {
			if doc.HasType(nodeType) {
				out = append(out, doc)
			}
		}
	}
	sortDocuments(out)
	return out, nil
}

// Count implements Indexing.
func (m *MemoryIndex) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrClosed
	}
	n := 0
	for _, docs := range m.docs {
		n += len(docs)
	}
	return n, nil
}

// Close implements Indexing. Closing twice is a no-op.
func (m *MemoryIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
