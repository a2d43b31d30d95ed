package testutil

import (
	"context"
	"sync"

	"github.com/roach88/arbor/internal/graph"
	"github.com/roach88/arbor/internal/index"
	"github.com/roach88/arbor/internal/ir"
	"github.com/roach88/arbor/internal/queryir"
)

// Update is one UpdateIndex call seen by a RecordingIndex.
type Update struct {
	Workspace string
	Key       graph.NodeKey
	Path      string
}

// RecordingIndex is a MemoryIndex that records every UpdateIndex call in
// submission order.
//
// Before, when set, runs ahead of each update and may block or fail it.
// Tests use it to hold an asynchronous crawl in place.
//
// Thread-safety: All methods are safe for concurrent use.
type RecordingIndex struct {
	*index.MemoryIndex

	Before func(ctx context.Context, u Update) error

	mu      sync.Mutex
	updates []Update
	removes []graph.NodeKey
}

// NewRecordingIndex creates an empty recording index.
func NewRecordingIndex() *RecordingIndex {
	return &RecordingIndex{MemoryIndex: index.NewMemoryIndex(QuietLogger())}
}

// UpdateIndex records the call, then stores the document.
func (r *RecordingIndex) UpdateIndex(ctx context.Context, workspace string, key graph.NodeKey, path graph.Path,
	primaryType graph.Name, mixins []graph.Name, props map[graph.Name]ir.Value,
	schemata *queryir.Schemata, txn index.TransactionContext) error {

	u := Update{Workspace: workspace, Key: key, Path: path.String()}
	if r.Before != nil {
		if err := r.Before(ctx, u); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.updates = append(r.updates, u)
	r.mu.Unlock()

	return r.MemoryIndex.UpdateIndex(ctx, workspace, key, path, primaryType, mixins, props, schemata, txn)
}

// RemoveFromIndex records the key, then removes the document.
func (r *RecordingIndex) RemoveFromIndex(ctx context.Context, workspace string, key graph.NodeKey,
	txn index.TransactionContext) error {

	r.mu.Lock()
	r.removes = append(r.removes, key)
	r.mu.Unlock()

	return r.MemoryIndex.RemoveFromIndex(ctx, workspace, key, txn)
}

// Updates returns a copy of the recorded updates.
func (r *RecordingIndex) Updates() []Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Update(nil), r.updates...)
}

// Paths returns the path of every recorded update, in order.
func (r *RecordingIndex) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	paths := make([]string, len(r.updates))
	for i, u := range r.updates {
		paths[i] = u.Path
	}
	return paths
}

// Removes returns a copy of the removed keys.
func (r *RecordingIndex) Removes() []graph.NodeKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]graph.NodeKey(nil), r.removes...)
}

// Reset forgets recorded calls. Stored documents are kept.
func (r *RecordingIndex) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = nil
	r.removes = nil
}
