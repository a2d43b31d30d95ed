package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/arbor/internal/graph"
	"github.com/roach88/arbor/internal/ir"
	"github.com/roach88/arbor/internal/queryir"
)

var testSchemata = queryir.DefaultSchemata().With(
	queryir.NodeType{Name: "blog:post", Supertypes: []string{"nt:unstructured"}},
)

func backends(t *testing.T) map[string]Indexing {
	t.Helper()
	badgerIdx, err := OpenBadger(InMemoryBadgerConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = badgerIdx.Close() })

	return map[string]Indexing{
		"memory": NewMemoryIndex(nil),
		"badger": badgerIdx,
	}
}

func key(ws, id string) graph.NodeKey {
	return graph.NodeKey{Source: "src", Workspace: ws, Identifier: id}
}

func mustPath(t *testing.T, s string) graph.Path {
	t.Helper()
	p, err := graph.ParsePath(s)
	require.NoError(t, err)
	return p
}

func TestIndexingContract(t *testing.T) {
	ctx := context.Background()

	for name, idx := range backends(t) {
		t.Run(name, func(t *testing.T) {
			empty, err := idx.InitializedIndexes()
			require.NoError(t, err)
			assert.True(t, empty)

			props := map[graph.Name]ir.Value{"title": ir.String("Hello")}
			require.NoError(t, idx.UpdateIndex(ctx, "default", key("default", "p1"), mustPath(t, "/posts/p1"),
				"blog:post", nil, props, testSchemata, NoTransaction))
			require.NoError(t, idx.UpdateIndex(ctx, "default", key("default", "f1"), mustPath(t, "/posts"),
				"nt:folder", []graph.Name{"mix:title"}, nil, testSchemata, NoTransaction))
			require.NoError(t, idx.UpdateIndex(ctx, "other", key("other", "p2"), mustPath(t, "/p2"),
				"blog:post", nil, nil, testSchemata, NoTransaction))

			empty, err = idx.InitializedIndexes()
			require.NoError(t, err)
			assert.False(t, empty)

			n, err := idx.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 3, n)

			posts, err := idx.Search(ctx, []string{"default"}, "blog:post")
			require.NoError(t, err)
			require.Len(t, posts, 1)
			assert.Equal(t, key("default", "p1"), posts[0].Key)
			assert.Equal(t, "/posts/p1", posts[0].Path.String())
			assert.Equal(t, ir.String("Hello"), posts[0].Properties["title"])

			// Supertype search crosses primary types and mixins.
			all, err := idx.Search(ctx, []string{"default", "other"}, queryir.BaseTypeName)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "/posts", all[0].Path.String())
			assert.Equal(t, "/posts/p1", all[1].Path.String())
			assert.Equal(t, "other", all[2].Workspace)

			titled, err := idx.Search(ctx, []string{"default"}, "mix:title")
			require.NoError(t, err)
			require.Len(t, titled, 1)
			assert.Equal(t, key("default", "f1"), titled[0].Key)

			// Changing the primary type drops the old type posting.
			require.NoError(t, idx.UpdateIndex(ctx, "default", key("default", "p1"), mustPath(t, "/posts/p1"),
				"nt:unstructured", nil, props, testSchemata, NoTransaction))
			posts, err = idx.Search(ctx, []string{"default"}, "blog:post")
			require.NoError(t, err)
			assert.Empty(t, posts)

			require.NoError(t, idx.RemoveFromIndex(ctx, "default", key("default", "f1"), NoTransaction))
			require.NoError(t, idx.RemoveFromIndex(ctx, "default", key("default", "missing"), NoTransaction))
			n, err = idx.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)
		})
	}
}

type fakeTxn struct {
	syncs []Synchronization
}

func (f *fakeTxn) InProgress() bool { return true }

func (f *fakeTxn) Identifier() any { return "tx-1" }

func (f *fakeTxn) RegisterSynchronization(s Synchronization) { f.syncs = append(f.syncs, s) }

func (f *fakeTxn) complete(committed bool) {
	for _, s := range f.syncs {
		s.BeforeCompletion()
		s.AfterCompletion(committed)
	}
}

// recordingSync counts completion callbacks.
type recordingSync struct {
	before, after int
}

func (r *recordingSync) BeforeCompletion() { r.before++ }

func (r *recordingSync) AfterCompletion(bool) { r.after++ }

func TestIndexingDefersTransactionalWrites(t *testing.T) {
	ctx := context.Background()

	for name, idx := range backends(t) {
		t.Run(name, func(t *testing.T) {
			rolledBack := &fakeTxn{}
			require.NoError(t, idx.UpdateIndex(ctx, "default", key("default", "a"), mustPath(t, "/a"),
				"nt:unstructured", nil, nil, testSchemata, rolledBack))
			rolledBack.complete(false)

			n, err := idx.Count(ctx)
			require.NoError(t, err)
			assert.Zero(t, n, "rolled back write must not apply")

			committed := &fakeTxn{}
			require.NoError(t, idx.UpdateIndex(ctx, "default", key("default", "a"), mustPath(t, "/a"),
				"nt:unstructured", nil, nil, testSchemata, committed))
			n, err = idx.Count(ctx)
			require.NoError(t, err)
			assert.Zero(t, n, "write is deferred until commit")

			committed.complete(true)
			n, err = idx.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestNoTransactionPanics(t *testing.T) {
	assert.False(t, NoTransaction.InProgress())
	assert.Panics(t, func() { NoTransaction.Identifier() })
	rec := &recordingSync{}
	assert.Panics(t, func() { NoTransaction.RegisterSynchronization(rec) })
	assert.Zero(t, rec.before+rec.after)
}

func TestBadgerSkipsUnchangedDocuments(t *testing.T) {
	ctx := context.Background()
	idx, err := OpenBadger(InMemoryBadgerConfig())
	require.NoError(t, err)
	defer idx.Close()

	props := map[graph.Name]ir.Value{"n": ir.Int(1)}
	for i := 0; i < 3; i++ {
		require.NoError(t, idx.UpdateIndex(ctx, "default", key("default", "a"), mustPath(t, "/a"),
			"nt:unstructured", nil, props, testSchemata, NoTransaction))
	}
	assert.Equal(t, 2, idx.Skipped())

	props["n"] = ir.Int(2)
	require.NoError(t, idx.UpdateIndex(ctx, "default", key("default", "a"), mustPath(t, "/a"),
		"nt:unstructured", nil, props, testSchemata, NoTransaction))
	assert.Equal(t, 2, idx.Skipped())

	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close(), "second close is a no-op")
}

func TestBadgerPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultBadgerConfig(t.TempDir())
	cfg.GCInterval = 0

	idx, err := OpenBadger(cfg)
	require.NoError(t, err)
	require.NoError(t, idx.UpdateIndex(ctx, "default", key("default", "a"), mustPath(t, "/a"),
		"nt:unstructured", nil, nil, testSchemata, NoTransaction))
	require.NoError(t, idx.Close())

	reopened, err := OpenBadger(cfg)
	require.NoError(t, err)
	defer reopened.Close()

	empty, err := reopened.InitializedIndexes()
	require.NoError(t, err)
	assert.False(t, empty)
}

func TestMemoryIndexClosed(t *testing.T) {
	idx := NewMemoryIndex(nil)
	require.NoError(t, idx.Close())

	err := idx.UpdateIndex(context.Background(), "default", key("default", "a"), graph.RootPath,
		"nt:unstructured", nil, nil, nil, NoTransaction)
	assert.ErrorIs(t, err, ErrClosed)
}
