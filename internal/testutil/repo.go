package testutil

import (
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/arbor/internal/graph"
	"github.com/roach88/arbor/internal/ir"
)

// QuietLogger discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Repository creates a memory repository with source "src", the default
// system workspace, and the named workspaces.
func Repository(workspaces ...string) *graph.MemoryRepository {
	repo := graph.NewMemoryRepository("src", "")
	for _, ws := range workspaces {
		repo.CreateWorkspace(ws)
	}
	return repo
}

// Chain adds n nested nt:unstructured nodes c1/c2/.../cn beneath parent
// and returns their keys from the top down.
func Chain(t testing.TB, repo *graph.MemoryRepository, parent graph.NodeKey, n int) []graph.NodeKey {
	t.Helper()
	keys := make([]graph.NodeKey, 0, n)
	for i := 1; i <= n; i++ {
		key, err := repo.AddNode(parent, graph.Name(fmt.Sprintf("c%d", i)), "nt:unstructured",
			map[graph.Name]ir.Value{"level": ir.Int(int64(i))})
		require.NoError(t, err)
		keys = append(keys, key)
		parent = key
	}
	return keys
}

// Node adds one nt:unstructured child and fails the test on error.
func Node(t testing.TB, repo *graph.MemoryRepository, parent graph.NodeKey, name string,
	props map[graph.Name]ir.Value, mixins ...graph.Name) graph.NodeKey {

	t.Helper()
	key, err := repo.AddNode(parent, graph.Name(name), "nt:unstructured", props, mixins...)
	require.NoError(t, err)
	return key
}
