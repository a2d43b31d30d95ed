package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/arbor/internal/ir"
)

func TestMemoryRepositoryWorkspaces(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository("src", "")
	repo.CreateWorkspace("default")
	repo.CreateWorkspace("default")

	names, err := repo.WorkspaceNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultSystemWorkspace, "default"}, names)

	_, err = repo.WorkspaceCache(ctx, "missing")
	assert.ErrorIs(t, err, ErrWorkspaceNotFound)
}

func TestMemoryRepositorySystemLink(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository("src", "system")
	repo.CreateWorkspace("default")

	ws, err := repo.WorkspaceCache(ctx, "default")
	require.NoError(t, err)

	root, err := ws.Node(ctx, ws.RootKey())
	require.NoError(t, err)
	ref, ok := root.Child(SystemName)
	require.True(t, ok)
	assert.Equal(t, repo.SystemKey(), ref.Key)
	assert.Equal(t, "system", ref.Key.Workspace)

	sys, err := ws.Node(ctx, ref.Key)
	require.NoError(t, err)
	require.NotNil(t, sys)
	assert.Equal(t, SystemType, sys.PrimaryType)
}

func TestMemoryRepositorySameNameSiblings(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository("src", "")
	root := repo.CreateWorkspace("default")

	_, err := repo.AddNode(root, "item", "nt:unstructured", nil)
	require.NoError(t, err)
	second, err := repo.AddNode(root, "item", "nt:unstructured", nil)
	require.NoError(t, err)

	ws, err := repo.WorkspaceCache(ctx, "default")
	require.NoError(t, err)

	p, err := ParsePath("/item[2]")
	require.NoError(t, err)
	node, err := Resolve(ctx, ws, p)
	require.NoError(t, err)
	require.NotNil(t, node)
	assert.Equal(t, second, node.Key)
}

func TestMemoryRepositoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository("src", "")
	root := repo.CreateWorkspace("default")
	key, err := repo.AddNode(root, "a", "nt:unstructured", map[Name]ir.Value{"title": ir.String("x")})
	require.NoError(t, err)

	ws, err := repo.WorkspaceCache(ctx, "default")
	require.NoError(t, err)
	n, err := ws.Node(ctx, key)
	require.NoError(t, err)
	n.Properties["title"] = ir.String("mutated")

	again, err := ws.Node(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, ir.String("x"), again.Properties["title"])
}

func TestMemoryRepositoryRemove(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository("src", "")
	root := repo.CreateWorkspace("default")
	a, err := repo.AddNode(root, "a", "nt:unstructured", nil)
	require.NoError(t, err)
	b, err := repo.AddNode(a, "b", "nt:unstructured", nil)
	require.NoError(t, err)

	repo.Remove(a, true)

	ws, err := repo.WorkspaceCache(ctx, "default")
	require.NoError(t, err)
	for _, key := range []NodeKey{a, b} {
		n, err := ws.Node(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, n)
	}

	rootNode, err := ws.Node(ctx, root)
	require.NoError(t, err)
	_, dangling := rootNode.Child("a")
	assert.True(t, dangling, "reference kept to simulate a concurrent removal")
}

func TestNodeQueryable(t *testing.T) {
	tests := []struct {
		name string
		node Node
		want bool
	}{
		{"plain", Node{PrimaryType: "nt:unstructured"}, true},
		{"non-queryable primary", Node{PrimaryType: NonQueryableType}, false},
		{"non-queryable mixin", Node{PrimaryType: "nt:folder", Mixins: []Name{NonQueryableType}}, false},
		{"queryable=false", Node{PrimaryType: "nt:folder", Properties: map[Name]ir.Value{QueryableProperty: ir.Bool(false)}}, false},
		{"queryable=true", Node{PrimaryType: "nt:folder", Properties: map[Name]ir.Value{QueryableProperty: ir.Bool(true)}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.node.Queryable())
		})
	}
}
