package reindex

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/arbor/internal/graph"
	"github.com/roach88/arbor/internal/ir"
	"github.com/roach88/arbor/internal/testutil"
)

func path(t *testing.T, s string) graph.Path {
	t.Helper()
	p, err := graph.ParsePath(s)
	require.NoError(t, err)
	return p
}

func crawler(repo graph.RepositoryCache, idx *testutil.RecordingIndex, opts ...Option) *Crawler {
	opts = append([]Option{WithLogger(testutil.QuietLogger())}, opts...)
	return NewCrawler(repo, idx, opts...)
}

func TestReindexPath_DepthBound(t *testing.T) {
	// A chain of depth D+2 crawled to depth D yields D+1 submissions.
	for _, depth := range []int{2, 3, 5} {
		t.Run(fmt.Sprintf("depth=%d", depth), func(t *testing.T) {
			repo := testutil.Repository("default")
			root := repo.CreateWorkspace("default")
			chain := testutil.Chain(t, repo, root, depth+3)

			idx := testutil.NewRecordingIndex()
			start := path(t, "/c1")
			require.NoError(t, crawler(repo, idx).ReindexPath(context.Background(), "default", start, depth))

			updates := idx.Updates()
			require.Len(t, updates, depth+1)
			for i, u := range updates {
				assert.Equal(t, chain[i], u.Key)
				assert.Equal(t, "default", u.Workspace)
			}
		})
	}
}

func TestReindexPath_DepthOneIndexesOnlyTheNode(t *testing.T) {
	repo := testutil.Repository("default")
	root := repo.CreateWorkspace("default")
	testutil.Chain(t, repo, root, 3)

	idx := testutil.NewRecordingIndex()
	require.NoError(t, crawler(repo, idx).ReindexPath(context.Background(), "default", path(t, "/c1"), 1))

	assert.Equal(t, []string{"/c1"}, idx.Paths())
}

func TestReindexPath_RejectsDepthBelowOne(t *testing.T) {
	repo := testutil.Repository("default")
	idx := testutil.NewRecordingIndex()

	err := crawler(repo, idx).ReindexPath(context.Background(), "default", graph.RootPath, 0)
	assert.ErrorIs(t, err, ErrInvalidDepth)
	assert.Empty(t, idx.Updates())
}

func TestReindexPath_MissingPathIsANoOp(t *testing.T) {
	repo := testutil.Repository("default")
	root := repo.CreateWorkspace("default")
	testutil.Chain(t, repo, root, 2)

	idx := testutil.NewRecordingIndex()
	c := crawler(repo, idx)

	require.NoError(t, c.ReindexPath(context.Background(), "default", path(t, "/nope"), Unbounded))
	require.NoError(t, c.ReindexPath(context.Background(), "default", path(t, "/c1/c2/c3"), Unbounded))
	assert.Empty(t, idx.Updates())
}

func TestReindexPath_UnknownWorkspace(t *testing.T) {
	repo := testutil.Repository("default")
	idx := testutil.NewRecordingIndex()

	err := crawler(repo, idx).ReindexPath(context.Background(), "missing", graph.RootPath, Unbounded)
	assert.ErrorIs(t, err, graph.ErrWorkspaceNotFound)
}

func TestReindexWorkspace_ExcludesSystemBranch(t *testing.T) {
	repo := testutil.Repository("default")
	root := repo.CreateWorkspace("default")
	testutil.Node(t, repo, repo.SystemKey(), "jcr:nodeTypes", nil)
	testutil.Node(t, repo, root, "a", nil)
	testutil.Node(t, repo, root, "b", nil)

	idx := testutil.NewRecordingIndex()
	require.NoError(t, crawler(repo, idx).ReindexWorkspace(context.Background(), "default"))

	assert.Equal(t, []string{"/", "/a", "/b"}, idx.Paths())
	for _, u := range idx.Updates() {
		assert.NotEqual(t, repo.SystemWorkspaceKey(), u.Key.Workspace)
	}
}

func TestReindexPath_RootIncludesSystemBranch(t *testing.T) {
	repo := testutil.Repository("default")
	root := repo.CreateWorkspace("default")
	testutil.Node(t, repo, repo.SystemKey(), "jcr:nodeTypes", nil)
	testutil.Node(t, repo, root, "a", nil)

	idx := testutil.NewRecordingIndex()
	require.NoError(t, crawler(repo, idx).ReindexPath(context.Background(), "default", graph.RootPath, Unbounded))

	var got []string
	for _, u := range idx.Updates() {
		got = append(got, u.Workspace+":"+u.Path)
	}
	assert.Equal(t, []string{
		"default:/",
		"system:/jcr:system",
		"system:/jcr:system/jcr:nodeTypes",
		"default:/a",
	}, got)
}

func TestReindexPath_RootSystemBranchLosesOneLevel(t *testing.T) {
	repo := testutil.Repository("default")
	repo.CreateWorkspace("default")
	types := testutil.Node(t, repo, repo.SystemKey(), "jcr:nodeTypes", nil)
	testutil.Node(t, repo, types, "nt:base", nil)

	idx := testutil.NewRecordingIndex()
	require.NoError(t, crawler(repo, idx).ReindexPath(context.Background(), "default", graph.RootPath, 2))

	// Depth 2 from the root reaches /jcr:system with depth 1.
	assert.Equal(t, []string{"/", "/jcr:system"}, idx.Paths())
}

func TestReindexPath_IntoSystemContent(t *testing.T) {
	repo := testutil.Repository("default")
	repo.CreateWorkspace("default")
	types := testutil.Node(t, repo, repo.SystemKey(), "jcr:nodeTypes", nil)
	testutil.Node(t, repo, types, "nt:base", nil)

	idx := testutil.NewRecordingIndex()
	require.NoError(t, crawler(repo, idx).ReindexPath(context.Background(), "default",
		path(t, "/jcr:system/jcr:nodeTypes"), Unbounded))

	updates := idx.Updates()
	require.Len(t, updates, 2)
	for _, u := range updates {
		assert.Equal(t, "system", u.Workspace)
	}
	assert.Equal(t, []string{"/jcr:system/jcr:nodeTypes", "/jcr:system/jcr:nodeTypes/nt:base"}, idx.Paths())
}

func TestReindexSubtree_NonQueryableRootStillTraversed(t *testing.T) {
	repo := testutil.Repository("default")
	root := repo.CreateWorkspace("default")
	hidden := testutil.Node(t, repo, root, "hidden", nil, graph.NonQueryableType)
	testutil.Node(t, repo, hidden, "visible", nil)

	idx := testutil.NewRecordingIndex()
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	c := crawler(repo, idx, WithMetrics(metrics))

	require.NoError(t, c.ReindexPath(context.Background(), "default", path(t, "/hidden"), Unbounded))

	assert.Equal(t, []string{"/hidden/visible"}, idx.Paths())
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.NodesSkipped.WithLabelValues(skipNonQueryable)))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.NodesIndexed.WithLabelValues("default")))
}

func TestReindexSubtree_NonQueryableDescendantPrunesItsSubtree(t *testing.T) {
	repo := testutil.Repository("default")
	root := repo.CreateWorkspace("default")
	a := testutil.Node(t, repo, root, "a", nil)
	off := testutil.Node(t, repo, a, "off", map[graph.Name]ir.Value{graph.QueryableProperty: ir.Bool(false)})
	testutil.Node(t, repo, off, "under", nil)
	testutil.Node(t, repo, a, "on", nil)

	idx := testutil.NewRecordingIndex()
	require.NoError(t, crawler(repo, idx).ReindexWorkspace(context.Background(), "default"))

	assert.Equal(t, []string{"/", "/a", "/a/on"}, idx.Paths())
}

func TestReindexSubtree_SkipsVanishedNodes(t *testing.T) {
	repo := testutil.Repository("default")
	root := repo.CreateWorkspace("default")
	gone := testutil.Node(t, repo, root, "gone", nil)
	testutil.Node(t, repo, gone, "child", nil)
	testutil.Node(t, repo, root, "kept", nil)
	repo.Remove(gone, true)

	idx := testutil.NewRecordingIndex()
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	require.NoError(t, crawler(repo, idx, WithMetrics(metrics)).ReindexWorkspace(context.Background(), "default"))

	assert.Equal(t, []string{"/", "/kept"}, idx.Paths())
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.NodesSkipped.WithLabelValues(skipMissing)))
}

func TestReindexSubtree_StopsOnCancellation(t *testing.T) {
	repo := testutil.Repository("default")
	root := repo.CreateWorkspace("default")
	for i := range 10 {
		testutil.Node(t, repo, root, fmt.Sprintf("n%d", i), nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	idx := testutil.NewRecordingIndex()
	idx.Before = func(_ context.Context, u testutil.Update) error {
		if u.Path == "/n2" {
			cancel()
		}
		return nil
	}

	err := crawler(repo, idx).ReindexWorkspace(ctx, "default")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"/", "/n0", "/n1", "/n2"}, idx.Paths())
}

func TestReindexSubtree_PropagatesIndexErrors(t *testing.T) {
	repo := testutil.Repository("default")
	root := repo.CreateWorkspace("default")
	testutil.Node(t, repo, root, "a", nil)

	idx := testutil.NewRecordingIndex()
	require.NoError(t, idx.Close())

	err := crawler(repo, idx).ReindexWorkspace(context.Background(), "default")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index ")
}

func TestReindexSubtree_SmallPathCache(t *testing.T) {
	repo := testutil.Repository("default")
	root := repo.CreateWorkspace("default")
	testutil.Chain(t, repo, root, 6)

	idx := testutil.NewRecordingIndex()
	require.NoError(t, crawler(repo, idx, WithPathCacheSize(1)).ReindexWorkspace(context.Background(), "default"))

	paths := idx.Paths()
	require.Len(t, paths, 7)
	assert.Equal(t, "/c1/c2/c3/c4/c5/c6", paths[6])
}

func TestReindexSystemContent(t *testing.T) {
	repo := testutil.Repository("default")
	types := testutil.Node(t, repo, repo.SystemKey(), "jcr:nodeTypes", nil)
	testutil.Node(t, repo, types, "nt:base", nil)
	testutil.Node(t, repo, repo.SystemKey(), "mode:locks", nil)

	idx := testutil.NewRecordingIndex()
	require.NoError(t, crawler(repo, idx).ReindexSystemContent(context.Background()))

	assert.Equal(t, []string{
		"/jcr:system",
		"/jcr:system/jcr:nodeTypes",
		"/jcr:system/jcr:nodeTypes/nt:base",
		"/jcr:system/mode:locks",
	}, idx.Paths())
}

func TestReindexAll(t *testing.T) {
	repo := testutil.Repository("default", "archive")
	defaultRoot := repo.CreateWorkspace("default")
	archiveRoot := repo.CreateWorkspace("archive")
	testutil.Node(t, repo, repo.SystemKey(), "jcr:nodeTypes", nil)
	posts := testutil.Node(t, repo, defaultRoot, "posts", nil)
	testutil.Node(t, repo, posts, "alpha", map[graph.Name]ir.Value{"title": ir.String("Alpha")})
	testutil.Node(t, repo, posts, "beta", nil, graph.NonQueryableType)
	testutil.Node(t, repo, archiveRoot, "old", nil)

	for _, includeSystem := range []bool{true, false} {
		t.Run(fmt.Sprintf("include_system=%t", includeSystem), func(t *testing.T) {
			idx := testutil.NewRecordingIndex()
			require.NoError(t, crawler(repo, idx).ReindexAll(context.Background(), includeSystem))

			var lines []string
			for _, u := range idx.Updates() {
				lines = append(lines, u.Workspace+" "+u.Path)
			}
			g := goldie.New(t,
				goldie.WithFixtureDir("testdata/golden"),
				goldie.WithNameSuffix(".golden"),
			)
			g.Assert(t, t.Name(), []byte(strings.Join(lines, "\n")+"\n"))
		})
	}
}
