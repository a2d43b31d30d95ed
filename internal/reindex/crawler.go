package reindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/golang-collections/collections/queue"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/arbor/internal/graph"
	"github.com/roach88/arbor/internal/index"
	"github.com/roach88/arbor/internal/queryir"
)

var tracer = otel.Tracer("arbor.reindex")

// Unbounded is the depth of a crawl with no depth limit.
const Unbounded = math.MaxInt

// ErrInvalidDepth is returned for a crawl depth below 1.
var ErrInvalidDepth = errors.New("reindex depth must be at least 1")

// Crawler rebuilds index state for subtrees of the content graph.
//
// A crawl is breadth-first over an explicit FIFO of node keys, so memory
// is bounded by the frontier rather than the tree height. Parents are
// always submitted before their children are enqueued.
//
// The graph is live: nodes that vanish mid-crawl or are not queryable are
// skipped, and their children are never visited. Any other lookup or index
// error aborts the crawl.
//
// Crawler is safe for concurrent use; each crawl has its own queue and
// path cache.
type Crawler struct {
	repo          graph.RepositoryCache
	indexes       index.Indexing
	schemata      *queryir.Schemata
	pathCacheSize int
	logger        *slog.Logger
	metrics       *Metrics
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithSchemata sets the node-type schemata recorded with every document.
// Default: queryir.DefaultSchemata().
func WithSchemata(s *queryir.Schemata) Option {
	return func(c *Crawler) {
		c.schemata = s
	}
}

// WithPathCacheSize bounds the per-crawl path cache.
// Default: graph.DefaultPathCacheSize.
func WithPathCacheSize(n int) Option {
	return func(c *Crawler) {
		c.pathCacheSize = n
	}
}

// WithLogger sets the crawler logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) {
		c.logger = logger
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *Crawler) {
		c.metrics = m
	}
}

// NewCrawler creates a crawler that reads repo and writes indexes.
func NewCrawler(repo graph.RepositoryCache, indexes index.Indexing, opts ...Option) *Crawler {
	c := &Crawler{
		repo:          repo,
		indexes:       indexes,
		schemata:      queryir.DefaultSchemata(),
		pathCacheSize: graph.DefaultPathCacheSize,
		logger:        slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ReindexAll crawls the whole repository: the system content first when
// includeSystem is set, then the root of every other workspace, each
// without a depth limit.
func (c *Crawler) ReindexAll(ctx context.Context, includeSystem bool) error {
	c.logger.Debug("reindexing repository", "include_system", includeSystem)

	if includeSystem {
		c.logger.Debug("reindex of system content starting")
		system, cache, err := c.systemNode(ctx)
		if err != nil {
			return err
		}
		if system != nil {
			if err := c.ReindexSubtree(ctx, c.repo.SystemWorkspaceName(), cache, system, Unbounded, true); err != nil {
				return err
			}
		}
		c.logger.Debug("reindex of system content complete")
	}

	names, err := c.repo.WorkspaceNames(ctx)
	if err != nil {
		return fmt.Errorf("list workspaces: %w", err)
	}
	for _, name := range names {
		if name == c.repo.SystemWorkspaceName() {
			continue
		}
		c.logger.Debug("reindex of workspace starting", "workspace", name)
		if err := c.ReindexWorkspace(ctx, name); err != nil {
			return err
		}
		c.logger.Debug("reindex of workspace complete", "workspace", name)
	}
	return nil
}

// ReindexWorkspace crawls one workspace from its root without a depth limit,
// skipping the system branch. ReindexAll uses it after the system content
// has had its own pass; to crawl a workspace together with the system
// branch use ReindexPath from the root.
func (c *Crawler) ReindexWorkspace(ctx context.Context, workspace string) error {
	cache, err := c.repo.WorkspaceCache(ctx, workspace)
	if err != nil {
		return fmt.Errorf("workspace %q: %w", workspace, err)
	}
	root, err := cache.Node(ctx, cache.RootKey())
	if err != nil {
		return fmt.Errorf("workspace %q root: %w", workspace, err)
	}
	if root == nil {
		return nil
	}
	return c.ReindexSubtree(ctx, workspace, cache, root, Unbounded, false)
}

// ReindexPath crawls the subtree at path in workspace to the given depth.
//
// The path is resolved one segment at a time from the workspace root; if a
// segment no longer resolves the call returns nil without indexing
// anything. A path that lands in the system content is crawled as system
// content. Crawling from the workspace root includes the system branch.
func (c *Crawler) ReindexPath(ctx context.Context, workspace string, path graph.Path, depth int) error {
	if depth < 1 {
		return ErrInvalidDepth
	}
	cache, err := c.repo.WorkspaceCache(ctx, workspace)
	if err != nil {
		return fmt.Errorf("workspace %q: %w", workspace, err)
	}
	node, err := graph.Resolve(ctx, cache, path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	if node == nil {
		c.logger.Debug("reindex path not found", "workspace", workspace, "path", path.String())
		return nil
	}

	if node.Key.Workspace == c.repo.SystemWorkspaceKey() {
		return c.reindexSystemBranch(ctx, node, depth)
	}
	return c.ReindexSubtree(ctx, workspace, cache, node, depth, path.IsRoot())
}

// ReindexSystemContent indexes /jcr:system on its own, then each of its
// children without a depth limit.
func (c *Crawler) ReindexSystemContent(ctx context.Context) error {
	system, cache, err := c.systemNode(ctx)
	if err != nil || system == nil {
		return err
	}
	if err := c.reindexSystemBranch(ctx, system, 1); err != nil {
		return err
	}
	for _, ref := range system.Children {
		child, err := cache.Node(ctx, ref.Key)
		if err != nil {
			return fmt.Errorf("lookup %s: %w", ref.Key, err)
		}
		if child == nil {
			c.skipped(skipMissing)
			continue
		}
		if err := c.reindexSystemBranch(ctx, child, Unbounded); err != nil {
			return err
		}
	}
	return nil
}

func (c *Crawler) systemNode(ctx context.Context) (*graph.Node, graph.WorkspaceCache, error) {
	name := c.repo.SystemWorkspaceName()
	cache, err := c.repo.WorkspaceCache(ctx, name)
	if err != nil {
		return nil, nil, fmt.Errorf("system workspace %q: %w", name, err)
	}
	node, err := cache.Node(ctx, c.repo.SystemKey())
	if err != nil {
		return nil, nil, fmt.Errorf("lookup %s: %w", c.repo.SystemKey(), err)
	}
	return node, cache, nil
}

// reindexSystemBranch crawls a node of the system content in the system
// workspace.
func (c *Crawler) reindexSystemBranch(ctx context.Context, node *graph.Node, depth int) error {
	name := c.repo.SystemWorkspaceName()
	cache, err := c.repo.WorkspaceCache(ctx, name)
	if err != nil {
		return fmt.Errorf("system workspace %q: %w", name, err)
	}
	return c.ReindexSubtree(ctx, name, cache, node, depth, true)
}

// ReindexSubtree crawls the subtree rooted at node, submitting every
// queryable node to the index under workspace.
//
// Depth is measured from node: depth 1 indexes node alone, and a node at
// relative depth k has its children crawled only while k < depth. A
// non-queryable root is not indexed but its descendants are still crawled.
//
// With includeSystem, the root's jcr:system child is crawled as system
// content with one less level of depth. Without it, top-level children
// owned by the system workspace are never visited.
//
// ctx is checked before every node; a cancelled crawl returns ctx.Err().
func (c *Crawler) ReindexSubtree(ctx context.Context, workspace string, cache graph.WorkspaceCache,
	node *graph.Node, depth int, includeSystem bool) (err error) {

	if depth < 1 {
		return ErrInvalidDepth
	}
	ctx, span := tracer.Start(ctx, "reindex.Subtree", trace.WithAttributes(
		attribute.String("workspace", workspace),
		attribute.String("root", node.Key.String()),
		attribute.Int("depth", depth),
	))
	start := time.Now()
	submitted := 0
	defer func() {
		span.SetAttributes(attribute.Int("nodes", submitted))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if c.metrics != nil {
			c.metrics.CrawlSeconds.WithLabelValues(workspace).Observe(time.Since(start).Seconds())
		}
	}()

	paths, err := graph.NewPathCache(cache, c.pathCacheSize)
	if err != nil {
		return err
	}
	rootPath, err := paths.Path(ctx, node)
	if err != nil {
		return fmt.Errorf("path of %s: %w", node.Key, err)
	}

	if node.Queryable() {
		if err := c.submit(ctx, workspace, node, rootPath); err != nil {
			return err
		}
		submitted++
	} else {
		c.skipped(skipNonQueryable)
	}
	if depth == 1 {
		return nil
	}

	frontier := queue.New()
	if includeSystem {
		system, hasSystem := node.Child(graph.SystemName)
		for _, ref := range node.Children {
			if hasSystem && ref.Key == system.Key {
				child, err := cache.Node(ctx, ref.Key)
				if err != nil {
					return fmt.Errorf("lookup %s: %w", ref.Key, err)
				}
				if child == nil {
					c.skipped(skipMissing)
					continue
				}
				if err := c.reindexSystemBranch(ctx, child, depth-1); err != nil {
					return err
				}
				continue
			}
			frontier.Enqueue(ref.Key)
		}
	} else {
		for _, ref := range node.Children {
			if ref.Key.Workspace != c.repo.SystemWorkspaceKey() {
				frontier.Enqueue(ref.Key)
			}
		}
	}

	for frontier.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		key := frontier.Dequeue().(graph.NodeKey)

		n, err := cache.Node(ctx, key)
		if err != nil {
			return fmt.Errorf("lookup %s: %w", key, err)
		}
		if n == nil {
			c.skipped(skipMissing)
			continue
		}
		if !n.Queryable() {
			c.skipped(skipNonQueryable)
			continue
		}
		path, err := paths.Path(ctx, n)
		if err != nil {
			return fmt.Errorf("path of %s: %w", key, err)
		}
		if err := c.submit(ctx, workspace, n, path); err != nil {
			return err
		}
		submitted++

		if path.Len()-rootPath.Len() < depth {
			for _, ref := range n.Children {
				frontier.Enqueue(ref.Key)
			}
		}
	}
	return nil
}

func (c *Crawler) submit(ctx context.Context, workspace string, n *graph.Node, path graph.Path) error {
	err := c.indexes.UpdateIndex(ctx, workspace, n.Key, path, n.PrimaryType, n.Mixins, n.Properties,
		c.schemata, index.NoTransaction)
	if err != nil {
		return fmt.Errorf("index %s at %s: %w", n.Key, path, err)
	}
	if c.metrics != nil {
		c.metrics.NodesIndexed.WithLabelValues(workspace).Inc()
	}
	c.logger.Debug("node indexed", "workspace", workspace, "path", path.String())
	return nil
}

func (c *Crawler) skipped(reason string) {
	if c.metrics != nil {
		c.metrics.NodesSkipped.WithLabelValues(reason).Inc()
	}
}
