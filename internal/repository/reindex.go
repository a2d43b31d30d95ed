package repository

import (
	"context"
	"fmt"

	"github.com/roach88/arbor/internal/config"
	"github.com/roach88/arbor/internal/graph"
	"github.com/roach88/arbor/internal/reindex"
)

func (m *Manager) crawler() (*reindex.Crawler, error) {
	idx, err := m.Indexes()
	if err != nil {
		return nil, err
	}
	return reindex.NewCrawler(m.repo, idx,
		reindex.WithSchemata(m.schemata),
		reindex.WithLogger(m.logger),
		reindex.WithMetrics(m.reindexMetrics),
	), nil
}

func checkWorkspace(workspace string) error {
	if workspace == "" {
		return fmt.Errorf("%w: empty workspace name", ErrInvalidArgument)
	}
	return nil
}

func checkPath(workspace string, path graph.Path, depth int) error {
	if err := checkWorkspace(workspace); err != nil {
		return err
	}
	if path == nil {
		return fmt.Errorf("%w: nil path", ErrInvalidArgument)
	}
	if depth < 1 {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, reindex.ErrInvalidDepth)
	}
	return nil
}

// ReindexWorkspace crawls a whole workspace synchronously. The crawl starts
// at the workspace root, so the system branch mounted there is included.
func (m *Manager) ReindexWorkspace(ctx context.Context, workspace string) error {
	if err := checkWorkspace(workspace); err != nil {
		return err
	}
	c, err := m.crawler()
	if err != nil {
		return err
	}
	return c.ReindexPath(ctx, workspace, graph.RootPath, reindex.Unbounded)
}

// ReindexWorkspaceAsync submits a workspace crawl to the reindex pool.
func (m *Manager) ReindexWorkspaceAsync(workspace string) (*reindex.Job, error) {
	if err := checkWorkspace(workspace); err != nil {
		return nil, err
	}
	c, err := m.crawler()
	if err != nil {
		return nil, err
	}
	return m.pool.Submit("reindex workspace "+workspace, func(ctx context.Context) error {
		return c.ReindexPath(ctx, workspace, graph.RootPath, reindex.Unbounded)
	})
}

// ReindexPath crawls the subtree at path to depth synchronously. A path
// that does not resolve is not an error.
func (m *Manager) ReindexPath(ctx context.Context, workspace string, path graph.Path, depth int) error {
	if err := checkPath(workspace, path, depth); err != nil {
		return err
	}
	c, err := m.crawler()
	if err != nil {
		return err
	}
	return c.ReindexPath(ctx, workspace, path, depth)
}

// ReindexPathAsync submits a path crawl to the reindex pool.
func (m *Manager) ReindexPathAsync(workspace string, path graph.Path, depth int) (*reindex.Job, error) {
	if err := checkPath(workspace, path, depth); err != nil {
		return nil, err
	}
	c, err := m.crawler()
	if err != nil {
		return nil, err
	}
	return m.pool.Submit(fmt.Sprintf("reindex %s:%s", workspace, path), func(ctx context.Context) error {
		return c.ReindexPath(ctx, workspace, path, depth)
	})
}

// ReindexContent crawls the whole repository, system content first when
// includeSystem is set.
//
// With onlyIfEmpty the crawl happens only while the index holds no
// documents. With async the crawl becomes the tracked full reindex and its
// job is returned; a second async request while one is tracked fails with
// reindex.ErrReindexInProgress. A synchronous call returns a nil job.
func (m *Manager) ReindexContent(ctx context.Context, includeSystem, async, onlyIfEmpty bool) (*reindex.Job, error) {
	idx, err := m.Indexes()
	if err != nil {
		return nil, err
	}
	if onlyIfEmpty {
		empty, err := idx.InitializedIndexes()
		if err != nil {
			return nil, fmt.Errorf("check index state: %w", err)
		}
		if !empty {
			m.logger.Debug("index already populated, skipping reindex")
			return nil, nil
		}
	}

	c, err := m.crawler()
	if err != nil {
		return nil, err
	}
	if !async {
		return nil, c.ReindexAll(ctx, includeSystem)
	}
	return m.coordinator.Start("reindex repository", func(ctx context.Context) error {
		return c.ReindexAll(ctx, includeSystem)
	})
}

// ReindexSystemContent crawls /jcr:system and its children, in the pool
// when async is set.
func (m *Manager) ReindexSystemContent(ctx context.Context, async bool) (*reindex.Job, error) {
	c, err := m.crawler()
	if err != nil {
		return nil, err
	}
	if !async {
		return nil, c.ReindexSystemContent(ctx)
	}
	return m.pool.Submit("reindex system content", c.ReindexSystemContent)
}

// Initialize applies the configured startup rebuild policy.
func (m *Manager) Initialize(ctx context.Context) (*reindex.Job, error) {
	ix := m.cfg.Indexing
	switch ix.RebuildOnStartup {
	case config.RebuildAlways:
		return m.ReindexContent(ctx, ix.IncludeSystem, ix.Async, false)
	case config.RebuildNever:
		_, err := m.Engine()
		return nil, err
	default:
		return m.ReindexContent(ctx, ix.IncludeSystem, ix.Async, true)
	}
}
