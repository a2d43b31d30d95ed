package graph

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultPathCacheSize bounds the number of memoized paths per traversal.
const DefaultPathCacheSize = 4096

// PathCache memoizes node paths for the duration of one traversal.
//
// A node's path is its parent's path plus its own segment. Parents are
// resolved before their children during a breadth-first crawl, so the
// parent's entry is normally cached; when it has been evicted the parent
// is looked up and resolved recursively.
type PathCache struct {
	cache WorkspaceCache
	paths *lru.Cache[NodeKey, Path]
}

// NewPathCache creates a path cache over cache holding at most size entries.
func NewPathCache(cache WorkspaceCache, size int) (*PathCache, error) {
	if size <= 0 {
		size = DefaultPathCacheSize
	}
	paths, err := lru.New[NodeKey, Path](size)
	if err != nil {
		return nil, fmt.Errorf("create path cache: %w", err)
	}
	return &PathCache{cache: cache, paths: paths}, nil
}

// Path returns the absolute path of node.
func (pc *PathCache) Path(ctx context.Context, node *Node) (Path, error) {
	if p, ok := pc.paths.Get(node.Key); ok {
		return p, nil
	}
	if node.IsRoot() {
		pc.paths.Add(node.Key, RootPath)
		return RootPath, nil
	}

	parentPath, ok := pc.paths.Get(node.Parent)
	if !ok {
		parent, err := pc.cache.Node(ctx, node.Parent)
		if err != nil {
			return nil, fmt.Errorf("resolve parent of %s: %w", node.Key, err)
		}
		if parent == nil {
			return nil, fmt.Errorf("parent %s of %s not found", node.Parent, node.Key)
		}
		parentPath, err = pc.Path(ctx, parent)
		if err != nil {
			return nil, err
		}
	}

	p := parentPath.Child(node.Segment)
	pc.paths.Add(node.Key, p)
	return p, nil
}

// Len reports the number of cached paths.
func (pc *PathCache) Len() int {
	return pc.paths.Len()
}
