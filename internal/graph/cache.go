package graph

import (
	"context"
	"errors"
)

// ErrWorkspaceNotFound is returned by RepositoryCache.WorkspaceCache for an
// unknown workspace name.
var ErrWorkspaceNotFound = errors.New("workspace not found")

// WorkspaceCache reads nodes of one workspace.
//
// Node returns (nil, nil) when the key does not resolve: the graph is live
// and callers treat a missing node as a race with concurrent removal, not
// as corruption. Nodes owned by the system workspace resolve through every
// workspace's cache.
type WorkspaceCache interface {
	WorkspaceName() string
	RootKey() NodeKey
	Node(ctx context.Context, key NodeKey) (*Node, error)
}

// RepositoryCache exposes the workspaces of one repository.
type RepositoryCache interface {
	// WorkspaceNames lists every workspace, including the system workspace.
	WorkspaceNames(ctx context.Context) ([]string, error)

	// WorkspaceCache returns the cache for a workspace, or ErrWorkspaceNotFound.
	WorkspaceCache(ctx context.Context, name string) (WorkspaceCache, error)

	// SystemWorkspaceName names the workspace holding repository metadata.
	SystemWorkspaceName() string

	// SystemWorkspaceKey is the NodeKey.Workspace value of nodes owned by
	// the system workspace.
	SystemWorkspaceKey() string

	// SystemKey is the key of the /jcr:system node.
	SystemKey() NodeKey
}

// Resolve walks path from the workspace root one segment at a time.
// It returns (nil, nil) as soon as a segment does not resolve.
func Resolve(ctx context.Context, cache WorkspaceCache, path Path) (*Node, error) {
	node, err := cache.Node(ctx, cache.RootKey())
	if err != nil || node == nil {
		return nil, err
	}
	for _, seg := range path {
		ref, ok := node.ChildAt(seg)
		if !ok {
			return nil, nil
		}
		node, err = cache.Node(ctx, ref.Key)
		if err != nil || node == nil {
			return nil, err
		}
	}
	return node, nil
}
