package graph

import (
	"fmt"
	"strings"
)

// NodeKey is the stable identity of a content node.
//
// Workspace holds the key of the workspace that owns the node. Arbor uses
// the workspace name as its key, so a node reachable from one workspace's
// tree but owned by the system workspace (the /jcr:system subtree) carries
// the system workspace's name here.
type NodeKey struct {
	Source     string
	Workspace  string
	Identifier string
}

// String renders the key as source:workspace:identifier.
func (k NodeKey) String() string {
	return k.Source + ":" + k.Workspace + ":" + k.Identifier
}

// IsZero reports whether the key is unset.
func (k NodeKey) IsZero() bool {
	return k == NodeKey{}
}

// WithIdentifier returns a key in the same source and workspace.
func (k NodeKey) WithIdentifier(id string) NodeKey {
	return NodeKey{Source: k.Source, Workspace: k.Workspace, Identifier: id}
}

// ParseNodeKey parses the form produced by NodeKey.String.
// The identifier may itself contain colons.
func ParseNodeKey(s string) (NodeKey, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return NodeKey{}, fmt.Errorf("invalid node key %q: want source:workspace:identifier", s)
	}
	return NodeKey{Source: parts[0], Workspace: parts[1], Identifier: parts[2]}, nil
}
