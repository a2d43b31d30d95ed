package graph

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/arbor/internal/ir"
)

// DefaultSystemWorkspace is the system workspace name used when none is configured.
const DefaultSystemWorkspace = "system"

// Node types assigned to the nodes every repository starts with.
const (
	RootType   Name = "mode:root"
	SystemType Name = "mode:system"
)

// MemoryRepository is an in-memory RepositoryCache. It backs tests and
// the memory index backend.
//
// Every workspace root, including the system workspace's, carries a
// jcr:system child reference that points at the single /jcr:system node
// owned by the system workspace.
//
// MemoryRepository is safe for concurrent use. Readers receive copies.
type MemoryRepository struct {
	mu              sync.RWMutex
	source          string
	systemWorkspace string
	nodes           map[NodeKey]*Node
	roots           map[string]NodeKey
	workspaces      []string
	nextID          int
}

// NewMemoryRepository creates a repository containing only the system
// workspace and its /jcr:system node.
func NewMemoryRepository(source, systemWorkspace string) *MemoryRepository {
	if systemWorkspace == "" {
		systemWorkspace = DefaultSystemWorkspace
	}
	r := &MemoryRepository{
		source:          source,
		systemWorkspace: systemWorkspace,
		nodes:           make(map[NodeKey]*Node),
		roots:           make(map[string]NodeKey),
	}

	sysRoot := r.createRoot(systemWorkspace)
	sysKey := r.SystemKey()
	r.nodes[sysKey] = &Node{
		Key:         sysKey,
		Parent:      sysRoot,
		Segment:     Segment{Name: SystemName, Index: 1},
		PrimaryType: SystemType,
		Properties:  map[Name]ir.Value{},
	}
	r.linkSystem(sysRoot)
	return r
}

// CreateWorkspace adds a workspace with an empty root (plus the jcr:system
// reference) and returns the root key. Creating an existing workspace
// returns its current root key.
func (r *MemoryRepository) CreateWorkspace(name string) NodeKey {
	r.mu.Lock()
	defer r.mu.Unlock()

	if key, ok := r.roots[name]; ok {
		return key
	}
	root := r.createRoot(name)
	r.linkSystem(root)
	return root
}

func (r *MemoryRepository) createRoot(workspace string) NodeKey {
	key := NodeKey{Source: r.source, Workspace: workspace, Identifier: "root"}
	r.nodes[key] = &Node{
		Key:         key,
		PrimaryType: RootType,
		Properties:  map[Name]ir.Value{},
	}
	r.roots[workspace] = key
	r.workspaces = append(r.workspaces, workspace)
	return key
}

func (r *MemoryRepository) linkSystem(root NodeKey) {
	node := r.nodes[root]
	node.Children = append(node.Children, ChildReference{Name: SystemName, Index: 1, Key: r.SystemKey()})
}

// AddNode creates a child of parent owned by the parent's workspace.
func (r *MemoryRepository) AddNode(parent NodeKey, name Name, primaryType Name, props map[Name]ir.Value, mixins ...Name) (NodeKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	key := parent.WithIdentifier(fmt.Sprintf("n%d", r.nextID))
	if err := r.insertLocked(parent, key, name, primaryType, props, mixins); err != nil {
		return NodeKey{}, err
	}
	return key, nil
}

// Put inserts a node with an explicit key beneath parent. Used when loading
// fixtures and store snapshots whose keys must be preserved.
func (r *MemoryRepository) Put(parent, key NodeKey, name Name, primaryType Name, props map[Name]ir.Value, mixins ...Name) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodes[key]; exists {
		return fmt.Errorf("node %s already exists", key)
	}
	return r.insertLocked(parent, key, name, primaryType, props, mixins)
}

func (r *MemoryRepository) insertLocked(parent, key NodeKey, name Name, primaryType Name, props map[Name]ir.Value, mixins []Name) error {
	p, ok := r.nodes[parent]
	if !ok {
		return fmt.Errorf("parent %s not found", parent)
	}

	index := 1
	for _, ref := range p.Children {
		if ref.Name == name {
			index++
		}
	}

	if props == nil {
		props = map[Name]ir.Value{}
	}
	r.nodes[key] = &Node{
		Key:         key,
		Parent:      parent,
		Segment:     Segment{Name: name, Index: index},
		PrimaryType: primaryType,
		Mixins:      slices.Clone(mixins),
		Properties:  props,
	}
	p.Children = append(p.Children, ChildReference{Name: name, Index: index, Key: key})
	return nil
}

// SetProperty sets (or with a nil value removes) a property.
func (r *MemoryRepository) SetProperty(key NodeKey, name Name, value ir.Value) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[key]
	if !ok {
		return fmt.Errorf("node %s not found", key)
	}
	if value == nil {
		delete(node.Properties, name)
		return nil
	}
	node.Properties[name] = value
	return nil
}

// Remove deletes a node and its subtree. The parent's child reference is
// kept when keepReference is true, leaving a dangling reference the way a
// concurrent removal observed mid-crawl would.
func (r *MemoryRepository) Remove(key NodeKey, keepReference bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[key]
	if !ok {
		return
	}
	if !keepReference {
		if parent, ok := r.nodes[node.Parent]; ok {
			parent.Children = slices.DeleteFunc(parent.Children, func(ref ChildReference) bool {
				return ref.Key == key
			})
		}
	}
	r.removeSubtree(key)
}

func (r *MemoryRepository) removeSubtree(key NodeKey) {
	node, ok := r.nodes[key]
	if !ok {
		return
	}
	delete(r.nodes, key)
	for _, ref := range node.Children {
		if ref.Key == r.SystemKey() {
			continue
		}
		r.removeSubtree(ref.Key)
	}
}

// Len returns the number of nodes across all workspaces.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// WorkspaceNames implements RepositoryCache.
func (r *MemoryRepository) WorkspaceNames(context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.workspaces), nil
}

// WorkspaceCache implements RepositoryCache.
func (r *MemoryRepository) WorkspaceCache(_ context.Context, name string) (WorkspaceCache, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	root, ok := r.roots[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkspaceNotFound, name)
	}
	return &memoryWorkspace{repo: r, name: name, root: root}, nil
}

// SystemWorkspaceName implements RepositoryCache.
func (r *MemoryRepository) SystemWorkspaceName() string {
	return r.systemWorkspace
}

// SystemWorkspaceKey implements RepositoryCache.
func (r *MemoryRepository) SystemWorkspaceKey() string {
	return r.systemWorkspace
}

// SystemKey implements RepositoryCache.
func (r *MemoryRepository) SystemKey() NodeKey {
	return NodeKey{Source: r.source, Workspace: r.systemWorkspace, Identifier: string(SystemName)}
}

func (r *MemoryRepository) node(key NodeKey) *Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n, ok := r.nodes[key]; ok {
		return n.Clone()
	}
	return nil
}

type memoryWorkspace struct {
	repo *MemoryRepository
	name string
	root NodeKey
}

func (w *memoryWorkspace) WorkspaceName() string { return w.name }

func (w *memoryWorkspace) RootKey() NodeKey { return w.root }

func (w *memoryWorkspace) Node(ctx context.Context, key NodeKey) (*Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Nodes of other regular workspaces are invisible; system nodes are shared.
	if key.Workspace != w.name && key.Workspace != w.repo.systemWorkspace {
		return nil, nil
	}
	return w.repo.node(key), nil
}
