package plan

import (
	"fmt"
	"slices"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/roach88/arbor/internal/queryir"
)

// NodeID addresses a node in an Arena. IDs are stable for the lifetime of
// the arena: structural edits relink nodes but never renumber them.
type NodeID int

// NoNode is the parent of a root and the result of failed lookups.
const NoNode NodeID = -1

// Node is one plan node. Fields are managed by the Arena; rules read them
// directly and edit structure only through Arena methods.
type Node struct {
	Type      Type
	Parent    NodeID
	Children  []NodeID
	Selectors mapset.Set[queryir.SelectorName]
	props     map[Property]any
}

// Property returns a property value.
func (n *Node) Property(p Property) (any, bool) {
	v, ok := n.props[p]
	return v, ok
}

// HasProperty reports whether the property is set.
func (n *Node) HasProperty(p Property) bool {
	_, ok := n.props[p]
	return ok
}

// SetProperty sets a property value.
func (n *Node) SetProperty(p Property, v any) {
	n.props[p] = v
}

// RemoveProperty clears a property.
func (n *Node) RemoveProperty(p Property) {
	delete(n.props, p)
}

// JoinCondition returns JOIN_CONDITION, or nil.
func (n *Node) JoinCondition() queryir.JoinCondition {
	c, _ := n.props[PropJoinCondition].(queryir.JoinCondition)
	return c
}

// JoinType returns JOIN_TYPE.
func (n *Node) JoinType() queryir.JoinType {
	t, _ := n.props[PropJoinType].(queryir.JoinType)
	return t
}

// Criteria returns SELECT_CRITERIA, or nil.
func (n *Node) Criteria() queryir.Constraint {
	c, _ := n.props[PropSelectCriteria].(queryir.Constraint)
	return c
}

// ProjectColumns returns a copy of PROJECT_COLUMNS and whether it is set.
func (n *Node) ProjectColumns() ([]queryir.Column, bool) {
	cols, ok := n.props[PropProjectColumns].([]queryir.Column)
	return slices.Clone(cols), ok
}

// ProjectColumnTypes returns a copy of PROJECT_COLUMN_TYPES.
func (n *Node) ProjectColumnTypes() []queryir.PropertyType {
	types, _ := n.props[PropProjectColumnTypes].([]queryir.PropertyType)
	return slices.Clone(types)
}

// OrderBy returns SORT_ORDER_BY.
func (n *Node) OrderBy() []queryir.Ordering {
	o, _ := n.props[PropSortOrderBy].([]queryir.Ordering)
	return o
}

// IntProperty returns an integer property such as LIMIT_COUNT.
func (n *Node) IntProperty(p Property) int {
	v, _ := n.props[p].(int)
	return v
}

// StringProperty returns a string-like property such as SOURCE_NAME.
func (n *Node) StringProperty(p Property) string {
	switch v := n.props[p].(type) {
	case string:
		return v
	case queryir.SelectorName:
		return string(v)
	case JoinAlgorithm:
		return string(v)
	case fmt.Stringer:
		return v.String()
	}
	return ""
}

// SortedSelectors returns the selector set in sorted order.
func (n *Node) SortedSelectors() []queryir.SelectorName {
	out := n.Selectors.ToSlice()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Arena owns every node of one plan.
//
// Invariant: a node's selector set is the union of its children's selector
// sets, except SOURCE nodes whose set is the singleton of their alias. Every
// structural edit recomputes the sets from the edited node up to the root.
type Arena struct {
	nodes []*Node
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{}
}

// New allocates a detached node.
func (a *Arena) New(t Type) NodeID {
	id := NodeID(len(a.nodes))
	a.nodes = append(a.nodes, &Node{
		Type:      t,
		Parent:    NoNode,
		Selectors: mapset.NewThreadUnsafeSet[queryir.SelectorName](),
		props:     make(map[Property]any),
	})
	return id
}

// NewSource allocates a detached SOURCE node for a selector.
func (a *Arena) NewSource(sel queryir.Selector) NodeID {
	id := a.New(TypeSource)
	n := a.nodes[id]
	n.SetProperty(PropSourceName, sel.NodeType)
	n.SetProperty(PropSourceAlias, sel.Name())
	n.Selectors.Add(sel.Name())
	return id
}

// Node returns the node for id. It panics on an id the arena did not issue.
func (a *Arena) Node(id NodeID) *Node {
	return a.nodes[id]
}

// Len returns the number of allocated nodes, attached or not.
func (a *Arena) Len() int {
	return len(a.nodes)
}

// AddChild appends child to parent's children.
func (a *Arena) AddChild(parent, child NodeID) {
	a.detach(child)
	a.nodes[parent].Children = append(a.nodes[parent].Children, child)
	a.nodes[child].Parent = parent
	a.recompute(parent)
}

// InsertAbove puts node in target's place and makes target node's last
// child. node must be detached. If target was a root, node is the new root.
func (a *Arena) InsertAbove(node, target NodeID) {
	parent := a.nodes[target].Parent
	if parent != NoNode {
		a.replaceInParent(parent, target, node)
	}
	a.nodes[node].Parent = parent
	a.nodes[node].Children = append(a.nodes[node].Children, target)
	a.nodes[target].Parent = node
	a.recompute(node)
}

// Extract removes a node with at most one child, splicing the child into
// its place. It returns the node now occupying the position (the child, or
// NoNode when there was none) so callers can update a root.
func (a *Arena) Extract(id NodeID) (NodeID, error) {
	n := a.nodes[id]
	if len(n.Children) > 1 {
		return NoNode, fmt.Errorf("cannot extract %s node %d with %d children", n.Type, id, len(n.Children))
	}

	replacement := NoNode
	if len(n.Children) == 1 {
		replacement = n.Children[0]
	}
	parent := n.Parent

	if parent != NoNode {
		if replacement != NoNode {
			a.replaceInParent(parent, id, replacement)
		} else {
			a.removeFromParent(parent, id)
		}
	}
	if replacement != NoNode {
		a.nodes[replacement].Parent = parent
	}

	n.Parent = NoNode
	n.Children = nil
	a.recompute(id)
	if parent != NoNode {
		a.recompute(parent)
	}
	return replacement, nil
}

// ReplaceChild swaps oldChild for newChild under parent. oldChild is
// detached; newChild is detached from its previous parent first.
func (a *Arena) ReplaceChild(parent, oldChild, newChild NodeID) {
	a.detach(newChild)
	a.replaceInParent(parent, oldChild, newChild)
	a.nodes[newChild].Parent = parent
	a.nodes[oldChild].Parent = NoNode
	a.recompute(parent)
}

// SwapWithChild exchanges a single-child node with that child: the child
// takes the node's place and the node adopts the child's children. It
// returns the child's id, which is the new root when id was a root.
func (a *Arena) SwapWithChild(id NodeID) (NodeID, error) {
	n := a.nodes[id]
	if len(n.Children) != 1 {
		return NoNode, fmt.Errorf("cannot swap %s node %d with %d children", n.Type, id, len(n.Children))
	}
	childID := n.Children[0]
	child := a.nodes[childID]
	parent := n.Parent

	if parent != NoNode {
		a.replaceInParent(parent, id, childID)
	}
	child.Parent = parent

	grandchildren := child.Children
	child.Children = []NodeID{id}
	n.Parent = childID
	n.Children = grandchildren
	for _, gc := range grandchildren {
		a.nodes[gc].Parent = id
	}

	a.recompute(id)
	return childID, nil
}

// SwapChildren reverses the order of a two-child node's children.
func (a *Arena) SwapChildren(id NodeID) {
	n := a.nodes[id]
	if len(n.Children) == 2 {
		n.Children[0], n.Children[1] = n.Children[1], n.Children[0]
	}
}

func (a *Arena) detach(id NodeID) {
	parent := a.nodes[id].Parent
	if parent == NoNode {
		return
	}
	a.removeFromParent(parent, id)
	a.nodes[id].Parent = NoNode
	a.recompute(parent)
}

func (a *Arena) replaceInParent(parent, oldChild, newChild NodeID) {
	children := a.nodes[parent].Children
	for i, c := range children {
		if c == oldChild {
			children[i] = newChild
			return
		}
	}
}

func (a *Arena) removeFromParent(parent, child NodeID) {
	a.nodes[parent].Children = slices.DeleteFunc(a.nodes[parent].Children, func(c NodeID) bool {
		return c == child
	})
}

// recompute restores the selector invariant from id up to the root.
func (a *Arena) recompute(id NodeID) {
	for id != NoNode {
		n := a.nodes[id]
		if n.Type != TypeSource {
			sels := mapset.NewThreadUnsafeSet[queryir.SelectorName]()
			for _, c := range n.Children {
				sels = sels.Union(a.nodes[c].Selectors)
			}
			n.Selectors = sels
		}
		id = n.Parent
	}
}

// Walk visits root and its descendants in pre-order. Returning false from
// fn skips the node's children.
func (a *Arena) Walk(root NodeID, fn func(NodeID) bool) {
	if root == NoNode {
		return
	}
	if !fn(root) {
		return
	}
	for _, c := range slices.Clone(a.nodes[root].Children) {
		a.Walk(c, fn)
	}
}

// FindAll returns the nodes at or below root of any of the given types,
// in pre-order.
func (a *Arena) FindAll(root NodeID, types ...Type) []NodeID {
	var out []NodeID
	a.Walk(root, func(id NodeID) bool {
		if slices.Contains(types, a.nodes[id].Type) {
			out = append(out, id)
		}
		return true
	})
	return out
}

// FindFirst returns the first node of type t at or below root in pre-order.
func (a *Arena) FindFirst(root NodeID, t Type) (NodeID, bool) {
	found := NoNode
	a.Walk(root, func(id NodeID) bool {
		if found != NoNode {
			return false
		}
		if a.nodes[id].Type == t {
			found = id
			return false
		}
		return true
	})
	return found, found != NoNode
}

// Ancestor returns the nearest ancestor of id with type t.
func (a *Arena) Ancestor(id NodeID, t Type) (NodeID, bool) {
	for p := a.nodes[id].Parent; p != NoNode; p = a.nodes[p].Parent {
		if a.nodes[p].Type == t {
			return p, true
		}
	}
	return NoNode, false
}

// IsAncestor reports whether ancestor is a proper ancestor of id.
func (a *Arena) IsAncestor(ancestor, id NodeID) bool {
	for p := a.nodes[id].Parent; p != NoNode; p = a.nodes[p].Parent {
		if p == ancestor {
			return true
		}
	}
	return false
}

// FirstChild returns the node's first child, or NoNode.
func (a *Arena) FirstChild(id NodeID) NodeID {
	if c := a.nodes[id].Children; len(c) > 0 {
		return c[0]
	}
	return NoNode
}
