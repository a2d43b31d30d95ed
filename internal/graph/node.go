package graph

import (
	"maps"
	"slices"

	"github.com/roach88/arbor/internal/ir"
)

// ChildReference points from a parent to one of its children.
type ChildReference struct {
	Name  Name
	Index int // 1-based same-name-sibling index
	Key   NodeKey
}

// Segment returns the path segment this reference contributes.
func (r ChildReference) Segment() Segment {
	idx := r.Index
	if idx < 1 {
		idx = 1
	}
	return Segment{Name: r.Name, Index: idx}
}

// Node is a snapshot of one content node as seen by the crawler and the
// query engine. Caches return copies; mutating a returned Node does not
// change the cache.
type Node struct {
	Key         NodeKey
	Parent      NodeKey // zero for a workspace root
	Segment     Segment // name within the parent; zero for a workspace root
	PrimaryType Name
	Mixins      []Name
	Properties  map[Name]ir.Value
	Children    []ChildReference
}

// IsRoot reports whether the node is a workspace root.
func (n *Node) IsRoot() bool {
	return n.Parent.IsZero()
}

// Queryable reports whether the node may be submitted to the index.
// A node is not queryable when its primary type or any mixin is
// mode:nonQueryable, or when it carries mode:queryable=false.
func (n *Node) Queryable() bool {
	if n.PrimaryType == NonQueryableType || slices.Contains(n.Mixins, NonQueryableType) {
		return false
	}
	if v, ok := n.Properties[QueryableProperty]; ok {
		if b, isBool := v.(ir.Bool); isBool && !bool(b) {
			return false
		}
	}
	return true
}

// Child returns the first child reference with the given name.
func (n *Node) Child(name Name) (ChildReference, bool) {
	return n.ChildAt(Segment{Name: name, Index: 1})
}

// ChildAt returns the child reference matching the segment's name and
// same-name-sibling index.
func (n *Node) ChildAt(seg Segment) (ChildReference, bool) {
	want := seg.Index
	if want < 1 {
		want = 1
	}
	for _, ref := range n.Children {
		if ref.Name == seg.Name && ref.Segment().Index == want {
			return ref, true
		}
	}
	return ChildReference{}, false
}

// PropertyObject returns the property bag keyed by plain strings, the
// shape index backends store.
func (n *Node) PropertyObject() ir.Object {
	obj := make(ir.Object, len(n.Properties))
	for k, v := range n.Properties {
		obj[string(k)] = v
	}
	return obj
}

// Clone returns a deep copy of the node's slices and maps.
func (n *Node) Clone() *Node {
	c := *n
	c.Mixins = slices.Clone(n.Mixins)
	c.Properties = maps.Clone(n.Properties)
	c.Children = slices.Clone(n.Children)
	return &c
}
