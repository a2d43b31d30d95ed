package queryir

import (
	"slices"
	"sort"
)

// PropertyType is the declared type of a property.
type PropertyType string

const (
	TypeString    PropertyType = "STRING"
	TypeLong      PropertyType = "LONG"
	TypeBoolean   PropertyType = "BOOLEAN"
	TypeName      PropertyType = "NAME"
	TypePath      PropertyType = "PATH"
	TypeReference PropertyType = "REFERENCE"
)

// DefaultType is the column type used when a property has no declared type.
const DefaultType = TypeString

// NodeType describes one node type: its supertypes and declared properties.
// Residual types accept undeclared properties.
type NodeType struct {
	Name       string
	Supertypes []string
	Properties map[string]PropertyType
	Mixin      bool
	Residual   bool
}

// Schemata is the node-type system used to validate queries, expand
// "all columns" projections, and compute the type closure stored with each
// index document.
//
// A Schemata is immutable once built and safe for concurrent use.
type Schemata struct {
	types map[string]NodeType
}

// BaseTypeName is the implicit supertype of every node type.
const BaseTypeName = "nt:base"

// NewSchemata builds a type system. nt:base is always present.
func NewSchemata(types ...NodeType) *Schemata {
	s := &Schemata{types: map[string]NodeType{
		BaseTypeName: {
			Name: BaseTypeName,
			Properties: map[string]PropertyType{
				"jcr:primaryType": TypeName,
				"jcr:mixinTypes":  TypeName,
			},
		},
	}}
	for _, t := range types {
		s.types[t.Name] = t
	}
	return s
}

// DefaultSchemata returns the built-in types every repository starts with.
func DefaultSchemata() *Schemata {
	return NewSchemata(
		NodeType{Name: "nt:unstructured", Supertypes: []string{BaseTypeName}, Residual: true},
		NodeType{Name: "nt:folder", Supertypes: []string{"nt:hierarchyNode"}},
		NodeType{Name: "nt:hierarchyNode", Supertypes: []string{BaseTypeName},
			Properties: map[string]PropertyType{"jcr:created": TypeLong}},
		NodeType{Name: "nt:file", Supertypes: []string{"nt:hierarchyNode"}},
		NodeType{Name: "mix:title", Mixin: true,
			Properties: map[string]PropertyType{"jcr:title": TypeString, "jcr:description": TypeString}},
		NodeType{Name: "mix:referenceable", Mixin: true,
			Properties: map[string]PropertyType{"jcr:uuid": TypeString}},
		NodeType{Name: "mode:root", Supertypes: []string{BaseTypeName}, Residual: true},
		NodeType{Name: "mode:system", Supertypes: []string{BaseTypeName}, Residual: true},
	)
}

// With returns a copy of s extended (or overridden) by types.
func (s *Schemata) With(types ...NodeType) *Schemata {
	out := &Schemata{types: make(map[string]NodeType, len(s.types)+len(types))}
	for k, v := range s.types {
		out.types[k] = v
	}
	for _, t := range types {
		out.types[t.Name] = t
	}
	return out
}

// NodeType returns the named type.
func (s *Schemata) NodeType(name string) (NodeType, bool) {
	t, ok := s.types[name]
	return t, ok
}

// Has reports whether the type is known.
func (s *Schemata) Has(name string) bool {
	_, ok := s.types[name]
	return ok
}

// Supertypes returns the transitive supertype closure of name, including
// name itself and nt:base. Unknown types yield just themselves and nt:base.
func (s *Schemata) Supertypes(name string) []string {
	seen := map[string]bool{}
	var visit func(string)
	visit = func(n string) {
		if seen[n] {
			return
		}
		seen[n] = true
		if t, ok := s.types[n]; ok {
			for _, sup := range t.Supertypes {
				visit(sup)
			}
		}
	}
	visit(name)
	seen[BaseTypeName] = true

	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// IsA reports whether typeName is super or one of its subtypes.
func (s *Schemata) IsA(typeName, super string) bool {
	return slices.Contains(s.Supertypes(typeName), super)
}

// PropertyType returns the declared type of a property on typeName or any
// supertype. Residual or unknown declarations report DefaultType, false.
func (s *Schemata) PropertyType(typeName, property string) (PropertyType, bool) {
	for _, n := range s.Supertypes(typeName) {
		if t, ok := s.types[n]; ok {
			if pt, ok := t.Properties[property]; ok {
				return pt, true
			}
		}
	}
	return DefaultType, false
}

// PropertyNames returns the sorted declared property names of typeName,
// including inherited ones.
func (s *Schemata) PropertyNames(typeName string) []string {
	set := map[string]bool{}
	for _, n := range s.Supertypes(typeName) {
		if t, ok := s.types[n]; ok {
			for p := range t.Properties {
				set[p] = true
			}
		}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// TypeNames returns every known type name, sorted.
func (s *Schemata) TypeNames() []string {
	out := make([]string, 0, len(s.types))
	for n := range s.types {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
