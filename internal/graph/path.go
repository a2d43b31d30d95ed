package graph

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Name is a qualified node or property name such as "jcr:system" or "title".
// Names are NFC normalized on construction so that lookups by name agree
// with names decoded from fixtures and the store.
type Name string

// NewName returns the NFC normalized form of s.
func NewName(s string) Name {
	return Name(norm.NFC.String(s))
}

// Reserved names.
const (
	// SystemName is the name of the child of every workspace root that
	// exposes the system workspace's metadata subtree.
	SystemName Name = "jcr:system"

	// NonQueryableType marks nodes (via primary type or mixin) that are
	// never submitted to the index.
	NonQueryableType Name = "mode:nonQueryable"

	// QueryableProperty, when set to false on a node, excludes it from indexing.
	QueryableProperty Name = "mode:queryable"

	// BaseType is the supertype of every node type.
	BaseType Name = "nt:base"
)

// Segment is one step of a path: a name plus a 1-based same-name-sibling index.
type Segment struct {
	Name  Name
	Index int
}

// String renders the segment, omitting the index when it is 1.
func (s Segment) String() string {
	if s.Index <= 1 {
		return string(s.Name)
	}
	return string(s.Name) + "[" + strconv.Itoa(s.Index) + "]"
}

// Path is an absolute path from a workspace root. The root path is empty.
type Path []Segment

// RootPath is the path of every workspace root.
var RootPath = Path{}

// Len returns the number of segments.
func (p Path) Len() int {
	return len(p)
}

// IsRoot reports whether the path addresses the workspace root.
func (p Path) IsRoot() bool {
	return len(p) == 0
}

// Child returns a new path with seg appended. The receiver is not modified.
func (p Path) Child(seg Segment) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, seg)
}

// Last returns the final segment, or the zero segment for the root.
func (p Path) Last() Segment {
	if len(p) == 0 {
		return Segment{}
	}
	return p[len(p)-1]
}

// Parent returns the path without its last segment. The root is its own parent.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return p
	}
	return p[:len(p)-1]
}

// Equal reports whether both paths address the same node. A missing
// same-name-sibling index equals index 1.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i].String() != other[i].String() {
			return false
		}
	}
	return true
}

// IsAncestorOf reports whether p is a proper ancestor of other.
func (p Path) IsAncestorOf(other Path) bool {
	return len(p) < len(other) && p.Equal(other[:len(p)])
}

// Resolve applies a relative path such as "a/b", "../c" or "." to p.
func (p Path) Resolve(rel string) (Path, error) {
	out := make(Path, len(p))
	copy(out, p)
	for _, part := range strings.Split(rel, "/") {
		switch part {
		case "", ".":
		case "..":
			if len(out) == 0 {
				return nil, fmt.Errorf("relative path %q escapes the root", rel)
			}
			out = out[:len(out)-1]
		default:
			seg, err := parseSegment(part)
			if err != nil {
				return nil, fmt.Errorf("relative path %q: %w", rel, err)
			}
			out = append(out, seg)
		}
	}
	return out, nil
}

// String renders the path as /a/b[2]/c.
func (p Path) String() string {
	if len(p) == 0 {
		return "/"
	}
	var sb strings.Builder
	for _, seg := range p {
		sb.WriteByte('/')
		sb.WriteString(seg.String())
	}
	return sb.String()
}

// ParsePath parses an absolute path such as "/a/b[2]". "/" yields the root path.
func ParsePath(s string) (Path, error) {
	if !strings.HasPrefix(s, "/") {
		return nil, fmt.Errorf("path %q must be absolute", s)
	}
	trimmed := strings.Trim(s, "/")
	if trimmed == "" {
		return RootPath, nil
	}

	parts := strings.Split(trimmed, "/")
	path := make(Path, 0, len(parts))
	for _, part := range parts {
		seg, err := parseSegment(part)
		if err != nil {
			return nil, fmt.Errorf("path %q: %w", s, err)
		}
		path = append(path, seg)
	}
	return path, nil
}

func parseSegment(s string) (Segment, error) {
	if s == "" {
		return Segment{}, fmt.Errorf("empty segment")
	}
	open := strings.IndexByte(s, '[')
	if open < 0 {
		return Segment{Name: NewName(s), Index: 1}, nil
	}
	if !strings.HasSuffix(s, "]") || open == 0 {
		return Segment{}, fmt.Errorf("malformed segment %q", s)
	}
	idx, err := strconv.Atoi(s[open+1 : len(s)-1])
	if err != nil || idx < 1 {
		return Segment{}, fmt.Errorf("malformed same-name-sibling index in %q", s)
	}
	return Segment{Name: NewName(s[:open]), Index: idx}, nil
}
