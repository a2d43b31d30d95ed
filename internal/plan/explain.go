package plan

import (
	"fmt"
	"strings"

	"github.com/roach88/arbor/internal/queryir"
)

// Explain renders the plan rooted at root, one node per line, children
// indented two spaces below their parent:
//
//	PROJECT [p] <PROJECT_COLUMNS=[p.title], PROJECT_COLUMN_TYPES=[STRING]>
//	  ACCESS [p]
//	    SOURCE [p] <SOURCE_NAME=blog:post, SOURCE_ALIAS=p>
//
// The output is deterministic and used by golden tests.
func Explain(arena *Arena, root NodeID) string {
	var b strings.Builder
	explainNode(&b, arena, root, 0)
	return b.String()
}

func explainNode(b *strings.Builder, arena *Arena, id NodeID, depth int) {
	if id == NoNode {
		return
	}
	n := arena.Node(id)

	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(n.Type.String())

	sels := n.SortedSelectors()
	names := make([]string, len(sels))
	for i, s := range sels {
		names[i] = string(s)
	}
	b.WriteString(" [" + strings.Join(names, ", ") + "]")

	var props []string
	for p := Property(0); p < numProperties; p++ {
		v, ok := n.props[p]
		if !ok {
			continue
		}
		props = append(props, p.String()+"="+formatProperty(v))
	}
	if len(props) > 0 {
		b.WriteString(" <" + strings.Join(props, ", ") + ">")
	}
	b.WriteByte('\n')

	for _, c := range n.Children {
		explainNode(b, arena, c, depth+1)
	}
}

func formatProperty(v any) string {
	switch val := v.(type) {
	case queryir.JoinCondition:
		return queryir.FormatJoinCondition(val)
	case queryir.Constraint:
		return queryir.FormatConstraint(val)
	case []queryir.Ordering:
		return queryir.FormatOrderings(val)
	case []queryir.Column:
		parts := make([]string, len(val))
		for i, c := range val {
			parts[i] = c.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []queryir.PropertyType:
		parts := make([]string, len(val))
		for i, t := range val {
			parts[i] = string(t)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprint(v)
	}
}
