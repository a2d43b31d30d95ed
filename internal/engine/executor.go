package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/arbor/internal/graph"
	"github.com/roach88/arbor/internal/index"
	"github.com/roach88/arbor/internal/ir"
	"github.com/roach88/arbor/internal/plan"
	"github.com/roach88/arbor/internal/queryir"
)

// tuple binds each selector to the document it currently ranges over.
// A nil document marks the null side of an outer join.
type tuple struct {
	docs   map[queryir.SelectorName]*index.Document
	values []ir.Value // set by the top PROJECT
}

func (t tuple) merge(other tuple) tuple {
	docs := make(map[queryir.SelectorName]*index.Document, len(t.docs)+len(other.docs))
	for k, v := range t.docs {
		docs[k] = v
	}
	for k, v := range other.docs {
		docs[k] = v
	}
	return tuple{docs: docs}
}

// relation is the output of one plan node.
type relation struct {
	columns []queryir.Column
	rows    []tuple
}

// executor evaluates one optimized plan bottom-up.
//
// Node semantics:
//   - SOURCE: index search for the node type, dropping documents whose node
//     no longer resolves in the graph snapshot
//   - ACCESS: passes its child through
//   - PROJECT under ACCESS: trims documents to the projected properties
//   - PROJECT elsewhere: defines the output columns
//   - SELECT: filters by its criterion
//   - JOIN: nested loop, or hashed for MERGE equi-joins
//   - DUP_REMOVE, SORT, LIMIT: as in SQL
//
// Trimming at the access projection means every property read above an
// ACCESS node must have been projected by the optimizer.
type executor struct {
	req     Request
	qc      *plan.Context
	arena   *plan.Arena
	indexes index.Indexing
	system  string
	caches  map[string]graph.WorkspaceCache
}

func newExecutor(req Request, qc *plan.Context, arena *plan.Arena, indexes index.Indexing) *executor {
	x := &executor{
		req:     req,
		qc:      qc,
		arena:   arena,
		indexes: indexes,
		caches:  make(map[string]graph.WorkspaceCache),
	}
	if req.Repository != nil {
		x.system = req.Repository.SystemWorkspaceName()
	}
	return x
}

func (x *executor) run(ctx context.Context, root plan.NodeID) (*Results, error) {
	rel, err := x.eval(ctx, root)
	if err != nil {
		return nil, err
	}

	results := &Results{Columns: rel.columns, Rows: make([]Row, 0, len(rel.rows))}
	for _, t := range rel.rows {
		row := Row{Values: t.values, Keys: make(map[queryir.SelectorName]graph.NodeKey, len(t.docs))}
		for sel, doc := range t.docs {
			if doc != nil {
				row.Keys[sel] = doc.Key
			}
		}
		results.Rows = append(results.Rows, row)
	}
	return results, nil
}

func (x *executor) eval(ctx context.Context, id plan.NodeID) (relation, error) {
	if err := ctx.Err(); err != nil {
		return relation{}, err
	}

	n := x.arena.Node(id)
	if n.Type == plan.TypeSource {
		return x.source(ctx, n)
	}
	if n.Type == plan.TypeJoin {
		return x.join(ctx, n)
	}

	child := x.arena.FirstChild(id)
	if child == plan.NoNode {
		return relation{}, fmt.Errorf("%s node %d has no input", n.Type, id)
	}
	in, err := x.eval(ctx, child)
	if err != nil {
		return relation{}, err
	}

	switch n.Type {
	case plan.TypeAccess:
		return in, nil
	case plan.TypeSelect:
		return x.filter(in, n.Criteria())
	case plan.TypeProject:
		if _, under := x.arena.Ancestor(id, plan.TypeAccess); under {
			return trim(in, n), nil
		}
		return x.project(in, n)
	case plan.TypeDupRemove:
		return dedupe(in), nil
	case plan.TypeSort:
		return x.sort(in, n.OrderBy())
	case plan.TypeLimit:
		return limit(in, n.IntProperty(plan.PropLimitCount), n.IntProperty(plan.PropLimitOffset)), nil
	default:
		return relation{}, fmt.Errorf("cannot execute %s node", n.Type)
	}
}

// source reads one selector from the index.
func (x *executor) source(ctx context.Context, n *plan.Node) (relation, error) {
	nodeType := n.StringProperty(plan.PropSourceName)
	alias := queryir.SelectorName(n.StringProperty(plan.PropSourceAlias))

	workspaces := slices.Clone(x.req.Workspaces)
	if x.system != "" && !slices.Contains(workspaces, x.system) {
		workspaces = append(workspaces, x.system)
	}
	docs, err := x.indexes.Search(ctx, workspaces, nodeType)
	if err != nil {
		return relation{}, fmt.Errorf("search %s: %w", nodeType, err)
	}

	rel := relation{rows: make([]tuple, 0, len(docs))}
	for i := range docs {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return relation{}, err
			}
		}
		live, err := x.exists(ctx, &docs[i])
		if err != nil {
			return relation{}, err
		}
		if !live {
			continue
		}
		rel.rows = append(rel.rows, tuple{docs: map[queryir.SelectorName]*index.Document{alias: &docs[i]}})
	}
	return rel, nil
}

// exists reports whether the document's node still resolves. Documents
// outlive their nodes until the next reindex.
func (x *executor) exists(ctx context.Context, doc *index.Document) (bool, error) {
	if x.req.Repository == nil {
		return true, nil
	}
	cache, ok := x.caches[doc.Workspace]
	if !ok {
		if override, found := x.req.Overrides[doc.Workspace]; found {
			cache = override
		} else {
			var err error
			cache, err = x.req.Repository.WorkspaceCache(ctx, doc.Workspace)
			if err != nil {
				return false, fmt.Errorf("workspace %q: %w", doc.Workspace, err)
			}
		}
		x.caches[doc.Workspace] = cache
	}
	node, err := cache.Node(ctx, doc.Key)
	if err != nil {
		return false, fmt.Errorf("resolve %s: %w", doc.Key, err)
	}
	return node != nil, nil
}

func (x *executor) filter(in relation, c queryir.Constraint) (relation, error) {
	out := relation{columns: in.columns}
	for _, t := range in.rows {
		ok, err := x.holds(c, t)
		if err != nil {
			return relation{}, err
		}
		if ok {
			out.rows = append(out.rows, t)
		}
	}
	return out, nil
}

// trim keeps only the projected properties of the documents of the
// node's selectors.
func trim(in relation, n *plan.Node) relation {
	cols, _ := n.ProjectColumns()
	keep := map[queryir.SelectorName]map[string]bool{}
	for _, c := range cols {
		if keep[c.Selector] == nil {
			keep[c.Selector] = map[string]bool{}
		}
		keep[c.Selector][c.Property] = true
	}

	out := relation{columns: in.columns, rows: make([]tuple, 0, len(in.rows))}
	for _, t := range in.rows {
		docs := make(map[queryir.SelectorName]*index.Document, len(t.docs))
		for sel, doc := range t.docs {
			props := keep[sel]
			if doc == nil || !n.Selectors.Contains(sel) {
				docs[sel] = doc
				continue
			}
			trimmed := *doc
			trimmed.Properties = make(ir.Object, len(props))
			for name := range props {
				if v, found := doc.Properties[name]; found {
					trimmed.Properties[name] = v
				}
			}
			docs[sel] = &trimmed
		}
		out.rows = append(out.rows, tuple{docs: docs, values: t.values})
	}
	return out
}

func (x *executor) project(in relation, n *plan.Node) (relation, error) {
	cols, _ := n.ProjectColumns()
	out := relation{columns: cols, rows: make([]tuple, 0, len(in.rows))}
	for _, t := range in.rows {
		values := make([]ir.Value, len(cols))
		for i, c := range cols {
			v, ok := operandValue(queryir.PropertyValue{Selector: c.Selector, Property: c.Property}, t)
			if !ok {
				v = ir.Null{}
			}
			values[i] = v
		}
		out.rows = append(out.rows, tuple{docs: t.docs, values: values})
	}
	return out, nil
}

// dedupe keeps the first row of every distinct value list.
func dedupe(in relation) relation {
	out := relation{columns: in.columns}
	seen := map[string]bool{}
	for _, t := range in.rows {
		parts := make([]string, len(t.values))
		for i, v := range t.values {
			parts[i] = ir.Format(v)
		}
		k := strings.Join(parts, "\x00")
		if seen[k] {
			continue
		}
		seen[k] = true
		out.rows = append(out.rows, t)
	}
	return out
}

// sort orders rows stably. Missing values sort before present ones.
func (x *executor) sort(in relation, orderings []queryir.Ordering) (relation, error) {
	rows := slices.Clone(in.rows)
	slices.SortStableFunc(rows, func(a, b tuple) int {
		for _, o := range orderings {
			c := compareOperands(o.Operand, a, b)
			if o.Order == queryir.Descending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
	return relation{columns: in.columns, rows: rows}, nil
}

func compareOperands(op queryir.DynamicOperand, a, b tuple) int {
	av, aok := operandValue(op, a)
	bv, bok := operandValue(op, b)
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return -1
	case !bok:
		return 1
	}
	if c, ok := ir.Compare(av, bv); ok {
		return c
	}
	return strings.Compare(ir.Format(av), ir.Format(bv))
}

func limit(in relation, count, offset int) relation {
	rows := in.rows
	if offset > 0 {
		if offset >= len(rows) {
			rows = nil
		} else {
			rows = rows[offset:]
		}
	}
	if count > 0 && count < len(rows) {
		rows = rows[:count]
	}
	return relation{columns: in.columns, rows: rows}
}

// join combines the two inputs of a JOIN node. RIGHT OUTER joins that
// reach the executor unrewritten preserve their right input.
func (x *executor) join(ctx context.Context, n *plan.Node) (relation, error) {
	if len(n.Children) != 2 {
		return relation{}, fmt.Errorf("join node has %d inputs", len(n.Children))
	}
	left, err := x.eval(ctx, n.Children[0])
	if err != nil {
		return relation{}, err
	}
	right, err := x.eval(ctx, n.Children[1])
	if err != nil {
		return relation{}, err
	}

	joinType := n.JoinType()
	inner := x.arena.Node(n.Children[1])
	if joinType == queryir.JoinRightOuter {
		left, right = right, left
		inner = x.arena.Node(n.Children[0])
	}
	outer := joinType == queryir.JoinLeftOuter || joinType == queryir.JoinRightOuter

	cond := n.JoinCondition()
	match := func(l tuple) ([]int, error) {
		return x.nestedLoopMatches(cond, l, right.rows)
	}
	if eq, ok := queryir.AsEquiJoin(cond); ok && n.StringProperty(plan.PropJoinAlgorithm) == string(plan.JoinMerge) {
		match = newHashMatcher(eq, inner.Selectors.Contains(eq.Selector2), right.rows)
	}

	var out relation
	for i, l := range left.rows {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return relation{}, err
			}
		}
		if joinType == queryir.JoinCross || cond == nil {
			for _, r := range right.rows {
				out.rows = append(out.rows, l.merge(r))
			}
			continue
		}

		idx, err := match(l)
		if err != nil {
			return relation{}, err
		}
		for _, j := range idx {
			out.rows = append(out.rows, l.merge(right.rows[j]))
		}
		if len(idx) == 0 && outer {
			nulls := tuple{docs: make(map[queryir.SelectorName]*index.Document)}
			for sel := range inner.Selectors.Iter() {
				nulls.docs[sel] = nil
			}
			out.rows = append(out.rows, l.merge(nulls))
		}
	}
	return out, nil
}

// nestedLoopMatches returns the indexes of the rows in right that satisfy
// cond together with l.
func (x *executor) nestedLoopMatches(cond queryir.JoinCondition, l tuple, right []tuple) ([]int, error) {
	var idx []int
	for j, r := range right {
		ok, err := x.joins(cond, l.merge(r))
		if err != nil {
			return nil, err
		}
		if ok {
			idx = append(idx, j)
		}
	}
	return idx, nil
}

// newHashMatcher indexes the inner rows by their join value once. Multi-
// valued properties are indexed under every element.
func newHashMatcher(eq queryir.EquiJoinCondition, secondIsInner bool, right []tuple) func(tuple) ([]int, error) {
	outerOp := queryir.PropertyValue{Selector: eq.Selector1, Property: eq.Property1}
	innerOp := queryir.PropertyValue{Selector: eq.Selector2, Property: eq.Property2}
	if !secondIsInner {
		outerOp, innerOp = innerOp, outerOp
	}

	table := map[string][]int{}
	for j, r := range right {
		v, ok := operandValue(innerOp, r)
		if !ok {
			continue
		}
		for _, k := range hashKeys(v) {
			if n := len(table[k]); n == 0 || table[k][n-1] != j {
				table[k] = append(table[k], j)
			}
		}
	}

	return func(l tuple) ([]int, error) {
		v, ok := operandValue(outerOp, l)
		if !ok {
			return nil, nil
		}
		keys := hashKeys(v)
		if len(keys) == 1 {
			return table[keys[0]], nil
		}
		var idx []int
		for _, k := range keys {
			idx = append(idx, table[k]...)
		}
		slices.Sort(idx)
		return slices.Compact(idx), nil
	}
}

func hashKeys(v ir.Value) []string {
	if list, ok := v.(ir.List); ok {
		keys := make([]string, 0, len(list))
		for _, elem := range list {
			keys = append(keys, ir.Format(elem))
		}
		return keys
	}
	return []string{ir.Format(v)}
}
