package engine

import (
	"fmt"

	"github.com/roach88/arbor/internal/graph"
	"github.com/roach88/arbor/internal/index"
	"github.com/roach88/arbor/internal/ir"
	"github.com/roach88/arbor/internal/queryir"
)

// Pseudo-properties answered from the document instead of its property bag.
const (
	primaryTypeProperty = "jcr:primaryType"
	mixinTypesProperty  = "jcr:mixinTypes"
)

// operandValue evaluates a dynamic operand against a tuple. The boolean is
// false when the selector is unbound (outer join) or the property is absent.
func operandValue(op queryir.DynamicOperand, t tuple) (ir.Value, bool) {
	doc := t.docs[queryir.OperandSelector(op)]
	if doc == nil {
		return nil, false
	}

	switch o := op.(type) {
	case queryir.PropertyValue:
		return propertyValue(doc, o.Property)
	case *queryir.PropertyValue:
		return propertyValue(doc, o.Property)
	case queryir.NodeName, *queryir.NodeName:
		return ir.String(doc.Path.Last().Name), true
	case queryir.NodePath, *queryir.NodePath:
		return ir.String(doc.Path.String()), true
	case queryir.NodeDepth, *queryir.NodeDepth:
		return ir.Int(doc.Path.Len()), true
	}
	return nil, false
}

func propertyValue(doc *index.Document, name string) (ir.Value, bool) {
	switch name {
	case primaryTypeProperty:
		return ir.String(doc.PrimaryType), true
	case mixinTypesProperty:
		if len(doc.Mixins) == 0 {
			return nil, false
		}
		list := make(ir.List, len(doc.Mixins))
		for i, m := range doc.Mixins {
			list[i] = ir.String(m)
		}
		return list, true
	}
	v, ok := doc.Properties[name]
	if !ok {
		return nil, false
	}
	if _, isNull := v.(ir.Null); isNull {
		return nil, false
	}
	return v, true
}

// holds evaluates a constraint against a tuple.
func (x *executor) holds(c queryir.Constraint, t tuple) (bool, error) {
	switch con := c.(type) {
	case nil:
		return true, nil
	case queryir.And:
		ok, err := x.holds(con.Left, t)
		if err != nil || !ok {
			return false, err
		}
		return x.holds(con.Right, t)
	case *queryir.And:
		return x.holds(*con, t)
	case queryir.Or:
		ok, err := x.holds(con.Left, t)
		if err != nil || ok {
			return ok, err
		}
		return x.holds(con.Right, t)
	case *queryir.Or:
		return x.holds(*con, t)
	case queryir.Not:
		ok, err := x.holds(con.Constraint, t)
		return !ok, err
	case *queryir.Not:
		return x.holds(*con, t)
	case queryir.Comparison:
		return x.compares(con, t)
	case *queryir.Comparison:
		return x.compares(*con, t)
	case queryir.Between:
		return x.between(con, t)
	case *queryir.Between:
		return x.between(*con, t)
	case queryir.PropertyExistence:
		_, ok := operandValue(queryir.PropertyValue{Selector: con.Selector, Property: con.Property}, t)
		return ok, nil
	case *queryir.PropertyExistence:
		return x.holds(*con, t)
	case queryir.ChildNode:
		doc := t.docs[con.Selector]
		if doc == nil || doc.Path.IsRoot() {
			return false, nil
		}
		parent, err := graph.ParsePath(con.ParentPath)
		if err != nil {
			return false, fmt.Errorf("ISCHILDNODE(%s): %w", con.Selector, err)
		}
		return doc.Path.Parent().Equal(parent), nil
	case *queryir.ChildNode:
		return x.holds(*con, t)
	case queryir.DescendantNode:
		doc := t.docs[con.Selector]
		if doc == nil {
			return false, nil
		}
		ancestor, err := graph.ParsePath(con.AncestorPath)
		if err != nil {
			return false, fmt.Errorf("ISDESCENDANTNODE(%s): %w", con.Selector, err)
		}
		return ancestor.IsAncestorOf(doc.Path), nil
	case *queryir.DescendantNode:
		return x.holds(*con, t)
	default:
		return false, fmt.Errorf("cannot evaluate constraint %T", c)
	}
}

// compares evaluates a comparison. A multi-valued property satisfies the
// comparison when any of its values does.
func (x *executor) compares(c queryir.Comparison, t tuple) (bool, error) {
	lhs, ok := operandValue(c.Operand, t)
	if !ok {
		return false, nil
	}
	rhs, err := queryir.ResolveStatic(c.Value, x.qc.Variables)
	if err != nil {
		return false, err
	}

	if c.Operator == queryir.OpLike {
		pattern, ok := ir.AsString(rhs)
		if !ok {
			return false, nil
		}
		return anyValue(lhs, func(v ir.Value) bool {
			s, ok := ir.AsString(v)
			return ok && like(s, pattern)
		}), nil
	}

	return anyValue(lhs, func(v ir.Value) bool {
		cmp, ok := ir.Compare(v, rhs)
		if !ok {
			return false
		}
		return satisfies(c.Operator, cmp)
	}), nil
}

func (x *executor) between(b queryir.Between, t tuple) (bool, error) {
	v, ok := operandValue(b.Operand, t)
	if !ok {
		return false, nil
	}
	lower, err := queryir.ResolveStatic(b.Lower, x.qc.Variables)
	if err != nil {
		return false, err
	}
	upper, err := queryir.ResolveStatic(b.Upper, x.qc.Variables)
	if err != nil {
		return false, err
	}

	lowerOp, upperOp := queryir.OpGreaterThan, queryir.OpLessThan
	if b.LowerInclusive {
		lowerOp = queryir.OpGreaterOrEqual
	}
	if b.UpperInclusive {
		upperOp = queryir.OpLessOrEqual
	}
	return anyValue(v, func(elem ir.Value) bool {
		lo, ok := ir.Compare(elem, lower)
		if !ok || !satisfies(lowerOp, lo) {
			return false
		}
		hi, ok := ir.Compare(elem, upper)
		return ok && satisfies(upperOp, hi)
	}), nil
}

func anyValue(v ir.Value, pred func(ir.Value) bool) bool {
	if list, ok := v.(ir.List); ok {
		for _, elem := range list {
			if pred(elem) {
				return true
			}
		}
		return false
	}
	return pred(v)
}

func satisfies(op queryir.Operator, cmp int) bool {
	switch op {
	case queryir.OpEqual:
		return cmp == 0
	case queryir.OpNotEqual:
		return cmp != 0
	case queryir.OpLessThan:
		return cmp < 0
	case queryir.OpLessOrEqual:
		return cmp <= 0
	case queryir.OpGreaterThan:
		return cmp > 0
	case queryir.OpGreaterOrEqual:
		return cmp >= 0
	}
	return false
}

// like matches s against a LIKE pattern: % is any run of characters, _ is
// exactly one, and a backslash escapes the next pattern character.
func like(s, pattern string) bool {
	str, pat := []rune(s), []rune(pattern)
	si, pi := 0, 0
	star, mark := -1, 0

	for si < len(str) {
		if pi < len(pat) {
			switch p := pat[pi]; {
			case p == '%':
				star, mark = pi, si
				pi++
				continue
			case p == '_':
				si++
				pi++
				continue
			case p == '\\' && pi+1 < len(pat):
				if pat[pi+1] == str[si] {
					si++
					pi += 2
					continue
				}
			case p == str[si]:
				si++
				pi++
				continue
			}
		}
		if star < 0 {
			return false
		}
		mark++
		si = mark
		pi = star + 1
	}
	for pi < len(pat) && pat[pi] == '%' {
		pi++
	}
	return pi == len(pat)
}

// joins evaluates a join condition against a merged tuple.
func (x *executor) joins(jc queryir.JoinCondition, t tuple) (bool, error) {
	switch c := jc.(type) {
	case queryir.EquiJoinCondition:
		v1, ok1 := operandValue(queryir.PropertyValue{Selector: c.Selector1, Property: c.Property1}, t)
		v2, ok2 := operandValue(queryir.PropertyValue{Selector: c.Selector2, Property: c.Property2}, t)
		if !ok1 || !ok2 {
			return false, nil
		}
		return anyValue(v1, func(a ir.Value) bool {
			return anyValue(v2, func(b ir.Value) bool {
				cmp, ok := ir.Compare(a, b)
				return ok && cmp == 0
			})
		}), nil
	case *queryir.EquiJoinCondition:
		return x.joins(*c, t)
	case queryir.SameNodeJoinCondition:
		d1, d2 := t.docs[c.Selector1], t.docs[c.Selector2]
		if d1 == nil || d2 == nil {
			return false, nil
		}
		if c.Path == "" {
			return d1.Key == d2.Key, nil
		}
		target, err := d1.Path.Resolve(c.Path)
		if err != nil {
			return false, nil
		}
		return x.sameTree(d1, d2) && d2.Path.Equal(target), nil
	case *queryir.SameNodeJoinCondition:
		return x.joins(*c, t)
	case queryir.ChildNodeJoinCondition:
		parent, child := t.docs[c.ParentSelector], t.docs[c.ChildSelector]
		if parent == nil || child == nil || child.Path.IsRoot() {
			return false, nil
		}
		return x.sameTree(parent, child) && child.Path.Parent().Equal(parent.Path), nil
	case *queryir.ChildNodeJoinCondition:
		return x.joins(*c, t)
	case queryir.DescendantNodeJoinCondition:
		ancestor, desc := t.docs[c.AncestorSelector], t.docs[c.DescendantSelector]
		if ancestor == nil || desc == nil {
			return false, nil
		}
		return x.sameTree(ancestor, desc) && ancestor.Path.IsAncestorOf(desc.Path), nil
	case *queryir.DescendantNodeJoinCondition:
		return x.joins(*c, t)
	default:
		return false, fmt.Errorf("cannot evaluate join condition %T", jc)
	}
}

// sameTree reports whether two documents live in one workspace tree. The
// system subtree is part of every workspace's tree.
func (x *executor) sameTree(a, b *index.Document) bool {
	return a.Workspace == b.Workspace || (x.system != "" && (a.Workspace == x.system || b.Workspace == x.system))
}
