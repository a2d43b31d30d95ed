package queryir

import (
	"fmt"
	"strings"

	"github.com/roach88/arbor/internal/ir"
)

// Selectors returns the selectors of a source in left-to-right order.
func Selectors(src Source) []Selector {
	switch s := src.(type) {
	case Selector:
		return []Selector{s}
	case *Selector:
		return []Selector{*s}
	case Join:
		return append(Selectors(s.Left), Selectors(s.Right)...)
	case *Join:
		return append(Selectors(s.Left), Selectors(s.Right)...)
	default:
		return nil
	}
}

// SplitAnd flattens nested And constraints into their conjuncts.
func SplitAnd(c Constraint) []Constraint {
	switch con := c.(type) {
	case nil:
		return nil
	case And:
		return append(SplitAnd(con.Left), SplitAnd(con.Right)...)
	case *And:
		return append(SplitAnd(con.Left), SplitAnd(con.Right)...)
	default:
		return []Constraint{c}
	}
}

// OperandSelector returns the selector a dynamic operand reads from.
func OperandSelector(op DynamicOperand) SelectorName {
	switch o := op.(type) {
	case PropertyValue:
		return o.Selector
	case *PropertyValue:
		return o.Selector
	case NodeName:
		return o.Selector
	case *NodeName:
		return o.Selector
	case NodePath:
		return o.Selector
	case *NodePath:
		return o.Selector
	case NodeDepth:
		return o.Selector
	case *NodeDepth:
		return o.Selector
	default:
		return ""
	}
}

// ConstraintSelectors returns the distinct selectors a constraint references,
// in first-seen order.
func ConstraintSelectors(c Constraint) []SelectorName {
	var out []SelectorName
	seen := map[SelectorName]bool{}
	add := func(s SelectorName) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	var walk func(Constraint)
	walk = func(c Constraint) {
		switch con := c.(type) {
		case And:
			walk(con.Left)
			walk(con.Right)
		case *And:
			walk(con.Left)
			walk(con.Right)
		case Or:
			walk(con.Left)
			walk(con.Right)
		case *Or:
			walk(con.Left)
			walk(con.Right)
		case Not:
			walk(con.Constraint)
		case *Not:
			walk(con.Constraint)
		case Comparison:
			add(OperandSelector(con.Operand))
		case *Comparison:
			add(OperandSelector(con.Operand))
		case Between:
			add(OperandSelector(con.Operand))
		case *Between:
			add(OperandSelector(con.Operand))
		case PropertyExistence:
			add(con.Selector)
		case *PropertyExistence:
			add(con.Selector)
		case ChildNode:
			add(con.Selector)
		case *ChildNode:
			add(con.Selector)
		case DescendantNode:
			add(con.Selector)
		case *DescendantNode:
			add(con.Selector)
		}
	}
	walk(c)
	return out
}

// JoinConditionSelectors returns the two selectors a join condition relates.
func JoinConditionSelectors(jc JoinCondition) (SelectorName, SelectorName) {
	switch c := jc.(type) {
	case EquiJoinCondition:
		return c.Selector1, c.Selector2
	case *EquiJoinCondition:
		return c.Selector1, c.Selector2
	case SameNodeJoinCondition:
		return c.Selector1, c.Selector2
	case *SameNodeJoinCondition:
		return c.Selector1, c.Selector2
	case ChildNodeJoinCondition:
		return c.ParentSelector, c.ChildSelector
	case *ChildNodeJoinCondition:
		return c.ParentSelector, c.ChildSelector
	case DescendantNodeJoinCondition:
		return c.AncestorSelector, c.DescendantSelector
	case *DescendantNodeJoinCondition:
		return c.AncestorSelector, c.DescendantSelector
	default:
		return "", ""
	}
}

// AsEquiJoin returns the condition as an equi-join, if it is one.
func AsEquiJoin(jc JoinCondition) (EquiJoinCondition, bool) {
	switch c := jc.(type) {
	case EquiJoinCondition:
		return c, true
	case *EquiJoinCondition:
		if c != nil {
			return *c, true
		}
	}
	return EquiJoinCondition{}, false
}

// FormatOperand renders a dynamic operand for explain output.
func FormatOperand(op DynamicOperand) string {
	switch o := op.(type) {
	case PropertyValue:
		return string(o.Selector) + "." + o.Property
	case *PropertyValue:
		return string(o.Selector) + "." + o.Property
	case NodeName:
		return "NAME(" + string(o.Selector) + ")"
	case *NodeName:
		return "NAME(" + string(o.Selector) + ")"
	case NodePath:
		return "PATH(" + string(o.Selector) + ")"
	case *NodePath:
		return "PATH(" + string(o.Selector) + ")"
	case NodeDepth:
		return "DEPTH(" + string(o.Selector) + ")"
	case *NodeDepth:
		return "DEPTH(" + string(o.Selector) + ")"
	default:
		return fmt.Sprintf("%T", op)
	}
}

// FormatStatic renders a static operand for explain output.
func FormatStatic(op StaticOperand) string {
	switch o := op.(type) {
	case Literal:
		return ir.Format(o.Value)
	case *Literal:
		return ir.Format(o.Value)
	case BindVariable:
		return "$" + o.Name
	case *BindVariable:
		return "$" + o.Name
	default:
		return fmt.Sprintf("%T", op)
	}
}

// FormatConstraint renders a constraint for explain output.
func FormatConstraint(c Constraint) string {
	switch con := c.(type) {
	case And:
		return "(" + FormatConstraint(con.Left) + " AND " + FormatConstraint(con.Right) + ")"
	case *And:
		return FormatConstraint(*con)
	case Or:
		return "(" + FormatConstraint(con.Left) + " OR " + FormatConstraint(con.Right) + ")"
	case *Or:
		return FormatConstraint(*con)
	case Not:
		return "NOT " + FormatConstraint(con.Constraint)
	case *Not:
		return FormatConstraint(*con)
	case Comparison:
		return FormatOperand(con.Operand) + " " + string(con.Operator) + " " + FormatStatic(con.Value)
	case *Comparison:
		return FormatConstraint(*con)
	case Between:
		lower, upper := " EXCLUSIVE", " EXCLUSIVE"
		if con.LowerInclusive {
			lower = ""
		}
		if con.UpperInclusive {
			upper = ""
		}
		return FormatOperand(con.Operand) + " BETWEEN " + FormatStatic(con.Lower) + lower +
			" AND " + FormatStatic(con.Upper) + upper
	case *Between:
		return FormatConstraint(*con)
	case PropertyExistence:
		return string(con.Selector) + "." + con.Property + " IS NOT NULL"
	case *PropertyExistence:
		return FormatConstraint(*con)
	case ChildNode:
		return "ISCHILDNODE(" + string(con.Selector) + ", " + con.ParentPath + ")"
	case *ChildNode:
		return FormatConstraint(*con)
	case DescendantNode:
		return "ISDESCENDANTNODE(" + string(con.Selector) + ", " + con.AncestorPath + ")"
	case *DescendantNode:
		return FormatConstraint(*con)
	default:
		return fmt.Sprintf("%T", c)
	}
}

// FormatJoinCondition renders a join condition for explain output.
func FormatJoinCondition(jc JoinCondition) string {
	switch c := jc.(type) {
	case EquiJoinCondition:
		return fmt.Sprintf("%s.%s = %s.%s", c.Selector1, c.Property1, c.Selector2, c.Property2)
	case *EquiJoinCondition:
		return FormatJoinCondition(*c)
	case SameNodeJoinCondition:
		if c.Path != "" {
			return fmt.Sprintf("ISSAMENODE(%s, %s, %s)", c.Selector1, c.Selector2, c.Path)
		}
		return fmt.Sprintf("ISSAMENODE(%s, %s)", c.Selector1, c.Selector2)
	case *SameNodeJoinCondition:
		return FormatJoinCondition(*c)
	case ChildNodeJoinCondition:
		return fmt.Sprintf("ISCHILDNODE(%s, %s)", c.ChildSelector, c.ParentSelector)
	case *ChildNodeJoinCondition:
		return FormatJoinCondition(*c)
	case DescendantNodeJoinCondition:
		return fmt.Sprintf("ISDESCENDANTNODE(%s, %s)", c.DescendantSelector, c.AncestorSelector)
	case *DescendantNodeJoinCondition:
		return FormatJoinCondition(*c)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%T", jc)
	}
}

// FormatOrderings renders ORDER BY terms.
func FormatOrderings(orderings []Ordering) string {
	parts := make([]string, len(orderings))
	for i, o := range orderings {
		order := o.Order
		if order == "" {
			order = Ascending
		}
		parts[i] = FormatOperand(o.Operand) + " " + string(order)
	}
	return strings.Join(parts, ", ")
}

// ConstraintProperties returns the distinct property operands a constraint
// reads, in first-seen order. Property existence tests count as reads.
func ConstraintProperties(c Constraint) []PropertyValue {
	var out []PropertyValue
	seen := map[PropertyValue]bool{}
	add := func(op DynamicOperand) {
		var pv PropertyValue
		switch o := op.(type) {
		case PropertyValue:
			pv = o
		case *PropertyValue:
			pv = *o
		default:
			return
		}
		if !seen[pv] {
			seen[pv] = true
			out = append(out, pv)
		}
	}

	var walk func(Constraint)
	walk = func(c Constraint) {
		switch con := c.(type) {
		case And:
			walk(con.Left)
			walk(con.Right)
		case *And:
			walk(*con)
		case Or:
			walk(con.Left)
			walk(con.Right)
		case *Or:
			walk(*con)
		case Not:
			walk(con.Constraint)
		case *Not:
			walk(*con)
		case Comparison:
			add(con.Operand)
		case *Comparison:
			add(con.Operand)
		case Between:
			add(con.Operand)
		case *Between:
			add(con.Operand)
		case PropertyExistence:
			add(PropertyValue{Selector: con.Selector, Property: con.Property})
		case *PropertyExistence:
			add(PropertyValue{Selector: con.Selector, Property: con.Property})
		}
	}
	walk(c)
	return out
}
