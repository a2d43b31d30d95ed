package queryir

import (
	"fmt"
	"strings"

	"github.com/roach88/arbor/internal/ir"
)

// Problem codes reported by Validate.
const (
	ProblemMissingSource          = "MISSING_SOURCE"
	ProblemDuplicateSelector      = "DUPLICATE_SELECTOR"
	ProblemUnknownSelector        = "UNKNOWN_SELECTOR"
	ProblemUnknownNodeType        = "UNKNOWN_NODE_TYPE"
	ProblemMalformedJoinCondition = "MALFORMED_JOIN_CONDITION"
	ProblemInvalidOperand         = "INVALID_OPERAND"
	ProblemUnboundVariable        = "UNBOUND_VARIABLE"
	ProblemInvalidLimit           = "INVALID_LIMIT"
)

// Problem is one reason a query command cannot be compiled.
type Problem struct {
	Code     string
	Message  string
	Selector SelectorName // empty when not selector-specific
}

func (p Problem) String() string {
	return p.Code + ": " + p.Message
}

// ValidationResult collects the problems found in a query command.
type ValidationResult struct {
	Problems []Problem
}

// OK reports whether no problems were found.
func (r ValidationResult) OK() bool {
	return len(r.Problems) == 0
}

// Error joins the problems into one message.
func (r ValidationResult) Error() string {
	parts := make([]string, len(r.Problems))
	for i, p := range r.Problems {
		parts[i] = p.String()
	}
	return strings.Join(parts, "; ")
}

// Validate checks a query command before planning.
//
// Checks performed:
//  1. A source is present and selector names are unique
//  2. Selector node types exist in schemata (skipped when schemata is nil)
//  3. Join conditions relate one selector from each side of their join;
//     CROSS joins carry no condition and every other join carries one
//  4. Constraints, orderings, and columns reference known selectors
//  5. Bind variables are present in variables
//  6. Limits are non-negative
//
// Validate is a pure function with no side effects.
func Validate(cmd QueryCommand, schemata *Schemata, variables map[string]ir.Value) ValidationResult {
	v := &validator{
		schemata:  schemata,
		variables: variables,
		selectors: map[SelectorName]Selector{},
	}
	v.validateCommand(cmd)
	return ValidationResult{Problems: v.problems}
}

// validator accumulates problems during traversal.
type validator struct {
	schemata  *Schemata
	variables map[string]ir.Value
	selectors map[SelectorName]Selector
	problems  []Problem
}

func (v *validator) add(code string, selector SelectorName, format string, args ...any) {
	v.problems = append(v.problems, Problem{
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Selector: selector,
	})
}

func (v *validator) validateCommand(cmd QueryCommand) {
	if cmd.Source == nil {
		v.add(ProblemMissingSource, "", "query has no source")
		return
	}

	for _, sel := range Selectors(cmd.Source) {
		name := sel.Name()
		if name == "" {
			v.add(ProblemMissingSource, "", "selector has neither node type nor alias")
			continue
		}
		if _, dup := v.selectors[name]; dup {
			v.add(ProblemDuplicateSelector, name, "selector %q is declared more than once", name)
			continue
		}
		v.selectors[name] = sel
		if v.schemata != nil && !v.schemata.Has(sel.NodeType) {
			v.add(ProblemUnknownNodeType, name, "node type %q of selector %q is not defined", sel.NodeType, name)
		}
	}

	v.validateSource(cmd.Source)

	if cmd.Constraint != nil {
		v.validateConstraint(cmd.Constraint)
	}
	for _, o := range cmd.Orderings {
		v.validateOperand(o.Operand)
		if o.Order != "" && o.Order != Ascending && o.Order != Descending {
			v.add(ProblemInvalidOperand, OperandSelector(o.Operand), "unknown sort order %q", o.Order)
		}
	}
	for _, c := range cmd.Columns {
		v.requireSelector(c.Selector, "column %q", c.Name())
		if c.Property == "" {
			v.add(ProblemInvalidOperand, c.Selector, "column on selector %q has no property", c.Selector)
		}
	}
	if cmd.Limits.RowLimit < 0 || cmd.Limits.Offset < 0 {
		v.add(ProblemInvalidLimit, "", "limit %d offset %d must be non-negative", cmd.Limits.RowLimit, cmd.Limits.Offset)
	}
}

func (v *validator) requireSelector(name SelectorName, what string, args ...any) bool {
	if _, ok := v.selectors[name]; ok {
		return true
	}
	v.add(ProblemUnknownSelector, name, "%s references unknown selector %q", fmt.Sprintf(what, args...), name)
	return false
}

func (v *validator) validateSource(src Source) {
	switch s := src.(type) {
	case Selector, *Selector:
		// Registered in validateCommand.
	case Join:
		v.validateJoin(s)
	case *Join:
		v.validateJoin(*s)
	default:
		v.add(ProblemMissingSource, "", "unknown source type %T", src)
	}
}

func (v *validator) validateJoin(join Join) {
	if join.Left == nil || join.Right == nil {
		v.add(ProblemMissingSource, "", "join is missing a side")
		return
	}
	v.validateSource(join.Left)
	v.validateSource(join.Right)

	switch join.Type {
	case JoinInner, JoinLeftOuter, JoinRightOuter:
	case JoinCross:
		if join.Condition != nil {
			v.add(ProblemMalformedJoinCondition, "", "cross join must not have a condition")
		}
		return
	default:
		v.add(ProblemMalformedJoinCondition, "", "unknown join type %q", join.Type)
		return
	}

	if join.Condition == nil {
		v.add(ProblemMalformedJoinCondition, "", "%s join requires a condition", join.Type)
		return
	}

	s1, s2 := JoinConditionSelectors(join.Condition)
	if s1 == "" || s2 == "" {
		v.add(ProblemMalformedJoinCondition, "", "join condition %s names no selectors", FormatJoinCondition(join.Condition))
		return
	}
	if s1 == s2 {
		v.add(ProblemMalformedJoinCondition, s1, "join condition relates selector %q to itself", s1)
		return
	}

	left := selectorNames(join.Left)
	right := selectorNames(join.Right)
	crosses := (left[s1] && right[s2]) || (left[s2] && right[s1])
	if !crosses {
		for _, s := range []SelectorName{s1, s2} {
			if !left[s] && !right[s] {
				v.add(ProblemUnknownSelector, s, "join condition references selector %q not under this join", s)
				return
			}
		}
		v.add(ProblemMalformedJoinCondition, s1, "join condition %s does not relate the two sides of the join", FormatJoinCondition(join.Condition))
		return
	}

	if eq, ok := AsEquiJoin(join.Condition); ok && (eq.Property1 == "" || eq.Property2 == "") {
		v.add(ProblemMalformedJoinCondition, eq.Selector1, "equi-join condition is missing a property")
	}
}

func selectorNames(src Source) map[SelectorName]bool {
	out := map[SelectorName]bool{}
	for _, s := range Selectors(src) {
		out[s.Name()] = true
	}
	return out
}

func (v *validator) validateConstraint(c Constraint) {
	switch con := c.(type) {
	case And:
		v.validateConstraint(con.Left)
		v.validateConstraint(con.Right)
	case *And:
		v.validateConstraint(*con)
	case Or:
		v.validateConstraint(con.Left)
		v.validateConstraint(con.Right)
	case *Or:
		v.validateConstraint(*con)
	case Not:
		v.validateConstraint(con.Constraint)
	case *Not:
		v.validateConstraint(*con)
	case Comparison:
		v.validateOperand(con.Operand)
		v.validateStatic(con.Value)
		switch con.Operator {
		case OpEqual, OpNotEqual, OpLessThan, OpLessOrEqual, OpGreaterThan, OpGreaterOrEqual, OpLike:
		default:
			v.add(ProblemInvalidOperand, OperandSelector(con.Operand), "unknown operator %q", con.Operator)
		}
	case *Comparison:
		v.validateConstraint(*con)
	case Between:
		v.validateOperand(con.Operand)
		v.validateStatic(con.Lower)
		v.validateStatic(con.Upper)
	case *Between:
		v.validateConstraint(*con)
	case PropertyExistence:
		v.requireSelector(con.Selector, "property existence on %q", con.Property)
	case *PropertyExistence:
		v.validateConstraint(*con)
	case ChildNode:
		v.requireSelector(con.Selector, "ISCHILDNODE")
	case *ChildNode:
		v.validateConstraint(*con)
	case DescendantNode:
		v.requireSelector(con.Selector, "ISDESCENDANTNODE")
	case *DescendantNode:
		v.validateConstraint(*con)
	case nil:
		v.add(ProblemInvalidOperand, "", "nil constraint")
	default:
		v.add(ProblemInvalidOperand, "", "unknown constraint type %T", c)
	}
}

func (v *validator) validateOperand(op DynamicOperand) {
	if op == nil {
		v.add(ProblemInvalidOperand, "", "missing dynamic operand")
		return
	}
	sel := OperandSelector(op)
	if !v.requireSelector(sel, "operand %s", FormatOperand(op)) {
		return
	}
	if pv, ok := op.(PropertyValue); ok && pv.Property == "" {
		v.add(ProblemInvalidOperand, sel, "property operand on %q has no property name", sel)
	}
}

func (v *validator) validateStatic(op StaticOperand) {
	switch o := op.(type) {
	case Literal:
		if o.Value == nil {
			v.add(ProblemInvalidOperand, "", "literal has no value")
		}
	case *Literal:
		v.validateStatic(*o)
	case BindVariable:
		if _, ok := v.variables[o.Name]; !ok {
			v.add(ProblemUnboundVariable, "", "variable $%s is not bound", o.Name)
		}
	case *BindVariable:
		v.validateStatic(*o)
	default:
		v.add(ProblemInvalidOperand, "", "unknown static operand %T", op)
	}
}

// ResolveStatic returns the value of a static operand, looking bind
// variables up in variables.
func ResolveStatic(op StaticOperand, variables map[string]ir.Value) (ir.Value, error) {
	switch o := op.(type) {
	case Literal:
		return o.Value, nil
	case *Literal:
		return o.Value, nil
	case BindVariable:
		val, ok := variables[o.Name]
		if !ok {
			return nil, fmt.Errorf("variable $%s is not bound", o.Name)
		}
		return val, nil
	case *BindVariable:
		return ResolveStatic(*o, variables)
	default:
		return nil, fmt.Errorf("unknown static operand %T", op)
	}
}
