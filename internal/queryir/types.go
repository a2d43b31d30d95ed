package queryir

import "github.com/roach88/arbor/internal/ir"

// SelectorName is the alias under which a query source is referenced.
type SelectorName string

// QueryCommand is a parsed query: a source tree plus optional constraint,
// orderings, projected columns, limits, and duplicate removal.
//
// Semantics:
//
//	SELECT [DISTINCT] <columns> FROM <source> WHERE <constraint>
//	ORDER BY <orderings> LIMIT <limits.RowLimit> OFFSET <limits.Offset>
//
// An empty Columns list means "every declared property of every selector";
// the planner expands it using the node-type Schemata.
type QueryCommand struct {
	Source     Source
	Constraint Constraint // nil = no constraint
	Orderings  []Ordering
	Columns    []Column
	Limits     Limits
	Distinct   bool
}

// Source is a sealed interface for the FROM clause: a Selector or a Join.
type Source interface {
	sourceNode() // Marker method - seals interface to this package
}

// Selector reads every node of a node type (including subtypes) under an alias.
//
// Example:
//
//	Selector{NodeType: "blog:post", Alias: "p"}
//
// An empty Alias defaults to the node type name.
type Selector struct {
	NodeType string
	Alias    SelectorName
}

func (Selector) sourceNode() {}

// Name returns the effective selector name.
func (s Selector) Name() SelectorName {
	if s.Alias != "" {
		return s.Alias
	}
	return SelectorName(s.NodeType)
}

// JoinType is the kind of join.
type JoinType string

const (
	JoinInner      JoinType = "INNER"
	JoinLeftOuter  JoinType = "LEFT OUTER"
	JoinRightOuter JoinType = "RIGHT OUTER"
	JoinCross      JoinType = "CROSS"
)

// Join combines two sources.
//
// Every join except CROSS requires a Condition. Left and Right can be
// Selectors or Joins (recursive).
type Join struct {
	Left      Source
	Right     Source
	Type      JoinType
	Condition JoinCondition
}

func (Join) sourceNode() {}

// JoinCondition is a sealed interface over join predicates.
//
// Only EquiJoinCondition takes part in column propagation; the node-identity
// conditions are evaluated by the engine against node paths.
type JoinCondition interface {
	joinCondition() // Marker method - seals interface to this package
}

// EquiJoinCondition asserts Selector1.Property1 = Selector2.Property2.
type EquiJoinCondition struct {
	Selector1 SelectorName
	Property1 string
	Selector2 SelectorName
	Property2 string
}

func (EquiJoinCondition) joinCondition() {}

// SameNodeJoinCondition asserts both selectors resolve to the same node,
// or, with Path set, that Selector2's node is at Path relative to Selector1's.
type SameNodeJoinCondition struct {
	Selector1 SelectorName
	Selector2 SelectorName
	Path      string
}

func (SameNodeJoinCondition) joinCondition() {}

// ChildNodeJoinCondition asserts ChildSelector's node is a direct child of
// ParentSelector's node.
type ChildNodeJoinCondition struct {
	ParentSelector SelectorName
	ChildSelector  SelectorName
}

func (ChildNodeJoinCondition) joinCondition() {}

// DescendantNodeJoinCondition asserts DescendantSelector's node is below
// AncestorSelector's node.
type DescendantNodeJoinCondition struct {
	AncestorSelector   SelectorName
	DescendantSelector SelectorName
}

func (DescendantNodeJoinCondition) joinCondition() {}

// Constraint is a sealed interface over WHERE-clause predicates.
type Constraint interface {
	constraintNode() // Marker method - seals interface to this package
}

// And holds when both sides hold.
type And struct {
	Left, Right Constraint
}

func (And) constraintNode() {}

// Or holds when either side holds.
type Or struct {
	Left, Right Constraint
}

func (Or) constraintNode() {}

// Not negates a constraint.
type Not struct {
	Constraint Constraint
}

func (Not) constraintNode() {}

// Operator is a comparison operator.
type Operator string

const (
	OpEqual          Operator = "="
	OpNotEqual       Operator = "!="
	OpLessThan       Operator = "<"
	OpLessOrEqual    Operator = "<="
	OpGreaterThan    Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpLike           Operator = "LIKE"
)

// Comparison compares a dynamic operand against a static operand.
//
// Example:
//
//	Comparison{
//	  Operand:  PropertyValue{Selector: "p", Property: "status"},
//	  Operator: OpEqual,
//	  Value:    Literal{Value: ir.String("published")},
//	}
type Comparison struct {
	Operand  DynamicOperand
	Operator Operator
	Value    StaticOperand
}

func (Comparison) constraintNode() {}

// PropertyExistence holds when the selector's node has the property.
type PropertyExistence struct {
	Selector SelectorName
	Property string
}

func (PropertyExistence) constraintNode() {}

// Between holds when Lower <(=) Operand <(=) Upper. The optimizer produces
// it by merging a lower and an upper bound Comparison on the same operand.
type Between struct {
	Operand        DynamicOperand
	Lower          StaticOperand
	Upper          StaticOperand
	LowerInclusive bool
	UpperInclusive bool
}

func (Between) constraintNode() {}

// ChildNode holds when the selector's node is a direct child of ParentPath.
type ChildNode struct {
	Selector   SelectorName
	ParentPath string
}

func (ChildNode) constraintNode() {}

// DescendantNode holds when the selector's node is below AncestorPath.
type DescendantNode struct {
	Selector     SelectorName
	AncestorPath string
}

func (DescendantNode) constraintNode() {}

// DynamicOperand is a sealed interface over per-row values.
type DynamicOperand interface {
	dynamicOperand() // Marker method - seals interface to this package
}

// PropertyValue is the value of a property of the selector's node.
type PropertyValue struct {
	Selector SelectorName
	Property string
}

func (PropertyValue) dynamicOperand() {}

// NodeName is the name of the selector's node.
type NodeName struct {
	Selector SelectorName
}

func (NodeName) dynamicOperand() {}

// NodePath is the absolute path of the selector's node.
type NodePath struct {
	Selector SelectorName
}

func (NodePath) dynamicOperand() {}

// NodeDepth is the number of segments in the selector's node path.
type NodeDepth struct {
	Selector SelectorName
}

func (NodeDepth) dynamicOperand() {}

// StaticOperand is a sealed interface over query-time constants.
type StaticOperand interface {
	staticOperand() // Marker method - seals interface to this package
}

// Literal is a constant value.
type Literal struct {
	Value ir.Value
}

func (Literal) staticOperand() {}

// BindVariable is resolved from the variables supplied with the query.
type BindVariable struct {
	Name string
}

func (BindVariable) staticOperand() {}

// Order is a sort direction.
type Order string

const (
	Ascending  Order = "ASC"
	Descending Order = "DESC"
)

// Ordering is one ORDER BY term.
type Ordering struct {
	Operand DynamicOperand
	Order   Order
}

// Limits bounds the result. RowLimit <= 0 means unlimited.
type Limits struct {
	RowLimit int
	Offset   int
}

// IsUnlimited reports whether the limits are a no-op.
func (l Limits) IsUnlimited() bool {
	return l.RowLimit <= 0 && l.Offset == 0
}
