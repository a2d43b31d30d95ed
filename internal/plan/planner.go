package plan

import (
	"errors"
	"fmt"

	"github.com/roach88/arbor/internal/queryir"
)

// ErrInvalidCommand is returned by CreatePlan when validation fails. The
// individual problems are recorded on the Context.
var ErrInvalidCommand = errors.New("invalid query command")

// Planner turns a query command into a canonical plan.
type Planner interface {
	CreatePlan(qc *Context, cmd queryir.QueryCommand) (*Arena, NodeID, error)
}

// CanonicalPlanner builds the naive plan every optimization starts from:
//
//	LIMIT            (omitted when unlimited)
//	  SORT           (omitted without orderings)
//	    DUP_REMOVE   (omitted unless distinct)
//	      PROJECT
//	        SELECT   (one per AND-ed criterion, first on top)
//	          ...
//	            <source tree>
//
// The source tree has a SOURCE node per selector and a JOIN node per join.
type CanonicalPlanner struct{}

// NewCanonicalPlanner returns the canonical planner.
func NewCanonicalPlanner() *CanonicalPlanner {
	return &CanonicalPlanner{}
}

// CreatePlan implements Planner.
func (p *CanonicalPlanner) CreatePlan(qc *Context, cmd queryir.QueryCommand) (*Arena, NodeID, error) {
	result := queryir.Validate(cmd, qc.Schemata, qc.Variables)
	if !result.OK() {
		for _, prob := range result.Problems {
			qc.AddProblem(prob)
		}
		return nil, NoNode, fmt.Errorf("%w: %s", ErrInvalidCommand, result.Error())
	}

	arena := NewArena()
	top := p.createSource(qc, arena, cmd.Source)

	conjuncts := queryir.SplitAnd(cmd.Constraint)
	for i := len(conjuncts) - 1; i >= 0; i-- {
		sel := arena.New(TypeSelect)
		arena.Node(sel).SetProperty(PropSelectCriteria, conjuncts[i])
		arena.AddChild(sel, top)
		top = sel
		qc.Hints.HasCriteria = true
	}

	project := arena.New(TypeProject)
	cols, types := p.projectColumns(qc, cmd)
	arena.Node(project).SetProperty(PropProjectColumns, cols)
	arena.Node(project).SetProperty(PropProjectColumnTypes, types)
	arena.AddChild(project, top)
	top = project

	if cmd.Distinct {
		dup := arena.New(TypeDupRemove)
		arena.AddChild(dup, top)
		top = dup
	}

	if len(cmd.Orderings) > 0 {
		sort := arena.New(TypeSort)
		arena.Node(sort).SetProperty(PropSortOrderBy, cmd.Orderings)
		arena.AddChild(sort, top)
		top = sort
		qc.Hints.HasSort = true
	}

	if !cmd.Limits.IsUnlimited() {
		limit := arena.New(TypeLimit)
		arena.Node(limit).SetProperty(PropLimitCount, cmd.Limits.RowLimit)
		arena.Node(limit).SetProperty(PropLimitOffset, cmd.Limits.Offset)
		arena.AddChild(limit, top)
		top = limit
		qc.Hints.HasLimit = true
	}

	return arena, top, nil
}

func (p *CanonicalPlanner) createSource(qc *Context, arena *Arena, src queryir.Source) NodeID {
	switch s := src.(type) {
	case queryir.Selector:
		return arena.NewSource(s)
	case *queryir.Selector:
		return arena.NewSource(*s)
	case queryir.Join:
		return p.createJoin(qc, arena, s)
	case *queryir.Join:
		return p.createJoin(qc, arena, *s)
	default:
		// Validate rejects anything else.
		return arena.New(TypeNull)
	}
}

func (p *CanonicalPlanner) createJoin(qc *Context, arena *Arena, join queryir.Join) NodeID {
	qc.Hints.HasJoin = true

	id := arena.New(TypeJoin)
	arena.Node(id).SetProperty(PropJoinType, join.Type)
	if join.Condition != nil {
		arena.Node(id).SetProperty(PropJoinCondition, join.Condition)
	}
	arena.AddChild(id, p.createSource(qc, arena, join.Left))
	arena.AddChild(id, p.createSource(qc, arena, join.Right))
	return id
}

// projectColumns returns the command's columns, or every declared property
// of every selector when the command names none, with their declared types.
func (p *CanonicalPlanner) projectColumns(qc *Context, cmd queryir.QueryCommand) ([]queryir.Column, []queryir.PropertyType) {
	nodeTypes := map[queryir.SelectorName]string{}
	selectors := queryir.Selectors(cmd.Source)
	for _, sel := range selectors {
		nodeTypes[sel.Name()] = sel.NodeType
	}

	cols := cmd.Columns
	if len(cols) == 0 {
		for _, sel := range selectors {
			for _, prop := range qc.Schemata.PropertyNames(sel.NodeType) {
				cols = append(cols, queryir.NewColumn(sel.Name(), prop, qc.Hints.QualifyExpandedColumnNames))
			}
		}
	}

	out := make([]queryir.Column, len(cols))
	types := make([]queryir.PropertyType, len(cols))
	for i, col := range cols {
		out[i] = col
		types[i], _ = qc.Schemata.PropertyType(nodeTypes[col.Selector], col.Property)
	}
	return out, types
}
