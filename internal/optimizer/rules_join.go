package optimizer

import (
	"fmt"

	"github.com/roach88/arbor/internal/plan"
	"github.com/roach88/arbor/internal/queryir"
)

// RightOuterToLeftOuterJoins rewrites every RIGHT OUTER join as a LEFT
// OUTER join with its children swapped.
type RightOuterToLeftOuterJoins struct{}

func (RightOuterToLeftOuterJoins) Name() string { return "RightOuterToLeftOuterJoins" }

func (RightOuterToLeftOuterJoins) Execute(_ *plan.Context, arena *plan.Arena, root plan.NodeID, _ *RuleStack) (plan.NodeID, error) {
	for _, id := range arena.FindAll(root, plan.TypeJoin) {
		n := arena.Node(id)
		if n.JoinType() != queryir.JoinRightOuter {
			continue
		}
		arena.SwapChildren(id)
		n.SetProperty(plan.PropJoinType, queryir.JoinLeftOuter)
	}
	return root, nil
}

// AddJoinConditionColumnsToSources makes sure both columns of every
// equi-join condition are projected below the join.
//
// For a join on S1.P1 = S2.P2, the side whose selectors contain S1 gets
// S1.P1 and the other side gets S2.P2. Within each side, every node that
// has PROJECT_COLUMNS and resolves the column's selector gets the column
// appended unless an equivalent column (same selector, property or output
// name matching either name of the other) is already there. The search
// continues through every child, since a column can be needed at several
// projection points of one subtree. Appended columns use the default type.
//
// Joins on anything other than an equi-join condition are left alone.
type AddJoinConditionColumnsToSources struct{}

func (AddJoinConditionColumnsToSources) Name() string { return "AddJoinConditionColumnsToSources" }

func (AddJoinConditionColumnsToSources) Execute(qc *plan.Context, arena *plan.Arena, root plan.NodeID, _ *RuleStack) (plan.NodeID, error) {
	qualify := qc.Hints.QualifyExpandedColumnNames

	for _, id := range arena.FindAll(root, plan.TypeJoin) {
		n := arena.Node(id)
		cond, ok := queryir.AsEquiJoin(n.JoinCondition())
		if !ok {
			continue
		}
		if len(n.Children) != 2 {
			return root, fmt.Errorf("join node %d has %d children", id, len(n.Children))
		}
		left, right := n.Children[0], n.Children[1]

		col1 := queryir.NewColumn(cond.Selector1, cond.Property1, qualify)
		col2 := queryir.NewColumn(cond.Selector2, cond.Property2, qualify)

		if arena.Node(left).Selectors.Contains(cond.Selector1) {
			addEquiJoinColumn(arena, left, col1)
			addEquiJoinColumn(arena, right, col2)
		} else {
			addEquiJoinColumn(arena, left, col2)
			addEquiJoinColumn(arena, right, col1)
		}
	}
	return root, nil
}

func addEquiJoinColumn(arena *plan.Arena, id plan.NodeID, col queryir.Column) {
	n := arena.Node(id)
	if n.Selectors.Contains(col.Selector) {
		addColumnIfMissing(n, col, queryir.DefaultType)
	}
	for _, child := range n.Children {
		addEquiJoinColumn(arena, child, col)
	}
}

// addColumnIfMissing appends col to the node's PROJECT_COLUMNS (and typ to
// PROJECT_COLUMN_TYPES) when the node has a column list without an
// equivalent column. It reports whether the node changed.
func addColumnIfMissing(n *plan.Node, col queryir.Column, typ queryir.PropertyType) bool {
	cols, ok := n.ProjectColumns()
	if !ok || queryir.ContainsColumn(cols, col) {
		return false
	}
	types := n.ProjectColumnTypes()
	for len(types) < len(cols) {
		types = append(types, queryir.DefaultType)
	}
	n.SetProperty(plan.PropProjectColumns, append(cols, col))
	n.SetProperty(plan.PropProjectColumnTypes, append(types, typ))
	return true
}

// ChooseJoinAlgorithm sets JOIN_ALGORITHM: MERGE for equi-joins,
// NESTED_LOOP for everything else.
type ChooseJoinAlgorithm struct{}

func (ChooseJoinAlgorithm) Name() string { return "ChooseJoinAlgorithm" }

func (ChooseJoinAlgorithm) Execute(_ *plan.Context, arena *plan.Arena, root plan.NodeID, _ *RuleStack) (plan.NodeID, error) {
	for _, id := range arena.FindAll(root, plan.TypeJoin) {
		n := arena.Node(id)
		algorithm := plan.JoinNestedLoop
		if _, ok := queryir.AsEquiJoin(n.JoinCondition()); ok {
			algorithm = plan.JoinMerge
		}
		n.SetProperty(plan.PropJoinAlgorithm, algorithm)
	}
	return root, nil
}
