package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/arbor/internal/plan"
	"github.com/roach88/arbor/internal/queryir"
)

// projectedSource builds PROJECT(cols) over SOURCE(alias).
func projectedSource(arena *plan.Arena, alias queryir.SelectorName, cols ...queryir.Column) plan.NodeID {
	project := arena.New(plan.TypeProject)
	types := make([]queryir.PropertyType, len(cols))
	for i := range types {
		types[i] = queryir.TypeString
	}
	arena.Node(project).SetProperty(plan.PropProjectColumns, cols)
	arena.Node(project).SetProperty(plan.PropProjectColumnTypes, types)
	arena.AddChild(project, arena.NewSource(queryir.Selector{NodeType: "nt:unstructured", Alias: alias}))
	return project
}

func equiJoinPlan(cond queryir.JoinCondition) (*plan.Arena, plan.NodeID, plan.NodeID, plan.NodeID) {
	arena := plan.NewArena()
	join := arena.New(plan.TypeJoin)
	arena.Node(join).SetProperty(plan.PropJoinType, queryir.JoinInner)
	arena.Node(join).SetProperty(plan.PropJoinCondition, cond)

	a := projectedSource(arena, "A", queryir.Column{Selector: "A", Property: "id", ColumnName: "identifier"})
	b := projectedSource(arena, "B", queryir.NewColumn("B", "name", false))
	arena.AddChild(join, a)
	arena.AddChild(join, b)
	return arena, join, a, b
}

func columnsOf(t *testing.T, arena *plan.Arena, id plan.NodeID) []queryir.Column {
	t.Helper()
	cols, ok := arena.Node(id).ProjectColumns()
	require.True(t, ok)
	return cols
}

func TestAddJoinConditionColumnsDeduplicates(t *testing.T) {
	tests := []struct {
		name    string
		cond    queryir.EquiJoinCondition
		qualify bool
		wantB   queryir.Column
	}{
		{
			name:  "condition names left selector first",
			cond:  queryir.EquiJoinCondition{Selector1: "A", Property1: "id", Selector2: "B", Property2: "aId"},
			wantB: queryir.Column{Selector: "B", Property: "aId", ColumnName: "aId"},
		},
		{
			name:  "condition names right selector first",
			cond:  queryir.EquiJoinCondition{Selector1: "B", Property1: "aId", Selector2: "A", Property2: "id"},
			wantB: queryir.Column{Selector: "B", Property: "aId", ColumnName: "aId"},
		},
		{
			name:    "qualified names",
			cond:    queryir.EquiJoinCondition{Selector1: "A", Property1: "id", Selector2: "B", Property2: "aId"},
			qualify: true,
			wantB:   queryir.Column{Selector: "B", Property: "aId", ColumnName: "B.aId"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			arena, join, a, b := equiJoinPlan(tt.cond)
			qc := plan.NewContext(nil, plan.Hints{QualifyExpandedColumnNames: tt.qualify}, nil)

			root, err := AddJoinConditionColumnsToSources{}.Execute(qc, arena, join, NewRuleStack())
			require.NoError(t, err)
			assert.Equal(t, join, root)

			assert.Equal(t, []queryir.Column{{Selector: "A", Property: "id", ColumnName: "identifier"}},
				columnsOf(t, arena, a), "A already projects id under another name")
			assert.Equal(t, []queryir.Column{queryir.NewColumn("B", "name", false), tt.wantB},
				columnsOf(t, arena, b))
			assert.Equal(t, []queryir.PropertyType{queryir.TypeString, queryir.DefaultType},
				arena.Node(b).ProjectColumnTypes())

			// A second pass is a no-op.
			before := plan.Explain(arena, join)
			_, err = AddJoinConditionColumnsToSources{}.Execute(qc, arena, join, NewRuleStack())
			require.NoError(t, err)
			assert.Equal(t, before, plan.Explain(arena, join))
		})
	}
}

func TestAddJoinConditionColumnsReachesEveryProjection(t *testing.T) {
	arena, join, _, b := equiJoinPlan(queryir.EquiJoinCondition{Selector1: "A", Property1: "id", Selector2: "B", Property2: "aId"})

	// A second projection for B deeper in the right subtree.
	src := arena.FirstChild(b)
	inner := arena.New(plan.TypeProject)
	arena.Node(inner).SetProperty(plan.PropProjectColumns, []queryir.Column{})
	arena.InsertAbove(inner, src)

	qc := plan.NewContext(nil, plan.Hints{}, nil)
	_, err := AddJoinConditionColumnsToSources{}.Execute(qc, arena, join, NewRuleStack())
	require.NoError(t, err)

	assert.True(t, queryir.ContainsColumn(columnsOf(t, arena, b), queryir.NewColumn("B", "aId", false)))
	assert.Equal(t, []queryir.Column{queryir.NewColumn("B", "aId", false)}, columnsOf(t, arena, inner))
	assert.Equal(t, []queryir.PropertyType{queryir.DefaultType}, arena.Node(inner).ProjectColumnTypes())
}

func TestAddJoinConditionColumnsIgnoresOtherConditions(t *testing.T) {
	arena, join, a, b := equiJoinPlan(queryir.SameNodeJoinCondition{Selector1: "A", Selector2: "B"})
	before := plan.Explain(arena, join)

	qc := plan.NewContext(nil, plan.Hints{}, nil)
	_, err := AddJoinConditionColumnsToSources{}.Execute(qc, arena, join, NewRuleStack())
	require.NoError(t, err)

	assert.Equal(t, before, plan.Explain(arena, join))
	assert.Len(t, columnsOf(t, arena, a), 1)
	assert.Len(t, columnsOf(t, arena, b), 1)
}

func TestRightOuterToLeftOuterJoins(t *testing.T) {
	arena, join, a, b := equiJoinPlan(queryir.EquiJoinCondition{Selector1: "A", Property1: "id", Selector2: "B", Property2: "aId"})
	arena.Node(join).SetProperty(plan.PropJoinType, queryir.JoinRightOuter)

	_, err := RightOuterToLeftOuterJoins{}.Execute(nil, arena, join, NewRuleStack())
	require.NoError(t, err)
	assert.Equal(t, queryir.JoinLeftOuter, arena.Node(join).JoinType())
	assert.Equal(t, []plan.NodeID{b, a}, arena.Node(join).Children)
}

func TestAddAccessNodesWrapsRootSource(t *testing.T) {
	arena := plan.NewArena()
	src := arena.NewSource(queryir.Selector{NodeType: "blog:post", Alias: "p"})

	root, err := AddAccessNodes{}.Execute(nil, arena, src, NewRuleStack())
	require.NoError(t, err)
	assert.Equal(t, plan.TypeAccess, arena.Node(root).Type)
	assert.Equal(t, []plan.NodeID{src}, arena.Node(root).Children)

	again, err := AddAccessNodes{}.Execute(nil, arena, root, NewRuleStack())
	require.NoError(t, err)
	assert.Equal(t, root, again)
	assert.Equal(t, 2, arena.Len())
}

func TestAddAccessNodesSkipsSourcesUnderPushedNodes(t *testing.T) {
	qc, arena, root := optimize(t, joinCommand, plan.Hints{})
	before := plan.Explain(arena, root)
	accesses := len(arena.FindAll(root, plan.TypeAccess))
	require.NotZero(t, accesses)

	again, err := AddAccessNodes{}.Execute(qc, arena, root, NewRuleStack())
	require.NoError(t, err)
	assert.Equal(t, root, again)
	assert.Len(t, arena.FindAll(again, plan.TypeAccess), accesses)
	assert.Equal(t, before, plan.Explain(arena, again))
}

func TestReorderSortAndRemoveDuplicates(t *testing.T) {
	arena := plan.NewArena()
	src := arena.NewSource(queryir.Selector{NodeType: "blog:post", Alias: "p"})
	sort := arena.New(plan.TypeSort)
	dup := arena.New(plan.TypeDupRemove)
	arena.AddChild(sort, src)
	arena.AddChild(dup, sort)

	root, err := ReorderSortAndRemoveDuplicates{}.Execute(nil, arena, dup, NewRuleStack())
	require.NoError(t, err)
	assert.Equal(t, sort, root)
	assert.Equal(t, []plan.NodeID{dup}, arena.Node(sort).Children)
	assert.Equal(t, []plan.NodeID{src}, arena.Node(dup).Children)

	again, err := ReorderSortAndRemoveDuplicates{}.Execute(nil, arena, root, NewRuleStack())
	require.NoError(t, err)
	assert.Equal(t, sort, again)
}

func TestPushSelectCriteriaKeepsMultiSelectorCriteria(t *testing.T) {
	cmd := queryir.QueryCommand{
		Source: queryir.Join{
			Left:  queryir.Selector{NodeType: "blog:post", Alias: "p"},
			Right: queryir.Selector{NodeType: "blog:author", Alias: "a"},
			Type:  queryir.JoinInner,
			Condition: queryir.EquiJoinCondition{
				Selector1: "p", Property1: "author",
				Selector2: "a", Property2: "id",
			},
		},
		Columns: []queryir.Column{queryir.NewColumn("p", "title", false)},
		Constraint: queryir.Or{
			Left:  compare("p", "rank", queryir.OpGreaterThan, 3),
			Right: queryir.PropertyExistence{Selector: "a", Property: "name"},
		},
	}
	_, arena, root := optimize(t, cmd, plan.Hints{})

	sel, ok := arena.FindFirst(root, plan.TypeSelect)
	require.True(t, ok)
	_, under := arena.Ancestor(sel, plan.TypeAccess)
	assert.False(t, under, "criteria spanning two selectors stay above the join")

	// Both access projections carry what the remaining criteria read.
	var projected []queryir.Column
	for _, access := range arena.FindAll(root, plan.TypeAccess) {
		project, ok := projectUnderAccess(arena, access)
		require.True(t, ok)
		projected = append(projected, columnsOf(t, arena, project)...)
	}
	assert.True(t, queryir.ContainsColumn(projected, queryir.NewColumn("p", "rank", false)))
	assert.True(t, queryir.ContainsColumn(projected, queryir.NewColumn("a", "name", false)))
}

func TestRewriteAsRangeCriteriaLeavesUnpairedBounds(t *testing.T) {
	cmd := queryir.QueryCommand{
		Source:  queryir.Selector{NodeType: "blog:post", Alias: "p"},
		Columns: []queryir.Column{queryir.NewColumn("p", "title", false)},
		Constraint: queryir.And{
			Left:  compare("p", "rank", queryir.OpGreaterThan, 1),
			Right: compare("p", "rank", queryir.OpGreaterOrEqual, 2),
		},
	}
	_, arena, root := optimize(t, cmd, plan.Hints{})

	selects := arena.FindAll(root, plan.TypeSelect)
	require.Len(t, selects, 2, "two lower bounds do not form a range")
	for _, s := range selects {
		_, isBetween := arena.Node(s).Criteria().(queryir.Between)
		assert.False(t, isBetween)
	}
}
