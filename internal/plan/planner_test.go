package plan

import (
	"errors"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/arbor/internal/ir"
	"github.com/roach88/arbor/internal/queryir"
)

var testSchemata = queryir.DefaultSchemata().With(
	queryir.NodeType{
		Name:       "blog:post",
		Supertypes: []string{"nt:unstructured"},
		Properties: map[string]queryir.PropertyType{
			"title":  queryir.TypeString,
			"status": queryir.TypeString,
			"rank":   queryir.TypeLong,
		},
	},
	queryir.NodeType{
		Name:       "blog:author",
		Supertypes: []string{"nt:unstructured"},
		Properties: map[string]queryir.PropertyType{
			"id":   queryir.TypeString,
			"name": queryir.TypeString,
		},
	},
)

func assertPlanGolden(t *testing.T, name string, arena *Arena, root NodeID) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(Explain(arena, root)))
}

func TestCanonicalPlanGolden(t *testing.T) {
	tests := []struct {
		name  string
		cmd   queryir.QueryCommand
		hints Hints
		want  Hints
	}{
		{
			name: "canonical_single_selector",
			cmd: queryir.QueryCommand{
				Source:  queryir.Selector{NodeType: "blog:post", Alias: "p"},
				Columns: []queryir.Column{queryir.NewColumn("p", "title", false)},
				Constraint: queryir.Comparison{
					Operand:  queryir.PropertyValue{Selector: "p", Property: "status"},
					Operator: queryir.OpEqual,
					Value:    queryir.Literal{Value: ir.String("published")},
				},
				Orderings: []queryir.Ordering{
					{Operand: queryir.PropertyValue{Selector: "p", Property: "title"}, Order: queryir.Ascending},
				},
				Limits: queryir.Limits{RowLimit: 10},
			},
			want: Hints{HasSort: true, HasCriteria: true, HasLimit: true},
		},
		{
			name: "canonical_join_distinct",
			cmd: queryir.QueryCommand{
				Source: queryir.Join{
					Left:  queryir.Selector{NodeType: "blog:post", Alias: "p"},
					Right: queryir.Selector{NodeType: "blog:author", Alias: "a"},
					Type:  queryir.JoinInner,
					Condition: queryir.EquiJoinCondition{
						Selector1: "p", Property1: "author",
						Selector2: "a", Property2: "id",
					},
				},
				Columns: []queryir.Column{
					queryir.NewColumn("p", "title", false),
					queryir.NewColumn("a", "name", true),
				},
				Constraint: queryir.And{
					Left: queryir.Comparison{
						Operand:  queryir.PropertyValue{Selector: "p", Property: "rank"},
						Operator: queryir.OpGreaterThan,
						Value:    queryir.BindVariable{Name: "min"},
					},
					Right: queryir.PropertyExistence{Selector: "a", Property: "name"},
				},
				Distinct: true,
			},
			want: Hints{HasJoin: true, HasCriteria: true},
		},
		{
			name: "canonical_expanded_columns",
			cmd: queryir.QueryCommand{
				Source: queryir.Selector{NodeType: "blog:author", Alias: "a"},
			},
			hints: Hints{QualifyExpandedColumnNames: true},
			want:  Hints{QualifyExpandedColumnNames: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qc := NewContext(testSchemata, tt.hints, map[string]ir.Value{"min": ir.Int(3)})
			arena, root, err := NewCanonicalPlanner().CreatePlan(qc, tt.cmd)
			require.NoError(t, err)
			assert.Empty(t, qc.Problems)
			assert.Equal(t, tt.want, qc.Hints)
			assertPlanGolden(t, tt.name, arena, root)
		})
	}
}

func TestCanonicalPlanRejectsInvalidCommand(t *testing.T) {
	tests := []struct {
		name string
		cmd  queryir.QueryCommand
		code string
	}{
		{
			name: "unknown selector in column",
			cmd: queryir.QueryCommand{
				Source:  queryir.Selector{NodeType: "blog:post", Alias: "p"},
				Columns: []queryir.Column{queryir.NewColumn("x", "title", false)},
			},
			code: queryir.ProblemUnknownSelector,
		},
		{
			name: "join condition on one side",
			cmd: queryir.QueryCommand{
				Source: queryir.Join{
					Left:  queryir.Selector{NodeType: "blog:post", Alias: "p"},
					Right: queryir.Selector{NodeType: "blog:author", Alias: "a"},
					Type:  queryir.JoinInner,
					Condition: queryir.EquiJoinCondition{
						Selector1: "p", Property1: "author",
						Selector2: "p", Property2: "id",
					},
				},
			},
			code: queryir.ProblemMalformedJoinCondition,
		},
		{
			name: "unbound variable",
			cmd: queryir.QueryCommand{
				Source: queryir.Selector{NodeType: "blog:post", Alias: "p"},
				Constraint: queryir.Comparison{
					Operand:  queryir.PropertyValue{Selector: "p", Property: "rank"},
					Operator: queryir.OpEqual,
					Value:    queryir.BindVariable{Name: "missing"},
				},
			},
			code: queryir.ProblemUnboundVariable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qc := NewContext(testSchemata, Hints{}, nil)
			arena, root, err := NewCanonicalPlanner().CreatePlan(qc, tt.cmd)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidCommand))
			assert.Nil(t, arena)
			assert.Equal(t, NoNode, root)
			require.NotEmpty(t, qc.Problems)
			assert.Equal(t, tt.code, qc.Problems[0].Code)
		})
	}
}

func TestCanonicalPlanCrossJoinHasNoCondition(t *testing.T) {
	qc := NewContext(testSchemata, Hints{}, nil)
	arena, root, err := NewCanonicalPlanner().CreatePlan(qc, queryir.QueryCommand{
		Source: queryir.Join{
			Left:  queryir.Selector{NodeType: "blog:post", Alias: "p"},
			Right: queryir.Selector{NodeType: "blog:author", Alias: "a"},
			Type:  queryir.JoinCross,
		},
		Columns: []queryir.Column{queryir.NewColumn("p", "title", false)},
	})
	require.NoError(t, err)

	join, ok := arena.FindFirst(root, TypeJoin)
	require.True(t, ok)
	assert.Nil(t, arena.Node(join).JoinCondition())
	assert.Equal(t, queryir.JoinCross, arena.Node(join).JoinType())
	assert.Equal(t, []queryir.SelectorName{"a", "p"}, arena.Node(root).SortedSelectors())
}
