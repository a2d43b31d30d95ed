package optimizer

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/arbor/internal/ir"
	"github.com/roach88/arbor/internal/plan"
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
			"author": queryir.TypeReference,
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

func propEq(sel queryir.SelectorName, prop string, v ir.Value) queryir.Comparison {
	return queryir.Comparison{
		Operand:  queryir.PropertyValue{Selector: sel, Property: prop},
		Operator: queryir.OpEqual,
		Value:    queryir.Literal{Value: v},
	}
}

func compare(sel queryir.SelectorName, prop string, op queryir.Operator, v int64) queryir.Comparison {
	return queryir.Comparison{
		Operand:  queryir.PropertyValue{Selector: sel, Property: prop},
		Operator: op,
		Value:    queryir.Literal{Value: ir.Int(v)},
	}
}

var joinCommand = queryir.QueryCommand{
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
		queryir.NewColumn("a", "name", false),
	},
	Constraint: queryir.And{
		Left:  propEq("p", "status", ir.String("published")),
		Right: queryir.PropertyExistence{Selector: "a", Property: "name"},
	},
	Orderings: []queryir.Ordering{
		{Operand: queryir.PropertyValue{Selector: "p", Property: "rank"}, Order: queryir.Descending},
	},
}

var outerRangeCommand = queryir.QueryCommand{
	Source: queryir.Join{
		Left:      queryir.Selector{NodeType: "blog:author", Alias: "a"},
		Right:     queryir.Selector{NodeType: "blog:post", Alias: "p"},
		Type:      queryir.JoinRightOuter,
		Condition: queryir.ChildNodeJoinCondition{ParentSelector: "a", ChildSelector: "p"},
	},
	Columns: []queryir.Column{queryir.NewColumn("p", "title", false)},
	Constraint: queryir.And{
		Left: compare("p", "rank", queryir.OpGreaterOrEqual, 2),
		Right: queryir.And{
			Left:  compare("p", "rank", queryir.OpLessThan, 5),
			Right: queryir.PropertyExistence{Selector: "a", Property: "name"},
		},
	},
	Distinct: true,
	Limits:   queryir.Limits{RowLimit: 5, Offset: 1},
}

func optimize(t *testing.T, cmd queryir.QueryCommand, hints plan.Hints) (*plan.Context, *plan.Arena, plan.NodeID) {
	t.Helper()
	qc := plan.NewContext(testSchemata, hints, nil)
	arena, root, err := plan.NewCanonicalPlanner().CreatePlan(qc, cmd)
	require.NoError(t, err)
	root, err = New().Optimize(qc, arena, root)
	require.NoError(t, err)
	return qc, arena, root
}

func TestOptimizeGolden(t *testing.T) {
	tests := []struct {
		name string
		cmd  queryir.QueryCommand
	}{
		{"optimized_equi_join", joinCommand},
		{"optimized_outer_range", outerRangeCommand},
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, arena, root := optimize(t, tt.cmd, plan.Hints{})
			g.Assert(t, tt.name, []byte(plan.Explain(arena, root)))
		})
	}
}

func TestDefaultRulesReachFixedPoint(t *testing.T) {
	for _, cmd := range []queryir.QueryCommand{joinCommand, outerRangeCommand} {
		qc, arena, root := optimize(t, cmd, plan.Hints{})
		before := plan.Explain(arena, root)

		for _, rule := range DefaultRules(qc.Hints) {
			var err error
			root, err = rule.Execute(qc, arena, root, NewRuleStack())
			require.NoError(t, err)
			assert.Equal(t, before, plan.Explain(arena, root), "%s changed an optimized plan", rule.Name())
		}
	}
}

func TestDefaultRulesFollowHints(t *testing.T) {
	names := func(rules []Rule) []string {
		out := make([]string, len(rules))
		for i, r := range rules {
			out[i] = r.Name()
		}
		return out
	}

	assert.Equal(t, []string{
		"RightOuterToLeftOuterJoins",
		"AddAccessNodes",
		"PushSelectCriteria",
		"PushProjects",
		"RewriteAsRangeCriteria",
		"ReorderSortAndRemoveDuplicates",
	}, names(DefaultRules(plan.Hints{})))

	assert.Equal(t, []string{
		"RightOuterToLeftOuterJoins",
		"AddAccessNodes",
		"PushSelectCriteria",
		"PushProjects",
		"AddOrderingColumnsToSources",
		"RewriteAsRangeCriteria",
		"AddJoinConditionColumnsToSources",
		"ChooseJoinAlgorithm",
		"ReorderSortAndRemoveDuplicates",
	}, names(DefaultRules(plan.Hints{HasJoin: true, HasSort: true})))
}

// selfScheduling pushes itself every time it runs.
type selfScheduling struct{}

func (selfScheduling) Name() string { return "SelfScheduling" }

func (r selfScheduling) Execute(_ *plan.Context, _ *plan.Arena, root plan.NodeID, stack *RuleStack) (plan.NodeID, error) {
	stack.Push(r)
	return root, nil
}

var errBroken = errors.New("broken rule")

type failing struct{}

func (failing) Name() string { return "Failing" }

func (failing) Execute(_ *plan.Context, _ *plan.Arena, root plan.NodeID, _ *RuleStack) (plan.NodeID, error) {
	return root, errBroken
}

// recording appends its name to a shared log and optionally schedules next.
type recording struct {
	name string
	log  *[]string
	next Rule
}

func (r recording) Name() string { return r.name }

func (r recording) Execute(_ *plan.Context, _ *plan.Arena, root plan.NodeID, stack *RuleStack) (plan.NodeID, error) {
	*r.log = append(*r.log, r.name)
	if r.next != nil {
		stack.Push(r.next)
	}
	return root, nil
}

func singleSource() (*plan.Context, *plan.Arena, plan.NodeID) {
	arena := plan.NewArena()
	root := arena.NewSource(queryir.Selector{NodeType: "blog:post", Alias: "p"})
	return plan.NewContext(testSchemata, plan.Hints{}, nil), arena, root
}

func TestOptimizerIterationCeiling(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	opt := New(
		WithMaxIterations(5),
		WithRules(func(plan.Hints) []Rule { return []Rule{selfScheduling{}} }),
		WithMetrics(metrics),
	)

	qc, arena, root := singleSource()
	_, err := opt.Optimize(qc, arena, root)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRuleLimit)
	assert.Equal(t, float64(1), promtestutil.ToFloat64(metrics.RuleLimitHits))
	assert.Equal(t, float64(5), promtestutil.ToFloat64(metrics.RulesExecuted.WithLabelValues("SelfScheduling")))
}

func TestOptimizerPropagatesRuleErrors(t *testing.T) {
	opt := New(WithRules(func(plan.Hints) []Rule { return []Rule{failing{}} }))

	qc, arena, root := singleSource()
	_, err := opt.Optimize(qc, arena, root)
	require.Error(t, err)
	assert.ErrorIs(t, err, errBroken)
	assert.Contains(t, err.Error(), "rule Failing")
}

func TestOptimizerRunsPushedRulesFirst(t *testing.T) {
	var log []string
	pushed := recording{name: "pushed", log: &log}
	opt := New(WithRules(func(plan.Hints) []Rule {
		return []Rule{
			recording{name: "first", log: &log, next: pushed},
			recording{name: "second", log: &log},
		}
	}))

	qc, arena, root := singleSource()
	_, err := opt.Optimize(qc, arena, root)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "pushed", "second"}, log)
}

func TestRuleStack(t *testing.T) {
	rs := NewRuleStack(AddAccessNodes{}, PushProjects{})
	assert.Equal(t, []string{"AddAccessNodes", "PushProjects"}, rs.Names())
	assert.Equal(t, 2, rs.Len(), "Names leaves the stack intact")

	rs.Push(ChooseJoinAlgorithm{})
	r, ok := rs.Pop()
	require.True(t, ok)
	assert.Equal(t, "ChooseJoinAlgorithm", r.Name())

	rs.Pop()
	rs.Pop()
	_, ok = rs.Pop()
	assert.False(t, ok)
}
