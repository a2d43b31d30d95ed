package plan

import (
	"github.com/roach88/arbor/internal/ir"
	"github.com/roach88/arbor/internal/queryir"
)

// Hints carries facts the planner discovers and flags the caller sets.
// The planner sets HasJoin, HasSort, HasCriteria and HasLimit; the
// optimizer reads them to decide which conditional rules to schedule.
type Hints struct {
	HasJoin     bool
	HasSort     bool
	HasCriteria bool
	HasLimit    bool

	// QualifyExpandedColumnNames makes synthesized and expanded columns use
	// "selector.property" as their output name.
	QualifyExpandedColumnNames bool

	// ShowPlan asks the engine to log the optimized plan.
	ShowPlan bool
}

// Context is the per-query state shared by the planner and every optimizer
// rule. It is not safe for concurrent use; each compilation gets its own.
type Context struct {
	Schemata  *queryir.Schemata
	Hints     Hints
	Variables map[string]ir.Value
	Problems  []queryir.Problem
}

// NewContext returns a context for one compilation. A nil schemata means
// the built-in types only.
func NewContext(schemata *queryir.Schemata, hints Hints, variables map[string]ir.Value) *Context {
	if schemata == nil {
		schemata = queryir.DefaultSchemata()
	}
	return &Context{
		Schemata:  schemata,
		Hints:     hints,
		Variables: variables,
	}
}

// AddProblem records a compilation problem.
func (c *Context) AddProblem(p queryir.Problem) {
	c.Problems = append(c.Problems, p)
}

// HasProblems reports whether any problem was recorded.
func (c *Context) HasProblems() bool {
	return len(c.Problems) > 0
}
