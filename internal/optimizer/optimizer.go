package optimizer

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/arbor/internal/plan"
)

// DefaultMaxIterations is the default ceiling on rule executions per plan.
const DefaultMaxIterations = 1000

// ErrRuleLimit is returned when a plan needs more rule executions than the
// ceiling allows, which means some rule keeps rescheduling itself.
var ErrRuleLimit = errors.New("optimizer rule limit exceeded")

// Optimizer rewrites a canonical plan into an equivalent, cheaper one.
type Optimizer interface {
	Optimize(qc *plan.Context, arena *plan.Arena, root plan.NodeID) (plan.NodeID, error)
}

// RuleBasedOptimizer drains a stack of rules, running each against the
// whole plan. Rules may push more rules; the loop ends when the stack is
// empty or a rule fails.
type RuleBasedOptimizer struct {
	maxIterations int
	rules         func(plan.Hints) []Rule
	logger        *slog.Logger
	metrics       *Metrics
}

// Option configures a RuleBasedOptimizer.
type Option func(*RuleBasedOptimizer)

// WithMaxIterations sets the rule execution ceiling.
//
// Default: 1000 (DefaultMaxIterations)
func WithMaxIterations(n int) Option {
	return func(o *RuleBasedOptimizer) {
		o.maxIterations = n
	}
}

// WithRules replaces the default rule ordering. The function receives the
// planner's hints and returns the initial stack contents, top first.
func WithRules(rules func(plan.Hints) []Rule) Option {
	return func(o *RuleBasedOptimizer) {
		o.rules = rules
	}
}

// WithLogger sets the logger used for per-rule debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(o *RuleBasedOptimizer) {
		o.logger = logger
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *RuleBasedOptimizer) {
		o.metrics = m
	}
}

// New creates a RuleBasedOptimizer using DefaultRules.
func New(opts ...Option) *RuleBasedOptimizer {
	o := &RuleBasedOptimizer{
		maxIterations: DefaultMaxIterations,
		rules:         DefaultRules,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// DefaultRules returns the standard rule ordering, top of stack first.
// Join rules run only for plans with joins and the ordering rule only for
// sorted plans.
func DefaultRules(hints plan.Hints) []Rule {
	rules := []Rule{
		RightOuterToLeftOuterJoins{},
		AddAccessNodes{},
		PushSelectCriteria{},
		PushProjects{},
	}
	if hints.HasSort {
		rules = append(rules, AddOrderingColumnsToSources{})
	}
	rules = append(rules, RewriteAsRangeCriteria{})
	if hints.HasJoin {
		rules = append(rules, AddJoinConditionColumnsToSources{}, ChooseJoinAlgorithm{})
	}
	return append(rules, ReorderSortAndRemoveDuplicates{})
}

// Optimize implements Optimizer.
//
// Rule errors abort optimization and are returned wrapped with the rule
// name. Problems a rule records on the context also stop the loop.
func (o *RuleBasedOptimizer) Optimize(qc *plan.Context, arena *plan.Arena, root plan.NodeID) (plan.NodeID, error) {
	start := time.Now()
	if o.metrics != nil {
		defer func() { o.metrics.OptimizeSeconds.Observe(time.Since(start).Seconds()) }()
	}

	rs := NewRuleStack(o.rules(qc.Hints)...)
	iterations := 0
	for {
		rule, ok := rs.Pop()
		if !ok {
			return root, nil
		}
		if iterations >= o.maxIterations {
			if o.metrics != nil {
				o.metrics.RuleLimitHits.Inc()
			}
			return root, fmt.Errorf("%w: %d executions, next rule %s", ErrRuleLimit, iterations, rule.Name())
		}
		iterations++

		newRoot, err := rule.Execute(qc, arena, root, rs)
		if o.metrics != nil {
			o.metrics.RulesExecuted.WithLabelValues(rule.Name()).Inc()
		}
		if err != nil {
			if o.metrics != nil {
				o.metrics.RuleErrors.WithLabelValues(rule.Name()).Inc()
			}
			return root, fmt.Errorf("rule %s: %w", rule.Name(), err)
		}
		root = newRoot

		o.logger.Debug("optimizer rule executed",
			"rule", rule.Name(),
			"pending", rs.Len())

		if qc.HasProblems() {
			return root, nil
		}
	}
}
