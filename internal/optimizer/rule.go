package optimizer

import (
	"github.com/golang-collections/collections/stack"

	"github.com/roach88/arbor/internal/plan"
)

// Rule is one plan rewrite.
//
// Execute receives the whole plan and returns its (possibly new) root.
// Rules are stateless and may push follow-up rules onto the stack. A rule
// must reach a fixed point: running it again on its own output changes
// nothing and schedules nothing unconditionally.
type Rule interface {
	Name() string
	Execute(qc *plan.Context, arena *plan.Arena, root plan.NodeID, stack *RuleStack) (plan.NodeID, error)
}

// RuleStack is the pending-rule stack the optimizer drains. The rule on top
// runs next.
type RuleStack struct {
	s *stack.Stack
}

// NewRuleStack returns a stack whose first argument is on top.
func NewRuleStack(rules ...Rule) *RuleStack {
	rs := &RuleStack{s: stack.New()}
	for i := len(rules) - 1; i >= 0; i-- {
		rs.Push(rules[i])
	}
	return rs
}

// Push puts a rule on top of the stack.
func (rs *RuleStack) Push(r Rule) {
	rs.s.Push(r)
}

// Pop removes and returns the top rule.
func (rs *RuleStack) Pop() (Rule, bool) {
	if rs.s.Len() == 0 {
		return nil, false
	}
	return rs.s.Pop().(Rule), true
}

// Len returns the number of pending rules.
func (rs *RuleStack) Len() int {
	return rs.s.Len()
}

// Names returns the pending rule names, top first.
func (rs *RuleStack) Names() []string {
	var popped []Rule
	for rs.s.Len() > 0 {
		popped = append(popped, rs.s.Pop().(Rule))
	}
	names := make([]string, len(popped))
	for i, r := range popped {
		names[i] = r.Name()
	}
	for i := len(popped) - 1; i >= 0; i-- {
		rs.s.Push(popped[i])
	}
	return names
}
