package optimizer

import (
	"github.com/roach88/arbor/internal/plan"
	"github.com/roach88/arbor/internal/queryir"
)

// RewriteAsRangeCriteria merges a lower-bound and an upper-bound comparison
// on the same operand into one BETWEEN criterion. Only SELECT nodes in the
// same unbroken SELECT chain are merged; the lower node of the pair is
// removed.
//
//	SELECT p.rank >= 2          SELECT p.rank BETWEEN 2 AND 5 EXCLUSIVE
//	  SELECT p.rank < 5    =>     SOURCE p
//	    SOURCE p
type RewriteAsRangeCriteria struct{}

func (RewriteAsRangeCriteria) Name() string { return "RewriteAsRangeCriteria" }

func (RewriteAsRangeCriteria) Execute(_ *plan.Context, arena *plan.Arena, root plan.NodeID, _ *RuleStack) (plan.NodeID, error) {
	for changed := true; changed; {
		changed = false
		for _, sel := range arena.FindAll(root, plan.TypeSelect) {
			cmp, ok := rangeBound(arena.Node(sel).Criteria())
			if !ok {
				continue
			}
			for other := arena.FirstChild(sel); other != plan.NoNode && arena.Node(other).Type == plan.TypeSelect; other = arena.FirstChild(other) {
				otherCmp, ok := rangeBound(arena.Node(other).Criteria())
				if !ok || !sameOperand(cmp.Operand, otherCmp.Operand) || isLowerBound(cmp) == isLowerBound(otherCmp) {
					continue
				}

				lo, hi := cmp, otherCmp
				if !isLowerBound(lo) {
					lo, hi = hi, lo
				}
				arena.Node(sel).SetProperty(plan.PropSelectCriteria, queryir.Between{
					Operand:        lo.Operand,
					Lower:          lo.Value,
					Upper:          hi.Value,
					LowerInclusive: lo.Operator == queryir.OpGreaterOrEqual,
					UpperInclusive: hi.Operator == queryir.OpLessOrEqual,
				})
				if _, err := arena.Extract(other); err != nil {
					return root, err
				}
				changed = true
				break
			}
			if changed {
				break
			}
		}
	}
	return root, nil
}

// rangeBound returns c as a comparison when it bounds its operand from one
// side.
func rangeBound(c queryir.Constraint) (queryir.Comparison, bool) {
	var cmp queryir.Comparison
	switch v := c.(type) {
	case queryir.Comparison:
		cmp = v
	case *queryir.Comparison:
		if v == nil {
			return cmp, false
		}
		cmp = *v
	default:
		return cmp, false
	}
	switch cmp.Operator {
	case queryir.OpGreaterThan, queryir.OpGreaterOrEqual, queryir.OpLessThan, queryir.OpLessOrEqual:
		return cmp, true
	}
	return cmp, false
}

func isLowerBound(cmp queryir.Comparison) bool {
	return cmp.Operator == queryir.OpGreaterThan || cmp.Operator == queryir.OpGreaterOrEqual
}

func sameOperand(a, b queryir.DynamicOperand) bool {
	return queryir.FormatOperand(a) == queryir.FormatOperand(b)
}

// ReorderSortAndRemoveDuplicates swaps a DUP_REMOVE that sits directly
// above a SORT, so duplicates are removed before sorting.
type ReorderSortAndRemoveDuplicates struct{}

func (ReorderSortAndRemoveDuplicates) Name() string { return "ReorderSortAndRemoveDuplicates" }

func (ReorderSortAndRemoveDuplicates) Execute(_ *plan.Context, arena *plan.Arena, root plan.NodeID, _ *RuleStack) (plan.NodeID, error) {
	for _, dup := range arena.FindAll(root, plan.TypeDupRemove) {
		child := arena.FirstChild(dup)
		if child == plan.NoNode || arena.Node(child).Type != plan.TypeSort || len(arena.Node(dup).Children) != 1 {
			continue
		}
		top, err := arena.SwapWithChild(dup)
		if err != nil {
			return root, err
		}
		if dup == root {
			root = top
		}
	}
	return root, nil
}
