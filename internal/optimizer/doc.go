// Package optimizer rewrites canonical plans with a stack of rules.
//
// RuleBasedOptimizer pops the top rule, runs it against the whole plan,
// and repeats until the stack is empty. Rules may push follow-up rules.
// Rule errors abort the optimization. An iteration ceiling
// (DefaultMaxIterations, WithMaxIterations) turns a rule that keeps
// rescheduling itself into ErrRuleLimit instead of a hang.
//
// Default ordering, top first:
//
//  1. RightOuterToLeftOuterJoins
//  2. AddAccessNodes
//  3. PushSelectCriteria
//  4. PushProjects
//  5. AddOrderingColumnsToSources (sorted plans only)
//  6. RewriteAsRangeCriteria
//  7. AddJoinConditionColumnsToSources (plans with joins only)
//  8. ChooseJoinAlgorithm (plans with joins only)
//  9. ReorderSortAndRemoveDuplicates
//
// Every rule is idempotent: running it on its own output changes nothing.
package optimizer
