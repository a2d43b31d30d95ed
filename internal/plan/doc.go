// Package plan defines the logical query plan and the canonical planner.
//
// A plan is a tree of typed nodes (ACCESS, JOIN, PROJECT, SELECT, SORT,
// SOURCE, ...) held in an Arena and addressed by stable NodeIDs. Every node
// carries a selector set and a property map (JOIN_CONDITION,
// PROJECT_COLUMNS, SELECT_CRITERIA, ...).
//
// SELECTOR SET INVARIANT:
//
// A node's selector set is the union of its children's sets; a SOURCE
// node's is the singleton of its alias. Arena methods restore the invariant
// after every structural edit, so rules never maintain it by hand.
//
// CanonicalPlanner produces the unoptimized plan; package optimizer rewrites
// it. Explain renders a plan deterministically for logs and golden tests.
package plan
