// Package queryir provides the query command model: the parsed form of a
// query handed to the planner.
//
// ARCHITECTURE:
//
//	[CUE query document] → compiler → [QueryCommand] → plan → optimizer → engine
//
// A QueryCommand names its sources (Selectors, possibly combined by Joins),
// an optional Constraint, Orderings, projected Columns, Limits, and a
// Distinct flag. Values in literals are ir.Values (no floats).
//
// SEALED INTERFACES:
//
// Source, JoinCondition, Constraint, DynamicOperand, and StaticOperand are
// sealed using the marker method pattern. Only types in this package
// implement them, which keeps type switches in the planner, optimizer, and
// engine exhaustive. Helpers accept both value and pointer variants.
//
// JOIN CONDITIONS:
//
// EquiJoinCondition (S1.P1 = S2.P2) is the only condition the optimizer
// rewrites around: the join columns must be projected by each side's
// access path. SameNode, ChildNode, and DescendantNode conditions compare
// node identity and paths.
//
// COLUMNS:
//
// A Column's output name defaults to its property name, or
// "selector.property" when qualification is requested. Two columns are
// equivalent when they share a selector and either name of one matches
// either name of the other (Column.Matches).
//
// SCHEMATA:
//
// Schemata is the node-type system: supertypes, declared property types,
// and the default column type (STRING) for undeclared properties.
//
// VALIDATION:
//
// Validate reports every problem (unknown selector, malformed join
// condition, unbound variable, ...) rather than stopping at the first, so
// callers can surface all of them at once.
package queryir
