// Package compiler turns CUE documents into node type definitions and
// query commands.
//
// ARCHITECTURE:
//
//	[.cue file] → CompileFile → Document{NodeTypes, Queries}
//	                             ├─ Schemata(base) → queryir.Schemata
//	                             └─ Queries[i].Command → engine.Request
//
// The CUE SDK's Go API is used directly. Compile errors carry source
// positions (CompileError); semantic checks return every problem found
// (ValidationError with E1xx codes). Supertype cycles are found with
// Tarjan's algorithm.
//
// Float values and float property types are rejected: property values
// are int64 so index documents compare deterministically.
package compiler
