package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/arbor/internal/queryir"
)

// TypeCycle is a loop in the supertype relation of node type definitions.
type TypeCycle struct {
	Path    []string `json:"path"`    // Cycle path: ["a", "b", "a"]
	Message string   `json:"message"` // Human-readable description
}

// AnalyzeSupertypes finds supertype cycles among node type definitions.
//
// The algorithm:
//  1. Build a type → supertypes graph (edges to undefined types are kept;
//     they cannot close a cycle)
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or self-loops as a cycle
//
// An acyclic hierarchy returns an empty list. Results are ordered by their
// first type name.
func AnalyzeSupertypes(types []queryir.NodeType) []TypeCycle {
	if len(types) == 0 {
		return []TypeCycle{}
	}

	graph := buildSupertypeGraph(types)
	sccs := tarjanSCC(graph)

	cycles := []TypeCycle{}
	for _, scc := range sccs {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			sort.Strings(scc)
			cycles = append(cycles, sccToCycle(scc, graph))
		}
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i].Path[0] < cycles[j].Path[0] })
	return cycles
}

// typeGraph maps type name → supertype names.
type typeGraph map[string][]string

func buildSupertypeGraph(types []queryir.NodeType) typeGraph {
	graph := make(typeGraph, len(types))
	for _, nt := range types {
		graph[nt.Name] = append(graph[nt.Name], nt.Supertypes...)
	}
	return graph
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph typeGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph typeGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root node: pop the stack and create an SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	// Visit in sorted order so results do not depend on map iteration.
	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

func sccToCycle(scc []string, graph typeGraph) TypeCycle {
	if len(scc) == 1 {
		name := scc[0]
		return TypeCycle{
			Path:    []string{name, name},
			Message: fmt.Sprintf("type %s is its own supertype", name),
		}
	}

	path := reconstructCyclePath(scc, graph)
	return TypeCycle{
		Path:    path,
		Message: fmt.Sprintf("supertype cycle: %s", strings.Join(path, " -> ")),
	}
}

// reconstructCyclePath follows edges within the SCC from its first member
// until it returns to the start.
func reconstructCyclePath(scc []string, graph typeGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	sccSet := make(map[string]bool)
	for _, node := range scc {
		sccSet[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}

	return path
}
