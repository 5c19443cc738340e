// SPDX-License-Identifier: MPL-2.0

// Package dag orders services by their depends_on relations. Start order is a
// Kahn topological sort; Levels groups services whose dependencies are all in
// earlier levels, and Reverse gives the teardown order.
package dag

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrCycle is the sentinel error wrapped by CycleError.
var ErrCycle = errors.New("dependency cycle")

type (
	// CycleError indicates that the graph contains a cycle, preventing topological ordering.
	CycleError struct {
		// Cycle lists the nodes left unordered, in insertion order. It contains
		// every node on a cycle and may contain nodes that depend on one.
		Cycle []string
	}

	// Graph is a directed graph for topological sorting.
	// An edge from A to B means A must be started before B.
	Graph struct {
		adjacency map[string][]string
		nodes     []string
		nodeSet   map[string]bool
	}
)

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

// Unwrap returns ErrCycle for errors.Is() compatibility.
func (e *CycleError) Unwrap() error { return ErrCycle }

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		adjacency: make(map[string][]string),
		nodeSet:   make(map[string]bool),
	}
}

// AddNode adds a node to the graph. If the node already exists, this is a no-op.
func (g *Graph) AddNode(name string) {
	if g.nodeSet[name] {
		return
	}
	g.nodeSet[name] = true
	g.nodes = append(g.nodes, name)
}

// AddEdge adds a directed edge from -> to, meaning "from" must start before "to".
// Both nodes are implicitly added. Duplicate edges are ignored.
func (g *Graph) AddEdge(from, to string) {
	g.AddNode(from)
	g.AddNode(to)
	if slices.Contains(g.adjacency[from], to) {
		return
	}
	g.adjacency[from] = append(g.adjacency[from], to)
}

// TopologicalSort returns a valid start order using Kahn's algorithm.
// Nodes at the same level appear in insertion order, so output is deterministic.
func (g *Graph) TopologicalSort() ([]string, error) {
	levels, err := g.Levels()
	if err != nil {
		return nil, err
	}
	var order []string
	for _, level := range levels {
		order = append(order, level...)
	}
	return order, nil
}

// Levels partitions the nodes into start waves: every node's predecessors are in
// strictly earlier levels. Nodes within a level keep insertion order.
func (g *Graph) Levels() ([][]string, error) {
	if len(g.nodes) == 0 {
		return nil, nil
	}

	inDegree := make(map[string]int, len(g.nodes))
	for _, neighbors := range g.adjacency {
		for _, neighbor := range neighbors {
			inDegree[neighbor]++
		}
	}

	var current []string
	for _, node := range g.nodes {
		if inDegree[node] == 0 {
			current = append(current, node)
		}
	}

	var levels [][]string
	placed := 0
	for len(current) > 0 {
		levels = append(levels, current)
		placed += len(current)

		ready := make(map[string]bool)
		for _, node := range current {
			for _, neighbor := range g.adjacency[node] {
				inDegree[neighbor]--
				if inDegree[neighbor] == 0 {
					ready[neighbor] = true
				}
			}
		}

		var next []string
		for _, node := range g.nodes {
			if ready[node] {
				next = append(next, node)
			}
		}
		current = next
	}

	if placed != len(g.nodes) {
		var cycleNodes []string
		for _, node := range g.nodes {
			if inDegree[node] > 0 {
				cycleNodes = append(cycleNodes, node)
			}
		}
		return nil, &CycleError{Cycle: cycleNodes}
	}

	return levels, nil
}

// Reverse returns the teardown order: dependents before their dependencies.
func (g *Graph) Reverse() ([]string, error) {
	order, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}
	slices.Reverse(order)
	return order, nil
}
