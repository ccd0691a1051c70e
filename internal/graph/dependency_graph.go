// Package graph provides cycle-safe traversal over a resolved service
// dependency graph: transitive closure, blast radius, and topological
// ordering for the discovery orchestrator's merged output.
package graph

import (
	"fmt"

	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

// Graph is an adjacency-list view of a nthlayer.DependencyGraph, built
// once per discovery run for O(1) neighbor lookups during traversal.
type Graph struct {
	services map[string]bool
	edges    map[string][]string // service -> services it depends on
	reverse  map[string][]string // service -> services that depend on it
}

// Build indexes a resolved dependency graph for traversal. Self-edges
// are dropped; nodes reachable only as edge endpoints (no ServiceIdentity
// entry) are still tracked so blast-radius queries don't panic on them.
func Build(dg *nthlayer.DependencyGraph) *Graph {
	g := &Graph{
		services: make(map[string]bool),
		edges:    make(map[string][]string),
		reverse:  make(map[string][]string),
	}

	for name := range dg.Identities {
		g.services[name] = true
	}

	for _, edge := range dg.Edges {
		if edge.Source == nil || edge.Target == nil {
			continue
		}
		from, to := edge.Source.CanonicalName, edge.Target.CanonicalName
		if from == to {
			continue
		}
		g.services[from] = true
		g.services[to] = true
		g.edges[from] = append(g.edges[from], to)
		g.reverse[to] = append(g.reverse[to], from)
	}

	return g
}

// HasCycle reports whether the graph contains a dependency cycle,
// using a visited+recursion-stack DFS.
func (g *Graph) HasCycle() bool {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	var visit func(node string) bool
	visit = func(node string) bool {
		visited[node] = true
		onStack[node] = true
		defer func() { onStack[node] = false }()

		for _, dep := range g.edges[node] {
			if !visited[dep] {
				if visit(dep) {
					return true
				}
			} else if onStack[dep] {
				return true
			}
		}
		return false
	}

	for node := range g.services {
		if !visited[node] {
			if visit(node) {
				return true
			}
		}
	}
	return false
}

// TopologicalSort returns services ordered so each appears before
// anything that depends on it. Returns an error if the graph has a
// cycle — callers fall back to reporting the cycle rather than
// silently picking an order.
func (g *Graph) TopologicalSort() ([]string, error) {
	if g.HasCycle() {
		return nil, fmt.Errorf("graph: dependency cycle detected, cannot order topologically")
	}

	visited := make(map[string]bool)
	var order []string

	var visit func(node string)
	visit = func(node string) {
		visited[node] = true
		for _, dep := range g.edges[node] {
			if !visited[dep] {
				visit(dep)
			}
		}
		order = append(order, node)
	}

	// Deterministic traversal order keeps output stable across runs with
	// the same input, which the plan-stability guarantee depends on.
	for _, node := range g.sortedServices() {
		if !visited[node] {
			visit(node)
		}
	}
	return order, nil
}

// MaxTraversalDepth bounds how far a transitive traversal follows
// edges, per §9's guidance that cyclic/self-referential graphs need an
// explicit visited-set AND a max-depth bound to guarantee termination
// — the visited-set alone is sufficient for correctness on a finite
// graph, but a pathological long dependency chain should still stop
// producing results at a bounded hop count rather than walking the
// whole graph.
const MaxTraversalDepth = 10

// TransitiveDependencies returns every service reachable by following
// "depends on" edges from service, direct and indirect, up to
// MaxTraversalDepth hops.
func (g *Graph) TransitiveDependencies(service string) []string {
	return g.collect(service, g.edges)
}

// TransitiveDependents returns every service that would be affected,
// directly or indirectly, by a failure of service — its blast radius —
// up to MaxTraversalDepth hops.
func (g *Graph) TransitiveDependents(service string) []string {
	return g.collect(service, g.reverse)
}

func (g *Graph) collect(start string, adjacency map[string][]string) []string {
	visited := make(map[string]bool)
	var out []string

	var walk func(node string, depth int)
	walk = func(node string, depth int) {
		if depth >= MaxTraversalDepth {
			return
		}
		for _, next := range adjacency[node] {
			if !visited[next] {
				visited[next] = true
				out = append(out, next)
				walk(next, depth+1)
			}
		}
	}
	walk(start, 0)
	return out
}

// BlastRadius summarizes the impact of service becoming unavailable.
type BlastRadius struct {
	Service        string   `json:"service"`
	DirectImpact   []string `json:"direct_impact"`
	TransitiveImpact []string `json:"transitive_impact"`
	TotalAffected  int      `json:"total_affected"`
}

// CalculateBlastRadius reports the direct and transitive dependents of
// service — the services an on-call engineer needs to watch if service
// goes down.
func (g *Graph) CalculateBlastRadius(service string) BlastRadius {
	direct := append([]string(nil), g.reverse[service]...)
	transitive := g.TransitiveDependents(service)

	return BlastRadius{
		Service:          service,
		DirectImpact:     direct,
		TransitiveImpact: transitive,
		TotalAffected:    len(transitive),
	}
}

// RootServices returns services nothing depends on (entry points).
func (g *Graph) RootServices() []string {
	var roots []string
	for svc := range g.services {
		if len(g.reverse[svc]) == 0 {
			roots = append(roots, svc)
		}
	}
	return roots
}

// LeafServices returns services with no dependencies of their own.
func (g *Graph) LeafServices() []string {
	var leaves []string
	for svc := range g.services {
		if len(g.edges[svc]) == 0 {
			leaves = append(leaves, svc)
		}
	}
	return leaves
}

func (g *Graph) sortedServices() []string {
	names := make([]string, 0, len(g.services))
	for svc := range g.services {
		names = append(names, svc)
	}
	// insertion sort is fine here: discovery graphs are service-scale (tens
	// to low thousands of nodes), not edge-scale internet graphs.
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j] < names[j-1]; j-- {
			names[j], names[j-1] = names[j-1], names[j]
		}
	}
	return names
}
