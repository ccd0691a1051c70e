package graph

import (
	"testing"
	"time"

	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

func identity(name string) *nthlayer.ServiceIdentity {
	return &nthlayer.ServiceIdentity{CanonicalName: name}
}

func buildDiamond() *Graph {
	// checkout -> payments -> ledger
	// checkout -> inventory -> ledger
	dg := &nthlayer.DependencyGraph{
		Identities: map[string]*nthlayer.ServiceIdentity{
			"checkout":  identity("checkout"),
			"payments":  identity("payments"),
			"inventory": identity("inventory"),
			"ledger":    identity("ledger"),
		},
		Edges: []nthlayer.ResolvedDependency{
			{Source: identity("checkout"), Target: identity("payments"), DepType: nthlayer.DepTypeService},
			{Source: identity("checkout"), Target: identity("inventory"), DepType: nthlayer.DepTypeService},
			{Source: identity("payments"), Target: identity("ledger"), DepType: nthlayer.DepTypeDatastore},
			{Source: identity("inventory"), Target: identity("ledger"), DepType: nthlayer.DepTypeDatastore},
		},
		BuiltAt: time.Unix(0, 0),
	}
	return Build(dg)
}

func TestBuildDropsSelfEdges(t *testing.T) {
	dg := &nthlayer.DependencyGraph{
		Identities: map[string]*nthlayer.ServiceIdentity{"loopy": identity("loopy")},
		Edges: []nthlayer.ResolvedDependency{
			{Source: identity("loopy"), Target: identity("loopy"), DepType: nthlayer.DepTypeService},
		},
	}
	g := Build(dg)
	if g.HasCycle() {
		t.Fatalf("expected self-edge to be dropped, not reported as a cycle")
	}
	if deps := g.TransitiveDependencies("loopy"); len(deps) != 0 {
		t.Errorf("expected no dependencies for self-edge-only node, got %v", deps)
	}
}

func TestBuildTracksEdgeOnlyNodes(t *testing.T) {
	dg := &nthlayer.DependencyGraph{
		Identities: map[string]*nthlayer.ServiceIdentity{"checkout": identity("checkout")},
		Edges: []nthlayer.ResolvedDependency{
			{Source: identity("checkout"), Target: identity("unregistered"), DepType: nthlayer.DepTypeExternal},
		},
	}
	g := Build(dg)
	deps := g.TransitiveDependencies("checkout")
	if len(deps) != 1 || deps[0] != "unregistered" {
		t.Fatalf("expected [unregistered], got %v", deps)
	}
}

func TestHasCycleDetectsCycle(t *testing.T) {
	dg := &nthlayer.DependencyGraph{
		Identities: map[string]*nthlayer.ServiceIdentity{
			"a": identity("a"), "b": identity("b"), "c": identity("c"),
		},
		Edges: []nthlayer.ResolvedDependency{
			{Source: identity("a"), Target: identity("b"), DepType: nthlayer.DepTypeService},
			{Source: identity("b"), Target: identity("c"), DepType: nthlayer.DepTypeService},
			{Source: identity("c"), Target: identity("a"), DepType: nthlayer.DepTypeService},
		},
	}
	g := Build(dg)
	if !g.HasCycle() {
		t.Fatalf("expected cycle a->b->c->a to be detected")
	}
}

func TestHasCycleFalseOnDiamond(t *testing.T) {
	g := buildDiamond()
	if g.HasCycle() {
		t.Fatalf("diamond-shaped graph has no cycle")
	}
}

func TestTopologicalSortOrdersDependenciesFirst(t *testing.T) {
	g := buildDiamond()
	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pos := make(map[string]int, len(order))
	for i, svc := range order {
		pos[svc] = i
	}
	if pos["ledger"] >= pos["payments"] || pos["ledger"] >= pos["inventory"] {
		t.Errorf("expected ledger before payments and inventory, got order %v", order)
	}
	if pos["payments"] >= pos["checkout"] || pos["inventory"] >= pos["checkout"] {
		t.Errorf("expected payments and inventory before checkout, got order %v", order)
	}
}

func TestTopologicalSortErrorsOnCycle(t *testing.T) {
	dg := &nthlayer.DependencyGraph{
		Identities: map[string]*nthlayer.ServiceIdentity{"a": identity("a"), "b": identity("b")},
		Edges: []nthlayer.ResolvedDependency{
			{Source: identity("a"), Target: identity("b"), DepType: nthlayer.DepTypeService},
			{Source: identity("b"), Target: identity("a"), DepType: nthlayer.DepTypeService},
		},
	}
	g := Build(dg)
	if _, err := g.TopologicalSort(); err == nil {
		t.Fatalf("expected error on cyclic graph")
	}
}

func TestTransitiveDependenciesFollowsChain(t *testing.T) {
	g := buildDiamond()
	deps := g.TransitiveDependencies("checkout")
	want := map[string]bool{"payments": true, "inventory": true, "ledger": true}
	if len(deps) != len(want) {
		t.Fatalf("got %v, want members of %v", deps, want)
	}
	for _, d := range deps {
		if !want[d] {
			t.Errorf("unexpected dependency %q", d)
		}
	}
}

func TestTransitiveDependentsFollowsReverseChain(t *testing.T) {
	g := buildDiamond()
	dependents := g.TransitiveDependents("ledger")
	want := map[string]bool{"payments": true, "inventory": true, "checkout": true}
	if len(dependents) != len(want) {
		t.Fatalf("got %v, want members of %v", dependents, want)
	}
	for _, d := range dependents {
		if !want[d] {
			t.Errorf("unexpected dependent %q", d)
		}
	}
}

func TestTransitiveDependenciesStopsAtMaxDepth(t *testing.T) {
	identities := map[string]*nthlayer.ServiceIdentity{}
	var edges []nthlayer.ResolvedDependency
	// Build a straight chain svc0 -> svc1 -> ... -> svc(N) longer than MaxTraversalDepth.
	chainLen := MaxTraversalDepth + 5
	for i := 0; i <= chainLen; i++ {
		name := svcName(i)
		identities[name] = identity(name)
		if i > 0 {
			edges = append(edges, nthlayer.ResolvedDependency{
				Source: identity(svcName(i - 1)), Target: identity(name), DepType: nthlayer.DepTypeService,
			})
		}
	}
	g := Build(&nthlayer.DependencyGraph{Identities: identities, Edges: edges})

	deps := g.TransitiveDependencies(svcName(0))
	if len(deps) != MaxTraversalDepth {
		t.Fatalf("expected traversal bounded at %d hops, got %d: %v", MaxTraversalDepth, len(deps), deps)
	}
	if contains(deps, svcName(chainLen)) {
		t.Errorf("expected chain tail beyond max depth to be excluded from %v", deps)
	}
}

func svcName(i int) string {
	return "svc-" + string(rune('a'+i))
}

func contains(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}

func TestCalculateBlastRadius(t *testing.T) {
	g := buildDiamond()
	br := g.CalculateBlastRadius("ledger")

	if br.Service != "ledger" {
		t.Errorf("got service %q, want ledger", br.Service)
	}
	if len(br.DirectImpact) != 2 {
		t.Errorf("expected 2 direct dependents of ledger, got %v", br.DirectImpact)
	}
	if br.TotalAffected != len(br.TransitiveImpact) {
		t.Errorf("TotalAffected %d should equal len(TransitiveImpact) %d", br.TotalAffected, len(br.TransitiveImpact))
	}
	if !contains(br.TransitiveImpact, "checkout") {
		t.Errorf("expected checkout in transitive impact of ledger, got %v", br.TransitiveImpact)
	}
}

func TestCalculateBlastRadiusForServiceWithNoDependents(t *testing.T) {
	g := buildDiamond()
	br := g.CalculateBlastRadius("checkout")
	if len(br.DirectImpact) != 0 || br.TotalAffected != 0 {
		t.Errorf("expected zero blast radius for a root service, got %+v", br)
	}
}

func TestRootServices(t *testing.T) {
	g := buildDiamond()
	roots := g.RootServices()
	if len(roots) != 1 || roots[0] != "checkout" {
		t.Fatalf("expected [checkout], got %v", roots)
	}
}

func TestLeafServices(t *testing.T) {
	g := buildDiamond()
	leaves := g.LeafServices()
	if len(leaves) != 1 || leaves[0] != "ledger" {
		t.Fatalf("expected [ledger], got %v", leaves)
	}
}
