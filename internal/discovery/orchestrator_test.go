package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/rsionnach/nthlayer/internal/identity"
	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

type fakeProvider struct {
	name  string
	edges []nthlayer.DiscoveredDependency
	err   error
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) Discover(ctx context.Context, service string) ([]nthlayer.DiscoveredDependency, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []nthlayer.DiscoveredDependency
	for _, e := range f.edges {
		if e.SourceService == service {
			out = append(out, e)
		}
	}
	return out, nil
}
func (f *fakeProvider) ListServices(ctx context.Context) ([]string, error) { return []string{"checkout"}, nil }
func (f *fakeProvider) HealthCheck(ctx context.Context) HealthStatus       { return HealthStatus{Healthy: true} }
func (f *fakeProvider) GetServiceAttributes(ctx context.Context, service string) (map[string]any, error) {
	return nil, nil
}

func TestDiscoverForServiceMergesOverlappingEdges(t *testing.T) {
	a := &fakeProvider{name: "consul", edges: []nthlayer.DiscoveredDependency{
		{SourceService: "checkout", TargetService: "payments", Provider: "consul", DepType: nthlayer.DepTypeService, Confidence: 0.85},
	}}
	b := &fakeProvider{name: "portal", edges: []nthlayer.DiscoveredDependency{
		{SourceService: "checkout", TargetService: "payments", Provider: "portal", DepType: nthlayer.DepTypeService, Confidence: 0.85},
	}}

	o := New([]Provider{a, b}, identity.New(0, 0), 0)
	resolved, err := o.DiscoverForService(context.Background(), "checkout", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resolved) != 1 {
		t.Fatalf("expected edges to merge into 1, got %d", len(resolved))
	}
	if len(resolved[0].Providers) != 2 {
		t.Errorf("expected 2 providers on merged edge, got %d", len(resolved[0].Providers))
	}
	if resolved[0].Confidence <= 0.85 {
		t.Errorf("expected merge bonus to raise confidence above 0.85, got %f", resolved[0].Confidence)
	}
}

func TestDiscoverForServiceHandlesProviderErrorAsZeroEdges(t *testing.T) {
	failing := &fakeProvider{name: "failing", err: errors.New("provider unreachable")}
	o := New([]Provider{failing}, identity.New(0, 0), 0)

	resolved, err := o.DiscoverForService(context.Background(), "checkout", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resolved) != 0 {
		t.Errorf("expected no edges, got %d", len(resolved))
	}
}
