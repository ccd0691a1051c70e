package dashboard

import (
	"context"
	"testing"

	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

type fakeMetricSource struct {
	available map[string]struct{}
}

func (f *fakeMetricSource) DiscoverForService(ctx context.Context, service string) (map[string]struct{}, error) {
	return f.available, nil
}

func TestResolveCustomOverrideWins(t *testing.T) {
	r := &Resolver{metrics: &fakeMetricSource{available: map[string]struct{}{}}}
	intent := nthlayer.Intent{Name: "request_rate", FallbackChain: []nthlayer.MetricCandidate{{NamePattern: "http_requests_total", QueryTemplate: "sum(rate(http_requests_total{service=%q}[5m]))"}}}

	result, err := r.Resolve(context.Background(), "checkout", intent, map[string]string{"request_rate": "sum(rate(custom_total[5m]))"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != nthlayer.ResolutionResolved || result.Provenance != "custom_override" {
		t.Fatalf("expected custom override resolution, got %+v", result)
	}
	if result.Expression != "sum(rate(custom_total[5m]))" {
		t.Fatalf("expected override expression preserved verbatim, got %q", result.Expression)
	}
}

func TestResolvePrimaryDiscovery(t *testing.T) {
	r := &Resolver{metrics: &fakeMetricSource{available: map[string]struct{}{"http_requests_total": {}}}}
	intent := ForTechnology("http")[0]

	result, err := r.Resolve(context.Background(), "checkout", intent, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != nthlayer.ResolutionResolved {
		t.Fatalf("expected resolved, got %s", result.Status)
	}
}

func TestResolveFallbackChain(t *testing.T) {
	r := &Resolver{metrics: &fakeMetricSource{available: map[string]struct{}{"http_server_requests_seconds": {}}}}
	intent := nthlayer.Intent{
		Name: "latency_p99",
		FallbackChain: []nthlayer.MetricCandidate{
			{NamePattern: "http_request_duration_seconds", QueryTemplate: "histogram_quantile(0.99, sum(rate(http_request_duration_seconds_bucket{service=%q}[5m])) by (le))"},
			{NamePattern: "http_server_requests_seconds", QueryTemplate: "histogram_quantile(0.99, sum(rate(http_server_requests_seconds_bucket{service=%q}[5m])) by (le))"},
		},
	}

	result, err := r.Resolve(context.Background(), "checkout", intent, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != nthlayer.ResolutionFallback {
		t.Fatalf("expected fallback, got %s", result.Status)
	}
	if result.Provenance != "fallback_chain[1]" {
		t.Fatalf("expected fallback_chain[1], got %s", result.Provenance)
	}
}

func TestResolveUnresolvedCarriesGuidance(t *testing.T) {
	r := &Resolver{metrics: &fakeMetricSource{available: map[string]struct{}{}}}
	intent := nthlayer.Intent{Name: "queue_depth", Guidance: "install the exporter"}

	result, err := r.Resolve(context.Background(), "checkout", intent, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != nthlayer.ResolutionUnresolved {
		t.Fatalf("expected unresolved, got %s", result.Status)
	}
	if result.Guidance != "install the exporter" {
		t.Fatalf("expected guidance carried through, got %q", result.Guidance)
	}
}

func TestGeneratePanelsAreSortedAndDeterministic(t *testing.T) {
	resolver := &Resolver{metrics: &fakeMetricSource{available: map[string]struct{}{"http_requests_total": {}}}}
	gen := NewGenerator(resolver)
	spec := &nthlayer.ServiceSpec{Name: "checkout", Type: nthlayer.ServiceTypeAPI}

	dash, err := gen.Generate(context.Background(), spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 1; i < len(dash.Panels); i++ {
		if dash.Panels[i-1].Title > dash.Panels[i].Title {
			t.Fatalf("panels not sorted: %s before %s", dash.Panels[i-1].Title, dash.Panels[i].Title)
		}
	}
}
