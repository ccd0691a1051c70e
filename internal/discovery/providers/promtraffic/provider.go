// Package promtraffic discovers dependency edges from inter-service
// request-rate metrics: a sustained, non-trivial call rate from one
// service to another is itself evidence of a dependency.
package promtraffic

import (
	"context"
	"fmt"
	"time"

	"github.com/rsionnach/nthlayer/internal/discovery"
	"github.com/rsionnach/nthlayer/internal/metricsdiscovery"
	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

// minRatePerSecond is the minimum observed call rate before an edge is
// emitted at all, per §4.3's "only above a minimum rate threshold" rule.
const minRatePerSecond = 0.01

// maxConfidence caps traffic-inferred confidence below explicit-policy
// confidence, since a request rate is evidence, not a declaration.
const maxConfidence = 0.9

const trafficQueryTemplate = `sum(rate(http_requests_total{source="%s"}[5m])) by (destination)`

// Provider implements discovery.Provider over request-rate metrics
// queried from a metricsdiscovery.Client.
type Provider struct {
	client *metricsdiscovery.Client
}

func New(client *metricsdiscovery.Client) *Provider {
	return &Provider{client: client}
}

func (p *Provider) Name() string { return "promtraffic" }

func (p *Provider) Discover(ctx context.Context, service string) ([]nthlayer.DiscoveredDependency, error) {
	expr := fmt.Sprintf(trafficQueryTemplate, service)

	byDestination, err := p.client.InstantVectorByLabel(ctx, expr, "destination")
	if err != nil {
		return nil, fmt.Errorf("promtraffic: discover %s: %w", service, err)
	}

	var edges []nthlayer.DiscoveredDependency
	for destination, rate := range byDestination {
		if rate < minRatePerSecond {
			continue
		}

		confidence := rate / (rate + 10) // scales toward maxConfidence as rate grows
		if confidence > maxConfidence {
			confidence = maxConfidence
		}

		edges = append(edges, nthlayer.DiscoveredDependency{
			SourceService: service,
			TargetService: destination,
			Provider:      p.Name(),
			DepType:       nthlayer.DepTypeService,
			Confidence:    confidence,
			Metadata:      map[string]any{"observed_rate_per_second": rate},
		})
	}
	return edges, nil
}

func (p *Provider) ListServices(ctx context.Context) ([]string, error) {
	return p.client.LabelValues(ctx, "source")
}

func (p *Provider) HealthCheck(ctx context.Context) discovery.HealthStatus {
	start := time.Now()
	_, err := p.client.LabelValues(ctx, "source")
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return discovery.HealthStatus{Healthy: false, Message: err.Error(), LatencyMS: latency}
	}
	return discovery.HealthStatus{Healthy: true, LatencyMS: latency}
}

func (p *Provider) GetServiceAttributes(ctx context.Context, service string) (map[string]any, error) {
	return nil, nil
}
