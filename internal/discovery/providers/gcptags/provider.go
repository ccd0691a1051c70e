// Package gcptags discovers dependency edges from a
// "dependencies=svc1,svc2" instance label convention read via the GCP
// Compute Engine API.
package gcptags

import (
	"context"
	"strings"
	"time"

	computepb "cloud.google.com/go/compute/apiv1/computepb"
	compute "cloud.google.com/go/compute/apiv1"
	"google.golang.org/api/iterator"

	"github.com/rsionnach/nthlayer/internal/discovery"
	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

const tagConfidence = 0.7

// Provider implements discovery.Provider over GCE instance labels.
type Provider struct {
	client    *compute.InstancesClient
	project   string
	zone      string
}

func New(client *compute.InstancesClient, project, zone string) *Provider {
	return &Provider{client: client, project: project, zone: zone}
}

func (p *Provider) Name() string { return "gcptags" }

func (p *Provider) Discover(ctx context.Context, service string) ([]nthlayer.DiscoveredDependency, error) {
	var edges []nthlayer.DiscoveredDependency

	it := p.client.List(ctx, &computepb.ListInstancesRequest{Project: p.project, Zone: p.zone})
	for {
		instance, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		if instance.Labels["service"] != service {
			continue
		}
		deps, ok := instance.Labels["dependencies"]
		if !ok {
			continue
		}
		for _, dep := range strings.Split(deps, "_") { // GCE labels disallow commas
			dep = strings.TrimSpace(dep)
			if dep == "" {
				continue
			}
			edges = append(edges, nthlayer.DiscoveredDependency{
				SourceService: service,
				TargetService: dep,
				Provider:      p.Name(),
				DepType:       nthlayer.DepTypeService,
				Confidence:    tagConfidence,
			})
		}
	}
	return edges, nil
}

func (p *Provider) ListServices(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	it := p.client.List(ctx, &computepb.ListInstancesRequest{Project: p.project, Zone: p.zone})
	for {
		instance, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		if name, ok := instance.Labels["service"]; ok {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	return names, nil
}

func (p *Provider) HealthCheck(ctx context.Context) discovery.HealthStatus {
	start := time.Now()
	it := p.client.List(ctx, &computepb.ListInstancesRequest{Project: p.project, Zone: p.zone})
	_, err := it.Next()
	latency := time.Since(start).Milliseconds()
	if err != nil && err != iterator.Done {
		return discovery.HealthStatus{Healthy: false, Message: err.Error(), LatencyMS: latency}
	}
	return discovery.HealthStatus{Healthy: true, LatencyMS: latency}
}

func (p *Provider) GetServiceAttributes(ctx context.Context, service string) (map[string]any, error) {
	return nil, nil
}
