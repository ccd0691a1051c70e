// Package azuretags discovers dependency edges from a
// "dependencies=svc1,svc2" resource tag convention read via the Azure
// Resource Manager API.
package azuretags

import (
	"context"
	"strings"
	"time"

	armresources "github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"

	"github.com/rsionnach/nthlayer/internal/discovery"
	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

const tagConfidence = 0.7

// Provider implements discovery.Provider over Azure resource tags.
type Provider struct {
	client         *armresources.Client
	subscriptionID string
}

func New(client *armresources.Client, subscriptionID string) *Provider {
	return &Provider{client: client, subscriptionID: subscriptionID}
}

func (p *Provider) Name() string { return "azuretags" }

func (p *Provider) Discover(ctx context.Context, service string) ([]nthlayer.DiscoveredDependency, error) {
	var edges []nthlayer.DiscoveredDependency

	pager := p.client.NewListPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, res := range page.Value {
			if res.Tags == nil || res.Tags["service"] == nil || *res.Tags["service"] != service {
				continue
			}
			deps, ok := res.Tags["dependencies"]
			if !ok || deps == nil {
				continue
			}
			for _, dep := range strings.Split(*deps, ",") {
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
	}
	return edges, nil
}

func (p *Provider) ListServices(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	pager := p.client.NewListPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, res := range page.Value {
			if res.Tags != nil && res.Tags["service"] != nil {
				seen[*res.Tags["service"]] = struct{}{}
			}
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
	pager := p.client.NewListPager(nil)
	_, err := pager.NextPage(ctx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return discovery.HealthStatus{Healthy: false, Message: err.Error(), LatencyMS: latency}
	}
	return discovery.HealthStatus{Healthy: true, LatencyMS: latency}
}

func (p *Provider) GetServiceAttributes(ctx context.Context, service string) (map[string]any, error) {
	return nil, nil
}
