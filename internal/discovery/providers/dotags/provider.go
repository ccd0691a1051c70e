// Package dotags discovers dependency edges from a
// "dependencies=svc1,svc2" droplet tag convention read via the
// DigitalOcean API.
package dotags

import (
	"context"
	"strings"
	"time"

	"github.com/digitalocean/godo"

	"github.com/rsionnach/nthlayer/internal/discovery"
	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

const tagConfidence = 0.7

// Provider implements discovery.Provider over DigitalOcean droplet tags.
type Provider struct {
	client *godo.Client
}

func New(client *godo.Client) *Provider { return &Provider{client: client} }

func (p *Provider) Name() string { return "dotags" }

func (p *Provider) Discover(ctx context.Context, service string) ([]nthlayer.DiscoveredDependency, error) {
	droplets, _, err := p.client.Droplets.ListByTag(ctx, "service:"+service, &godo.ListOptions{PerPage: 200})
	if err != nil {
		return nil, err
	}

	var edges []nthlayer.DiscoveredDependency
	for _, droplet := range droplets {
		for _, tag := range droplet.Tags {
			dep, ok := strings.CutPrefix(tag, "depends-on:")
			if !ok {
				continue
			}
			edges = append(edges, nthlayer.DiscoveredDependency{
				SourceService: service,
				TargetService: dep,
				Provider:      p.Name(),
				DepType:       nthlayer.DepTypeService,
				Confidence:    tagConfidence,
				Metadata:      map[string]any{"droplet_id": droplet.ID},
			})
		}
	}
	return edges, nil
}

func (p *Provider) ListServices(ctx context.Context) ([]string, error) {
	tags, _, err := p.client.Tags.List(ctx, &godo.ListOptions{PerPage: 200})
	if err != nil {
		return nil, err
	}
	var names []string
	for _, tag := range tags {
		if svc, ok := strings.CutPrefix(tag.Name, "service:"); ok {
			names = append(names, svc)
		}
	}
	return names, nil
}

func (p *Provider) HealthCheck(ctx context.Context) discovery.HealthStatus {
	start := time.Now()
	_, _, err := p.client.Tags.List(ctx, &godo.ListOptions{PerPage: 1})
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return discovery.HealthStatus{Healthy: false, Message: err.Error(), LatencyMS: latency}
	}
	return discovery.HealthStatus{Healthy: true, LatencyMS: latency}
}

func (p *Provider) GetServiceAttributes(ctx context.Context, service string) (map[string]any, error) {
	return nil, nil
}
