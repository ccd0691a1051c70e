// Package portal discovers dependency edges from a Backstage-shaped
// service catalog's dependsOn/dependencyOf relations.
package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rsionnach/nthlayer/internal/discovery"
	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

const catalogConfidence = 0.85

// Entity mirrors the relevant subset of a catalog-info.yaml entity.
type Entity struct {
	Kind     string            `json:"kind"`
	Metadata map[string]string `json:"metadata"`
	Spec     struct {
		Owner        string   `json:"owner"`
		DependsOn    []string `json:"dependsOn"`
		DependencyOf []string `json:"dependencyOf"`
	} `json:"spec"`
}

// Config points the provider at a catalog HTTP endpoint.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Provider implements discovery.Provider against a catalog entities API.
type Provider struct {
	baseURL string
	token   string
	client  *http.Client
}

func New(cfg Config) *Provider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = discovery.CallTimeout
	}
	return &Provider{baseURL: cfg.BaseURL, token: cfg.Token, client: &http.Client{Timeout: timeout}}
}

func (p *Provider) Name() string { return "portal" }

func (p *Provider) Discover(ctx context.Context, service string) ([]nthlayer.DiscoveredDependency, error) {
	entity, err := p.fetchEntity(ctx, service)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, nil
	}

	var edges []nthlayer.DiscoveredDependency
	for _, dep := range entity.Spec.DependsOn {
		target := stripEntityRef(dep)
		edges = append(edges, nthlayer.DiscoveredDependency{
			SourceService: service,
			TargetService: target,
			Provider:      p.Name(),
			DepType:       inferDepType(dep),
			Confidence:    catalogConfidence,
			Metadata:      map[string]any{"relation": "dependsOn"},
		})
	}
	for _, dep := range entity.Spec.DependencyOf {
		source := stripEntityRef(dep)
		edges = append(edges, nthlayer.DiscoveredDependency{
			SourceService: source,
			TargetService: service,
			Provider:      p.Name(),
			DepType:       nthlayer.DepTypeService,
			Confidence:    catalogConfidence,
			Metadata:      map[string]any{"relation": "dependencyOf"},
		})
	}
	return edges, nil
}

// inferDepType classifies the target entity kind per §4.3:
// resource:postgres -> datastore, resource:kafka -> queue, api: -> external.
func inferDepType(ref string) nthlayer.DepType {
	lower := strings.ToLower(ref)
	switch {
	case strings.HasPrefix(lower, "api:"):
		return nthlayer.DepTypeExternal
	case strings.Contains(lower, "postgres") || strings.Contains(lower, "mysql") || strings.Contains(lower, "dynamodb"):
		return nthlayer.DepTypeDatastore
	case strings.Contains(lower, "kafka") || strings.Contains(lower, "sqs") || strings.Contains(lower, "rabbitmq"):
		return nthlayer.DepTypeQueue
	case strings.HasPrefix(lower, "resource:"):
		return nthlayer.DepTypeInfra
	default:
		return nthlayer.DepTypeService
	}
}

func stripEntityRef(ref string) string {
	if idx := strings.LastIndex(ref, ":"); idx >= 0 {
		ref = ref[idx+1:]
	}
	if idx := strings.Index(ref, "/"); idx >= 0 {
		ref = ref[idx+1:]
	}
	return ref
}

func (p *Provider) ListServices(ctx context.Context) ([]string, error) {
	entities, err := p.fetchAllEntities(ctx)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entities {
		if e.Kind == "Component" {
			names = append(names, e.Metadata["name"])
		}
	}
	return names, nil
}

func (p *Provider) HealthCheck(ctx context.Context) discovery.HealthStatus {
	start := time.Now()
	_, err := p.fetchAllEntities(ctx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return discovery.HealthStatus{Healthy: false, Message: err.Error(), LatencyMS: latency}
	}
	return discovery.HealthStatus{Healthy: true, LatencyMS: latency}
}

func (p *Provider) GetServiceAttributes(ctx context.Context, service string) (map[string]any, error) {
	entity, err := p.fetchEntity(ctx, service)
	if err != nil || entity == nil {
		return nil, err
	}
	return map[string]any{"owner": entity.Spec.Owner, "repository": entity.Metadata["annotations.github.com/project-slug"]}, nil
}

func (p *Provider) fetchEntity(ctx context.Context, name string) (*Entity, error) {
	req, err := p.newRequest(ctx, "/api/catalog/entities/by-name/component/default/"+name)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("portal: unexpected status %d", resp.StatusCode)
	}

	var entity Entity
	if err := json.NewDecoder(resp.Body).Decode(&entity); err != nil {
		return nil, fmt.Errorf("portal: decode entity: %w", err)
	}
	return &entity, nil
}

func (p *Provider) fetchAllEntities(ctx context.Context) ([]Entity, error) {
	req, err := p.newRequest(ctx, "/api/catalog/entities")
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("portal: unexpected status %d", resp.StatusCode)
	}

	var entities []Entity
	if err := json.NewDecoder(resp.Body).Decode(&entities); err != nil {
		return nil, fmt.Errorf("portal: decode entities: %w", err)
	}
	return entities, nil
}

func (p *Provider) newRequest(ctx context.Context, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	return req, nil
}
