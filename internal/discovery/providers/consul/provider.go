// Package consul discovers dependency edges from a service registry's
// intentions/policies: an explicit source->destination (or reverse)
// permission record, which is a statement of a real dependency edge.
package consul

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/rsionnach/nthlayer/internal/discovery"
	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

// intentionConfidence is the explicit-policy confidence floor from §4.3.
const intentionConfidence = 0.85

// Intention mirrors one entry of a registry's ServiceIntentions response.
type Intention struct {
	SourceName string `json:"SourceName"`
	DestName   string `json:"DestinationName"`
	Action     string `json:"Action"`
}

// Config points the provider at a registry HTTP endpoint, optionally
// behind an OAuth2 client-credentials bearer token.
type Config struct {
	BaseURL      string
	Token        string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Timeout      time.Duration
}

// Provider implements discovery.Provider against a Consul-shaped
// service-intentions HTTP API.
type Provider struct {
	baseURL string
	client  *http.Client
}

// New builds a Provider. When cfg.ClientID is set, requests carry an
// OAuth2 client-credentials bearer token; otherwise cfg.Token (if any)
// is used as a static bearer token.
func New(cfg Config) *Provider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = discovery.CallTimeout
	}

	var httpClient *http.Client
	if cfg.ClientID != "" {
		ccCfg := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		httpClient = ccCfg.Client(context.Background())
		httpClient.Timeout = timeout
	} else {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Provider{baseURL: cfg.BaseURL, client: httpClient}
}

func (p *Provider) Name() string { return "consul" }

// Discover emits both outbound and inbound edges for service, since
// registry intentions declare permission in both directions.
func (p *Provider) Discover(ctx context.Context, service string) ([]nthlayer.DiscoveredDependency, error) {
	intentions, err := p.fetchIntentions(ctx)
	if err != nil {
		return nil, err
	}

	var edges []nthlayer.DiscoveredDependency
	for _, in := range intentions {
		if in.Action != "allow" {
			continue
		}
		switch service {
		case in.SourceName:
			edges = append(edges, p.edge(in.SourceName, in.DestName))
		case in.DestName:
			edges = append(edges, p.edge(in.SourceName, in.DestName))
		}
	}
	return edges, nil
}

func (p *Provider) edge(source, dest string) nthlayer.DiscoveredDependency {
	return nthlayer.DiscoveredDependency{
		SourceService: source,
		TargetService: dest,
		Provider:      p.Name(),
		DepType:       nthlayer.DepTypeService,
		Confidence:    intentionConfidence,
		Metadata:      map[string]any{"source": "intention"},
	}
}

func (p *Provider) ListServices(ctx context.Context) ([]string, error) {
	intentions, err := p.fetchIntentions(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	for _, in := range intentions {
		seen[in.SourceName] = struct{}{}
		seen[in.DestName] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	return names, nil
}

func (p *Provider) HealthCheck(ctx context.Context) discovery.HealthStatus {
	start := time.Now()
	_, err := p.fetchIntentions(ctx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return discovery.HealthStatus{Healthy: false, Message: err.Error(), LatencyMS: latency}
	}
	return discovery.HealthStatus{Healthy: true, LatencyMS: latency}
}

func (p *Provider) GetServiceAttributes(ctx context.Context, service string) (map[string]any, error) {
	return nil, nil
}

func (p *Provider) fetchIntentions(ctx context.Context) ([]Intention, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/connect/intentions", nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("consul: unexpected status %d", resp.StatusCode)
	}

	var intentions []Intention
	if err := json.NewDecoder(resp.Body).Decode(&intentions); err != nil {
		return nil, fmt.Errorf("consul: decode intentions: %w", err)
	}
	return intentions, nil
}
