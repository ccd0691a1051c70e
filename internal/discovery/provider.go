// Package discovery fans out to dependency-discovery providers, resolves
// the raw edges they return through the identity resolver, merges
// matching edges, and assembles the resulting DependencyGraph.
package discovery

import (
	"context"
	"time"

	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

// HealthStatus is a provider's self-reported health.
type HealthStatus struct {
	Healthy   bool
	Message   string
	LatencyMS int64
}

// Provider is the capability set every discovery source implements.
// Concrete providers live under internal/discovery/providers/*.
type Provider interface {
	Name() string
	Discover(ctx context.Context, service string) ([]nthlayer.DiscoveredDependency, error)
	ListServices(ctx context.Context) ([]string, error)
	HealthCheck(ctx context.Context) HealthStatus
	GetServiceAttributes(ctx context.Context, service string) (map[string]any, error)
}

// DiscoverAll provides the default "list then discover" behavior for
// providers that have no cheaper way to enumerate every edge they know
// about. Individual providers may implement their own bulk path and call
// this only as a fallback.
func DiscoverAll(ctx context.Context, p Provider) ([]nthlayer.DiscoveredDependency, error) {
	services, err := p.ListServices(ctx)
	if err != nil {
		return nil, err
	}

	var all []nthlayer.DiscoveredDependency
	for _, svc := range services {
		edges, err := p.Discover(ctx, svc)
		if err != nil {
			continue
		}
		all = append(all, edges...)
	}
	return all, nil
}

// CallTimeout bounds any single provider call, per §4.3's "providers
// must not block the orchestrator for more than a bounded timeout" rule.
const CallTimeout = 5 * time.Second

// WithTimeout enforces CallTimeout (or override) around a provider call.
func WithTimeout(ctx context.Context, override time.Duration) (context.Context, context.CancelFunc) {
	timeout := CallTimeout
	if override > 0 {
		timeout = override
	}
	return context.WithTimeout(ctx, timeout)
}
