package dashboard

import (
	"context"
	"fmt"

	"github.com/rsionnach/nthlayer/internal/metricsdiscovery"
	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

// MetricSource answers whether a named metric series exists for a
// service, the single capability the resolver needs from the metrics
// backend.
type MetricSource interface {
	DiscoverForService(ctx context.Context, service string) (map[string]struct{}, error)
}

// Resolver applies the four-step resolution waterfall: a custom
// override from the spec wins outright, then the intent's primary
// (first) fallback candidate, then the remaining fallback chain in
// order, and finally an unresolved guidance result.
type Resolver struct {
	metrics MetricSource
}

func New(metrics *metricsdiscovery.Client) *Resolver {
	return &Resolver{metrics: metrics}
}

// Resolve walks the waterfall for a single Intent against one service.
func (r *Resolver) Resolve(ctx context.Context, service string, intent nthlayer.Intent, customMetrics map[string]string) (nthlayer.ResolutionResult, error) {
	if override, ok := customMetrics[intent.Name]; ok && override != "" {
		return nthlayer.ResolutionResult{
			Intent: intent, Status: nthlayer.ResolutionResolved,
			Expression: override, Provenance: "custom_override",
		}, nil
	}

	available, err := r.metrics.DiscoverForService(ctx, service)
	if err != nil {
		return nthlayer.ResolutionResult{}, fmt.Errorf("dashboard: discover metrics for %s: %w", service, err)
	}

	for i, candidate := range intent.FallbackChain {
		if _, found := available[candidate.NamePattern]; !found {
			continue
		}
		status := nthlayer.ResolutionFallback
		provenance := fmt.Sprintf("fallback_chain[%d]", i)
		if i == 0 {
			status = nthlayer.ResolutionResolved
			provenance = "primary_discovery"
		}
		return nthlayer.ResolutionResult{
			Intent: intent, Status: status,
			Expression: expand(candidate.QueryTemplate, service),
			Provenance: provenance,
		}, nil
	}

	return nthlayer.ResolutionResult{
		Intent: intent, Status: nthlayer.ResolutionUnresolved,
		Guidance: intent.Guidance, Provenance: "none",
	}, nil
}

// expand substitutes every %q/%s verb in template with service. Every
// cataloged query template takes the service name as its only
// parameter, repeated as many times as the expression needs it.
func expand(template, service string) string {
	count := countVerbs(template)
	args := make([]interface{}, count)
	for i := range args {
		args[i] = service
	}
	return fmt.Sprintf(template, args...)
}

func countVerbs(template string) int {
	n := 0
	for i := 0; i < len(template); i++ {
		if template[i] == '%' && i+1 < len(template) {
			n++
		}
	}
	return n
}
