package discovery

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rsionnach/nthlayer/internal/cache"
	"github.com/rsionnach/nthlayer/internal/identity"
	"github.com/rsionnach/nthlayer/internal/logging"
	"github.com/rsionnach/nthlayer/internal/telemetry"
	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

// fullGraphBatchSize bounds memory/connection pressure when a full-graph
// build enumerates every known service.
const fullGraphBatchSize = 10

// Orchestrator fans discovery requests out to every registered provider,
// resolves identities, merges matching edges, and assembles
// DependencyGraphs.
type Orchestrator struct {
	providers []Provider
	resolver  *identity.Resolver
	cache     *cache.TTLCache
	cacheTTL  time.Duration
}

// New builds an Orchestrator over the given providers, sharing resolver
// for identity resolution across every discovery and ownership lookup.
// cacheTTL governs how long a resolved edge set is cached and defaults
// to the top-level `cache_ttl` config value (cache.DefaultTTL) when zero.
func New(providers []Provider, resolver *identity.Resolver, cacheTTL time.Duration) *Orchestrator {
	if cacheTTL <= 0 {
		cacheTTL = cache.DefaultTTL
	}
	return &Orchestrator{
		providers: providers,
		resolver:  resolver,
		cache:     cache.New(cacheTTL, 2000),
		cacheTTL:  cacheTTL,
	}
}

// DiscoverForService fans out to every provider for service, resolves
// and merges the results, and returns the canonical edges. Cached for
// cacheTTL unless useCache is false.
func (o *Orchestrator) DiscoverForService(ctx context.Context, service string, useCache bool) ([]nthlayer.ResolvedDependency, error) {
	if useCache {
		if v, ok := o.cache.Get(service); ok {
			return v.([]nthlayer.ResolvedDependency), nil
		}
	}

	raw := o.fanOut(ctx, service)
	resolved := o.resolveAndMerge(raw)

	o.cache.Set(service, resolved, o.cacheTTL)
	return resolved, nil
}

// fanOut launches Discover on every provider concurrently and collects
// results with per-call deadlines; a provider error yields zero edges
// rather than aborting the others. If ctx is cancelled, in-flight calls
// are abandoned and no partial result is returned.
func (o *Orchestrator) fanOut(ctx context.Context, service string) []nthlayer.DiscoveredDependency {
	var wg sync.WaitGroup
	results := make(chan []nthlayer.DiscoveredDependency, len(o.providers))

	for _, p := range o.providers {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			callCtx, cancel := WithTimeout(ctx, 0)
			defer cancel()

			start := time.Now()
			edges, err := p.Discover(callCtx, service)
			telemetry.Get().RecordDiscovery(p.Name(), time.Since(start), len(edges), err)
			if err != nil {
				logging.GetLogger().Warning("discovery provider call failed",
					logging.String("provider", p.Name()), logging.String("service", service), logging.Err(err))
				results <- nil
				return
			}
			results <- edges
		}(p)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var all []nthlayer.DiscoveredDependency
	for {
		select {
		case edges, ok := <-results:
			if !ok {
				return all
			}
			all = append(all, edges...)
		case <-ctx.Done():
			return nil
		}
	}
}

type edgeKey struct {
	source  string
	target  string
	depType nthlayer.DepType
}

// resolveAndMerge resolves every raw edge's endpoints through the
// identity resolver, groups by (canonical_source, canonical_target,
// dep_type), and merges each group per §4.4 step 4.
func (o *Orchestrator) resolveAndMerge(raw []nthlayer.DiscoveredDependency) []nthlayer.ResolvedDependency {
	groups := make(map[edgeKey]*nthlayer.ResolvedDependency)

	for _, edge := range raw {
		source := o.resolver.RegisterFromDiscovery(edge.SourceService, edge.Provider, edge.Metadata)
		target := o.resolver.RegisterFromDiscovery(edge.TargetService, edge.Provider, edge.Metadata)

		key := edgeKey{source: source.CanonicalName, target: target.CanonicalName, depType: edge.DepType}
		existing, ok := groups[key]
		if !ok {
			groups[key] = &nthlayer.ResolvedDependency{
				Source:     source,
				Target:     target,
				DepType:    edge.DepType,
				Confidence: edge.Confidence,
				Providers:  []string{edge.Provider},
				Metadata:   copyMetadata(edge.Metadata),
			}
			continue
		}

		mergeEdge(existing, edge)
	}

	resolved := make([]nthlayer.ResolvedDependency, 0, len(groups))
	for _, e := range groups {
		resolved = append(resolved, *e)
	}

	sort.Slice(resolved, func(i, j int) bool {
		a, b := resolved[i], resolved[j]
		if a.Source.CanonicalName != b.Source.CanonicalName {
			return a.Source.CanonicalName < b.Source.CanonicalName
		}
		if a.Target.CanonicalName != b.Target.CanonicalName {
			return a.Target.CanonicalName < b.Target.CanonicalName
		}
		return a.DepType < b.DepType
	})
	return resolved
}

func mergeEdge(existing *nthlayer.ResolvedDependency, edge nthlayer.DiscoveredDependency) {
	if !containsString(existing.Providers, edge.Provider) {
		existing.Providers = append(existing.Providers, edge.Provider)
	}

	base := math.Max(existing.Confidence, edge.Confidence)
	bonus := math.Min(0.1*float64(len(existing.Providers)-1), 0.2)
	existing.Confidence = math.Min(base+bonus, 1.0)

	for k, v := range edge.Metadata {
		existing.Metadata[k] = v
	}
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func copyMetadata(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// BuildFullGraph discovers edges for every service across all providers
// (or the given services, if supplied), processing in batches of 10, and
// assembles the sorted, deterministic DependencyGraph.
func (o *Orchestrator) BuildFullGraph(ctx context.Context, services []string) (*nthlayer.DependencyGraph, error) {
	if len(services) == 0 {
		services = o.unionOfListedServices(ctx)
	}

	var allEdges []nthlayer.ResolvedDependency
	seen := make(map[edgeKey]bool)

	for start := 0; start < len(services); start += fullGraphBatchSize {
		end := start + fullGraphBatchSize
		if end > len(services) {
			end = len(services)
		}

		for _, svc := range services[start:end] {
			edges, err := o.DiscoverForService(ctx, svc, false)
			if err != nil {
				return nil, fmt.Errorf("discovery: build full graph: %w", err)
			}
			for _, e := range edges {
				key := edgeKey{source: e.Source.CanonicalName, target: e.Target.CanonicalName, depType: e.DepType}
				if !seen[key] {
					seen[key] = true
					allEdges = append(allEdges, e)
				}
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}

	sort.Slice(allEdges, func(i, j int) bool {
		a, b := allEdges[i], allEdges[j]
		if a.Source.CanonicalName != b.Source.CanonicalName {
			return a.Source.CanonicalName < b.Source.CanonicalName
		}
		if a.Target.CanonicalName != b.Target.CanonicalName {
			return a.Target.CanonicalName < b.Target.CanonicalName
		}
		return a.DepType < b.DepType
	})

	identities := o.resolver.All()
	return &nthlayer.DependencyGraph{
		Identities:    identities,
		Edges:         allEdges,
		BuiltAt:       time.Now().UTC(),
		ProvidersUsed: o.providerNames(),
	}, nil
}

func (o *Orchestrator) unionOfListedServices(ctx context.Context) []string {
	set := make(map[string]struct{})
	for _, p := range o.providers {
		names, err := p.ListServices(ctx)
		if err != nil {
			continue
		}
		for _, n := range names {
			set[n] = struct{}{}
		}
	}

	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (o *Orchestrator) providerNames() []string {
	names := make([]string, len(o.providers))
	for i, p := range o.providers {
		names[i] = p.Name()
	}
	return names
}
