// Package ownership aggregates ownership signals from many providers
// into a single OwnershipAttribution, using the fixed weighted-priority
// table of spec §4.5.
package ownership

import (
	"context"
	"sort"
	"sync"

	"github.com/rsionnach/nthlayer/internal/discovery"
	"github.com/rsionnach/nthlayer/internal/logging"
	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

// DefaultThreshold is the minimum weighted score a signal needs to win.
const DefaultThreshold = 0.5

// DefaultOwner is used when no signal clears the threshold.
const DefaultOwner = "unassigned"

// Provider supplies one ownership opinion for a service.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, service, repo string) (*nthlayer.OwnershipSignal, error)
}

// Resolver aggregates signals from every registered Provider plus an
// optional declared owner into a single attribution.
type Resolver struct {
	providers []Provider
	threshold float64
	fallback  string
}

// New builds a Resolver. threshold/fallback default to DefaultThreshold
// and DefaultOwner when zero/empty.
func New(providers []Provider, threshold float64, fallback string) *Resolver {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if fallback == "" {
		fallback = DefaultOwner
	}
	return &Resolver{providers: providers, threshold: threshold, fallback: fallback}
}

// Resolve queries every provider concurrently, scores each returned
// signal by confidence x weight[source], and returns the
// highest-scoring attribution above the threshold, falling back to the
// configured default owner at confidence 0 otherwise.
func (r *Resolver) Resolve(ctx context.Context, service, declaredOwner, repo string) nthlayer.OwnershipAttribution {
	signals := r.collectSignals(ctx, service, declaredOwner, repo)

	best, bestScore := pickBest(signals)
	if best == nil || bestScore < r.threshold {
		return nthlayer.OwnershipAttribution{
			Service:    service,
			Owner:      r.fallback,
			Confidence: 0,
			AllSignals: signals,
		}
	}

	attribution := nthlayer.OwnershipAttribution{
		Service:      service,
		Owner:        best.Owner,
		Confidence:   bestScore,
		ChosenSource: best.Source,
		AllSignals:   signals,
	}
	harvestContactFields(&attribution, signals)
	return attribution
}

func (r *Resolver) collectSignals(ctx context.Context, service, declaredOwner, repo string) []nthlayer.OwnershipSignal {
	var signals []nthlayer.OwnershipSignal
	if declaredOwner != "" {
		signals = append(signals, nthlayer.OwnershipSignal{
			Source: nthlayer.OwnershipDeclared, Owner: declaredOwner, Confidence: 1.0,
		})
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, p := range r.providers {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			callCtx, cancel := discovery.WithTimeout(ctx, 0)
			defer cancel()

			signal, err := p.Resolve(callCtx, service, repo)
			if err != nil || signal == nil {
				if err != nil {
					logging.GetLogger().Warning("ownership provider call failed",
						logging.String("provider", p.Name()), logging.String("service", service), logging.Err(err))
				}
				return
			}

			mu.Lock()
			signals = append(signals, *signal)
			mu.Unlock()
		}(p)
	}
	wg.Wait()

	sort.Slice(signals, func(i, j int) bool { return signals[i].Source < signals[j].Source })
	return signals
}

func pickBest(signals []nthlayer.OwnershipSignal) (*nthlayer.OwnershipSignal, float64) {
	var best *nthlayer.OwnershipSignal
	bestScore := -1.0
	for i := range signals {
		score := signals[i].Score()
		if score > bestScore {
			best, bestScore = &signals[i], score
		}
	}
	return best, bestScore
}

func harvestContactFields(attribution *nthlayer.OwnershipAttribution, signals []nthlayer.OwnershipSignal) {
	for _, s := range signals {
		if attribution.ChatChannel == "" {
			if v, ok := s.Metadata["chat_channel"].(string); ok {
				attribution.ChatChannel = v
			}
		}
		if attribution.Email == "" {
			if v, ok := s.Metadata["email"].(string); ok {
				attribution.Email = v
			}
		}
		if attribution.PagerEscalation == "" {
			if v, ok := s.Metadata["pager_escalation"].(string); ok {
				attribution.PagerEscalation = v
			}
		}
	}
}
