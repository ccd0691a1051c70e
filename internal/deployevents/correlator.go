package deployevents

import (
	"context"
	"time"

	"github.com/rsionnach/nthlayer/internal/drift"
	"github.com/rsionnach/nthlayer/internal/logging"
	"github.com/rsionnach/nthlayer/internal/telemetry"
	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

const defaultPollInterval = time.Minute

// Correlation links one deployment event to a drift result whose
// regression window it falls inside, scored by how close the event's
// finish time sits to the window's end — the point the analyzer's
// projection is anchored to.
type Correlation struct {
	Event      nthlayer.DeploymentEvent
	Drift      nthlayer.DriftResult
	ProximityS float64
}

// SpecSource supplies the set of specs the correlator should evaluate
// drift against on each tick.
type SpecSource interface {
	Specs(ctx context.Context) ([]*nthlayer.ServiceSpec, error)
}

// Correlator periodically re-evaluates drift for every known service
// and links any deployment events that land inside the drift window,
// surfacing "this budget regression started after this deploy" as a
// first-class signal rather than something on-call has to reconstruct
// by hand.
type Correlator struct {
	store        *Store
	analyzer     *drift.Analyzer
	specs        SpecSource
	lock         Locker
	window       time.Duration
	pollInterval time.Duration

	mu      chan struct{}
	results map[string][]Correlation
}

func NewCorrelator(store *Store, analyzer *drift.Analyzer, specs SpecSource, lock Locker, window time.Duration) *Correlator {
	if window <= 0 {
		window = 24 * time.Hour
	}
	if lock == nil {
		lock = NoopLock{}
	}
	return &Correlator{
		store: store, analyzer: analyzer, specs: specs, lock: lock,
		window: window, pollInterval: defaultPollInterval,
		mu: make(chan struct{}, 1), results: make(map[string][]Correlation),
	}
}

// Run blocks, polling on pollInterval until ctx is canceled.
func (c *Correlator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.lock.WithLock(ctx, "correlation", c.tick); err != nil {
				logging.GetLogger().Error("correlation tick failed", logging.Err(err))
			}
		}
	}
}

func (c *Correlator) tick(ctx context.Context) error {
	specs, err := c.specs.Specs(ctx)
	if err != nil {
		return err
	}

	for _, spec := range specs {
		for _, slo := range spec.SLOs {
			result, err := c.analyzer.Analyze(ctx, spec, slo)
			if err != nil {
				logging.GetLogger().Warning("drift analysis failed during correlation",
					logging.String("service", spec.Name), logging.Err(err))
				continue
			}
			c.correlate(ctx, spec.Name, result)
		}
	}
	return nil
}

func (c *Correlator) correlate(ctx context.Context, service string, result nthlayer.DriftResult) {
	end := time.Now()
	events, err := c.store.InWindow(ctx, service, end, result.Window)
	if err != nil {
		logging.GetLogger().Warning("correlation window query failed", logging.String("service", service), logging.Err(err))
		return
	}

	var matches []Correlation
	for _, ev := range events {
		proximity := end.Sub(ev.FinishedAt).Abs().Seconds()
		matches = append(matches, Correlation{Event: ev, Drift: result, ProximityS: proximity})
	}
	if len(matches) == 0 {
		return
	}

	c.mu <- struct{}{}
	c.results[service] = matches
	<-c.mu

	if t := telemetry.Get(); t != nil {
		t.DependenciesFound.WithLabelValues("correlation").Add(float64(len(matches)))
	}
}

// Correlations returns the most recent correlation set computed for a
// service, or nil if none has run yet.
func (c *Correlator) Correlations(service string) []Correlation {
	c.mu <- struct{}{}
	defer func() { <-c.mu }()
	return c.results[service]
}
