// Package resilience provides the circuit breaker and retry primitives
// that every outbound call to a discovery, ownership, or metrics
// provider is wrapped in.
package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// State is a circuit breaker's lifecycle state.
type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config tunes a CircuitBreaker's thresholds.
type Config struct {
	FailureThreshold    uint32        `yaml:"failure_threshold"`
	SuccessThreshold    uint32        `yaml:"success_threshold"`
	HalfOpenMaxRequests uint32        `yaml:"half_open_max_requests"`
	OpenTimeout         time.Duration `yaml:"open_timeout"`
	ResetInterval       time.Duration `yaml:"reset_interval"`
}

// DefaultConfig returns sane defaults for an external HTTP-backed
// provider (discovery source, ownership source, metrics backend).
func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		HalfOpenMaxRequests: 3,
		OpenTimeout:         30 * time.Second,
		ResetInterval:       60 * time.Second,
	}
}

// CircuitBreaker guards calls to a single upstream dependency, tripping
// open after a run of failures and probing with limited traffic before
// fully closing again.
type CircuitBreaker struct {
	name   string
	config Config

	state           int32 // State, accessed atomically
	failures        uint32
	successes       uint32
	halfOpenInFlight uint32
	lastStateChange atomic.Value // time.Time
	lastFailure     atomic.Value // time.Time

	totalRequests uint64
	totalFailures uint64

	mu sync.Mutex
}

// New creates a circuit breaker named for the dependency it protects
// (e.g. "discovery:consul", "ownership:pagerduty", "metrics:prometheus").
func New(name string, config Config) *CircuitBreaker {
	cb := &CircuitBreaker{name: name, config: config}
	cb.lastStateChange.Store(time.Now())
	return cb
}

// Execute runs fn if the circuit allows it, recording the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}

	if cb.config.OpenTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cb.config.OpenTimeout)
		defer cancel()
	}

	err := fn(ctx)
	cb.afterCall(err)
	return err
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	atomic.AddUint64(&cb.totalRequests, 1)

	switch cb.State() {
	case StateOpen:
		if time.Since(cb.lastStateChange.Load().(time.Time)) > cb.config.OpenTimeout {
			cb.setState(StateHalfOpen)
			cb.halfOpenInFlight = 0
			cb.successes = 0
		} else {
			return ErrCircuitOpen
		}
	}

	if cb.State() == StateHalfOpen {
		if cb.halfOpenInFlight >= cb.config.HalfOpenMaxRequests {
			return ErrTooManyRequests
		}
		cb.halfOpenInFlight++
	}

	if cb.State() == StateClosed && cb.config.ResetInterval > 0 &&
		time.Since(cb.lastStateChange.Load().(time.Time)) > cb.config.ResetInterval {
		cb.failures = 0
	}

	return nil
}

func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.onFailure()
	} else {
		cb.onSuccess()
	}
}

func (cb *CircuitBreaker) onSuccess() {
	cb.failures = 0
	if cb.State() == StateHalfOpen {
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.setState(StateClosed)
			cb.successes = 0
		}
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.failures++
	atomic.AddUint64(&cb.totalFailures, 1)
	cb.lastFailure.Store(time.Now())

	switch cb.State() {
	case StateClosed:
		if cb.failures >= cb.config.FailureThreshold {
			cb.setState(StateOpen)
		}
	case StateHalfOpen:
		cb.setState(StateOpen)
	}
}

func (cb *CircuitBreaker) setState(s State) {
	atomic.StoreInt32(&cb.state, int32(s))
	cb.lastStateChange.Store(time.Now())
}

// State returns the breaker's current state.
func (cb *CircuitBreaker) State() State {
	return State(atomic.LoadInt32(&cb.state))
}

// Name returns the dependency name this breaker protects.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Stats is a point-in-time snapshot of a breaker's counters.
type Stats struct {
	Name          string
	State         string
	TotalRequests uint64
	TotalFailures uint64
}

func (cb *CircuitBreaker) Stats() Stats {
	return Stats{
		Name:          cb.name,
		State:         cb.State().String(),
		TotalRequests: atomic.LoadUint64(&cb.totalRequests),
		TotalFailures: atomic.LoadUint64(&cb.totalFailures),
	}
}

// Reset forces the breaker back to closed, clearing its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.successes = 0
	cb.halfOpenInFlight = 0
	cb.setState(StateClosed)
}

// Registry is a named set of circuit breakers, one per discovery,
// ownership, or metrics provider, created on first use.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	config   Config
}

func NewRegistry(config Config) *Registry {
	return &Registry{breakers: make(map[string]*CircuitBreaker), config: config}
}

// Get returns the breaker for key, creating it with the registry's
// default config on first access.
func (r *Registry) Get(key string) *CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[key]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok = r.breakers[key]; ok {
		return cb
	}
	cb = New(key, r.config)
	r.breakers[key] = cb
	return cb
}

func (r *Registry) AllStats() []Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := make([]Stats, 0, len(r.breakers))
	for _, cb := range r.breakers {
		stats = append(stats, cb.Stats())
	}
	return stats
}
