// Package telemetry wires self-observability for the Reliability
// Intelligence Core itself: Prometheus counters/histograms describing
// its own discovery, ownership, drift, and webhook operations, plus an
// OpenTelemetry tracer for cross-component spans.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Config controls how telemetry is exported.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string // empty disables tracing
	SampleRatio    float64
}

// Telemetry bundles the tracer and the fixed set of self-metrics
// instruments used across the module.
type Telemetry struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider

	DiscoveryDuration   *prometheus.HistogramVec
	DiscoveryErrors     *prometheus.CounterVec
	DependenciesFound   *prometheus.CounterVec
	OwnershipResolved   *prometheus.CounterVec
	DriftEvaluations    *prometheus.CounterVec
	DriftSeverity       *prometheus.CounterVec
	WebhooksReceived    *prometheus.CounterVec
	WebhookDuplicates   prometheus.Counter
	WebhookOverload     prometheus.Counter
	CircuitBreakerTrips *prometheus.CounterVec
}

var global *Telemetry

// Init builds the tracer provider (if an OTLP endpoint is configured)
// and registers the self-metrics instruments against the default
// Prometheus registry. Only the first call takes effect.
func Init(ctx context.Context, cfg Config) (*Telemetry, error) {
	if global != nil {
		return global, nil
	}

	t := &Telemetry{
		DiscoveryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name: "nthlayer_discovery_duration_seconds",
			Help: "Duration of a dependency discovery provider call.",
		}, []string{"provider"}),
		DiscoveryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "nthlayer_discovery_errors_total",
			Help: "Discovery provider calls that returned an error.",
		}, []string{"provider"}),
		DependenciesFound: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "nthlayer_dependencies_found_total",
			Help: "Dependency edges discovered, by provider.",
		}, []string{"provider"}),
		OwnershipResolved: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "nthlayer_ownership_resolved_total",
			Help: "Ownership attributions produced, by chosen source.",
		}, []string{"source"}),
		DriftEvaluations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "nthlayer_drift_evaluations_total",
			Help: "SLO budget evaluations performed.",
		}, []string{"service"}),
		DriftSeverity: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "nthlayer_drift_severity_total",
			Help: "Drift evaluations by resulting severity.",
		}, []string{"severity"}),
		WebhooksReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "nthlayer_webhooks_received_total",
			Help: "Deployment event webhooks received, by provider.",
		}, []string{"provider"}),
		WebhookDuplicates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nthlayer_webhook_duplicates_total",
			Help: "Webhook deliveries rejected as duplicates by the idempotency key.",
		}),
		WebhookOverload: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nthlayer_webhook_overload_total",
			Help: "Webhook deliveries rejected with 503 because the concurrency cap was exceeded.",
		}),
		CircuitBreakerTrips: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "nthlayer_circuit_breaker_trips_total",
			Help: "Circuit breakers transitioning to open, by protected dependency.",
		}, []string{"dependency"}),
	}

	if cfg.OTLPEndpoint != "" {
		if err := t.initTracing(ctx, cfg); err != nil {
			return nil, fmt.Errorf("telemetry: init tracing: %w", err)
		}
	} else {
		t.tracer = otel.Tracer(cfg.ServiceName)
	}

	global = t
	return t, nil
}

func (t *Telemetry) initTracing(ctx context.Context, cfg Config) error {
	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.OTLPEndpoint))
	if err != nil {
		return err
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		attribute.String("environment", cfg.Environment),
	))
	if err != nil {
		return err
	}

	ratio := cfg.SampleRatio
	if ratio <= 0 {
		ratio = 1.0
	}

	t.provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(ratio)),
	)

	otel.SetTracerProvider(t.provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	t.tracer = t.provider.Tracer(cfg.ServiceName)
	return nil
}

// Get returns the process-wide telemetry instance, or nil if Init was
// never called — callers must tolerate a nil Telemetry.
func Get() *Telemetry { return global }

// StartSpan starts a span named for the operation, no-op if tracing is
// disabled.
func (t *Telemetry) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, name)
}

// RecordDiscovery records the outcome of one discovery provider call.
func (t *Telemetry) RecordDiscovery(provider string, duration time.Duration, dependencyCount int, err error) {
	if t == nil {
		return
	}
	t.DiscoveryDuration.WithLabelValues(provider).Observe(duration.Seconds())
	t.DependenciesFound.WithLabelValues(provider).Add(float64(dependencyCount))
	if err != nil {
		t.DiscoveryErrors.WithLabelValues(provider).Inc()
	}
}

// Shutdown flushes and stops the tracer provider, if one was started.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
