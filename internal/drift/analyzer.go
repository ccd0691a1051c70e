// Package drift detects gradual degradation of SLO error budgets and
// projects forward to exhaustion, via a least-squares regression fit
// over a rolling budget time series.
package drift

import (
	"context"
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	nthlayererrors "github.com/rsionnach/nthlayer/internal/errors"
	"github.com/rsionnach/nthlayer/internal/logging"
	"github.com/rsionnach/nthlayer/internal/metricsdiscovery"
	"github.com/rsionnach/nthlayer/internal/telemetry"
	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

const (
	minDataPoints    = 2
	stepChangeWindow = 36 * time.Hour
	maxExhaustionDays = 365
)

// newAnalysisError builds the §7 DriftAnalysisError for insufficient
// data or an invalid window — never retryable, since more calls won't
// manufacture data points that don't exist yet.
func newAnalysisError(service, reason string) error {
	return nthlayererrors.New(nthlayererrors.KindDriftAnalysis, reason).
		WithService(service).
		WithSeverity(nthlayererrors.SeverityLow).
		WithRetry(false, 0).
		Error()
}

// Analyzer fits a regression over error-budget series and classifies
// the resulting trend.
type Analyzer struct {
	metrics *metricsdiscovery.Client
}

func New(metrics *metricsdiscovery.Client) *Analyzer {
	return &Analyzer{metrics: metrics}
}

// Analyze ingests a budget series for (service, slo) over window,
// fits a regression, projects exhaustion, classifies pattern and
// severity, and composes a human summary.
func (a *Analyzer) Analyze(ctx context.Context, spec *nthlayer.ServiceSpec, slo nthlayer.SLO) (nthlayer.DriftResult, error) {
	cfg := resolveConfig(spec.EffectiveTier(), spec.Drift)

	end := time.Now()
	start := end.Add(-cfg.Window)
	expr := budgetExpression(spec.Name, slo)

	series, err := a.metrics.RangeQuery(ctx, spec.Name, slo.Name, expr, start, end, time.Hour)
	if err != nil {
		return nthlayer.DriftResult{}, nthlayererrors.New(nthlayererrors.KindMetricDiscovery, "range query failed").
			WithService(spec.Name).
			WithWrapped(err).
			Error()
	}
	if len(series.Points) < minDataPoints {
		return nthlayer.DriftResult{}, newAnalysisError(spec.Name, "insufficient data points")
	}

	metrics := fit(series)
	projection := project(metrics, start)
	pattern := classifyPattern(series, metrics, cfg)
	severity := classifySeverity(pattern, metrics, projection, cfg)

	result := nthlayer.DriftResult{
		Service:    spec.Name,
		Tier:       spec.EffectiveTier(),
		SLOName:    slo.Name,
		Window:     cfg.Window,
		Metrics:    metrics,
		Projection: projection,
		Pattern:    pattern,
		Severity:   severity,
		ExitCode:   severity.ExitCode(),
	}
	result.Summary, result.Recommendation = compose(result)

	if t := telemetry.Get(); t != nil {
		t.DriftEvaluations.WithLabelValues(spec.Name).Inc()
		t.DriftSeverity.WithLabelValues(severity.String()).Inc()
	}

	logging.GetLogger().Info("drift evaluated",
		logging.String("service", spec.Name), logging.String("slo", slo.Name),
		logging.String("pattern", string(pattern)), logging.String("severity", severity.String()))

	return result, nil
}

func budgetExpression(service string, slo nthlayer.SLO) string {
	if slo.SuccessCondition != "" {
		return slo.SuccessCondition
	}
	return fmt.Sprintf(`1 - (sum(rate(http_requests_total{service=%q,code=~"5.."}[1h])) / sum(rate(http_requests_total{service=%q}[1h])))`, service, service)
}

// fit runs a least-squares linear regression on (seconds-from-start,
// budget-value) via gonum's stat package.
func fit(series nthlayer.BudgetSeries) nthlayer.DriftMetrics {
	n := len(series.Points)
	xs := make([]float64, n)
	ys := make([]float64, n)

	start := series.Points[0].Timestamp
	for i, p := range series.Points {
		xs[i] = p.Timestamp.Sub(start).Seconds()
		ys[i] = p.Value
	}

	intercept, slope := stat.LinearRegression(xs, ys, nil, false)
	rSquared := stat.RSquared(xs, ys, nil, intercept, slope)
	variance := stat.Variance(ys, nil)

	return nthlayer.DriftMetrics{
		SlopePerSecond: slope,
		SlopePerDay:    slope * 86400,
		SlopePerWeek:   slope * 86400 * 7,
		RSquared:       rSquared,
		CurrentBudget:  ys[n-1],
		StartBudget:    ys[0],
		Variance:       variance,
		PointCount:     n,
		ReducedConfidence: n < expectedSamples(series)/2,
	}
}

func expectedSamples(series nthlayer.BudgetSeries) int {
	if series.Step <= 0 {
		return len(series.Points)
	}
	span := series.Points[len(series.Points)-1].Timestamp.Sub(series.Points[0].Timestamp)
	return int(span / series.Step)
}

// project computes days-until-exhaustion from the fitted slope, capped
// beyond maxExhaustionDays, plus budget projections at fixed horizons.
func project(m nthlayer.DriftMetrics, start time.Time) nthlayer.DriftProjection {
	proj := nthlayer.DriftProjection{Confidence: 1.0}
	if m.ReducedConfidence {
		proj.Confidence = 0.5
	}

	if m.SlopePerSecond >= 0 || m.CurrentBudget <= 0 {
		zero := 0.0
		if m.CurrentBudget > 0 {
			proj.DaysUntilExhaustion = nil
		} else {
			proj.DaysUntilExhaustion = &zero
		}
	} else {
		days := m.CurrentBudget / -m.SlopePerSecond / 86400
		if days > maxExhaustionDays {
			proj.DaysUntilExhaustion = nil
		} else {
			proj.DaysUntilExhaustion = &days
		}
	}

	proj.Budget30d = m.CurrentBudget + m.SlopePerDay*30
	proj.Budget60d = m.CurrentBudget + m.SlopePerDay*60
	proj.Budget90d = m.CurrentBudget + m.SlopePerDay*90
	return proj
}
