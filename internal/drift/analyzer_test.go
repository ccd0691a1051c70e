package drift

import (
	"testing"
	"time"

	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

func points(start time.Time, step time.Duration, values ...float64) []nthlayer.BudgetPoint {
	pts := make([]nthlayer.BudgetPoint, len(values))
	for i, v := range values {
		pts[i] = nthlayer.BudgetPoint{Timestamp: start.Add(time.Duration(i) * step), Value: v}
	}
	return pts
}

func TestClassifyPatternStable(t *testing.T) {
	start := time.Unix(0, 0)
	series := nthlayer.BudgetSeries{Points: points(start, 24*time.Hour, 0.9, 0.901, 0.8995, 0.9005, 0.9)}
	m := fit(series)
	cfg := resolveConfig(nthlayer.TierStandard, nthlayer.DriftConfig{})

	if got := classifyPattern(series, m, cfg); got != nthlayer.PatternStable {
		t.Fatalf("expected stable, got %s (slope/week=%.5f)", got, m.SlopePerWeek)
	}
}

func TestClassifyPatternGradualDecline(t *testing.T) {
	start := time.Unix(0, 0)
	values := make([]float64, 48)
	for i := range values {
		values[i] = 0.9 - float64(i)*0.002
	}
	series := nthlayer.BudgetSeries{Points: points(start, time.Hour, values...)}
	m := fit(series)
	cfg := resolveConfig(nthlayer.TierStandard, nthlayer.DriftConfig{})

	if got := classifyPattern(series, m, cfg); got != nthlayer.PatternGradualDecline {
		t.Fatalf("expected gradual_decline, got %s", got)
	}
	if m.SlopePerSecond >= 0 {
		t.Fatalf("expected negative slope, got %v", m.SlopePerSecond)
	}
}

func TestClassifyPatternStepChangeDown(t *testing.T) {
	start := time.Unix(0, 0)
	values := []float64{0.95, 0.95, 0.95, 0.50, 0.49, 0.48}
	series := nthlayer.BudgetSeries{Points: points(start, time.Hour, values...)}
	m := fit(series)
	cfg := resolveConfig(nthlayer.TierStandard, nthlayer.DriftConfig{DetectStepChange: true, StepChangeThreshold: 0.1})

	if got := classifyPattern(series, m, cfg); got != nthlayer.PatternStepChangeDown {
		t.Fatalf("expected step_change_down, got %s", got)
	}
}

func TestProjectExhaustionWithinHorizon(t *testing.T) {
	m := nthlayer.DriftMetrics{SlopePerSecond: -1.0 / 86400, CurrentBudget: 10}
	proj := project(m, time.Unix(0, 0))
	if proj.DaysUntilExhaustion == nil {
		t.Fatalf("expected a projected exhaustion date")
	}
	if *proj.DaysUntilExhaustion != 10 {
		t.Fatalf("expected 10 days, got %v", *proj.DaysUntilExhaustion)
	}
}

func TestProjectExhaustionBeyondHorizonIsNil(t *testing.T) {
	m := nthlayer.DriftMetrics{SlopePerSecond: -0.00000001 / 86400, CurrentBudget: 10}
	proj := project(m, time.Unix(0, 0))
	if proj.DaysUntilExhaustion != nil {
		t.Fatalf("expected nil projection beyond the horizon, got %v", *proj.DaysUntilExhaustion)
	}
}

func TestClassifySeverityExhaustionCritical(t *testing.T) {
	cfg := resolveConfig(nthlayer.TierCritical, nthlayer.DriftConfig{})
	days := 1.0
	proj := nthlayer.DriftProjection{DaysUntilExhaustion: &days}
	m := nthlayer.DriftMetrics{SlopePerWeek: -0.01}

	if got := classifySeverity(nthlayer.PatternGradualDecline, m, proj, cfg); got != nthlayer.SeverityCritical {
		t.Fatalf("expected critical, got %s", got)
	}
}

func TestClassifySeverityStepChangeDownForcesCriticalRegardlessOfSlope(t *testing.T) {
	cfg := resolveConfig(nthlayer.TierStandard, nthlayer.DriftConfig{})
	m := nthlayer.DriftMetrics{SlopePerWeek: -0.0001}

	if got := classifySeverity(nthlayer.PatternStepChangeDown, m, nthlayer.DriftProjection{}, cfg); got != nthlayer.SeverityCritical {
		t.Fatalf("expected step_change_down to force critical regardless of slope, got %s", got)
	}
}

func TestClassifySeverityNoneWhenStable(t *testing.T) {
	cfg := resolveConfig(nthlayer.TierStandard, nthlayer.DriftConfig{})
	m := nthlayer.DriftMetrics{SlopePerWeek: 0.0001}

	if got := classifySeverity(nthlayer.PatternStable, m, nthlayer.DriftProjection{}, cfg); got != nthlayer.SeverityNone {
		t.Fatalf("expected none, got %s", got)
	}
}

func TestResolveConfigFillsTierDefaults(t *testing.T) {
	cfg := resolveConfig(nthlayer.TierCritical, nthlayer.DriftConfig{})
	if cfg.Window != 14*24*time.Hour {
		t.Fatalf("expected critical tier window, got %v", cfg.Window)
	}

	override := resolveConfig(nthlayer.TierCritical, nthlayer.DriftConfig{Window: 48 * time.Hour})
	if override.Window != 48*time.Hour {
		t.Fatalf("expected operator override preserved, got %v", override.Window)
	}
}

func TestResolveConfigExhaustionHorizonsMatchSpecTierOrdering(t *testing.T) {
	crit := resolveConfig(nthlayer.TierCritical, nthlayer.DriftConfig{})
	if crit.ExhaustionCritDays != 14 {
		t.Errorf("expected critical tier exhaustion-critical horizon of 14d, got %v", crit.ExhaustionCritDays)
	}

	std := resolveConfig(nthlayer.TierStandard, nthlayer.DriftConfig{})
	if std.ExhaustionCritDays != 7 {
		t.Errorf("expected standard tier exhaustion-critical horizon of 7d, got %v", std.ExhaustionCritDays)
	}

	if crit.ExhaustionWarnDays <= crit.ExhaustionCritDays {
		t.Errorf("critical tier warn horizon %v must exceed its critical horizon %v", crit.ExhaustionWarnDays, crit.ExhaustionCritDays)
	}
	if std.ExhaustionWarnDays <= std.ExhaustionCritDays {
		t.Errorf("standard tier warn horizon %v must exceed its critical horizon %v", std.ExhaustionWarnDays, std.ExhaustionCritDays)
	}
}
