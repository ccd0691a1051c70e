package drift

import (
	"fmt"

	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

const (
	stableSlopeThreshold  = 0.001 // 0.1% of budget per week
	volatileRSquaredCeil  = 0.3
	volatileVarianceFloor = 0.0004
)

// classifyPattern applies the fixed priority order from spec §4.6 step
// 5: a recent step change beats volatility, volatility beats a
// same-sign trend read as stable-or-not, and only then do we fall back
// to slope sign.
func classifyPattern(series nthlayer.BudgetSeries, m nthlayer.DriftMetrics, cfg nthlayer.DriftConfig) nthlayer.DriftPattern {
	if cfg.DetectStepChange {
		if p, ok := detectStepChange(series, cfg); ok {
			return p
		}
	}

	if m.RSquared < volatileRSquaredCeil && m.Variance > volatileVarianceFloor {
		return nthlayer.PatternVolatile
	}

	if absf(m.SlopePerWeek) < stableSlopeThreshold {
		return nthlayer.PatternStable
	}

	if m.SlopePerWeek < 0 {
		return nthlayer.PatternGradualDecline
	}
	return nthlayer.PatternGradualImprovement
}

// detectStepChange scans consecutive points within stepChangeWindow of
// each other for a jump exceeding the configured threshold.
func detectStepChange(series nthlayer.BudgetSeries, cfg nthlayer.DriftConfig) (nthlayer.DriftPattern, bool) {
	threshold := cfg.StepChangeThreshold
	if threshold <= 0 {
		threshold = 0.1
	}

	pts := series.Points
	for i := 1; i < len(pts); i++ {
		if pts[i].Timestamp.Sub(pts[i-1].Timestamp) > stepChangeWindow {
			continue
		}
		delta := pts[i].Value - pts[i-1].Value
		if absf(delta) < threshold {
			continue
		}
		if delta < 0 {
			return nthlayer.PatternStepChangeDown, true
		}
		return nthlayer.PatternStepChangeUp, true
	}
	return "", false
}

// classifySeverity applies the fixed priority order from spec §4.6 step
// 6: an imminent exhaustion outranks a raw slope breach, a critical
// threshold outranks a warn threshold, and a step-change-down is always
// critical regardless of slope. The slope thresholds are magnitudes of
// weekly decline, so an improving slope never raises the severity.
func classifySeverity(pattern nthlayer.DriftPattern, m nthlayer.DriftMetrics, proj nthlayer.DriftProjection, cfg nthlayer.DriftConfig) nthlayer.Severity {
	if proj.DaysUntilExhaustion != nil && *proj.DaysUntilExhaustion <= cfg.ExhaustionCritDays {
		return nthlayer.SeverityCritical
	}

	if pattern == nthlayer.PatternStepChangeDown {
		return nthlayer.SeverityCritical
	}

	if m.SlopePerWeek <= -cfg.CriticalSlopePerWeek {
		return nthlayer.SeverityCritical
	}

	if proj.DaysUntilExhaustion != nil && *proj.DaysUntilExhaustion <= cfg.ExhaustionWarnDays {
		return nthlayer.SeverityWarn
	}

	if m.SlopePerWeek <= -cfg.WarnSlopePerWeek {
		return nthlayer.SeverityWarn
	}

	if m.SlopePerWeek < 0 {
		return nthlayer.SeverityInfo
	}
	return nthlayer.SeverityNone
}

// compose builds the human-facing summary and recommendation lines.
func compose(r nthlayer.DriftResult) (summary, recommendation string) {
	switch r.Pattern {
	case nthlayer.PatternStepChangeDown:
		summary = fmt.Sprintf("%s/%s error budget dropped sharply within the evaluation window.", r.Service, r.SLOName)
		recommendation = "Correlate against recent deploys before trusting the slower trend estimate."
	case nthlayer.PatternStepChangeUp:
		summary = fmt.Sprintf("%s/%s error budget recovered sharply within the evaluation window.", r.Service, r.SLOName)
		recommendation = "No action required; confirm the recovery holds over the next evaluation."
	case nthlayer.PatternVolatile:
		summary = fmt.Sprintf("%s/%s error budget is too volatile (r²=%.2f) for a reliable trend estimate.", r.Service, r.SLOName, r.Metrics.RSquared)
		recommendation = "Widen the evaluation window or investigate the source of the variance."
	case nthlayer.PatternGradualDecline:
		summary = fmt.Sprintf("%s/%s error budget is declining at %.3f%%/week.", r.Service, r.SLOName, r.Metrics.SlopePerWeek*100)
		if r.Projection.DaysUntilExhaustion != nil {
			recommendation = fmt.Sprintf("At the current rate, budget exhausts in %.1f days.", *r.Projection.DaysUntilExhaustion)
		} else {
			recommendation = "Trend is declining but exhaustion is not projected within a year; monitor."
		}
	case nthlayer.PatternGradualImprovement:
		summary = fmt.Sprintf("%s/%s error budget is improving at %.3f%%/week.", r.Service, r.SLOName, r.Metrics.SlopePerWeek*100)
		recommendation = "No action required."
	default:
		summary = fmt.Sprintf("%s/%s error budget is stable.", r.Service, r.SLOName)
		recommendation = "No action required."
	}
	return summary, recommendation
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
