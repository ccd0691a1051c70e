package drift

import (
	"time"

	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

// tierDefault carries the threshold/horizon set applied when a service's
// DriftConfig leaves a field at its zero value.
type tierDefault struct {
	Window              time.Duration
	WarnSlopePerWeek    float64
	CriticalSlopePerWeek float64
	ExhaustionWarnDays  float64
	ExhaustionCritDays  float64
}

// tierDefaults is keyed by Tier. The critical-exhaustion horizon is
// fixed by spec: 14d for TierCritical, 7d for TierStandard (longer
// lead time for the tier that can least afford to run out). TierLow
// gets the shortest lead time since it's the lowest priority to chase
// down early; TierUnknown mirrors TierStandard as the safe middle
// default. Each tier's warn horizon is set to roughly double its
// critical horizon so the warn branch in classifySeverity is reachable
// (days_until_exhaustion must be able to fall between the two) without
// firing the moment a service is merely trending down. Slope
// thresholds follow the same tightening order: critical services alert
// on a smaller absolute weekly slope than standard or low ones.
var tierDefaults = map[nthlayer.Tier]tierDefault{
	nthlayer.TierCritical: {
		Window: 14 * 24 * time.Hour, WarnSlopePerWeek: 0.05, CriticalSlopePerWeek: 0.15,
		ExhaustionWarnDays: 30, ExhaustionCritDays: 14,
	},
	nthlayer.TierStandard: {
		Window: 30 * 24 * time.Hour, WarnSlopePerWeek: 0.10, CriticalSlopePerWeek: 0.25,
		ExhaustionWarnDays: 21, ExhaustionCritDays: 7,
	},
	nthlayer.TierLow: {
		Window: 30 * 24 * time.Hour, WarnSlopePerWeek: 0.20, CriticalSlopePerWeek: 0.40,
		ExhaustionWarnDays: 14, ExhaustionCritDays: 3,
	},
	nthlayer.TierUnknown: {
		Window: 30 * 24 * time.Hour, WarnSlopePerWeek: 0.10, CriticalSlopePerWeek: 0.25,
		ExhaustionWarnDays: 21, ExhaustionCritDays: 7,
	},
}

// resolveConfig fills any zero-valued field of cfg from the tier's
// defaults, leaving operator overrides intact.
func resolveConfig(tier nthlayer.Tier, cfg nthlayer.DriftConfig) nthlayer.DriftConfig {
	d := tierDefaults[tier]
	if d == (tierDefault{}) {
		d = tierDefaults[nthlayer.TierUnknown]
	}

	if cfg.Window == 0 {
		cfg.Window = d.Window
	}
	if cfg.WarnSlopePerWeek == 0 {
		cfg.WarnSlopePerWeek = d.WarnSlopePerWeek
	}
	if cfg.CriticalSlopePerWeek == 0 {
		cfg.CriticalSlopePerWeek = d.CriticalSlopePerWeek
	}
	if cfg.ExhaustionWarnDays == 0 {
		cfg.ExhaustionWarnDays = d.ExhaustionWarnDays
	}
	if cfg.ExhaustionCritDays == 0 {
		cfg.ExhaustionCritDays = d.ExhaustionCritDays
	}
	return cfg
}
