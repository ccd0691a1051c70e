package logging

import (
	"fmt"
	"time"
)

// Audit logs a security- or ownership-sensitive operation (e.g. an
// ownership override, a plan apply) through the global logger.
func Audit(operation, actor, result string, fields ...Field) {
	all := append([]Field{
		Bool("audit", true),
		String("operation", operation),
		String("actor", actor),
		String("result", result),
	}, fields...)
	GetLogger().Info(fmt.Sprintf("audit: %s by %s - %s", operation, actor, result), all...)
}

// Metric emits a point-in-time measurement through the global logger,
// for components that don't have a direct Prometheus registration handy.
func Metric(name string, value float64, unit string, tags map[string]string) {
	GetLogger().Info(fmt.Sprintf("metric: %s=%.4f%s", name, value, unit),
		Bool("metric", true),
		String("name", name),
		Float64("value", value),
		String("unit", unit),
		Any("tags", tags),
		Time("measured_at", time.Now()),
	)
}
