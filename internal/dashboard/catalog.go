// Package dashboard resolves monitoring Intents against a service's
// declared technology, generating dashboard panels from whichever
// metric candidate in the fallback chain actually exists, or a
// guidance panel when none do.
package dashboard

import "github.com/rsionnach/nthlayer/pkg/nthlayer"

// catalog is the static set of monitoring Intents the generator knows
// how to resolve, keyed by (Name, Technology). Entries are ordered by
// technology so a diff against this file reads as a changelog per
// stack rather than an alphabetical shuffle.
var catalog = []nthlayer.Intent{
	{
		Name: "request_rate", Technology: "http", ExpectedType: nthlayer.MetricTypeCounter,
		FallbackChain: []nthlayer.MetricCandidate{
			{NamePattern: "http_requests_total", QueryTemplate: `sum(rate(http_requests_total{service=%q}[5m]))`, Type: nthlayer.MetricTypeCounter},
			{NamePattern: "http_server_requests_total", QueryTemplate: `sum(rate(http_server_requests_total{service=%q}[5m]))`, Type: nthlayer.MetricTypeCounter},
		},
		Guidance: "Expose a request counter labeled by service, e.g. http_requests_total.",
	},
	{
		Name: "error_rate", Technology: "http", ExpectedType: nthlayer.MetricTypeCounter,
		FallbackChain: []nthlayer.MetricCandidate{
			{NamePattern: "http_requests_total", QueryTemplate: `sum(rate(http_requests_total{service=%q,code=~"5.."}[5m])) / sum(rate(http_requests_total{service=%q}[5m]))`, Type: nthlayer.MetricTypeCounter},
		},
		Guidance: "Expose a request counter labeled by status code to derive error ratio.",
	},
	{
		Name: "latency_p99", Technology: "http", ExpectedType: nthlayer.MetricTypeHistogram,
		FallbackChain: []nthlayer.MetricCandidate{
			{NamePattern: "http_request_duration_seconds", QueryTemplate: `histogram_quantile(0.99, sum(rate(http_request_duration_seconds_bucket{service=%q}[5m])) by (le))`, Type: nthlayer.MetricTypeHistogram},
			{NamePattern: "http_server_requests_seconds", QueryTemplate: `histogram_quantile(0.99, sum(rate(http_server_requests_seconds_bucket{service=%q}[5m])) by (le))`, Type: nthlayer.MetricTypeHistogram},
		},
		Guidance: "Expose a request duration histogram; Summary types cannot be aggregated across instances.",
	},
	{
		Name: "queue_depth", Technology: "queue", ExpectedType: nthlayer.MetricTypeGauge,
		FallbackChain: []nthlayer.MetricCandidate{
			{NamePattern: "queue_messages_ready", QueryTemplate: `sum(queue_messages_ready{service=%q})`, Type: nthlayer.MetricTypeGauge},
			{NamePattern: "kafka_consumergroup_lag", QueryTemplate: `sum(kafka_consumergroup_lag{service=%q})`, Type: nthlayer.MetricTypeGauge},
		},
		Guidance: "Expose a gauge for unconsumed/ready messages per consumer group.",
	},
	{
		Name: "consumer_lag", Technology: "kafka", ExpectedType: nthlayer.MetricTypeGauge,
		FallbackChain: []nthlayer.MetricCandidate{
			{NamePattern: "kafka_consumergroup_lag", QueryTemplate: `max(kafka_consumergroup_lag{service=%q}) by (topic)`, Type: nthlayer.MetricTypeGauge},
		},
		Guidance: "Run the Kafka lag exporter against this consumer group.",
	},
	{
		Name: "connection_pool_utilization", Technology: "database", ExpectedType: nthlayer.MetricTypeGauge,
		FallbackChain: []nthlayer.MetricCandidate{
			{NamePattern: "db_pool_in_use_connections", QueryTemplate: `sum(db_pool_in_use_connections{service=%q}) / sum(db_pool_max_connections{service=%q})`, Type: nthlayer.MetricTypeGauge},
			{NamePattern: "pg_stat_activity_count", QueryTemplate: `sum(pg_stat_activity_count{service=%q})`, Type: nthlayer.MetricTypeGauge},
		},
		Guidance: "Expose pool in-use/max connection gauges from the client driver.",
	},
	{
		Name: "replication_lag", Technology: "database", ExpectedType: nthlayer.MetricTypeGauge,
		FallbackChain: []nthlayer.MetricCandidate{
			{NamePattern: "pg_replication_lag_seconds", QueryTemplate: `max(pg_replication_lag_seconds{service=%q})`, Type: nthlayer.MetricTypeGauge},
			{NamePattern: "mysql_slave_lag_seconds", QueryTemplate: `max(mysql_slave_lag_seconds{service=%q})`, Type: nthlayer.MetricTypeGauge},
		},
		Guidance: "Install the database exporter that reports replica lag in seconds.",
	},
	{
		Name: "cache_hit_ratio", Technology: "cache", ExpectedType: nthlayer.MetricTypeCounter,
		FallbackChain: []nthlayer.MetricCandidate{
			{NamePattern: "redis_keyspace_hits_total", QueryTemplate: `sum(rate(redis_keyspace_hits_total{service=%q}[5m])) / (sum(rate(redis_keyspace_hits_total{service=%q}[5m])) + sum(rate(redis_keyspace_misses_total{service=%q}[5m])))`, Type: nthlayer.MetricTypeCounter},
		},
		Guidance: "Run redis_exporter alongside the cache instance.",
	},
	{
		Name: "worker_pool_saturation", Technology: "worker", ExpectedType: nthlayer.MetricTypeGauge,
		FallbackChain: []nthlayer.MetricCandidate{
			{NamePattern: "worker_busy_threads", QueryTemplate: `sum(worker_busy_threads{service=%q}) / sum(worker_total_threads{service=%q})`, Type: nthlayer.MetricTypeGauge},
		},
		Guidance: "Expose busy/total worker thread gauges from the job runner.",
	},
	{
		Name: "saturation_cpu", Technology: "generic", ExpectedType: nthlayer.MetricTypeGauge,
		FallbackChain: []nthlayer.MetricCandidate{
			{NamePattern: "container_cpu_usage_seconds_total", QueryTemplate: `sum(rate(container_cpu_usage_seconds_total{service=%q}[5m]))`, Type: nthlayer.MetricTypeCounter},
		},
		Guidance: "Ensure cAdvisor or the kubelet cgroup exporter is scraped for this workload.",
	},
}

// Catalog returns the full static Intent set.
func Catalog() []nthlayer.Intent {
	return catalog
}

// ForTechnology returns every cataloged Intent applicable to tech,
// plus the technology-agnostic "generic" intents every service gets.
func ForTechnology(tech string) []nthlayer.Intent {
	var out []nthlayer.Intent
	for _, intent := range catalog {
		if intent.Technology == tech || intent.Technology == "generic" {
			out = append(out, intent)
		}
	}
	return out
}
