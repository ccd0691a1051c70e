// Package metricsdiscovery is a PromQL-compatible HTTP client used to
// enumerate series, list label values, and run range queries against the
// metrics backend that the Drift Analyzer reads error-budget data from.
package metricsdiscovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/rsionnach/nthlayer/internal/cache"
	"github.com/rsionnach/nthlayer/internal/resilience"
	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

// Config controls the client's backend and outbound shaping.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	QPS           float64
	Burst         int
	CacheTTL      time.Duration
}

// Client queries a Prometheus-compatible HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	cache   *cache.TTLCache
}

// New builds a Client against cfg.BaseURL, rate-limited to cfg.QPS
// requests/second and protected by a per-backend circuit breaker.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.QPS <= 0 {
		cfg.QPS = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.QPS)
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.QPS), cfg.Burst),
		breaker: resilience.New("metricsdiscovery:"+cfg.BaseURL, resilience.DefaultConfig()),
		cache:   cache.New(cfg.CacheTTL, 1000),
	}
}

// DiscoverForService returns the set of metric names whose series carry
// a `service` label matching service, cached per call.
func (c *Client) DiscoverForService(ctx context.Context, service string) (map[string]struct{}, error) {
	key := "series:" + service
	if v, ok := c.cache.Get(key); ok {
		return v.(map[string]struct{}), nil
	}

	var series []map[string]string
	if err := c.get(ctx, "/api/v1/series", url.Values{"match[]": {fmt.Sprintf(`{service="%s"}`, service)}}, &series); err != nil {
		return nil, fmt.Errorf("metricsdiscovery: discover for %s: %w", service, err)
	}

	names := make(map[string]struct{}, len(series))
	for _, s := range series {
		if name, ok := s["__name__"]; ok {
			names[name] = struct{}{}
		}
	}
	c.cache.Set(key, names)
	return names, nil
}

// LabelValues returns every observed value of label.
func (c *Client) LabelValues(ctx context.Context, label string) ([]string, error) {
	var values []string
	path := "/api/v1/label/" + url.PathEscape(label) + "/values"
	if err := c.get(ctx, path, nil, &values); err != nil {
		return nil, fmt.Errorf("metricsdiscovery: label values for %s: %w", label, err)
	}
	return values, nil
}

// RangeQuery runs a PromQL range query and returns it as a BudgetSeries.
func (c *Client) RangeQuery(ctx context.Context, service, slo, expr string, start, end time.Time, step time.Duration) (nthlayer.BudgetSeries, error) {
	params := url.Values{
		"query": {expr},
		"start": {strconv.FormatInt(start.Unix(), 10)},
		"end":   {strconv.FormatInt(end.Unix(), 10)},
		"step":  {strconv.FormatFloat(step.Seconds(), 'f', -1, 64)},
	}

	var result struct {
		Data struct {
			Result []struct {
				Values [][2]interface{} `json:"values"`
			} `json:"result"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/query_range", params, &result); err != nil {
		return nthlayer.BudgetSeries{}, fmt.Errorf("metricsdiscovery: range query: %w", err)
	}

	series := nthlayer.BudgetSeries{Service: service, SLO: slo, Step: step}
	if len(result.Data.Result) == 0 {
		return series, nil
	}

	for _, pair := range result.Data.Result[0].Values {
		ts, _ := pair[0].(float64)
		raw, _ := pair[1].(string)
		val, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		series.Points = append(series.Points, nthlayer.BudgetPoint{
			Timestamp: time.Unix(int64(ts), 0).UTC(),
			Value:     val,
		})
	}
	return series, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		u := c.baseURL + path
		if len(params) > 0 {
			u += "?" + params.Encode()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		var envelope struct {
			Status string          `json:"status"`
			Data   json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil || envelope.Data == nil {
			// Some endpoints return a bare array/object without the
			// {status,data} envelope (e.g. some self-hosted backends).
			return json.Unmarshal(body, out)
		}
		return json.Unmarshal(envelope.Data, out)
	})
}

// InstantVectorByLabel runs an instant PromQL query and returns the
// result value keyed by the given grouping label, for queries shaped
// like `sum(rate(...)) by (<label>)`.
func (c *Client) InstantVectorByLabel(ctx context.Context, expr, label string) (map[string]float64, error) {
	var result struct {
		Data struct {
			Result []struct {
				Metric map[string]string `json:"metric"`
				Value  [2]interface{}    `json:"value"`
			} `json:"result"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/query", url.Values{"query": {expr}}, &result); err != nil {
		return nil, fmt.Errorf("metricsdiscovery: instant query: %w", err)
	}

	out := make(map[string]float64, len(result.Data.Result))
	for _, r := range result.Data.Result {
		key, ok := r.Metric[label]
		if !ok {
			continue
		}
		raw, _ := r.Value[1].(string)
		val, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		out[key] = val
	}
	return out, nil
}

// ClassifyMetricType returns the expected Prometheus metric type for a
// name, a pure function of the name's suffix and known exporter prefixes.
func ClassifyMetricType(name string) nthlayer.MetricCandidateType {
	switch {
	case strings.HasSuffix(name, "_total") || strings.HasSuffix(name, "_count"):
		return nthlayer.MetricTypeCounter
	case strings.HasSuffix(name, "_bucket"):
		return nthlayer.MetricTypeHistogram
	case strings.HasSuffix(name, "_sum"):
		return nthlayer.MetricTypeSummary
	case strings.HasPrefix(name, "node_") || strings.HasPrefix(name, "redis_") ||
		strings.HasPrefix(name, "kafka_") || strings.HasPrefix(name, "http_"):
		return nthlayer.MetricTypeGauge
	default:
		return nthlayer.MetricTypeOther
	}
}
