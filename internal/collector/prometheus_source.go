package collector

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/OldStager01/resilience-plane/internal/logger"
	"github.com/OldStager01/resilience-plane/pkg/models"
)

// PromQueries maps each sample field to a PromQL expression. An empty query
// leaves the field at zero.
type PromQueries struct {
	CPU           string
	Memory        string
	ErrorRate     string
	LatencyP95Ms  string
	ThroughputRps string
	QueueLoad     string
}

func DefaultPromQueries() PromQueries {
	return PromQueries{
		CPU:           `100 * (1 - avg(rate(node_cpu_seconds_total{mode="idle"}[2m])))`,
		Memory:        `100 * (1 - sum(node_memory_MemAvailable_bytes) / sum(node_memory_MemTotal_bytes))`,
		ErrorRate:     `sum(rate(http_requests_total{status=~"5.."}[1m])) / sum(rate(http_requests_total[1m]))`,
		LatencyP95Ms:  `1000 * histogram_quantile(0.95, sum(rate(http_request_duration_seconds_bucket[1m])) by (le))`,
		ThroughputRps: `sum(rate(http_requests_total[1m]))`,
	}
}

type PrometheusSourceConfig struct {
	Address string
	Timeout time.Duration
	Queries PromQueries
}

// PrometheusSource builds a sample from instant PromQL queries.
type PrometheusSource struct {
	api     v1.API
	timeout time.Duration
	queries PromQueries
}

func NewPrometheusSource(cfg PrometheusSourceConfig) (*PrometheusSource, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Queries == (PromQueries{}) {
		cfg.Queries = DefaultPromQueries()
	}

	client, err := api.NewClient(api.Config{Address: cfg.Address})
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus client: %w", err)
	}

	return &PrometheusSource{
		api:     v1.NewAPI(client),
		timeout: cfg.Timeout,
		queries: cfg.Queries,
	}, nil
}

func (s *PrometheusSource) Collect(ctx context.Context) (models.MetricSample, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := time.Now()
	sample := models.MetricSample{Timestamp: now}

	fields := []struct {
		query string
		dst   *float64
	}{
		{s.queries.CPU, &sample.CPUPercent},
		{s.queries.Memory, &sample.MemoryPercent},
		{s.queries.ErrorRate, &sample.ErrorRate},
		{s.queries.LatencyP95Ms, &sample.LatencyP95Ms},
		{s.queries.ThroughputRps, &sample.ThroughputRps},
		{s.queries.QueueLoad, &sample.QueueLoadPercent},
	}

	for _, f := range fields {
		if f.query == "" {
			continue
		}
		v, err := s.query(ctx, f.query, now)
		if err != nil {
			return models.MetricSample{}, err
		}
		*f.dst = v
	}

	sample.CPUPercent = clampPercent(sample.CPUPercent)
	sample.MemoryPercent = clampPercent(sample.MemoryPercent)
	sample.QueueLoadPercent = clampPercent(sample.QueueLoadPercent)
	return sample, nil
}

func (s *PrometheusSource) query(ctx context.Context, query string, at time.Time) (float64, error) {
	result, warnings, err := s.api.Query(ctx, query, at)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return 0, ErrTimeout
		}
		return 0, fmt.Errorf("%w: %v", ErrCollectionFailed, err)
	}
	if len(warnings) > 0 {
		logger.WithComponent("collector").Warnf("Prometheus warnings for %q: %v", query, warnings)
	}

	switch v := result.(type) {
	case model.Vector:
		if len(v) == 0 {
			return 0, nil
		}
		return sanitize(float64(v[0].Value)), nil
	case *model.Scalar:
		return sanitize(float64(v.Value)), nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: unexpected result type %s", ErrInvalidResponse, result.Type())
	}
}

// sanitize maps NaN and infinities (empty rate windows) to zero.
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func (s *PrometheusSource) Name() string {
	return "prometheus"
}
