package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/OldStager01/resilience-plane/internal/logger"
	"github.com/OldStager01/resilience-plane/pkg/models"
)

type HTTPSourceConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// HTTPSource pulls a MetricSample JSON document from a remote endpoint.
type HTTPSource struct {
	client   *http.Client
	endpoint string
}

func NewHTTPSource(cfg HTTPSourceConfig) *HTTPSource {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	return &HTTPSource{
		client: &http.Client{
			Timeout: timeout,
		},
		endpoint: cfg.Endpoint,
	}
}

// sampleResponse accepts the sample fields plus an optional RFC3339 timestamp.
type sampleResponse struct {
	Timestamp        string  `json:"timestamp"`
	CPUPercent       float64 `json:"cpu_percent"`
	MemoryPercent    float64 `json:"memory_percent"`
	ErrorRate        float64 `json:"error_rate"`
	LatencyP95Ms     float64 `json:"latency_p95_ms"`
	ThroughputRps    float64 `json:"throughput_rps"`
	QueueLoadPercent float64 `json:"queue_load_percent"`
}

func (s *HTTPSource) Collect(ctx context.Context) (models.MetricSample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return models.MetricSample{}, fmt.Errorf("%w: failed to create request: %v", ErrCollectionFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	logger.WithComponent("collector").Debugf("Collecting metrics from %s", s.endpoint)

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return models.MetricSample{}, ErrTimeout
		}
		return models.MetricSample{}, fmt.Errorf("%w: %v", ErrCollectionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.MetricSample{}, fmt.Errorf("%w: unexpected status code %d", ErrCollectionFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.MetricSample{}, fmt.Errorf("%w: failed to read response body: %v", ErrCollectionFailed, err)
	}

	var parsed sampleResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return models.MetricSample{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	return parsed.toSample(), nil
}

func (r *sampleResponse) toSample() models.MetricSample {
	timestamp := time.Now()
	if r.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, r.Timestamp); err == nil {
			timestamp = parsed
		}
	}

	return models.MetricSample{
		Timestamp:        timestamp,
		CPUPercent:       clampPercent(r.CPUPercent),
		MemoryPercent:    clampPercent(r.MemoryPercent),
		ErrorRate:        r.ErrorRate,
		LatencyP95Ms:     r.LatencyP95Ms,
		ThroughputRps:    r.ThroughputRps,
		QueueLoadPercent: clampPercent(r.QueueLoadPercent),
	}
}

func (s *HTTPSource) Name() string {
	return "http"
}

func (s *HTTPSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
