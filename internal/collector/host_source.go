package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/OldStager01/resilience-plane/pkg/models"
)

type HostSourceConfig struct {
	// Requests supplies error rate, latency and throughput. Optional.
	Requests *RequestRecorder
	// QueueLoad reports queue utilisation in percent. Optional.
	QueueLoad func() float64
}

// HostSource samples the local machine through gopsutil.
type HostSource struct {
	requests  *RequestRecorder
	queueLoad func() float64

	cpuPercent func(ctx context.Context) (float64, error)
	memPercent func(ctx context.Context) (float64, error)
}

func NewHostSource(cfg HostSourceConfig) *HostSource {
	return &HostSource{
		requests:   cfg.Requests,
		queueLoad:  cfg.QueueLoad,
		cpuPercent: hostCPUPercent,
		memPercent: hostMemoryPercent,
	}
}

func hostCPUPercent(ctx context.Context) (float64, error) {
	// interval 0 compares against the previous call
	values, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("%w: no cpu statistics", ErrCollectionFailed)
	}
	return values[0], nil
}

func hostMemoryPercent(ctx context.Context) (float64, error) {
	stat, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return stat.UsedPercent, nil
}

func (s *HostSource) Collect(ctx context.Context) (models.MetricSample, error) {
	cpuPct, err := s.cpuPercent(ctx)
	if err != nil {
		return models.MetricSample{}, fmt.Errorf("%w: cpu: %v", ErrCollectionFailed, err)
	}

	memPct, err := s.memPercent(ctx)
	if err != nil {
		return models.MetricSample{}, fmt.Errorf("%w: memory: %v", ErrCollectionFailed, err)
	}

	sample := models.MetricSample{
		Timestamp:     time.Now(),
		CPUPercent:    clampPercent(cpuPct),
		MemoryPercent: clampPercent(memPct),
	}

	if s.requests != nil {
		stats := s.requests.Stats()
		sample.ErrorRate = stats.ErrorRate
		sample.LatencyP95Ms = stats.LatencyP95Ms
		sample.ThroughputRps = stats.ThroughputRps
	}
	if s.queueLoad != nil {
		sample.QueueLoadPercent = clampPercent(s.queueLoad())
	}

	return sample, nil
}

func (s *HostSource) Name() string {
	return "host"
}
