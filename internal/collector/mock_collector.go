package collector

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/OldStager01/resilience-plane/pkg/models"
)

type SyntheticSourceConfig struct {
	Pattern       string
	BaseCPU       float64
	BaseMemory    float64
	Variance      float64
	BaseRps       float64
	BaseLatencyMs float64
	Seed          int64
	Clock         func() time.Time
}

// SyntheticSource generates pattern-driven load for local runs and tests.
type SyntheticSource struct {
	config  SyntheticSourceConfig
	pattern Pattern

	mu           sync.Mutex
	rng          *rand.Rand
	failureError error
}

func NewSyntheticSource(cfg SyntheticSourceConfig) *SyntheticSource {
	if cfg.BaseCPU == 0 {
		cfg.BaseCPU = 50.0
	}
	if cfg.BaseMemory == 0 {
		cfg.BaseMemory = 60.0
	}
	if cfg.Variance == 0 {
		cfg.Variance = 10.0
	}
	if cfg.BaseRps == 0 {
		cfg.BaseRps = 100.0
	}
	if cfg.BaseLatencyMs == 0 {
		cfg.BaseLatencyMs = 120.0
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	return &SyntheticSource{
		config:  cfg,
		pattern: ParsePattern(cfg.Pattern, cfg.Clock(), rand.New(rand.NewSource(cfg.Seed+1))),
		rng:     rng,
	}
}

func (s *SyntheticSource) SetBaseCPU(cpu float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.BaseCPU = cpu
}

func (s *SyntheticSource) SetBaseMemory(memory float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.BaseMemory = memory
}

// SetFailure makes every Collect return err until cleared with nil.
func (s *SyntheticSource) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failureError = err
}

func (s *SyntheticSource) Collect(ctx context.Context) (models.MetricSample, error) {
	if err := ctx.Err(); err != nil {
		return models.MetricSample{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failureError != nil {
		return models.MetricSample{}, s.failureError
	}

	now := s.config.Clock()
	cpu := s.jitter(s.pattern.Apply(s.config.BaseCPU, now), s.config.Variance)
	load := 1.0
	if s.config.BaseCPU > 0 {
		load = cpu / s.config.BaseCPU
	}

	return models.MetricSample{
		Timestamp:     now,
		CPUPercent:    clampPercent(cpu),
		MemoryPercent: clampPercent(s.jitter(s.config.BaseMemory, s.config.Variance/2)),
		ErrorRate:     s.errorRate(cpu),
		LatencyP95Ms:  s.config.BaseLatencyMs * (1 + load*load/4),
		ThroughputRps: s.config.BaseRps * load,
	}, nil
}

// jitter must be called with s.mu held.
func (s *SyntheticSource) jitter(base, variance float64) float64 {
	return base + (s.rng.Float64()*2-1)*variance
}

// errors climb once the CPU saturates
func (s *SyntheticSource) errorRate(cpu float64) float64 {
	if cpu < 85 {
		return 0.001
	}
	return (cpu - 85) / 100
}

func (s *SyntheticSource) Name() string {
	return "synthetic"
}
