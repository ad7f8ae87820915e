package collector

import (
	"context"
	"time"

	"github.com/OldStager01/resilience-plane/internal/logger"
	"github.com/OldStager01/resilience-plane/internal/resilience"
	"github.com/OldStager01/resilience-plane/pkg/models"
)

// CircuitPrefix names every circuit guarding a metrics source.
const CircuitPrefix = "collector:"

type ResilientSourceConfig struct {
	RetryAttempts int
	RetryDelay    time.Duration
}

// ResilientSource retries a source and guards it with the circuit
// "collector:<name>" so a dead metrics backend is isolated like any other
// downstream.
type ResilientSource struct {
	source        Source
	registry      *resilience.Registry
	circuit       string
	retryAttempts int
	retryDelay    time.Duration
}

func NewResilientSource(source Source, registry *resilience.Registry, cfg ResilientSourceConfig) *ResilientSource {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 1 * time.Second
	}

	return &ResilientSource{
		source:        source,
		registry:      registry,
		circuit:       CircuitPrefix + source.Name(),
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
	}
}

func (s *ResilientSource) Collect(ctx context.Context) (models.MetricSample, error) {
	return resilience.Call(ctx, s.registry, s.circuit, s.collectWithRetry, nil)
}

func (s *ResilientSource) collectWithRetry(ctx context.Context) (models.MetricSample, error) {
	var lastErr error
	for attempt := 1; attempt <= s.retryAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return models.MetricSample{}, ctx.Err()
		default:
		}

		sample, err := s.source.Collect(ctx)
		if err == nil {
			return sample, nil
		}

		lastErr = err
		logger.WithComponent("collector").Warnf(
			"Collection attempt %d/%d from %s failed: %v",
			attempt, s.retryAttempts, s.source.Name(), err,
		)

		if attempt < s.retryAttempts {
			select {
			case <-ctx.Done():
				return models.MetricSample{}, ctx.Err()
			case <-time.After(s.retryDelay):
			}
		}
	}
	return models.MetricSample{}, lastErr
}

func (s *ResilientSource) Name() string {
	return s.source.Name()
}

func (s *ResilientSource) CircuitName() string {
	return s.circuit
}
