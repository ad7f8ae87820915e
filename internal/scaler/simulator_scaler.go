package scaler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/OldStager01/resilience-plane/internal/logger"
)

type SimulatorConfig struct {
	InitialReplicas int
	// ProvisionTime is how long SetReplicas blocks before the change lands.
	ProvisionTime time.Duration
}

// SimulatorScaler keeps the replica count in memory. Failures can be
// scripted per call for tests and local chaos runs.
type SimulatorScaler struct {
	provisionTime time.Duration

	mu       sync.Mutex
	replicas int
	failures []error
	calls    []int
}

func NewSimulatorScaler(cfg SimulatorConfig) *SimulatorScaler {
	if cfg.InitialReplicas <= 0 {
		cfg.InitialReplicas = 2
	}
	return &SimulatorScaler{
		provisionTime: cfg.ProvisionTime,
		replicas:      cfg.InitialReplicas,
	}
}

func (s *SimulatorScaler) GetCurrentReplicas(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replicas, nil
}

func (s *SimulatorScaler) SetReplicas(ctx context.Context, replicas int) error {
	s.mu.Lock()
	s.calls = append(s.calls, replicas)
	var injected error
	if len(s.failures) > 0 {
		injected = s.failures[0]
		s.failures = s.failures[1:]
	}
	s.mu.Unlock()

	if replicas < 0 {
		return ErrInvalidTarget
	}
	if injected != nil {
		return fmt.Errorf("%w: %w", ErrScalingFailed, injected)
	}

	if s.provisionTime > 0 {
		select {
		case <-time.After(s.provisionTime):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	previous := s.replicas
	s.replicas = replicas
	s.mu.Unlock()

	logger.WithComponent("scaler").Infof("Simulated replicas %d -> %d", previous, replicas)
	return nil
}

// FailNext makes the next len(errs) SetReplicas calls fail in order. A nil
// entry lets that call through.
func (s *SimulatorScaler) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, errs...)
}

// Calls returns every target passed to SetReplicas.
func (s *SimulatorScaler) Calls() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.calls...)
}
