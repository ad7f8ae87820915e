package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/resilience-plane/internal/collector"
	"github.com/OldStager01/resilience-plane/internal/resilience"
	"github.com/OldStager01/resilience-plane/internal/scaler"
	"github.com/OldStager01/resilience-plane/pkg/config"
	"github.com/OldStager01/resilience-plane/pkg/database"
	"github.com/OldStager01/resilience-plane/pkg/models"
)

type steadySource struct{}

func (steadySource) Name() string { return "steady" }

func (steadySource) Collect(context.Context) (models.MetricSample, error) {
	return models.MetricSample{Timestamp: time.Now(), CPUPercent: 40, MemoryPercent: 40}, nil
}

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	cfg.Circuit.FailureThreshold = 2
	return cfg
}

func openDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{Driver: database.DriverSQLite, Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.NewMigrator(db).Run(context.Background()))
	return db
}

func startOrchestrator(t *testing.T, cfg *config.Config, db *database.DB, sim *scaler.SimulatorScaler) *Orchestrator {
	t.Helper()
	o, err := New(cfg, db, Options{Source: steadySource{}, Executor: sim})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, o.Start(ctx))
	t.Cleanup(func() {
		cancel()
		o.Stop()
	})
	return o
}

func currentReplicas(t *testing.T, sim *scaler.SimulatorScaler) int {
	n, err := sim.GetCurrentReplicas(context.Background())
	require.NoError(t, err)
	return n
}

func TestOrchestrator_CircuitOpenScalesUp(t *testing.T) {
	cfg := loadConfig(t)
	sim := scaler.NewSimulatorScaler(scaler.SimulatorConfig{InitialReplicas: 2})
	o := startOrchestrator(t, cfg, nil, sim)
	require.True(t, o.IsRunning())

	failing := func(context.Context) (interface{}, error) { return nil, errors.New("payments down") }
	for i := 0; i < cfg.Circuit.FailureThreshold; i++ {
		_, _ = o.Registry().Execute(context.Background(), "payments", failing, nil)
	}

	assert.Eventually(t, func() bool { return currentReplicas(t, sim) > 2 }, 3*time.Second, 20*time.Millisecond)

	decisions := o.Autoscaler().Decisions(10)
	require.NotEmpty(t, decisions)
	assert.Equal(t, models.ReasonBottleneck, decisions[0].Reason)
	assert.Equal(t, models.SeverityHigh, decisions[0].Severity)
}

func TestOrchestrator_ControlPlaneCircuitsDoNotFeedBack(t *testing.T) {
	tests := []struct {
		name    string
		circuit string
	}{
		{name: "scaler", circuit: ScalerCircuit},
		{name: "metrics source", circuit: collector.CircuitPrefix + steadySource{}.Name()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadConfig(t)
			sim := scaler.NewSimulatorScaler(scaler.SimulatorConfig{InitialReplicas: 2})
			o := startOrchestrator(t, cfg, nil, sim)

			failing := func(context.Context) (interface{}, error) { return nil, errors.New("downstream gone") }
			for i := 0; i < cfg.Circuit.FailureThreshold; i++ {
				_, _ = o.Registry().Execute(context.Background(), tt.circuit, failing, nil)
			}
			require.Equal(t, resilience.StateOpen, o.Registry().State(tt.circuit))

			time.Sleep(100 * time.Millisecond)
			assert.Empty(t, o.Autoscaler().Decisions(10))
			assert.Equal(t, 2, currentReplicas(t, sim))
		})
	}
}

func TestScalesOnTrip(t *testing.T) {
	tests := []struct {
		circuit  string
		expected bool
	}{
		{circuit: "payments", expected: true},
		{circuit: "collector", expected: true},
		{circuit: ScalerCircuit, expected: false},
		{circuit: "collector:prometheus", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.circuit, func(t *testing.T) {
			assert.Equal(t, tt.expected, scalesOnTrip(tt.circuit))
		})
	}
}

func TestOrchestrator_ArchivesWithStorage(t *testing.T) {
	cfg := loadConfig(t)
	sim := scaler.NewSimulatorScaler(scaler.SimulatorConfig{InitialReplicas: 2})
	o := startOrchestrator(t, cfg, openDB(t), sim)
	ctx := context.Background()

	archives := o.Archives()
	require.NotNil(t, archives.Decisions)
	require.NotNil(t, archives.Samples)
	require.NotNil(t, archives.Events)

	before, err := archives.Decisions.Recent(ctx, 20)
	require.NoError(t, err)
	assert.Empty(t, before)

	assert.Contains(t, o.pipeline.Names(), "cache-preloader")
	assert.Contains(t, o.pipeline.Names(), "sample-retention")

	decision, err := o.Autoscaler().ScaleTo(ctx, 4)
	require.NoError(t, err)
	require.NotNil(t, decision)

	assert.Eventually(t, func() bool {
		got, err := archives.Decisions.Recent(ctx, 20)
		return err == nil && len(got) == 1 && got[0].Outcome == models.OutcomeSuccess
	}, 3*time.Second, 20*time.Millisecond, "cached archive is invalidated on every decision")

	stored, err := archives.Decisions.GetByID(ctx, decision.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.TargetReplicas)
}

func TestOrchestrator_NoStorage(t *testing.T) {
	cfg := loadConfig(t)
	o, err := New(cfg, nil, Options{Source: steadySource{}})
	require.NoError(t, err)

	assert.Nil(t, o.Archives().Decisions)
	assert.Equal(t, []string{"sampler", "throttle", "cache", "autoscaler"}, o.pipeline.Names())
}

func TestNew_UnknownCollector(t *testing.T) {
	cfg := loadConfig(t)
	cfg.Collector.Type = "carrier-pigeon"

	_, err := New(cfg, nil, Options{})
	assert.ErrorContains(t, err, "unknown collector type")
}

func TestPipeline_RecoversPanickingLoop(t *testing.T) {
	var stopped atomic.Bool
	p := NewPipeline(
		Loop{Name: "bad", Run: func(context.Context) { panic("boom") }},
		Loop{Name: "good", Run: func(ctx context.Context) {
			<-ctx.Done()
			stopped.Store(true)
		}},
	)

	p.Start(context.Background())
	p.Start(context.Background())
	assert.True(t, p.IsRunning())

	p.Stop()
	assert.False(t, p.IsRunning())
	assert.True(t, stopped.Load())
	p.Stop()
}

func TestPromQueries(t *testing.T) {
	q := promQueries(map[string]string{"cpu": "my_cpu", "queue_load": "my_queue", "bogus": "x"})
	assert.Equal(t, "my_cpu", q.CPU)
	assert.Equal(t, "my_queue", q.QueueLoad)
	assert.NotEmpty(t, q.Memory)
}

func TestThrottleRules(t *testing.T) {
	assert.Nil(t, throttleRules(nil))

	rules := throttleRules(map[string]config.ThrottleRule{"/api/v1/scale": {WindowMs: 30000, MaxRequests: 5}})
	assert.Equal(t, 30*time.Second, rules["/api/v1/scale"].Window)
	assert.Equal(t, 5, rules["/api/v1/scale"].MaxRequests)
}
