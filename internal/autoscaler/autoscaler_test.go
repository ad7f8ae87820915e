package autoscaler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/resilience-plane/internal/metrics"
	"github.com/OldStager01/resilience-plane/internal/scaler"
	"github.com/OldStager01/resilience-plane/pkg/models"
)

var (
	t0         = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	errQuota   = errors.New("quota exceeded")
	errTimeout = errors.New("api timeout")
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type staticHistory struct {
	samples []models.MetricSample
}

func (h *staticHistory) Latest() (models.MetricSample, bool) {
	if len(h.samples) == 0 {
		return models.MetricSample{}, false
	}
	return h.samples[len(h.samples)-1], true
}

func (h *staticHistory) Recent(n int) []models.MetricSample {
	if n > len(h.samples) {
		n = len(h.samples)
	}
	return append([]models.MetricSample(nil), h.samples[len(h.samples)-n:]...)
}

func (h *staticHistory) Len() int { return len(h.samples) }

// ramp builds n samples 10s apart with cpu moving linearly from cpuFrom to
// cpuTo.
func ramp(n int, cpuFrom, cpuTo, mem float64) *staticHistory {
	h := &staticHistory{}
	for i := 0; i < n; i++ {
		cpu := cpuFrom
		if n > 1 {
			cpu += (cpuTo - cpuFrom) * float64(i) / float64(n-1)
		}
		h.samples = append(h.samples, models.MetricSample{
			Timestamp:     t0.Add(time.Duration(i) * 10 * time.Second),
			CPUPercent:    cpu,
			MemoryPercent: mem,
		})
	}
	return h
}

func flat(n int, cpu, mem float64) *staticHistory {
	return ramp(n, cpu, cpu, mem)
}

type countingAlert struct {
	mu       sync.Mutex
	messages []string
}

func (c *countingAlert) SendAlert(_ context.Context, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, message)
	return nil
}

func (c *countingAlert) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

type memoryStore struct {
	mu    sync.Mutex
	saved []models.ScalingDecision
}

func (s *memoryStore) Save(_ context.Context, d *models.ScalingDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, *d)
	return nil
}

type brokenReadout struct{}

func (brokenReadout) GetCurrentReplicas(context.Context) (int, error) { return 0, errTimeout }
func (brokenReadout) SetReplicas(context.Context, int) error          { return nil }

type fixture struct {
	autoscaler *Autoscaler
	executor   *scaler.SimulatorScaler
	clock      *fakeClock
	alert      *countingAlert
	store      *memoryStore
	sink       *metrics.MemorySink
}

func newFixture(replicas int, history HistoryReader, cfg Config) *fixture {
	f := &fixture{
		executor: scaler.NewSimulatorScaler(scaler.SimulatorConfig{InitialReplicas: replicas}),
		clock:    &fakeClock{now: t0.Add(time.Hour)},
		alert:    &countingAlert{},
		store:    &memoryStore{},
		sink:     metrics.NewMemorySink(),
	}
	f.autoscaler = New(cfg, f.executor, history, Options{
		Sink:  f.sink,
		Alert: f.alert,
		Store: f.store,
		Clock: f.clock.Now,
	})
	return f
}

func TestEvaluate_Reactive(t *testing.T) {
	tests := []struct {
		name     string
		replicas int
		cpu, mem float64
		expected int
	}{
		{name: "cpu above threshold", replicas: 4, cpu: 80, mem: 40, expected: 6},
		{name: "memory above threshold", replicas: 4, cpu: 40, mem: 85, expected: 6},
		{name: "odd count rounds the step up", replicas: 3, cpu: 90, mem: 40, expected: 5},
		{name: "at min still grows by one at least", replicas: 2, cpu: 90, mem: 40, expected: 3},
		{name: "step clamped to max", replicas: 9, cpu: 90, mem: 40, expected: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tt.replicas, flat(5, tt.cpu, tt.mem), Config{})

			decision, err := f.autoscaler.Evaluate(context.Background())
			require.NoError(t, err)
			require.NotNil(t, decision)

			assert.Equal(t, models.DirectionUp, decision.Direction)
			assert.Equal(t, models.ReasonThreshold, decision.Reason)
			assert.Equal(t, tt.replicas, decision.PreviousReplicas)
			assert.Equal(t, tt.expected, decision.TargetReplicas)
			assert.Equal(t, models.OutcomeSuccess, decision.Outcome)

			n, _ := f.executor.GetCurrentReplicas(context.Background())
			assert.Equal(t, tt.expected, n)
		})
	}
}

func TestEvaluate_StaysWithinBounds(t *testing.T) {
	tests := []struct {
		name     string
		replicas int
		history  *staticHistory
		target   int
	}{
		{name: "at max under high load", replicas: 10, history: flat(5, 95, 95)},
		{name: "at min under low load", replicas: 2, history: flat(30, 5, 5)},
		{name: "normal load", replicas: 4, history: flat(30, 50, 50)},
		{name: "no samples", replicas: 4, history: &staticHistory{}},
		{name: "above max under low load", replicas: 14, history: flat(30, 10, 10), target: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tt.replicas, tt.history, Config{MinInstances: 2, MaxInstances: 10})

			decision, err := f.autoscaler.Evaluate(context.Background())
			require.NoError(t, err)
			if tt.target == 0 {
				assert.Nil(t, decision)
				assert.Empty(t, f.executor.Calls())
				return
			}

			require.NotNil(t, decision)
			assert.Equal(t, tt.target, decision.TargetReplicas)
			assert.LessOrEqual(t, decision.TargetReplicas, 10)
			n, _ := f.executor.GetCurrentReplicas(context.Background())
			assert.Equal(t, tt.target, n)
		})
	}
}

func TestEvaluate_ScaleDown(t *testing.T) {
	tests := []struct {
		name     string
		history  *staticHistory
		expected int
	}{
		{name: "quiet system loses one replica", history: flat(30, 20, 20), expected: 4},
		{name: "memory keeps capacity", history: flat(30, 20, 45), expected: 5},
		{name: "rising cpu keeps capacity", history: ramp(30, 10, 36, 20), expected: 5},
		{name: "too few samples", history: flat(29, 10, 10), expected: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(5, tt.history, Config{})

			_, err := f.autoscaler.Evaluate(context.Background())
			require.NoError(t, err)

			n, _ := f.executor.GetCurrentReplicas(context.Background())
			assert.Equal(t, tt.expected, n)
		})
	}
}

func TestEvaluate_Predictive(t *testing.T) {
	f := newFixture(4, ramp(60, 40, 70, 50), Config{})

	decision, err := f.autoscaler.Evaluate(context.Background())
	require.NoError(t, err)
	require.NotNil(t, decision)
	assert.Equal(t, models.ReasonPredictive, decision.Reason)
	assert.Equal(t, 6, decision.TargetReplicas)

	forecast, ok := f.autoscaler.LastForecast()
	require.True(t, ok)
	assert.Equal(t, 100.0, forecast.PredictedCPU)
	assert.InDelta(t, 1.0, forecast.Confidence, 1e-9)
}

func TestEvaluate_PredictiveNeedsHistory(t *testing.T) {
	f := newFixture(4, ramp(59, 40, 70, 50), Config{})

	decision, err := f.autoscaler.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Nil(t, decision)

	_, ok := f.autoscaler.LastForecast()
	assert.False(t, ok)
}

func TestEvaluate_ThroughputCapacity(t *testing.T) {
	history := flat(60, 50, 50)
	for i := range history.samples {
		history.samples[i].ThroughputRps = 750
	}
	f := newFixture(4, history, Config{ThroughputPerReplica: 100})

	decision, err := f.autoscaler.Evaluate(context.Background())
	require.NoError(t, err)
	require.NotNil(t, decision)
	assert.Equal(t, models.ReasonPredictive, decision.Reason)
	assert.Equal(t, 8, decision.TargetReplicas)
}

func TestCooldown_SuppressesSecondTrigger(t *testing.T) {
	f := newFixture(4, flat(5, 90, 40), Config{Cooldown: 300000 * time.Millisecond})
	ctx := context.Background()

	first, err := f.autoscaler.Evaluate(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)

	f.clock.Advance(100 * time.Millisecond)
	second, err := f.autoscaler.Evaluate(ctx)
	require.NoError(t, err)
	assert.Nil(t, second)

	assert.Len(t, f.autoscaler.Decisions(0), 1)
	assert.Equal(t, []int{6}, f.executor.Calls())
	assert.Equal(t, 1.0, f.sink.Counter("scaling_suppressed", map[string]string{"reason": "THRESHOLD"}))

	status := f.autoscaler.Status()
	assert.Equal(t, models.ScalingStatusCooldown, status.ScalingStatus)
	assert.Equal(t, int64(300000-100), status.CooldownRemainingMs)
}

func TestCooldown_Bottlenecks(t *testing.T) {
	tests := []struct {
		name       string
		bottleneck models.BottleneckType
		severity   models.Severity
		bypass     bool
	}{
		{name: "critical bypasses", bottleneck: models.BottleneckCPU, severity: models.SeverityCritical, bypass: true},
		{name: "high waits", bottleneck: models.BottleneckLatency, severity: models.SeverityHigh},
		{name: "circuit open waits", bottleneck: models.BottleneckCircuitOpen, severity: models.SeverityHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(4, flat(5, 90, 40), Config{})
			ctx := context.Background()

			_, err := f.autoscaler.Evaluate(ctx)
			require.NoError(t, err)
			f.clock.Advance(100 * time.Millisecond)

			decision, err := f.autoscaler.HandleBottleneck(ctx, models.Bottleneck{
				Type:     tt.bottleneck,
				Severity: tt.severity,
				Value:    97,
			})
			require.NoError(t, err)

			if !tt.bypass {
				assert.Nil(t, decision)
				assert.Equal(t, []int{6}, f.executor.Calls())
				return
			}
			require.NotNil(t, decision)
			assert.Equal(t, models.ReasonBottleneck, decision.Reason)
			assert.Equal(t, models.SeverityCritical, decision.Severity)
			assert.Equal(t, 9, decision.TargetReplicas)
			assert.Equal(t, []int{6, 9}, f.executor.Calls())
		})
	}
}

func TestHandleBottleneck_AtMax(t *testing.T) {
	f := newFixture(10, flat(5, 50, 50), Config{})

	decision, err := f.autoscaler.HandleBottleneck(context.Background(), models.Bottleneck{
		Type:     models.BottleneckCircuitOpen,
		Severity: models.SeverityCritical,
	})
	require.NoError(t, err)
	assert.Nil(t, decision)
	assert.Empty(t, f.executor.Calls())
}

func TestRollback(t *testing.T) {
	f := newFixture(3, flat(5, 90, 40), Config{})
	f.executor.FailNext(errQuota)

	decision, err := f.autoscaler.Evaluate(context.Background())

	var execErr *ScalingExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 5, execErr.Target)
	assert.ErrorIs(t, err, scaler.ErrScalingFailed)

	require.NotNil(t, decision)
	assert.Equal(t, models.OutcomeRolledBack, decision.Outcome)
	assert.Equal(t, []int{5, 3}, f.executor.Calls())

	n, _ := f.executor.GetCurrentReplicas(context.Background())
	assert.Equal(t, 3, n)
	assert.Equal(t, 0, f.alert.count())
	assert.Equal(t, models.ScalingStatusCooldown, f.autoscaler.Status().ScalingStatus)
}

func TestRollbackFailure_AlertsOnce(t *testing.T) {
	f := newFixture(3, flat(5, 90, 40), Config{})
	f.executor.FailNext(errQuota, errTimeout)

	decision, err := f.autoscaler.Evaluate(context.Background())

	var fatal *RollbackFailedError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, 3, fatal.Previous)
	assert.Equal(t, 5, fatal.Target)
	assert.ErrorIs(t, err, errQuota)
	assert.ErrorIs(t, err, errTimeout)

	require.NotNil(t, decision)
	assert.Equal(t, models.OutcomeFailed, decision.Outcome)
	assert.Equal(t, []int{5, 3}, f.executor.Calls())
	assert.Equal(t, 1, f.alert.count())
	assert.Equal(t, models.ScalingStatusDegraded, f.autoscaler.Status().ScalingStatus)

	f.clock.Advance(10 * time.Minute)
	_, err = f.autoscaler.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.alert.count())
	assert.Equal(t, models.ScalingStatusCooldown, f.autoscaler.Status().ScalingStatus)
}

func TestScaleTo(t *testing.T) {
	f := newFixture(4, flat(5, 50, 50), Config{MinInstances: 2, MaxInstances: 10})
	ctx := context.Background()

	_, err := f.autoscaler.ScaleTo(ctx, 11)
	assert.ErrorIs(t, err, ErrTargetOutOfRange)
	_, err = f.autoscaler.ScaleTo(ctx, 1)
	assert.ErrorIs(t, err, ErrTargetOutOfRange)

	decision, err := f.autoscaler.ScaleTo(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, models.ReasonManual, decision.Reason)
	assert.Equal(t, models.DirectionDown, decision.Direction)

	_, err = f.autoscaler.ScaleTo(ctx, 7)
	assert.ErrorIs(t, err, ErrCooldownActive)
}

func TestDecisionJournal(t *testing.T) {
	f := newFixture(2, flat(5, 90, 40), Config{MaxInstances: 50, DecisionHistory: 3, Cooldown: time.Second})
	ctx := context.Background()

	received := make(chan models.ScalingDecision, 10)
	unsubscribe := f.autoscaler.OnDecision(func(d models.ScalingDecision) { received <- d })
	defer unsubscribe()

	for i := 0; i < 5; i++ {
		_, err := f.autoscaler.Evaluate(ctx)
		require.NoError(t, err)
		f.clock.Advance(2 * time.Second)
	}

	decisions := f.autoscaler.Decisions(0)
	require.Len(t, decisions, 3)
	assert.Greater(t, decisions[0].TargetReplicas, decisions[1].TargetReplicas, "newest first")
	assert.Len(t, f.autoscaler.Decisions(1), 1)

	f.store.mu.Lock()
	require.Len(t, f.store.saved, 10)
	assert.Equal(t, models.OutcomePending, f.store.saved[0].Outcome)
	assert.Equal(t, models.OutcomeSuccess, f.store.saved[1].Outcome)
	assert.Equal(t, f.store.saved[0].ID, f.store.saved[1].ID)
	f.store.mu.Unlock()

	require.Eventually(t, func() bool { return len(received) == 5 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 5.0, f.sink.Counter("scaling_decisions", map[string]string{"outcome": "success"}))
	assert.Len(t, f.sink.Observations("scaling_duration_ms", nil), 5)
}

func TestStatus_ReadoutFailure(t *testing.T) {
	a := New(Config{}, brokenReadout{}, flat(5, 90, 40), Options{})

	_, err := a.Evaluate(context.Background())
	assert.ErrorIs(t, err, ErrNoReplicaReadout)
	assert.Equal(t, models.ScalingStatusDegraded, a.Status().ScalingStatus)
}

func TestStatus_Initial(t *testing.T) {
	f := newFixture(4, &staticHistory{}, Config{})

	_, _ = f.autoscaler.Evaluate(context.Background())
	status := f.autoscaler.Status()

	assert.Equal(t, 4, status.CurrentReplicas)
	assert.Equal(t, models.ScalingStatusStable, status.ScalingStatus)
	assert.Nil(t, status.LastDecision)
	assert.Equal(t, 2, status.MinInstances)
	assert.Equal(t, 10, status.MaxInstances)

	v, ok := f.sink.Gauge("scaler_replicas", nil)
	require.True(t, ok)
	assert.Equal(t, 4.0, v)
}
