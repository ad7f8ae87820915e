package throttle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/resilience-plane/internal/events"
	"github.com/OldStager01/resilience-plane/internal/metrics"
	"github.com/OldStager01/resilience-plane/pkg/models"
)

type staticHistory struct {
	samples []models.MetricSample
}

func (h *staticHistory) Latest() (models.MetricSample, bool) {
	if len(h.samples) == 0 {
		return models.MetricSample{}, false
	}
	return h.samples[len(h.samples)-1], true
}

func (h *staticHistory) Since(t time.Time) []models.MetricSample {
	var out []models.MetricSample
	for _, s := range h.samples {
		if !s.Timestamp.Before(t) {
			out = append(out, s)
		}
	}
	return out
}

type failingStore struct{}

func (failingStore) Incr(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("store unavailable")
}

func (failingStore) Get(context.Context, string) (int64, error) {
	return 0, errors.New("store unavailable")
}

// window-aligned so a test never straddles a window boundary
var base = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func historyWith(cpu, mem float64) *staticHistory {
	return &staticHistory{samples: []models.MetricSample{{Timestamp: base, CPUPercent: cpu, MemoryPercent: mem}}}
}

func newTestManager(h MetricsReader, cfg Config, opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return base }
	}
	return New(cfg, h, opts)
}

func TestManager_HighLoadHalvesLimit(t *testing.T) {
	m := newTestManager(historyWith(90, 40), Config{}, Options{})
	ctx := context.Background()

	for i := 1; i <= 50; i++ {
		res := m.Admit(ctx, "client-a")
		require.True(t, res.Allowed, "request %d should be admitted", i)
		assert.Equal(t, 50, res.Limit)
	}

	res := m.Admit(ctx, "client-a")
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Greater(t, res.DelayMs, int64(0))
	assert.True(t, base.Add(time.Minute).Equal(res.ResetAt))

	assert.True(t, m.Admit(ctx, "client-b").Allowed, "keys are counted independently")
}

func TestManager_EffectiveLimitBands(t *testing.T) {
	tests := []struct {
		name        string
		cpu, mem    float64
		maxRequests int
		recompute   bool
		expected    int
	}{
		{name: "normal load keeps base", cpu: 50, mem: 50, expected: 100},
		{name: "memory drives load", cpu: 10, mem: 80, expected: 50},
		{name: "low load alone does not raise", cpu: 10, mem: 10, expected: 100},
		{name: "sustained low load raises", cpu: 10, mem: 10, recompute: true, expected: 150},
		{name: "raise is capped at ceiling", cpu: 10, mem: 10, maxRequests: 150, recompute: true, expected: 200},
		{name: "sustained high load lowers", cpu: 90, mem: 10, recompute: true, expected: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(historyWith(tt.cpu, tt.mem), Config{MaxRequests: tt.maxRequests}, Options{})
			if tt.recompute {
				m.Recompute()
			}
			assert.Equal(t, tt.expected, m.EffectiveLimit())
		})
	}
}

func TestManager_NoSamplesUsesBase(t *testing.T) {
	m := newTestManager(&staticHistory{}, Config{}, Options{})
	m.Recompute()
	assert.Equal(t, 100, m.EffectiveLimit())
	assert.Equal(t, 0.0, m.CurrentLoad())
}

func TestManager_SustainedLatencyAndErrors(t *testing.T) {
	tests := []struct {
		name     string
		sample   models.MetricSample
		expected int
	}{
		{name: "slow p95", sample: models.MetricSample{Timestamp: base, CPUPercent: 10, LatencyP95Ms: 1500}, expected: 50},
		{name: "error burst", sample: models.MetricSample{Timestamp: base, CPUPercent: 10, ErrorRate: 0.10}, expected: 50},
		{name: "healthy", sample: models.MetricSample{Timestamp: base, CPUPercent: 50, LatencyP95Ms: 200}, expected: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(&staticHistory{samples: []models.MetricSample{tt.sample}}, Config{}, Options{})
			m.Recompute()
			assert.Equal(t, tt.expected, m.EffectiveLimit())
		})
	}
}

func TestManager_RecomputeIgnoresOldSamples(t *testing.T) {
	h := &staticHistory{samples: []models.MetricSample{
		{Timestamp: base.Add(-5 * time.Minute), CPUPercent: 99},
		{Timestamp: base, CPUPercent: 50},
	}}
	m := newTestManager(h, Config{}, Options{})
	m.Recompute()

	assert.Equal(t, 100, m.Status().SustainedLimit)
}

func TestManager_DelayPastDelayAfter(t *testing.T) {
	sink := metrics.NewMemorySink()
	m := newTestManager(historyWith(50, 50), Config{MaxRequests: 8}, Options{Sink: sink})
	ctx := context.Background()

	var delays []int64
	for i := 0; i < 8; i++ {
		res := m.Admit(ctx, "k")
		require.True(t, res.Allowed)
		delays = append(delays, res.DelayMs)
	}

	assert.Equal(t, []int64{0, 0, 0, 0, 0, 0, 100, 100}, delays)
	assert.Equal(t, 2.0, sink.Counter("throttle_delayed", nil))
	assert.Equal(t, 8.0, sink.Counter("throttle_admitted", nil))
	assert.Len(t, sink.Observations("throttle_delay_ms", nil), 2)
}

func TestManager_Delay(t *testing.T) {
	tests := []struct {
		name      string
		baseDelay time.Duration
		load      float64
		expected  time.Duration
	}{
		{name: "below threshold", baseDelay: 100 * time.Millisecond, load: 0.5, expected: 100 * time.Millisecond},
		{name: "quadratic above threshold", baseDelay: 100 * time.Millisecond, load: 0.9, expected: 144 * time.Millisecond},
		{name: "capped", baseDelay: 4 * time.Second, load: 0.9, expected: 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(nil, Config{BaseDelay: tt.baseDelay}, Options{})
			assert.InDelta(t, float64(tt.expected), float64(m.Delay(tt.load)), float64(time.Millisecond))
		})
	}
}

func TestManager_FailOpen(t *testing.T) {
	sink := metrics.NewMemorySink()
	m := newTestManager(historyWith(99, 99), Config{MaxRequests: 1}, Options{Store: failingStore{}, Sink: sink})

	for i := 0; i < 5; i++ {
		assert.True(t, m.Admit(context.Background(), "k").Allowed)
	}
	assert.Equal(t, 5.0, sink.Counter("throttle_store_errors", nil))
}

func TestManager_WindowRollsOver(t *testing.T) {
	now := base
	m := newTestManager(historyWith(50, 50), Config{MaxRequests: 2}, Options{Clock: func() time.Time { return now }})
	ctx := context.Background()

	assert.True(t, m.Admit(ctx, "k").Allowed)
	assert.True(t, m.Admit(ctx, "k").Allowed)
	assert.False(t, m.Admit(ctx, "k").Allowed)

	now = now.Add(time.Minute)
	assert.True(t, m.Admit(ctx, "k").Allowed)
}

func TestManager_Check(t *testing.T) {
	now := base.Add(15 * time.Second)
	m := newTestManager(historyWith(50, 50), Config{MaxRequests: 1}, Options{Clock: func() time.Time { return now }})
	ctx := context.Background()

	require.NoError(t, m.Check(ctx, "k"))

	err := m.Check(ctx, "k")
	var throttled *ThrottledError
	require.ErrorAs(t, err, &throttled)
	assert.ErrorIs(t, err, ErrThrottled)
	assert.Equal(t, "k", throttled.Key)
	assert.Equal(t, 45*time.Second, throttled.RetryAfter)
}

func TestManager_RulesAndKeyState(t *testing.T) {
	m := newTestManager(historyWith(50, 50), Config{
		Rules: map[string]Rule{"/api/v1/scale": {MaxRequests: 4}},
	}, Options{})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.True(t, m.AdmitRule(ctx, "/api/v1/scale", "ip").Allowed)
	}
	assert.False(t, m.AdmitRule(ctx, "/api/v1/scale", "ip").Allowed)
	assert.True(t, m.Admit(ctx, "ip").Allowed)

	state, err := m.KeyState(ctx, "/api/v1/scale", "ip")
	require.NoError(t, err)
	assert.Equal(t, int64(5), state.RequestCountInWindow)
	assert.Equal(t, 4, state.EffectiveMaxRequests)
	assert.True(t, base.Equal(state.WindowStart))

	status := m.Status()
	assert.Equal(t, 4, status.RuleLimits["/api/v1/scale"])
}

func TestManager_LimitChangeEvent(t *testing.T) {
	bus := events.NewEventBus(10)
	defer bus.Close()
	ch := bus.Subscribe(models.EventTypeThrottleLimit)

	m := newTestManager(historyWith(90, 10), Config{}, Options{Publisher: events.NewPublisher(bus)})
	m.Recompute()
	m.Recompute()

	select {
	case event := <-ch:
		assert.Contains(t, event.Message, "100 -> 50")
	case <-time.After(time.Second):
		t.Fatal("expected throttle limit event")
	}
	assert.Len(t, ch, 0, "unchanged limits are not re-announced")
}

func TestMemoryStore_Expiry(t *testing.T) {
	now := base
	s := NewMemoryStore()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	n, _ := s.Incr(ctx, "a", time.Second)
	assert.Equal(t, int64(1), n)
	n, _ = s.Incr(ctx, "a", time.Second)
	assert.Equal(t, int64(2), n)

	now = now.Add(2 * time.Second)
	v, _ := s.Get(ctx, "a")
	assert.Equal(t, int64(0), v)
	n, _ = s.Incr(ctx, "a", time.Second)
	assert.Equal(t, int64(1), n)
}
