package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/resilience-plane/internal/events"
	"github.com/OldStager01/resilience-plane/internal/metrics"
	"github.com/OldStager01/resilience-plane/pkg/models"
)

var errDownstream = errors.New("downstream failed")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
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

func succeed(_ context.Context) (interface{}, error) { return "ok", nil }
func fail(_ context.Context) (interface{}, error)    { return nil, errDownstream }

func newTestRegistry(clock *fakeClock, sink metrics.Sink) *Registry {
	return NewRegistry(Config{FailureThreshold: 3, ResetTimeout: 30 * time.Second}, Options{
		Sink:  sink,
		Clock: clock.Now,
	})
}

func TestRegistry_StateTransitions(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(r *Registry, clock *fakeClock)
		expected State
	}{
		{
			name: "success stays closed",
			setup: func(r *Registry, _ *fakeClock) {
				_, _ = r.Execute(context.Background(), "svc", succeed, nil)
			},
			expected: StateClosed,
		},
		{
			name: "opens after threshold failures",
			setup: func(r *Registry, _ *fakeClock) {
				for i := 0; i < 3; i++ {
					_, _ = r.Execute(context.Background(), "svc", fail, nil)
				}
			},
			expected: StateOpen,
		},
		{
			name: "success resets the failure count",
			setup: func(r *Registry, _ *fakeClock) {
				_, _ = r.Execute(context.Background(), "svc", fail, nil)
				_, _ = r.Execute(context.Background(), "svc", fail, nil)
				_, _ = r.Execute(context.Background(), "svc", succeed, nil)
				_, _ = r.Execute(context.Background(), "svc", fail, nil)
			},
			expected: StateClosed,
		},
		{
			name: "probe success closes",
			setup: func(r *Registry, clock *fakeClock) {
				for i := 0; i < 3; i++ {
					_, _ = r.Execute(context.Background(), "svc", fail, nil)
				}
				clock.Advance(31 * time.Second)
				_, _ = r.Execute(context.Background(), "svc", succeed, nil)
			},
			expected: StateClosed,
		},
		{
			name: "probe failure reopens",
			setup: func(r *Registry, clock *fakeClock) {
				for i := 0; i < 3; i++ {
					_, _ = r.Execute(context.Background(), "svc", fail, nil)
				}
				clock.Advance(31 * time.Second)
				_, _ = r.Execute(context.Background(), "svc", fail, nil)
			},
			expected: StateOpen,
		},
		{
			name: "reset half-opens",
			setup: func(r *Registry, _ *fakeClock) {
				for i := 0; i < 3; i++ {
					_, _ = r.Execute(context.Background(), "svc", fail, nil)
				}
				require.NoError(t, r.Reset("svc"))
			},
			expected: StateHalfOpen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			r := newTestRegistry(clock, nil)

			tt.setup(r, clock)

			assert.Equal(t, tt.expected, r.State("svc"))
		})
	}
}

func TestRegistry_OpenCircuitDoesNotInvokeOperation(t *testing.T) {
	clock := newFakeClock()
	r := newTestRegistry(clock, nil)

	var calls atomic.Int32
	op := func(_ context.Context) (interface{}, error) {
		calls.Add(1)
		return nil, errDownstream
	}

	for i := 0; i < 3; i++ {
		_, _ = r.Execute(context.Background(), "svc", op, nil)
	}
	require.Equal(t, int32(3), calls.Load())

	for i := 0; i < 10; i++ {
		clock.Advance(2 * time.Second)
		_, err := r.Execute(context.Background(), "svc", op, nil)

		var openErr *CircuitOpenError
		require.ErrorAs(t, err, &openErr)
		assert.ErrorIs(t, err, ErrCircuitOpen)
		assert.Equal(t, "svc", openErr.Name)
		assert.Greater(t, openErr.RetryAfter, time.Duration(0))
	}
	assert.Equal(t, int32(3), calls.Load(), "operation must not run while OPEN")

	snap, ok := r.Snapshot("svc")
	require.True(t, ok)
	assert.Equal(t, uint64(10), snap.Rejections)
	assert.NotNil(t, snap.NextRetryAt)
}

func TestRegistry_SingleHalfOpenProbe(t *testing.T) {
	clock := newFakeClock()
	r := newTestRegistry(clock, nil)

	for i := 0; i < 3; i++ {
		_, _ = r.Execute(context.Background(), "svc", fail, nil)
	}
	clock.Advance(31 * time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32
	probe := func(_ context.Context) (interface{}, error) {
		calls.Add(1)
		close(started)
		<-release
		return "ok", nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := r.Execute(context.Background(), "svc", probe, nil)
		done <- err
	}()
	<-started

	assert.Equal(t, StateHalfOpen, r.State("svc"))

	var wg sync.WaitGroup
	var rejected atomic.Int32
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Execute(context.Background(), "svc", func(_ context.Context) (interface{}, error) {
				calls.Add(1)
				return "ok", nil
			}, nil)
			if errors.Is(err, ErrCircuitOpen) {
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), rejected.Load())
	assert.Equal(t, int32(1), calls.Load())

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, r.State("svc"))
}

func TestRegistry_Fallback(t *testing.T) {
	clock := newFakeClock()
	r := newTestRegistry(clock, nil)

	var causes []error
	fallback := func(_ context.Context, cause error) (interface{}, error) {
		causes = append(causes, cause)
		return "cached", nil
	}

	for i := 0; i < 3; i++ {
		out, err := r.Execute(context.Background(), "svc", fail, fallback)
		require.NoError(t, err)
		assert.Equal(t, "cached", out)
	}

	out, err := r.Execute(context.Background(), "svc", fail, fallback)
	require.NoError(t, err)
	assert.Equal(t, "cached", out)

	require.Len(t, causes, 4)
	assert.ErrorIs(t, causes[0], errDownstream)
	assert.ErrorIs(t, causes[3], ErrCircuitOpen)
}

func TestRegistry_PanicCountsAsFailure(t *testing.T) {
	r := newTestRegistry(newFakeClock(), nil)

	boom := func(_ context.Context) (interface{}, error) { panic("boom") }
	for i := 0; i < 3; i++ {
		_, err := r.Execute(context.Background(), "svc", boom, nil)
		assert.ErrorIs(t, err, ErrOperationPanic)
	}

	assert.Equal(t, StateOpen, r.State("svc"))
}

func TestRegistry_CallerCancellationNotCounted(t *testing.T) {
	r := newTestRegistry(newFakeClock(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	op := func(ctx context.Context) (interface{}, error) { return nil, ctx.Err() }
	for i := 0; i < 5; i++ {
		_, err := r.Execute(ctx, "svc", op, nil)
		assert.ErrorIs(t, err, context.Canceled)
	}

	assert.Equal(t, StateClosed, r.State("svc"))
	snap, _ := r.Snapshot("svc")
	assert.Equal(t, 0, snap.FailureCount)
}

func TestRegistry_Overrides(t *testing.T) {
	r := NewRegistry(Config{FailureThreshold: 5}, Options{
		Overrides: map[string]Config{"fragile": {FailureThreshold: 1}},
	})

	_, _ = r.Execute(context.Background(), "fragile", fail, nil)
	_, _ = r.Execute(context.Background(), "sturdy", fail, nil)

	assert.Equal(t, StateOpen, r.State("fragile"))
	assert.Equal(t, StateClosed, r.State("sturdy"))

	snap, _ := r.Snapshot("sturdy")
	assert.Equal(t, 5, snap.Threshold)
	assert.Equal(t, int64(30000), snap.ResetTimeoutMs)
}

func TestRegistry_MetricsAndEvents(t *testing.T) {
	sink := metrics.NewMemorySink()
	bus := events.NewEventBus(10)
	defer bus.Close()
	opened := bus.Subscribe(models.EventTypeCircuitOpen)

	clock := newFakeClock()
	r := NewRegistry(Config{FailureThreshold: 2}, Options{
		Sink:      sink,
		Publisher: events.NewPublisher(bus),
		Clock:     clock.Now,
	})

	_, _ = r.Execute(context.Background(), "db", succeed, nil)
	_, _ = r.Execute(context.Background(), "db", fail, nil)
	_, _ = r.Execute(context.Background(), "db", fail, nil)
	_, _ = r.Execute(context.Background(), "db", fail, nil)

	labels := map[string]string{"circuit": "db"}
	assert.Equal(t, 1.0, sink.Counter("circuit_breaker_successes", labels))
	assert.Equal(t, 2.0, sink.Counter("circuit_breaker_failures", labels))
	assert.Equal(t, 1.0, sink.Counter("circuit_breaker_rejections", labels))

	state, ok := sink.Gauge("circuit_breaker_state", labels)
	require.True(t, ok)
	assert.Equal(t, 2.0, state)

	select {
	case event := <-opened:
		assert.Equal(t, "db", event.Source)
	case <-time.After(time.Second):
		t.Fatal("expected circuit_open event")
	}
}

func TestRegistry_OnStateChange(t *testing.T) {
	r := newTestRegistry(newFakeClock(), nil)

	changes := make(chan StateChange, 4)
	unsubscribe := r.OnStateChange(func(c StateChange) { changes <- c })

	for i := 0; i < 3; i++ {
		_, _ = r.Execute(context.Background(), "svc", fail, nil)
	}

	select {
	case c := <-changes:
		assert.Equal(t, StateClosed, c.From)
		assert.Equal(t, StateOpen, c.To)
		assert.Equal(t, 3, c.Failures)
	case <-time.After(time.Second):
		t.Fatal("expected state change")
	}

	unsubscribe()
	require.NoError(t, r.Reset("svc"))
	select {
	case c := <-changes:
		t.Fatalf("unexpected change after unsubscribe: %+v", c)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRegistry_Reset(t *testing.T) {
	tests := []struct {
		name      string
		probe     func(context.Context) (interface{}, error)
		afterCall State
	}{
		{name: "probe success closes", probe: succeed, afterCall: StateClosed},
		{name: "probe failure reopens", probe: fail, afterCall: StateOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			r := newTestRegistry(clock, nil)
			for i := 0; i < 3; i++ {
				_, _ = r.Execute(context.Background(), "svc", fail, nil)
			}
			require.Equal(t, StateOpen, r.State("svc"))

			changes := make(chan StateChange, 4)
			defer r.OnStateChange(func(c StateChange) { changes <- c })()

			require.NoError(t, r.Reset("svc"))
			assert.Equal(t, StateHalfOpen, r.State("svc"))
			snap, _ := r.Snapshot("svc")
			assert.Equal(t, "HALF_OPEN", snap.State)
			select {
			case c := <-changes:
				assert.Equal(t, StateOpen, c.From)
				assert.Equal(t, StateHalfOpen, c.To)
			case <-time.After(time.Second):
				t.Fatal("expected state change")
			}

			var calls atomic.Int32
			_, _ = r.Execute(context.Background(), "svc", func(ctx context.Context) (interface{}, error) {
				calls.Add(1)
				return tt.probe(ctx)
			}, nil)
			assert.Equal(t, int32(1), calls.Load(), "the call after a reset reaches the downstream")
			assert.Equal(t, tt.afterCall, r.State("svc"))
		})
	}
}

func TestRegistry_ResetClosedClearsFailures(t *testing.T) {
	r := newTestRegistry(newFakeClock(), nil)
	for i := 0; i < 2; i++ {
		_, _ = r.Execute(context.Background(), "svc", fail, nil)
	}

	require.NoError(t, r.Reset("svc"))
	snap, _ := r.Snapshot("svc")
	assert.Equal(t, "CLOSED", snap.State)
	assert.Zero(t, snap.FailureCount)
}

func TestRegistry_ResetUnknown(t *testing.T) {
	r := NewRegistry(Config{}, Options{})
	assert.ErrorIs(t, r.Reset("nope"), ErrUnknownCircuit)
}

func TestCall_Typed(t *testing.T) {
	r := NewRegistry(Config{}, Options{})

	n, err := Call(context.Background(), r, "typed", func(context.Context) (int, error) { return 42, nil }, nil)
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	s, err := Call(context.Background(), r, "typed-fail",
		func(context.Context) (string, error) { return "", errDownstream },
		func(_ context.Context, cause error) (string, error) { return "fallback", nil },
	)
	require.NoError(t, err)
	assert.Equal(t, "fallback", s)
}
