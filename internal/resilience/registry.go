package resilience

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/OldStager01/resilience-plane/internal/events"
	"github.com/OldStager01/resilience-plane/internal/logger"
	"github.com/OldStager01/resilience-plane/internal/metrics"
)

type Config struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}

type Options struct {
	Sink      metrics.Sink
	Publisher *events.Publisher
	// Overrides replaces the defaults for specific circuit names. Zero fields
	// fall back to the registry config.
	Overrides map[string]Config
	Clock     func() time.Time
}

// Operation is the guarded call. Fallback receives the rejection or failure
// that caused it to run.
type (
	Operation          func(ctx context.Context) (interface{}, error)
	Fallback           func(ctx context.Context, cause error) (interface{}, error)
	StateChangeHandler func(StateChange)
)

// Snapshot is a read-only copy of one circuit's state.
type Snapshot struct {
	Name           string     `json:"name"`
	State          string     `json:"state"`
	FailureCount   int        `json:"failure_count"`
	LastFailureAt  *time.Time `json:"last_failure_at,omitempty"`
	NextRetryAt    *time.Time `json:"next_retry_at,omitempty"`
	Threshold      int        `json:"threshold"`
	ResetTimeoutMs int64      `json:"reset_timeout_ms"`
	Successes      uint64     `json:"successes"`
	Rejections     uint64     `json:"rejections"`
}

// Registry holds one lazily created circuit per operation name for the
// lifetime of the process. State is not shared across instances.
type Registry struct {
	config    Config
	overrides map[string]Config
	sink      metrics.Sink
	publisher *events.Publisher
	now       func() time.Time

	mu       sync.RWMutex
	circuits map[string]*circuitBreaker

	handlersMu sync.RWMutex
	handlers   map[uint64]StateChangeHandler
	nextID     uint64
}

func NewRegistry(cfg Config, opts Options) *Registry {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if opts.Sink == nil {
		opts.Sink = metrics.NopSink{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Registry{
		config:    cfg,
		overrides: opts.Overrides,
		sink:      opts.Sink,
		publisher: opts.Publisher,
		now:       opts.Clock,
		circuits:  make(map[string]*circuitBreaker),
		handlers:  make(map[uint64]StateChangeHandler),
	}
}

func (r *Registry) circuit(name string) *circuitBreaker {
	r.mu.RLock()
	cb, ok := r.circuits[name]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok = r.circuits[name]; ok {
		return cb
	}

	cfg := r.config
	if o, ok := r.overrides[name]; ok {
		if o.FailureThreshold > 0 {
			cfg.FailureThreshold = o.FailureThreshold
		}
		if o.ResetTimeout > 0 {
			cfg.ResetTimeout = o.ResetTimeout
		}
	}
	cb = newCircuitBreaker(name, cfg)
	r.circuits[name] = cb
	r.sink.RecordGauge("circuit_breaker_state", StateClosed.metricValue(), map[string]string{"circuit": name})
	return cb
}

// Execute runs operation through the named circuit. When the circuit rejects
// the call or the operation fails, fallback (if any) produces the result.
func (r *Registry) Execute(ctx context.Context, name string, operation Operation, fallback Fallback) (interface{}, error) {
	cb := r.circuit(name)
	labels := map[string]string{"circuit": name}

	gen, change, err := cb.admit(r.now())
	r.notify(change)
	if err != nil {
		r.sink.RecordCounter("circuit_breaker_rejections", labels)
		if fallback != nil {
			return fallback(ctx, err)
		}
		return nil, err
	}

	result, opErr := invoke(ctx, operation)

	if opErr != nil && errors.Is(opErr, context.Canceled) && ctx.Err() != nil {
		// The caller gave up; that says nothing about the downstream.
		cb.release(gen)
		return nil, opErr
	}

	if opErr != nil {
		r.sink.RecordCounter("circuit_breaker_failures", labels)
		r.notify(cb.recordFailure(gen, r.now()))
		if fallback != nil {
			return fallback(ctx, opErr)
		}
		return nil, opErr
	}

	r.sink.RecordCounter("circuit_breaker_successes", labels)
	r.notify(cb.recordSuccess(gen, r.now()))
	r.publisher.CircuitSucceeded(name)
	return result, nil
}

func invoke(ctx context.Context, operation Operation) (result interface{}, err error) {
	defer func() {
		if v := recover(); v != nil {
			result, err = nil, panicError(v)
		}
	}()
	return operation(ctx)
}

// Call is the typed form of Registry.Execute.
func Call[T any](ctx context.Context, r *Registry, name string, operation func(context.Context) (T, error), fallback func(context.Context, error) (T, error)) (T, error) {
	var fb Fallback
	if fallback != nil {
		fb = func(ctx context.Context, cause error) (interface{}, error) {
			return fallback(ctx, cause)
		}
	}

	out, err := r.Execute(ctx, name, func(ctx context.Context) (interface{}, error) {
		return operation(ctx)
	}, fb)

	var zero T
	if err != nil {
		return zero, err
	}
	if v, ok := out.(T); ok {
		return v, nil
	}
	return zero, nil
}

func (r *Registry) notify(change *StateChange) {
	if change == nil {
		return
	}

	r.sink.RecordGauge("circuit_breaker_state", change.To.metricValue(), map[string]string{"circuit": change.Name})
	r.publisher.CircuitStateChanged(change.Name, change.From.String(), change.To.String())

	entry := logger.WithComponent("circuit").WithField("circuit", change.Name)
	if change.To == StateOpen {
		r.publisher.CircuitOpened(change.Name, change.Failures)
		entry.WithField("failures", change.Failures).Warnf("Circuit opened (%s -> %s)", change.From, change.To)
	} else {
		entry.Infof("Circuit state changed (%s -> %s)", change.From, change.To)
	}

	r.handlersMu.RLock()
	defer r.handlersMu.RUnlock()
	for _, h := range r.handlers {
		go h(*change)
	}
}

// OnStateChange registers handler for every transition of every circuit.
// Handlers run on their own goroutine. The returned func unregisters it.
func (r *Registry) OnStateChange(handler StateChangeHandler) func() {
	r.handlersMu.Lock()
	defer r.handlersMu.Unlock()

	id := r.nextID
	r.nextID++
	r.handlers[id] = handler

	return func() {
		r.handlersMu.Lock()
		defer r.handlersMu.Unlock()
		delete(r.handlers, id)
	}
}

// State reports the current state of name; unknown circuits are CLOSED.
func (r *Registry) State(name string) State {
	r.mu.RLock()
	cb, ok := r.circuits[name]
	r.mu.RUnlock()
	if !ok {
		return StateClosed
	}
	return cb.currentState()
}

func (r *Registry) Snapshot(name string) (Snapshot, bool) {
	r.mu.RLock()
	cb, ok := r.circuits[name]
	r.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}
	return cb.snapshot(), true
}

func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	list := make([]*circuitBreaker, 0, len(r.circuits))
	for _, cb := range r.circuits {
		list = append(list, cb)
	}
	r.mu.RUnlock()

	out := make([]Snapshot, 0, len(list))
	for _, cb := range list {
		out = append(out, cb.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Reset moves a tripped circuit to HALF_OPEN so the next call probes the
// downstream. A CLOSED circuit only has its failure count cleared.
func (r *Registry) Reset(name string) error {
	r.mu.RLock()
	cb, ok := r.circuits[name]
	r.mu.RUnlock()
	if !ok {
		return ErrUnknownCircuit
	}
	r.notify(cb.reset(r.now()))
	return nil
}
