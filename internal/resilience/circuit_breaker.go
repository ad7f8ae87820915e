package resilience

import (
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// metricValue is the circuit_breaker_state gauge encoding.
func (s State) metricValue() float64 {
	switch s {
	case StateHalfOpen:
		return 1
	case StateOpen:
		return 2
	default:
		return 0
	}
}

// StateChange describes one transition of a named circuit.
type StateChange struct {
	Name     string
	From     State
	To       State
	Failures int
	At       time.Time
}

// circuitBreaker is the state machine behind one circuit name. Every field
// is guarded by mu; transitions bump generation so that the outcome of a
// call admitted under an older generation is ignored.
type circuitBreaker struct {
	name         string
	threshold    int
	resetTimeout time.Duration

	mu            sync.Mutex
	state         State
	failures      int
	lastFailureAt time.Time
	nextRetryAt   time.Time
	generation    uint64
	probing       bool
	successes     uint64
	rejections    uint64
}

func newCircuitBreaker(name string, cfg Config) *circuitBreaker {
	return &circuitBreaker{
		name:         name,
		threshold:    cfg.FailureThreshold,
		resetTimeout: cfg.ResetTimeout,
		state:        StateClosed,
	}
}

// admit decides whether a call may invoke the operation. It returns the
// generation the call runs under, any transition it caused, and a
// *CircuitOpenError when the call is rejected.
func (cb *circuitBreaker) admit(now time.Time) (uint64, *StateChange, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if now.Before(cb.nextRetryAt) {
			cb.rejections++
			return 0, nil, &CircuitOpenError{Name: cb.name, State: StateOpen, RetryAfter: cb.nextRetryAt.Sub(now)}
		}
		change := cb.transitionTo(StateHalfOpen, now)
		cb.probing = true
		return cb.generation, change, nil

	case StateHalfOpen:
		if cb.probing {
			cb.rejections++
			return 0, nil, &CircuitOpenError{Name: cb.name, State: StateHalfOpen}
		}
		cb.probing = true
		return cb.generation, nil, nil
	}

	return cb.generation, nil, nil
}

func (cb *circuitBreaker) recordSuccess(gen uint64, now time.Time) *StateChange {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.successes++
	if gen != cb.generation {
		return nil
	}

	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		return cb.transitionTo(StateClosed, now)
	}
	return nil
}

func (cb *circuitBreaker) recordFailure(gen uint64, now time.Time) *StateChange {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if gen != cb.generation {
		return nil
	}

	cb.lastFailureAt = now
	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.threshold {
			return cb.transitionTo(StateOpen, now)
		}
	case StateHalfOpen:
		cb.failures++
		return cb.transitionTo(StateOpen, now)
	}
	return nil
}

// release gives up a HALF_OPEN probe slot without judging the downstream,
// used when the caller abandoned the call.
func (cb *circuitBreaker) release(gen uint64) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if gen == cb.generation && cb.state == StateHalfOpen {
		cb.probing = false
	}
}

// transitionTo must be called with cb.mu held.
func (cb *circuitBreaker) transitionTo(to State, now time.Time) *StateChange {
	change := &StateChange{Name: cb.name, From: cb.state, To: to, Failures: cb.failures, At: now}

	cb.state = to
	cb.generation++
	cb.probing = false

	switch to {
	case StateOpen:
		cb.nextRetryAt = now.Add(cb.resetTimeout)
	case StateClosed:
		cb.failures = 0
		cb.nextRetryAt = time.Time{}
	}
	return change
}

// reset makes a tripped circuit eligible for a probe right away. The next
// call decides between CLOSED and OPEN.
func (cb *circuitBreaker) reset(now time.Time) *StateChange {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures = 0
		return nil
	case StateHalfOpen:
		// drop the in-flight probe so a fresh one is admitted
		cb.generation++
		cb.probing = false
		cb.nextRetryAt = now
		return nil
	}
	change := cb.transitionTo(StateHalfOpen, now)
	cb.nextRetryAt = now
	return change
}

func (cb *circuitBreaker) currentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *circuitBreaker) snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s := Snapshot{
		Name:           cb.name,
		State:          cb.state.String(),
		FailureCount:   cb.failures,
		Threshold:      cb.threshold,
		ResetTimeoutMs: cb.resetTimeout.Milliseconds(),
		Successes:      cb.successes,
		Rejections:     cb.rejections,
	}
	if !cb.lastFailureAt.IsZero() {
		t := cb.lastFailureAt
		s.LastFailureAt = &t
	}
	if cb.state == StateOpen {
		t := cb.nextRetryAt
		s.NextRetryAt = &t
	}
	return s
}
