package resilience

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrCircuitOpen    = errors.New("circuit breaker is open")
	ErrUnknownCircuit = errors.New("unknown circuit")
	ErrOperationPanic = errors.New("operation panicked")
)

// CircuitOpenError is returned when a call is rejected without invoking the
// operation, either because the circuit is OPEN or because a HALF_OPEN probe
// is already in flight.
type CircuitOpenError struct {
	Name       string
	State      State
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("circuit %q is %s, retry after %s", e.Name, e.State, e.RetryAfter.Round(time.Millisecond))
	}
	return fmt.Sprintf("circuit %q is %s", e.Name, e.State)
}

func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

func panicError(v interface{}) error {
	if err, ok := v.(error); ok {
		return fmt.Errorf("%w: %w", ErrOperationPanic, err)
	}
	return fmt.Errorf("%w: %v", ErrOperationPanic, v)
}
