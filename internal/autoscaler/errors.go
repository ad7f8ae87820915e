package autoscaler

import (
	"errors"
	"fmt"
)

var (
	ErrCooldownActive   = errors.New("scaling suppressed by cooldown")
	ErrTargetOutOfRange = errors.New("target replicas outside configured bounds")
	ErrInsufficientData = errors.New("not enough samples to forecast")
	ErrNoReplicaReadout = errors.New("could not read current replicas")
)

// ScalingExecutionError wraps a failed SetReplicas call. The autoscaler
// answers it with a rollback.
type ScalingExecutionError struct {
	Target int
	Err    error
}

func (e *ScalingExecutionError) Error() string {
	return fmt.Sprintf("scaling to %d replicas failed: %v", e.Target, e.Err)
}

func (e *ScalingExecutionError) Unwrap() error {
	return e.Err
}

// RollbackFailedError means the workload may be left at an unknown size and
// a human has to look at it.
type RollbackFailedError struct {
	Previous int
	Target   int
	Cause    error
	Err      error
}

func (e *RollbackFailedError) Error() string {
	return fmt.Sprintf("rollback to %d replicas failed after scaling to %d failed (%v): %v",
		e.Previous, e.Target, e.Cause, e.Err)
}

func (e *RollbackFailedError) Unwrap() []error {
	return []error{e.Cause, e.Err}
}
