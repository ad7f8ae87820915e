package scaler

import (
	"context"
	"errors"
)

var (
	ErrInvalidTarget      = errors.New("invalid target replica count")
	ErrScalingFailed      = errors.New("scaling operation failed")
	ErrVerificationFailed = errors.New("scaled replica count does not match target")
)

// ScalingExecutor changes the replica count of the managed workload.
type ScalingExecutor interface {
	GetCurrentReplicas(ctx context.Context) (int, error)
	SetReplicas(ctx context.Context, replicas int) error
}
