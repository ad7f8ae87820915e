package sampler

import "fmt"

// MetricsCollectionError wraps a failed collection. The sampler logs it and
// skips the cycle; it never reaches history consumers.
type MetricsCollectionError struct {
	Source string
	Err    error
}

func (e *MetricsCollectionError) Error() string {
	return fmt.Sprintf("metrics collection from %s failed: %v", e.Source, e.Err)
}

func (e *MetricsCollectionError) Unwrap() error {
	return e.Err
}
