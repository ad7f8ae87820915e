package cache

import (
	"errors"
	"fmt"
)

var (
	ErrBackend        = errors.New("cache backend error")
	ErrComputePanic   = errors.New("cache compute panicked")
	ErrPreloadRunning = errors.New("cache preload already running")
)

// CacheBackendError describes a failed store round-trip. The manager absorbs
// it; callers of GetOrCompute never see one.
type CacheBackendError struct {
	Op  string
	Key string
	Err error
}

func (e *CacheBackendError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("cache %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *CacheBackendError) Unwrap() error {
	return e.Err
}

func (e *CacheBackendError) Is(target error) bool {
	return target == ErrBackend
}
