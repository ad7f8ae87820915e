package throttle

import (
	"errors"
	"fmt"
	"time"
)

var ErrThrottled = errors.New("request throttled")

// ThrottledError carries what a caller needs to back off.
type ThrottledError struct {
	Key        string
	Limit      int
	RetryAfter time.Duration
	DelayMs    int64
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("key %q exceeded %d requests per window, retry after %s", e.Key, e.Limit, e.RetryAfter.Round(time.Millisecond))
}

func (e *ThrottledError) Is(target error) bool {
	return target == ErrThrottled
}
