package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/resilience-plane/internal/throttle"
)

// Admitter is the part of throttle.Manager the admission middleware uses.
type Admitter interface {
	AdmitRule(ctx context.Context, ruleName, key string) throttle.AdmitResult
}

// Admission counts each request against the throttle rule named after its
// route, keyed by client IP. Rejected requests get 429 with Retry-After;
// admitted requests past the delay threshold are held for the suggested
// delay first.
func Admission(admitter Admitter, now func() time.Time) gin.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = throttle.DefaultRule
		}

		res := admitter.AdmitRule(c.Request.Context(), route, c.ClientIP())
		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

		if !res.Allowed {
			retry := retryAfterSeconds(res.ResetAt.Sub(now()))
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "request throttled",
				"retry_after": retry,
				"limit":       res.Limit,
			})
			return
		}

		if res.DelayMs > 0 {
			timer := time.NewTimer(time.Duration(res.DelayMs) * time.Millisecond)
			select {
			case <-timer.C:
			case <-c.Request.Context().Done():
				timer.Stop()
				c.AbortWithStatus(http.StatusServiceUnavailable)
				return
			}
		}

		c.Next()
	}
}

// retryAfterSeconds rounds up so clients never retry early.
func retryAfterSeconds(d time.Duration) int {
	return max(1, int(math.Ceil(d.Seconds())))
}
