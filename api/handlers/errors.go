package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/resilience-plane/internal/autoscaler"
	"github.com/OldStager01/resilience-plane/internal/logger"
	"github.com/OldStager01/resilience-plane/internal/resilience"
	"github.com/OldStager01/resilience-plane/internal/throttle"
	"github.com/OldStager01/resilience-plane/pkg/database/queries"
)

type ErrorResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// respondError maps control-plane errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	var (
		circuitErr   *resilience.CircuitOpenError
		throttledErr *throttle.ThrottledError
		execErr      *autoscaler.ScalingExecutionError
		rollbackErr  *autoscaler.RollbackFailedError
	)

	switch {
	case errors.As(err, &circuitErr):
		retry := retrySeconds(circuitErr.RetryAfter)
		c.Header("Retry-After", strconv.Itoa(retry))
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error(), RetryAfter: retry})
	case errors.As(err, &throttledErr):
		retry := retrySeconds(throttledErr.RetryAfter)
		c.Header("Retry-After", strconv.Itoa(retry))
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: err.Error(), RetryAfter: retry})
	case errors.Is(err, autoscaler.ErrCooldownActive):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, autoscaler.ErrTargetOutOfRange):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.As(err, &rollbackErr), errors.As(err, &execErr), errors.Is(err, autoscaler.ErrNoReplicaReadout):
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error()})
	case errors.Is(err, queries.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	default:
		logger.WithComponentCtx(c.Request.Context(), "http").WithError(err).Error("Unhandled request error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

func retrySeconds(d time.Duration) int {
	return max(1, int(math.Ceil(d.Seconds())))
}

func parseLimit(c *gin.Context, defaultLimit, maxLimit int) int {
	limit := defaultLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	return limit
}

// parseTimeRange reads from/to as RFC 3339, defaulting to the last hour.
func parseTimeRange(c *gin.Context, now time.Time) (time.Time, time.Time) {
	to := now
	from := to.Add(-time.Hour)

	if fromStr := c.Query("from"); fromStr != "" {
		if parsed, err := time.Parse(time.RFC3339, fromStr); err == nil {
			from = parsed
		}
	}
	if toStr := c.Query("to"); toStr != "" {
		if parsed, err := time.Parse(time.RFC3339, toStr); err == nil {
			to = parsed
		}
	}
	return from, to
}

// Limits bounds list endpoints.
type Limits struct {
	Default int
	Max     int
}

func (l Limits) parse(c *gin.Context) int {
	def := l.Default
	if def <= 0 {
		def = 20
	}
	return parseLimit(c, def, l.Max)
}
