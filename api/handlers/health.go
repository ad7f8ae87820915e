package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/resilience-plane/pkg/models"
)

// Pinger is satisfied by *database.DB.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

type LatestSample interface {
	Latest() (models.MetricSample, bool)
}

type HealthHandler struct {
	db      Pinger
	history LatestSample
	// samples older than this make the plane not ready
	staleAfter time.Duration
	now        func() time.Time
}

// NewHealthHandler accepts a nil db when storage is disabled.
func NewHealthHandler(db Pinger, history LatestSample, sampleInterval time.Duration) *HealthHandler {
	if sampleInterval <= 0 {
		sampleInterval = 10 * time.Second
	}
	return &HealthHandler{
		db:         db,
		history:    history,
		staleAfter: 3 * sampleInterval,
		now:        time.Now,
	}
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

func (h *HealthHandler) checks(ctx context.Context) (map[string]string, bool) {
	checks := make(map[string]string)
	healthy := true

	if h.db != nil {
		if err := h.db.HealthCheck(ctx); err != nil {
			checks["database"] = "unhealthy: " + err.Error()
			healthy = false
		} else {
			checks["database"] = "healthy"
		}
	}

	if h.history != nil {
		latest, ok := h.history.Latest()
		switch {
		case !ok:
			checks["sampler"] = "no samples yet"
			healthy = false
		case h.now().Sub(latest.Timestamp) > h.staleAfter:
			checks["sampler"] = "stale since " + latest.Timestamp.UTC().Format(time.RFC3339)
			healthy = false
		default:
			checks["sampler"] = "healthy"
		}
	}
	return checks, healthy
}

// Health godoc
// @Summary Health check
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks, healthy := h.checks(ctx)
	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	c.JSON(code, HealthResponse{
		Status:    status,
		Timestamp: h.now().UTC().Format(time.RFC3339),
		Checks:    checks,
	})
}

func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks, healthy := h.checks(ctx)
	if !healthy {
		c.JSON(http.StatusServiceUnavailable, HealthResponse{
			Status:    "not ready",
			Timestamp: h.now().UTC().Format(time.RFC3339),
			Checks:    checks,
		})
		return
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ready",
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "alive",
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}
