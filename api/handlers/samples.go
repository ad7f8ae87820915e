package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/resilience-plane/pkg/models"
)

type SampleReader interface {
	Recent(n int) []models.MetricSample
	Averages(n int) models.MetricAverages
	Len() int
	Capacity() int
}

// SampleArchive is satisfied by queries.MetricSampleRepository.
type SampleArchive interface {
	Range(ctx context.Context, from, to time.Time, limit int) ([]models.MetricSample, error)
}

// EventArchive is satisfied by queries.EventRepository.
type EventArchive interface {
	Recent(ctx context.Context, limit int) ([]models.Event, error)
}

type SampleHandler struct {
	history SampleReader
	archive SampleArchive
	events  EventArchive
	limits  Limits
	now     func() time.Time
}

func NewSampleHandler(history SampleReader, archive SampleArchive, events EventArchive, limits Limits) *SampleHandler {
	return &SampleHandler{
		history: history,
		archive: archive,
		events:  events,
		limits:  limits,
		now:     time.Now,
	}
}

// Samples godoc
// @Summary Recent metric samples
// @Description Oldest first. With from or to set, reads the SQL archive.
// @Tags Samples
// @Produce json
// @Param limit query int false "Maximum samples"
// @Param from query string false "RFC 3339 start"
// @Param to query string false "RFC 3339 end"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/samples [get]
func (h *SampleHandler) Samples(c *gin.Context) {
	limit := h.limits.parse(c)

	if c.Query("from") != "" || c.Query("to") != "" {
		if h.archive == nil {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "sample archive not configured"})
			return
		}
		from, to := parseTimeRange(c, h.now())
		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		samples, err := h.archive.Range(ctx, from, to, limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"samples": samples, "count": len(samples)})
		return
	}

	samples := h.history.Recent(limit)
	c.JSON(http.StatusOK, gin.H{
		"samples":  samples,
		"count":    len(samples),
		"averages": h.history.Averages(limit),
		"size":     h.history.Len(),
		"capacity": h.history.Capacity(),
	})
}

// Events godoc
// @Summary Persisted control-plane events
// @Tags Samples
// @Produce json
// @Param limit query int false "Maximum events"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/events [get]
func (h *SampleHandler) Events(c *gin.Context) {
	if h.events == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event archive not configured"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	events, err := h.events.Recent(ctx, h.limits.parse(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}
