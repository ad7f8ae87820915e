package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/OldStager01/resilience-plane/pkg/models"
)

// ScalingController is the autoscaler surface exposed over HTTP.
type ScalingController interface {
	Status() models.AutoscalerStatus
	Decisions(limit int) []models.ScalingDecision
	LastForecast() (models.Forecast, bool)
	ScaleTo(ctx context.Context, replicas int) (*models.ScalingDecision, error)
}

// DecisionArchive is satisfied by queries.ScalingDecisionRepository.
type DecisionArchive interface {
	Recent(ctx context.Context, limit int) ([]models.ScalingDecision, error)
	GetByID(ctx context.Context, id string) (*models.ScalingDecision, error)
}

type ScalingHandler struct {
	scaler  ScalingController
	archive DecisionArchive
	limits  Limits
}

func NewScalingHandler(scaler ScalingController, archive DecisionArchive, limits Limits) *ScalingHandler {
	return &ScalingHandler{scaler: scaler, archive: archive, limits: limits}
}

type StatusResponse struct {
	models.AutoscalerStatus
	Forecast *models.Forecast `json:"forecast,omitempty"`
}

// Status godoc
// @Summary Autoscaler status
// @Tags Scaling
// @Produce json
// @Success 200 {object} StatusResponse
// @Router /api/v1/status [get]
func (h *ScalingHandler) Status(c *gin.Context) {
	resp := StatusResponse{AutoscalerStatus: h.scaler.Status()}
	if f, ok := h.scaler.LastForecast(); ok {
		resp.Forecast = &f
	}
	c.JSON(http.StatusOK, resp)
}

// Decisions godoc
// @Summary Recent scaling decisions
// @Description Newest first. source=archive reads the SQL journal.
// @Tags Scaling
// @Produce json
// @Param limit query int false "Maximum decisions"
// @Param source query string false "memory or archive"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/decisions [get]
func (h *ScalingHandler) Decisions(c *gin.Context) {
	limit := h.limits.parse(c)

	if c.Query("source") == "archive" {
		if h.archive == nil {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "decision archive not configured"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		decisions, err := h.archive.Recent(ctx, limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"decisions": decisions, "count": len(decisions)})
		return
	}

	decisions := h.scaler.Decisions(limit)
	c.JSON(http.StatusOK, gin.H{"decisions": decisions, "count": len(decisions)})
}

// Decision godoc
// @Summary Archived decision by id
// @Tags Scaling
// @Produce json
// @Param id path string true "Decision id"
// @Success 200 {object} models.ScalingDecision
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/decisions/{id} [get]
func (h *ScalingHandler) Decision(c *gin.Context) {
	if h.archive == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "decision archive not configured"})
		return
	}
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "decision id must be a uuid"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	decision, err := h.archive.GetByID(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

type ScaleRequest struct {
	Replicas int `json:"replicas" binding:"required,min=1" example:"4"`
}

// Scale godoc
// @Summary Manual scale
// @Description Sets the replica count. Obeys cooldown and bounds.
// @Tags Scaling
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ScaleRequest true "Target replicas"
// @Success 200 {object} models.ScalingDecision
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse "Cooldown active"
// @Failure 502 {object} ErrorResponse "Executor failed"
// @Router /api/v1/scale [post]
func (h *ScalingHandler) Scale(c *gin.Context) {
	var req ScaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	decision, err := h.scaler.ScaleTo(c.Request.Context(), req.Replicas)
	if err != nil {
		respondError(c, err)
		return
	}
	if decision == nil {
		c.JSON(http.StatusOK, gin.H{"message": "already at target", "replicas": req.Replicas})
		return
	}
	c.JSON(http.StatusOK, decision)
}
