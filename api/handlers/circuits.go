package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/resilience-plane/internal/resilience"
	"github.com/OldStager01/resilience-plane/pkg/validation"
)

type CircuitInspector interface {
	Snapshots() []resilience.Snapshot
	Snapshot(name string) (resilience.Snapshot, bool)
	Reset(name string) error
}

type CircuitHandler struct {
	circuits CircuitInspector
}

func NewCircuitHandler(circuits CircuitInspector) *CircuitHandler {
	return &CircuitHandler{circuits: circuits}
}

// List godoc
// @Summary List circuits
// @Tags Circuits
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/circuits [get]
func (h *CircuitHandler) List(c *gin.Context) {
	snapshots := h.circuits.Snapshots()
	c.JSON(http.StatusOK, gin.H{"circuits": snapshots, "count": len(snapshots)})
}

// Get godoc
// @Summary Get circuit
// @Tags Circuits
// @Produce json
// @Param name path string true "Circuit name"
// @Success 200 {object} resilience.Snapshot
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/circuits/{name} [get]
func (h *CircuitHandler) Get(c *gin.Context) {
	name, ok := circuitName(c)
	if !ok {
		return
	}
	snap, ok := h.circuits.Snapshot(name)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "circuit not found"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Reset godoc
// @Summary Half-open a circuit so the next call probes it
// @Tags Circuits
// @Produce json
// @Security BearerAuth
// @Param name path string true "Circuit name"
// @Success 200 {object} resilience.Snapshot
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/circuits/{name}/reset [post]
func (h *CircuitHandler) Reset(c *gin.Context) {
	name, ok := circuitName(c)
	if !ok {
		return
	}
	if err := h.circuits.Reset(name); err != nil {
		if errors.Is(err, resilience.ErrUnknownCircuit) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "circuit not found"})
			return
		}
		respondError(c, err)
		return
	}

	snap, _ := h.circuits.Snapshot(name)
	c.JSON(http.StatusOK, snap)
}

func circuitName(c *gin.Context) (string, bool) {
	name := c.Param("name")
	if err := validation.ValidateCircuitName(name); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return "", false
	}
	return name, true
}
