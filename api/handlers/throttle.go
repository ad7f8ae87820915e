package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/resilience-plane/internal/throttle"
)

type ThrottleInspector interface {
	Status() throttle.Status
	KeyState(ctx context.Context, ruleName, key string) (throttle.KeyState, error)
}

type ThrottleHandler struct {
	throttle ThrottleInspector
}

func NewThrottleHandler(t ThrottleInspector) *ThrottleHandler {
	return &ThrottleHandler{throttle: t}
}

// Status godoc
// @Summary Throttle limits
// @Description With key set, also reports that key's window under rule.
// @Tags Throttle
// @Produce json
// @Param key query string false "Client key"
// @Param rule query string false "Rule name"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/throttle [get]
func (h *ThrottleHandler) Status(c *gin.Context) {
	resp := gin.H{"status": h.throttle.Status()}

	if key := c.Query("key"); key != "" {
		rule := c.DefaultQuery("rule", throttle.DefaultRule)
		state, err := h.throttle.KeyState(c.Request.Context(), rule, key)
		if err != nil {
			respondError(c, err)
			return
		}
		resp["key_state"] = state
	}

	c.JSON(http.StatusOK, resp)
}
