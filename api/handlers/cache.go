package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/resilience-plane/internal/cache"
	"github.com/OldStager01/resilience-plane/pkg/validation"
)

type CacheAdmin interface {
	Stats(ctx context.Context) cache.Stats
	Invalidate(ctx context.Context, key string) bool
	InvalidateByPrefix(ctx context.Context, prefix string) int
	Clear(ctx context.Context)
}

type CacheHandler struct {
	cache CacheAdmin
}

func NewCacheHandler(cache CacheAdmin) *CacheHandler {
	return &CacheHandler{cache: cache}
}

// Stats godoc
// @Summary Cache statistics
// @Tags Cache
// @Produce json
// @Success 200 {object} cache.Stats
// @Router /api/v1/cache/stats [get]
func (h *CacheHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.cache.Stats(c.Request.Context()))
}

// DeleteKey godoc
// @Summary Invalidate one key
// @Tags Cache
// @Produce json
// @Security BearerAuth
// @Param key path string true "Cache key"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/cache/keys/{key} [delete]
func (h *CacheHandler) DeleteKey(c *gin.Context) {
	key := c.Param("key")
	if err := validation.ValidateCacheKey(key); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if !h.cache.Invalidate(c.Request.Context(), key) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "key not cached"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": 1, "key": key})
}

// DeletePrefix godoc
// @Summary Invalidate keys by prefix
// @Tags Cache
// @Produce json
// @Security BearerAuth
// @Param prefix query string true "Key prefix"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/cache [delete]
func (h *CacheHandler) DeletePrefix(c *gin.Context) {
	prefix := strings.TrimSpace(c.Query("prefix"))
	if prefix == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "prefix is required, use /cache/clear to drop everything"})
		return
	}
	if err := validation.ValidateCacheKey(prefix); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	n := h.cache.InvalidateByPrefix(c.Request.Context(), prefix)
	c.JSON(http.StatusOK, gin.H{"deleted": n, "prefix": prefix})
}

// Clear godoc
// @Summary Drop every cache entry
// @Tags Cache
// @Security BearerAuth
// @Success 204
// @Router /api/v1/cache/clear [post]
func (h *CacheHandler) Clear(c *gin.Context) {
	h.cache.Clear(c.Request.Context())
	c.Status(http.StatusNoContent)
}
