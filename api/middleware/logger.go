package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/resilience-plane/internal/logger"
)

// RequestLogger logs one entry per request. Probe and scrape routes only log
// at debug level unless they fail.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		entry := logger.WithComponentCtx(c.Request.Context(), "http").WithFields(map[string]interface{}{
			"status":     status,
			"method":     c.Request.Method,
			"route":      route,
			"path":       c.Request.URL.Path,
			"latency_ms": time.Since(start).Milliseconds(),
			"ip":         c.ClientIP(),
		})
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			entry.Error("server error")
		case status == 429:
			entry.Info("request throttled")
		case status >= 400:
			entry.Warn("client error")
		case quietRoute(route):
			entry.Debug("probe")
		default:
			entry.Info("request completed")
		}
	}
}

func quietRoute(route string) bool {
	return strings.HasPrefix(route, "/health") || route == "/metrics" || strings.HasPrefix(route, "/swagger")
}
