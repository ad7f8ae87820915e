package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/resilience-plane/internal/collector"
	"github.com/OldStager01/resilience-plane/internal/metrics"
)

// RequestMetrics feeds the request recorder behind the host metric source
// and exports per-route request counters and latency.
func RequestMetrics(recorder *collector.RequestRecorder, sink metrics.Sink) gin.HandlerFunc {
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		elapsed := time.Since(start)
		status := c.Writer.Status()
		if recorder != nil {
			recorder.Observe(elapsed, status)
		}

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		labels := map[string]string{
			"route":  route,
			"method": c.Request.Method,
			"status": strconv.Itoa(status),
		}
		sink.RecordCounter("http_requests", labels)
		sink.RecordHistogram("http_request_duration_ms", float64(elapsed.Microseconds())/1000, labels)
	}
}
