package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusSink_Counter(t *testing.T) {
	sink := NewPrometheusSink(PrometheusConfig{Namespace: "test"})

	sink.RecordCounter("circuit_breaker_rejections", map[string]string{"circuit": "payments"})
	sink.RecordCounter("circuit_breaker_rejections", map[string]string{"circuit": "payments"})
	sink.RecordCounter("circuit_breaker_rejections", map[string]string{"circuit": "ledger"})

	vec := sink.counters["circuit_breaker_rejections"]
	require.NotNil(t, vec)
	assert.Equal(t, 2.0, testutil.ToFloat64(vec.WithLabelValues("payments")))
	assert.Equal(t, 1.0, testutil.ToFloat64(vec.WithLabelValues("ledger")))
}

func TestPrometheusSink_GaugeAndHistogram(t *testing.T) {
	sink := NewPrometheusSink(PrometheusConfig{Namespace: "test"})

	sink.RecordGauge("scaler_replicas", 3, nil)
	sink.RecordGauge("scaler_replicas", 5, nil)
	sink.RecordHistogram("cache_hit_time", 1.5, map[string]string{"cache": "api"})

	assert.Equal(t, 5.0, testutil.ToFloat64(sink.gauges["scaler_replicas"].WithLabelValues()))
	assert.Equal(t, 1, testutil.CollectAndCount(sink.histograms["cache_hit_time"]))
}

func TestPrometheusSink_LabelMismatchIsTolerated(t *testing.T) {
	sink := NewPrometheusSink(PrometheusConfig{Namespace: "test"})

	sink.RecordCounter("throttle_rejected", map[string]string{"route": "/a"})
	assert.NotPanics(t, func() {
		sink.RecordCounter("throttle_rejected", map[string]string{"other": "x"})
		sink.RecordCounter("throttle_rejected", nil)
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(sink.counters["throttle_rejected"].WithLabelValues("")))
}

func TestPrometheusSink_TypeConflictDropped(t *testing.T) {
	sink := NewPrometheusSink(PrometheusConfig{Namespace: "test"})

	sink.RecordCounter("cache_errors", nil)
	assert.NotPanics(t, func() {
		sink.RecordGauge("cache_errors", 1, nil)
	})
	assert.NotContains(t, sink.gauges, "cache_errors")
}

func TestPrometheusSink_Handler(t *testing.T) {
	sink := NewPrometheusSink(PrometheusConfig{Namespace: "test"})
	sink.RecordCounter("cache_hits", nil)

	rec := httptest.NewRecorder()
	sink.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "test_cache_hits_total 1"))
}

func TestNopSink(t *testing.T) {
	var sink Sink = NopSink{}
	assert.NotPanics(t, func() {
		sink.RecordCounter("x", nil)
		sink.RecordGauge("x", 1, nil)
		sink.RecordHistogram("x", 1, nil)
	})
}
