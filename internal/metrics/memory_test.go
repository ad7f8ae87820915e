package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemorySink_CounterMatching(t *testing.T) {
	sink := NewMemorySink()

	sink.RecordCounter("cb_rejections", map[string]string{"circuit": "pay"})
	sink.RecordCounter("cb_rejections", map[string]string{"circuit": "payments"})
	sink.RecordCounter("cb_rejections", map[string]string{"circuit": "payments"})
	sink.RecordCounter("cb_rejections_extra", nil)

	tests := []struct {
		name     string
		labels   map[string]string
		expected float64
	}{
		{name: "all series", labels: nil, expected: 3},
		{name: "exact label value", labels: map[string]string{"circuit": "pay"}, expected: 1},
		{name: "longer label value", labels: map[string]string{"circuit": "payments"}, expected: 2},
		{name: "unknown label", labels: map[string]string{"circuit": "none"}, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sink.Counter("cb_rejections", tt.labels))
		})
	}
}

func TestMemorySink_GaugeAndObservations(t *testing.T) {
	sink := NewMemorySink()

	sink.RecordGauge("replicas", 2, nil)
	sink.RecordGauge("replicas", 4, nil)
	sink.RecordHistogram("latency", 10, map[string]string{"route": "a"})
	sink.RecordHistogram("latency", 20, map[string]string{"route": "b"})

	v, ok := sink.Gauge("replicas", nil)
	assert.True(t, ok)
	assert.Equal(t, 4.0, v)
	assert.ElementsMatch(t, []float64{10, 20}, sink.Observations("latency", nil))
	assert.Equal(t, []float64{10}, sink.Observations("latency", map[string]string{"route": "a"}))
}
