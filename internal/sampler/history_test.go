package sampler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/resilience-plane/pkg/models"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func sampleAt(i int, cpu float64) models.MetricSample {
	return models.MetricSample{Timestamp: t0.Add(time.Duration(i) * time.Second), CPUPercent: cpu}
}

func TestHistory_RingOverflow(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 5; i++ {
		require.NoError(t, h.Add(sampleAt(i, float64(i))))
	}

	snap := h.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, []float64{2, 3, 4}, []float64{snap[0].CPUPercent, snap[1].CPUPercent, snap[2].CPUPercent})

	latest, ok := h.Latest()
	require.True(t, ok)
	assert.Equal(t, 4.0, latest.CPUPercent)
	assert.Equal(t, 3, h.Len())
	assert.Equal(t, 3, h.Capacity())
}

func TestHistory_RejectsOutOfOrder(t *testing.T) {
	h := NewHistory(10)
	require.NoError(t, h.Add(sampleAt(5, 1)))
	require.NoError(t, h.Add(sampleAt(5, 2)), "equal timestamps are allowed")

	assert.ErrorIs(t, h.Add(sampleAt(4, 3)), ErrOutOfOrder)
	assert.Equal(t, 2, h.Len())
}

func TestHistory_SnapshotIsCopy(t *testing.T) {
	h := NewHistory(4)
	require.NoError(t, h.Add(sampleAt(0, 10)))

	snap := h.Snapshot()
	snap[0].CPUPercent = 99

	latest, _ := h.Latest()
	assert.Equal(t, 10.0, latest.CPUPercent)
}

func TestHistory_RecentSinceAverages(t *testing.T) {
	h := NewHistory(10)
	for i := 0; i < 6; i++ {
		require.NoError(t, h.Add(sampleAt(i, float64(i*10))))
	}

	tests := []struct {
		name string
		n    int
		want int
	}{
		{name: "fewer than stored", n: 2, want: 2},
		{name: "more than stored", n: 50, want: 6},
		{name: "zero", n: 0, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, h.Recent(tt.n), tt.want)
		})
	}

	recent := h.Recent(2)
	assert.Equal(t, 40.0, recent[0].CPUPercent)
	assert.Equal(t, 50.0, recent[1].CPUPercent)

	assert.Len(t, h.Since(t0.Add(3*time.Second)), 3)
	assert.InDelta(t, 45.0, h.Averages(2).CPU, 1e-9)
}

func TestHistory_EmptyLatest(t *testing.T) {
	_, ok := NewHistory(0).Latest()
	assert.False(t, ok)
}

func TestHistory_Restore(t *testing.T) {
	h := NewHistory(3)
	samples := []models.MetricSample{sampleAt(0, 0), sampleAt(1, 1), sampleAt(2, 2), sampleAt(3, 3)}

	assert.Equal(t, 3, h.Restore(samples))
	assert.Equal(t, 1.0, h.Snapshot()[0].CPUPercent)

	require.NoError(t, h.Add(sampleAt(4, 4)))
	assert.Equal(t, 4.0, h.Recent(1)[0].CPUPercent)

	h2 := NewHistory(5)
	assert.Equal(t, 2, h2.Restore([]models.MetricSample{sampleAt(5, 0), sampleAt(1, 1), sampleAt(6, 2)}))
}
