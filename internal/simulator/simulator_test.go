package simulator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/resilience-plane/internal/collector"
)

func TestSimulator_ServesHTTPSource(t *testing.T) {
	sim := New(Config{Pattern: "steady", BaseCPU: 30, BaseMemory: 40})
	srv := httptest.NewServer(sim.Handler())
	defer srv.Close()

	source := collector.NewHTTPSource(collector.HTTPSourceConfig{Endpoint: srv.URL + "/metrics", Timeout: time.Second})
	sample, err := source.Collect(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 30, sample.CPUPercent, 15)
	assert.False(t, sample.Timestamp.IsZero())
}

func TestSimulator_LoadAndFailure(t *testing.T) {
	sim := New(Config{Pattern: "steady"})
	srv := httptest.NewServer(sim.Handler())
	defer srv.Close()

	post := func(path, body string) int {
		resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	get := func() int {
		resp, err := http.Get(srv.URL + "/metrics")
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, post("/load", `{"cpu": 95}`))
	assert.Equal(t, http.StatusBadRequest, post("/load", `nope`))

	assert.Equal(t, http.StatusOK, post("/fail", `{"enabled": true}`))
	assert.Equal(t, "simulated outage", sim.Failing())
	assert.Equal(t, http.StatusServiceUnavailable, get())

	assert.Equal(t, http.StatusOK, post("/fail", `{"enabled": false}`))
	assert.Equal(t, http.StatusOK, get())
	assert.Empty(t, sim.Failing())
}
