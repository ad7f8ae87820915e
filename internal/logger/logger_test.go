package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	SetOutput(buf)
	t.Cleanup(func() { SetOutput(os.Stdout) })
	return buf
}

func TestWithComponentCtx_IncludesTraceID(t *testing.T) {
	buf := captureOutput(t)

	ctx := WithTraceID(context.Background(), "trace-123")
	WithComponentCtx(ctx, "throttle").Info("limit changed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "throttle", entry["component"])
	assert.Equal(t, "trace-123", entry["trace_id"])
	assert.Equal(t, "limit changed", entry["msg"])
}

func TestTraceIDFromContext(t *testing.T) {
	tests := []struct {
		name     string
		ctx      context.Context
		expected string
	}{
		{name: "missing trace id", ctx: context.Background(), expected: ""},
		{name: "present trace id", ctx: WithTraceID(context.Background(), "abc"), expected: "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TraceIDFromContext(tt.ctx))
		})
	}
}

func TestSetup(t *testing.T) {
	buf := captureOutput(t)
	t.Cleanup(func() { Setup("info", "production") })

	Setup("bogus", "development")
	Infof("sampler started with %d slots", 16)
	assert.Contains(t, buf.String(), "sampler started with 16 slots")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())), "development mode logs text")

	buf.Reset()
	Setup("warn", "production")
	Info("dropped below warn")
	assert.Empty(t, buf.String())

	Warnf("cache backend %s unavailable", "memory")
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warning", entry["level"])
}
