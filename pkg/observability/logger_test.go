package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// decodeEntries parses one JSON object per log line
func decodeEntries(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WarnLevel, &buf)

	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Errorf("error %d", 1)

	entries := decodeEntries(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "WARN", entries[0]["level"])
	assert.Equal(t, "warn", entries[0]["msg"])
	assert.Equal(t, "ERROR", entries[1]["level"])
	assert.Equal(t, "error 1", entries[1]["msg"])
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DebugLevel, &buf)

	logger.WithField("team_id", 7).
		WithFields(map[string]interface{}{"resource": "contracts", "limit": 3}).
		WithError(errors.New("plan limit reached")).
		Infof("denied %s", "create")

	entries := decodeEntries(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "denied create", entries[0]["msg"])
	assert.Equal(t, float64(7), entries[0]["team_id"])
	assert.Equal(t, "contracts", entries[0]["resource"])
	assert.Equal(t, float64(3), entries[0]["limit"])
	assert.Equal(t, "plan limit reached", entries[0]["error"])
}

func TestLogger_WithNilError(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})
	assert.Same(t, logger, logger.WithError(nil))
}

func TestContextHelpers(t *testing.T) {
	t.Run("IDs", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "req-123")
		ctx = WithUserID(ctx, "user-456")
		ctx = WithTeamID(ctx, 42)

		assert.Equal(t, "req-123", GetRequestID(ctx))
		assert.Equal(t, "user-456", GetUserID(ctx))
		assert.Equal(t, int64(42), GetTeamID(ctx))
	})

	t.Run("Logger", func(t *testing.T) {
		logger := NewLogger(InfoLevel, nil)
		ctx := WithLogger(context.Background(), logger)
		assert.Same(t, logger, GetLogger(ctx))
		assert.NotNil(t, GetLogger(context.Background()))
	})

	t.Run("FromContext", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := WithLogger(context.Background(), NewLogger(InfoLevel, &buf))
		ctx = WithRequestID(ctx, "req-123")
		ctx = WithUserID(ctx, "user-456")
		ctx = WithTeamID(ctx, 42)

		FromContext(ctx).Info("test message")

		entries := decodeEntries(t, &buf)
		require.Len(t, entries, 1)
		assert.Equal(t, "req-123", entries[0]["request_id"])
		assert.Equal(t, "user-456", entries[0]["user_id"])
		assert.Equal(t, float64(42), entries[0]["team_id"])
		assert.NotContains(t, entries[0], "trace_id")
	})

	t.Run("FromContext with span", func(t *testing.T) {
		tp := sdktrace.NewTracerProvider()
		defer func() { _ = tp.Shutdown(context.Background()) }()

		var buf bytes.Buffer
		ctx := WithLogger(context.Background(), NewLogger(InfoLevel, &buf))
		ctx, span := tp.Tracer("test").Start(ctx, "send contract")
		defer span.End()

		FromContext(ctx).Info("contract sent")

		entries := decodeEntries(t, &buf)
		require.Len(t, entries, 1)
		assert.Equal(t, span.SpanContext().TraceID().String(), entries[0]["trace_id"])
	})
}

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.level.String())
		})
	}
}
