package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureLogger returns a debug-level JSON logger and a function that
// decodes the most recent record.
func captureLogger(t *testing.T) (*slog.Logger, func() map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	last := func() map[string]any {
		lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
		require.NotEmpty(t, lines)
		var m map[string]any
		require.NoError(t, json.Unmarshal(lines[len(lines)-1], &m))
		return m
	}
	return logger, last
}

func TestEnrichLogger(t *testing.T) {
	t.Run("adds session_id, node_id and step", func(t *testing.T) {
		logger, last := captureLogger(t)

		EnrichLogger(logger, "session-123", "tool_execution", 4).Info("test message")

		record := last()
		assert.Equal(t, "session-123", record["session_id"])
		assert.Equal(t, "tool_execution", record["node_id"])
		assert.Equal(t, float64(4), record["step"])
		assert.Equal(t, "test message", record["msg"])
	})

	t.Run("nil logger returns nil", func(t *testing.T) {
		assert.Nil(t, EnrichLogger(nil, "s", "n", 1))
	})
}

func TestLogHelpers(t *testing.T) {
	testErr := errors.New("connection failed")

	tests := []struct {
		name   string
		log    func(*slog.Logger)
		level  string
		msg    string
		fields map[string]any
	}{
		{
			name:   "run start",
			log:    func(l *slog.Logger) { LogRunStart(l, "s-1", "input_processing", false) },
			level:  "INFO",
			msg:    "graph run starting",
			fields: map[string]any{"session_id": "s-1", "start_node": "input_processing", "resumed": false},
		},
		{
			name:   "run complete",
			log:    func(l *slog.Logger) { LogRunComplete(l, "s-1", 123.5, 5) },
			level:  "INFO",
			msg:    "graph run completed",
			fields: map[string]any{"session_id": "s-1", "duration_ms": 123.5, "steps": float64(5)},
		},
		{
			name:   "run interrupted",
			log:    func(l *slog.Logger) { LogRunInterrupted(l, "s-1", "human_approval", 3) },
			level:  "INFO",
			msg:    "run interrupted",
			fields: map[string]any{"node_id": "human_approval", "steps": float64(3)},
		},
		{
			name:   "run error",
			log:    func(l *slog.Logger) { LogRunError(l, "s-1", testErr, 50, "tool_execution") },
			level:  "ERROR",
			msg:    "graph run failed",
			fields: map[string]any{"error": "connection failed", "last_node": "tool_execution"},
		},
		{
			name:   "node start",
			log:    func(l *slog.Logger) { LogNodeStart(l, "fetch", 2) },
			level:  "DEBUG",
			msg:    "node starting",
			fields: map[string]any{"node_id": "fetch", "step": float64(2)},
		},
		{
			name:   "node complete",
			log:    func(l *slog.Logger) { LogNodeComplete(l, "transform", 45.7) },
			level:  "DEBUG",
			msg:    "node completed",
			fields: map[string]any{"node_id": "transform", "duration_ms": 45.7},
		},
		{
			name:   "node error",
			log:    func(l *slog.Logger) { LogNodeError(l, "validate", testErr) },
			level:  "ERROR",
			msg:    "node failed",
			fields: map[string]any{"node_id": "validate", "error": "connection failed"},
		},
		{
			name:   "node recovered",
			log:    func(l *slog.Logger) { LogNodeRecovered(l, "tool_execution", testErr) },
			level:  "WARN",
			msg:    "node failure recovered",
			fields: map[string]any{"node_id": "tool_execution", "error": "connection failed"},
		},
		{
			name:   "checkpoint",
			log:    func(l *slog.Logger) { LogCheckpoint(l, "process", "running", 1024) },
			level:  "DEBUG",
			msg:    "checkpoint saved",
			fields: map[string]any{"node_id": "process", "status": "running", "size_bytes": float64(1024)},
		},
		{
			name:   "checkpoint error",
			log:    func(l *slog.Logger) { LogCheckpointError(l, "process", "save", testErr) },
			level:  "WARN",
			msg:    "checkpoint failed",
			fields: map[string]any{"node_id": "process", "operation": "save"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, last := captureLogger(t)
			tt.log(logger)

			record := last()
			assert.Equal(t, tt.level, record["level"])
			assert.Equal(t, tt.msg, record["msg"])
			for k, v := range tt.fields {
				assert.Equal(t, v, record[k], "field %s", k)
			}
		})

		t.Run(tt.name+"/nil logger", func(t *testing.T) {
			assert.NotPanics(t, func() { tt.log(nil) })
		})
	}
}

func TestTimedOperation(t *testing.T) {
	done := TimedOperation()
	time.Sleep(10 * time.Millisecond)
	d1 := done()
	assert.GreaterOrEqual(t, d1, 10.0)

	time.Sleep(5 * time.Millisecond)
	assert.Greater(t, done(), d1)
}
