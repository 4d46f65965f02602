// Package observability provides structured logging, metrics and tracing
// for graph runs.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds run context to a logger.
// Returns a new logger with session_id, node_id and step fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, "session-123", "tool_execution", 4)
//	enriched.Info("calling tool") // includes session_id, node_id, step
func EnrichLogger(logger *slog.Logger, sessionID, nodeID string, step int) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("session_id", sessionID),
		slog.String("node_id", nodeID),
		slog.Int("step", step),
	)
}

// LogRunStart logs the start of a graph run.
func LogRunStart(logger *slog.Logger, sessionID, startNode string, resumed bool) {
	if logger == nil {
		return
	}
	logger.Info("graph run starting",
		slog.String("session_id", sessionID),
		slog.String("start_node", startNode),
		slog.Bool("resumed", resumed),
	)
}

// LogRunComplete logs successful graph run completion.
func LogRunComplete(logger *slog.Logger, sessionID string, durationMs float64, steps int) {
	if logger == nil {
		return
	}
	logger.Info("graph run completed",
		slog.String("session_id", sessionID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("steps", steps),
	)
}

// LogRunInterrupted logs a run suspending before an interrupt node.
func LogRunInterrupted(logger *slog.Logger, sessionID, nodeID string, steps int) {
	if logger == nil {
		return
	}
	logger.Info("run interrupted",
		slog.String("session_id", sessionID),
		slog.String("node_id", nodeID),
		slog.Int("steps", steps),
	)
}

// LogRunError logs graph run failure.
func LogRunError(logger *slog.Logger, sessionID string, err error, durationMs float64, lastNode string) {
	if logger == nil {
		return
	}
	logger.Error("graph run failed",
		slog.String("session_id", sessionID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
		slog.String("last_node", lastNode),
	)
}

// LogNodeStart logs node execution start.
func LogNodeStart(logger *slog.Logger, nodeID string, step int) {
	if logger == nil {
		return
	}
	logger.Debug("node starting",
		slog.String("node_id", nodeID),
		slog.Int("step", step),
	)
}

// LogNodeComplete logs successful node completion.
func LogNodeComplete(logger *slog.Logger, nodeID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("node completed",
		slog.String("node_id", nodeID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogNodeError logs a node failure that ends the run.
func LogNodeError(logger *slog.Logger, nodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("node failed",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
	)
}

// LogNodeRecovered logs a node failure absorbed by the error boundary.
func LogNodeRecovered(logger *slog.Logger, nodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("node failure recovered",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
	)
}

// LogCheckpoint logs checkpoint creation.
func LogCheckpoint(logger *slog.Logger, nodeID, status string, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint saved",
		slog.String("node_id", nodeID),
		slog.String("status", status),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogCheckpointError logs checkpoint failure (non-fatal).
func LogCheckpointError(logger *slog.Logger, nodeID string, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("checkpoint failed",
		slog.String("node_id", nodeID),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
