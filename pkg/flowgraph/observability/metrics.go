package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of all engine metrics.
const MeterName = "github.com/randalmurphal/agentflow"

// MetricsRecorder records engine metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordNodeExecution records a node execution with its duration and error status.
	RecordNodeExecution(ctx context.Context, nodeID string, duration time.Duration, err error)

	// RecordGraphRun records the end of a run with its outcome
	// ("completed", "interrupted", "failed", "cancelled").
	RecordGraphRun(ctx context.Context, outcome string, duration time.Duration)

	// RecordCheckpoint records a checkpoint save operation.
	RecordCheckpoint(ctx context.Context, nodeID string, sizeBytes int64)

	// RecordInterrupt records a run suspending before a node.
	RecordInterrupt(ctx context.Context, nodeID string)

	// RecordRecoveredError records a node failure absorbed by the error boundary.
	RecordRecoveredError(ctx context.Context, nodeID string)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	nodeExecutions  metric.Int64Counter
	nodeLatency     metric.Float64Histogram
	nodeErrors      metric.Int64Counter
	graphRuns       metric.Int64Counter
	graphLatency    metric.Float64Histogram
	checkpointSize  metric.Int64Histogram
	interrupts      metric.Int64Counter
	recoveredErrors metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics(otel.Meter(MeterName))
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates the instruments on meter.
func newOtelMetrics(meter metric.Meter) (*otelMetrics, error) {
	var (
		m   otelMetrics
		err error
	)

	if m.nodeExecutions, err = meter.Int64Counter("agentflow.node.executions",
		metric.WithDescription("Number of node executions"),
	); err != nil {
		return nil, err
	}

	if m.nodeLatency, err = meter.Float64Histogram("agentflow.node.latency_ms",
		metric.WithDescription("Node execution latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	if m.nodeErrors, err = meter.Int64Counter("agentflow.node.errors",
		metric.WithDescription("Number of node execution errors"),
	); err != nil {
		return nil, err
	}

	if m.graphRuns, err = meter.Int64Counter("agentflow.graph.runs",
		metric.WithDescription("Number of graph runs by outcome"),
	); err != nil {
		return nil, err
	}

	if m.graphLatency, err = meter.Float64Histogram("agentflow.graph.latency_ms",
		metric.WithDescription("Graph run latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	if m.checkpointSize, err = meter.Int64Histogram("agentflow.checkpoint.size_bytes",
		metric.WithDescription("Checkpoint size in bytes"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	if m.interrupts, err = meter.Int64Counter("agentflow.graph.interrupts",
		metric.WithDescription("Number of runs suspended before an interrupt node"),
	); err != nil {
		return nil, err
	}

	if m.recoveredErrors, err = meter.Int64Counter("agentflow.node.recovered_errors",
		metric.WithDescription("Number of node failures absorbed by the error boundary"),
	); err != nil {
		return nil, err
	}

	return &m, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// NewMetricsRecorderFromMeter builds a recorder on a specific meter instead
// of the global provider.
func NewMetricsRecorderFromMeter(meter metric.Meter) (MetricsRecorder, error) {
	return newOtelMetrics(meter)
}

// RecordNodeExecution records a node execution.
func (m *otelMetrics) RecordNodeExecution(ctx context.Context, nodeID string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("node_id", nodeID))

	m.nodeExecutions.Add(ctx, 1, attrs)
	m.nodeLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)

	if err != nil {
		m.nodeErrors.Add(ctx, 1, attrs)
	}
}

// RecordGraphRun records a graph run.
func (m *otelMetrics) RecordGraphRun(ctx context.Context, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.graphRuns.Add(ctx, 1, attrs)
	m.graphLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}

// RecordCheckpoint records a checkpoint save.
func (m *otelMetrics) RecordCheckpoint(ctx context.Context, nodeID string, sizeBytes int64) {
	m.checkpointSize.Record(ctx, sizeBytes, metric.WithAttributes(attribute.String("node_id", nodeID)))
}

// RecordInterrupt records a suspension.
func (m *otelMetrics) RecordInterrupt(ctx context.Context, nodeID string) {
	m.interrupts.Add(ctx, 1, metric.WithAttributes(attribute.String("node_id", nodeID)))
}

// RecordRecoveredError records a recovered node failure.
func (m *otelMetrics) RecordRecoveredError(ctx context.Context, nodeID string) {
	m.recoveredErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("node_id", nodeID)))
}
