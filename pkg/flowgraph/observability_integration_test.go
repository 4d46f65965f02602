package flowgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/randalmurphal/agentflow/pkg/flowgraph/checkpoint"
	"github.com/randalmurphal/agentflow/pkg/flowgraph/observability"
)

// logRecords decodes every JSON log line written to buf.
func logRecords(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var records []map[string]any
	for _, line := range bytes.Split(buf.Bytes(), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal(line, &m))
		records = append(records, m)
	}
	return records
}

func messages(records []map[string]any) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r["msg"].(string))
	}
	return out
}

func TestRun_WithObservabilityLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	compiled := mustCompile(t, NewGraph[Counter]().
		AddNode("inc1", increment).
		AddNode("inc2", increment).
		SetEntry("inc1").
		AddEdge("inc1", "inc2"))

	_, err := compiled.Run(testCtx(), Counter{},
		WithObservabilityLogger(logger),
		WithCheckpointing(checkpoint.NewMemoryStore()),
		WithRunID("session-1"))
	require.NoError(t, err)

	records := logRecords(t, &buf)
	assert.Equal(t, []string{
		"graph run starting",
		"node starting", "node completed", "checkpoint saved",
		"node starting", "node completed", "checkpoint saved",
		"graph run completed",
	}, messages(records))
	assert.Equal(t, "session-1", records[0]["session_id"])
	assert.Equal(t, "completed", records[len(records)-2]["status"])
}

func TestRun_LogsRecoveredFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	compiled := mustCompile(t, NewGraph[State]().
		AddNode("a", fail("a", errBoom)).
		SetEntry("a").
		SetErrorBoundary(recordFailure))

	_, err := compiled.Run(testCtx(), State{}, WithObservabilityLogger(logger))
	require.NoError(t, err)

	records := logRecords(t, &buf)
	require.Len(t, records, 1)
	assert.Equal(t, "node failure recovered", records[0]["msg"])
	assert.Equal(t, "a", records[0]["node_id"])
	assert.Equal(t, "boom", records[0]["error"])
}

// Nodes log through a logger that already carries run position.
func TestRun_NodeLoggerCarriesPosition(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	compiled := mustCompile(t, NewGraph[Counter]().
		AddNode("a", func(ctx Context, s Counter) (Counter, error) {
			ctx.Logger().Info("inside node")
			return s, nil
		}).
		SetEntry("a"))

	_, err := compiled.Run(NewContext(context.Background(), WithLogger(logger)), Counter{}, WithRunID("s-7"))
	require.NoError(t, err)

	records := logRecords(t, &buf)
	require.Len(t, records, 1)
	assert.Equal(t, "s-7", records[0]["session_id"])
	assert.Equal(t, "a", records[0]["node_id"])
	assert.Equal(t, float64(1), records[0]["step"])
}

func TestRun_MetricsAndTraces(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() {
		_ = mp.Shutdown(context.Background())
		_ = tp.Shutdown(context.Background())
	})

	rec, err := observability.NewMetricsRecorderFromMeter(mp.Meter(observability.MeterName))
	require.NoError(t, err)

	compiled := mustCompile(t, NewGraph[State]().
		AddNode("work", fail("work", errBoom)).
		AddNode("approve", track("approve")).
		SetEntry("work").
		AddEdge("work", "approve").
		InterruptBefore("approve", nil).
		SetErrorBoundary(recordFailure))

	_, err = compiled.Run(testCtx(), State{},
		WithMetricsRecorder(rec),
		WithSpanManager(observability.NewSpanManagerFromProvider(tp)),
		WithGraphName("agent"),
		WithCheckpointing(checkpoint.NewMemoryStore()),
		WithRunID("s-1"))
	require.True(t, IsInterrupt(err))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	assert.Equal(t, int64(1), sumCounter(t, &rm, "agentflow.node.executions", "node_id", "work"))
	assert.Equal(t, int64(1), sumCounter(t, &rm, "agentflow.node.errors", "node_id", "work"))
	assert.Equal(t, int64(1), sumCounter(t, &rm, "agentflow.node.recovered_errors", "node_id", "work"))
	assert.Equal(t, int64(1), sumCounter(t, &rm, "agentflow.graph.interrupts", "node_id", "approve"))
	assert.Equal(t, int64(1), sumCounter(t, &rm, "agentflow.graph.runs", "outcome", "interrupted"))

	spans := exporter.GetSpans()
	names := make([]string, 0, len(spans))
	for _, s := range spans {
		names = append(names, s.Name)
	}
	assert.ElementsMatch(t, []string{"node.work", "agent.run"}, names)

	var run tracetest.SpanStub
	for _, s := range spans {
		if s.Name == "agent.run" {
			run = s
		}
	}
	var events []string
	for _, e := range run.Events {
		events = append(events, e.Name)
	}
	assert.Equal(t, []string{"node failure recovered", "interrupt"}, events)
}

func sumCounter(t *testing.T, rm *metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "expected Sum type for %s", name)
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
					total += dp.Value
				}
			}
		}
	}
	return total
}
