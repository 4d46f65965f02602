package flowgraph

import (
	"fmt"
	"log/slog"

	"github.com/randalmurphal/agentflow/pkg/flowgraph/checkpoint"
	"github.com/randalmurphal/agentflow/pkg/flowgraph/observability"
)

// DefaultStepBudget is the number of node executions a run may perform.
const DefaultStepBudget = 50

// StepBudgetLimit is the largest step budget WithStepBudget accepts.
const StepBudgetLimit = 100000

// runConfig holds configuration for graph execution.
type runConfig struct {
	stepBudget int

	runID                  string
	checkpointStore        checkpoint.Store
	checkpointFailureFatal bool

	graphName      string
	logger         *slog.Logger
	metrics        observability.MetricsRecorder
	spans          observability.SpanManager
	tracingEnabled bool
}

// defaultRunConfig returns the default execution configuration.
func defaultRunConfig() runConfig {
	return runConfig{
		stepBudget:             DefaultStepBudget,
		checkpointFailureFatal: true,
		graphName:              "flowgraph",
		metrics:                observability.NoopMetrics{},
		spans:                  observability.NoopSpanManager{},
	}
}

// RunOption configures execution behavior for Run and Resume.
type RunOption func(*runConfig)

// WithStepBudget sets the maximum number of node executions in one run.
// Default: 50. Steps taken before a suspension count against the budget
// of the resumed run.
//
// The budget guarantees termination even when routing loops forever. A run
// that exceeds it fails with *StepBudgetError.
//
// Panics if n <= 0 or n > StepBudgetLimit.
func WithStepBudget(n int) RunOption {
	if n <= 0 {
		panic("flowgraph: step budget must be > 0")
	}
	if n > StepBudgetLimit {
		panic(fmt.Sprintf("flowgraph: step budget exceeds limit (%d)", StepBudgetLimit))
	}
	return func(c *runConfig) {
		c.stepBudget = n
	}
}

// WithRunID sets the run identifier used as the checkpoint key.
// Required when checkpointing is enabled.
func WithRunID(id string) RunOption {
	return func(c *runConfig) {
		c.runID = id
	}
}

// WithCheckpointing enables a checkpoint write after every node.
// Requires WithRunID.
//
// Example:
//
//	store := checkpoint.NewMemoryStore()
//	result, err := compiled.Run(ctx, state,
//	    flowgraph.WithCheckpointing(store),
//	    flowgraph.WithRunID("session-42"))
func WithCheckpointing(store checkpoint.Store) RunOption {
	return func(c *runConfig) {
		c.checkpointStore = store
	}
}

// WithCheckpointFailureFatal controls whether a failed checkpoint write
// aborts the run. Default: true. When false, failures are logged and
// execution continues.
func WithCheckpointFailureFatal(fatal bool) RunOption {
	return func(c *runConfig) {
		c.checkpointFailureFatal = fatal
	}
}

// WithObservabilityLogger sets the logger used for run, node and
// checkpoint events. Nil disables executor logging.
func WithObservabilityLogger(logger *slog.Logger) RunOption {
	return func(c *runConfig) {
		c.logger = logger
	}
}

// WithMetrics enables OpenTelemetry metrics through the global meter provider.
func WithMetrics(enabled bool) RunOption {
	return func(c *runConfig) {
		if enabled {
			c.metrics = observability.NewMetricsRecorder()
		} else {
			c.metrics = observability.NoopMetrics{}
		}
	}
}

// WithTracing enables OpenTelemetry spans through the global tracer provider.
func WithTracing(enabled bool) RunOption {
	return func(c *runConfig) {
		c.tracingEnabled = enabled
		if enabled {
			c.spans = observability.NewSpanManager()
		} else {
			c.spans = observability.NoopSpanManager{}
		}
	}
}

// WithGraphName labels run spans. Default: "flowgraph".
func WithGraphName(name string) RunOption {
	return func(c *runConfig) {
		if name != "" {
			c.graphName = name
		}
	}
}

// WithMetricsRecorder sets the metrics recorder directly, for example one
// built from a dedicated meter provider. Nil restores the no-op recorder.
func WithMetricsRecorder(rec observability.MetricsRecorder) RunOption {
	return func(c *runConfig) {
		if rec == nil {
			rec = observability.NoopMetrics{}
		}
		c.metrics = rec
	}
}

// WithSpanManager sets the span manager directly. Nil disables tracing.
func WithSpanManager(sm observability.SpanManager) RunOption {
	return func(c *runConfig) {
		c.tracingEnabled = sm != nil
		if sm == nil {
			sm = observability.NoopSpanManager{}
		}
		c.spans = sm
	}
}
