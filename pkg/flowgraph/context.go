package flowgraph

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/randalmurphal/agentflow/pkg/flowgraph/checkpoint"
)

// Context provides execution context to nodes.
// It extends context.Context with flowgraph-specific services and metadata.
//
// Context is immutable after creation. The executor creates derived contexts
// for each node with updated NodeID, Step and an enriched logger.
type Context interface {
	context.Context

	// Logger returns the configured logger, enriched with run, node and step.
	// Never returns nil - defaults to slog.Default() if not configured.
	Logger() *slog.Logger

	// Checkpointer returns the checkpoint store, or nil if not configured.
	Checkpointer() checkpoint.Store

	// RunID returns the unique identifier for this execution run.
	// Auto-generated if not configured.
	RunID() string

	// NodeID returns the current node being executed.
	// Empty string before execution starts.
	NodeID() string

	// Step returns the 1-based position of the current node in the run.
	Step() int
}

// executionContext is the internal implementation of Context.
type executionContext struct {
	context.Context

	logger       *slog.Logger
	checkpointer checkpoint.Store
	runID        string
	nodeID       string
	step         int
}

// Logger returns the configured logger.
func (c *executionContext) Logger() *slog.Logger {
	return c.logger
}

// Checkpointer returns the checkpoint store.
func (c *executionContext) Checkpointer() checkpoint.Store {
	return c.checkpointer
}

// RunID returns the run identifier.
func (c *executionContext) RunID() string {
	return c.runID
}

// NodeID returns the current node identifier.
func (c *executionContext) NodeID() string {
	return c.nodeID
}

// Step returns the current step.
func (c *executionContext) Step() int {
	return c.step
}

// ContextOption configures a Context.
type ContextOption func(*executionContext)

// WithLogger sets the logger for the context.
// The logger will be enriched with session_id, node_id and step during execution.
func WithLogger(logger *slog.Logger) ContextOption {
	return func(c *executionContext) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCheckpointer sets the checkpoint store for the context.
func WithCheckpointer(store checkpoint.Store) ContextOption {
	return func(c *executionContext) {
		c.checkpointer = store
	}
}

// WithContextRunID sets the run identifier for the context.
// If not set, a UUID will be auto-generated.
// This is used for logging and tracing. For checkpointing, use
// WithRunID() as a RunOption with Run().
func WithContextRunID(id string) ContextOption {
	return func(c *executionContext) {
		c.runID = id
	}
}

// NewContext creates an execution context from a standard context.
//
// Example:
//
//	ctx := flowgraph.NewContext(context.Background(),
//	    flowgraph.WithLogger(myLogger),
//	    flowgraph.WithContextRunID("session-123"))
func NewContext(ctx context.Context, opts ...ContextOption) Context {
	ec := &executionContext{
		Context: ctx,
		logger:  slog.Default(),
		runID:   uuid.New().String(),
	}

	for _, opt := range opts {
		opt(ec)
	}

	return ec
}

// withNodeID returns a new context with the given node ID set.
func (c *executionContext) withNodeID(nodeID string) *executionContext {
	return c.at(nodeID, c.step)
}

// at returns a derived context positioned at nodeID and step, with
// ctx's cancellation and span but this context's services.
func (c *executionContext) at(nodeID string, step int) *executionContext {
	return &executionContext{
		Context:      c.Context,
		logger:       c.logger.With("session_id", c.runID, "node_id", nodeID, "step", step),
		checkpointer: c.checkpointer,
		runID:        c.runID,
		nodeID:       nodeID,
		step:         step,
	}
}

// derive wraps ctx (typically carrying a tracing span) while keeping the
// services of base.
func derive(base Context, ctx context.Context, runID string) *executionContext {
	ec := &executionContext{
		Context: ctx,
		logger:  base.Logger(),
		runID:   runID,
		nodeID:  base.NodeID(),
		step:    base.Step(),
	}
	if ec.logger == nil {
		ec.logger = slog.Default()
	}
	ec.checkpointer = base.Checkpointer()
	return ec
}
