package flowgraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/randalmurphal/agentflow/pkg/flowgraph/checkpoint"
	"github.com/randalmurphal/agentflow/pkg/flowgraph/observability"
	"go.opentelemetry.io/otel/attribute"
)

// Run outcomes reported to metrics.
const (
	outcomeCompleted   = "completed"
	outcomeInterrupted = "interrupted"
	outcomeFailed      = "failed"
	outcomeCancelled   = "cancelled"
)

// Run executes the graph with the given initial state, starting at the entry point.
// Returns the final state and any error encountered.
//
// On success, returns the state after the last node executed before END.
// On error, returns the state at the point of failure (useful for debugging).
//
// Execution flow, repeated until END:
//  1. Enforce the step budget
//  2. Check for cancellation
//  3. Suspend if the node has an interrupt that fires
//  4. Execute the node, recovering panics
//  5. Hand node failures to the error boundary, if any
//  6. Record the position and resolve the next node
//  7. Checkpoint (when enabled)
//
// A run that suspends returns *InterruptError together with the state; the
// checkpoint holds everything Resume needs.
//
// Example:
//
//	ctx := flowgraph.NewContext(context.Background())
//	result, err := compiled.Run(ctx, initialState)
//	if err != nil {
//	    // result contains state at point of failure
//	}
func (cg *CompiledGraph[S]) Run(ctx Context, state S, opts ...RunOption) (S, error) {
	if ctx == nil {
		return state, ErrNilContext
	}

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.checkpointStore != nil && cfg.runID == "" {
		return state, ErrRunIDRequired
	}

	return cg.execute(ctx, state, cg.entryPoint, 0, false, false, &cfg)
}

// execute runs the loop from startNode with run-level observability.
// stepsTaken counts nodes already executed by the logical run;
// skipInterrupt suppresses the interrupt check for the first node.
func (cg *CompiledGraph[S]) execute(ctx Context, state S, startNode string, stepsTaken int, resumed, skipInterrupt bool, cfg *runConfig) (result S, runErr error) {
	runID := cfg.runID
	if runID == "" {
		runID = ctx.RunID()
	}

	spanCtx, runSpan := cfg.spans.StartRunSpan(ctx, cfg.graphName, runID)
	fgCtx := derive(ctx, spanCtx, runID)

	observability.LogRunStart(cfg.logger, runID, startNode, resumed)
	startTime := time.Now()
	elapsedMs := observability.TimedOperation()

	r := &run[S]{
		cg:      cg,
		cfg:     cfg,
		ctx:     fgCtx,
		runID:   runID,
		current: startNode,
		step:    stepsTaken,
	}
	result, runErr = r.loop(state, skipInterrupt)

	outcome := outcomeCompleted
	var interrupt *InterruptError
	var cancelled *CancellationError
	switch {
	case errors.As(runErr, &interrupt):
		outcome = outcomeInterrupted
		observability.LogRunInterrupted(cfg.logger, runID, interrupt.NodeID, r.step)
		cfg.spans.EndSpanWithError(runSpan, nil)
	case errors.As(runErr, &cancelled):
		outcome = outcomeCancelled
		observability.LogRunError(cfg.logger, runID, runErr, elapsedMs(), r.lastNode)
		cfg.spans.EndSpanWithError(runSpan, runErr)
	case runErr != nil:
		outcome = outcomeFailed
		observability.LogRunError(cfg.logger, runID, runErr, elapsedMs(), r.lastNode)
		cfg.spans.EndSpanWithError(runSpan, runErr)
	default:
		observability.LogRunComplete(cfg.logger, runID, elapsedMs(), r.step)
		cfg.spans.EndSpanWithError(runSpan, nil)
	}
	cfg.metrics.RecordGraphRun(spanCtx, outcome, time.Since(startTime))

	return result, runErr
}

// run is the mutable bookkeeping of one execution.
type run[S any] struct {
	cg    *CompiledGraph[S]
	cfg   *runConfig
	ctx   *executionContext
	runID string

	current  string
	lastNode string
	step     int
}

func (r *run[S]) loop(state S, skipInterrupt bool) (S, error) {
	cfg := r.cfg

	for r.current != END {
		if r.step >= cfg.stepBudget {
			err := &StepBudgetError{Budget: cfg.stepBudget, NodeID: r.current, State: state}
			r.saveTerminal(state, checkpoint.StatusFailed, err)
			return state, err
		}

		// Cancellation is only observed between nodes
		select {
		case <-r.ctx.Done():
			err := &CancellationError{NodeID: r.current, State: state, Cause: r.ctx.Err()}
			r.saveTerminal(state, checkpoint.StatusCancelled, err)
			return state, err
		default:
		}

		if !r.cg.HasNode(r.current) {
			err := &UnknownNodeError{NodeID: r.current}
			r.saveTerminal(state, checkpoint.StatusFailed, err)
			return state, err
		}

		if !skipInterrupt && r.cg.shouldInterrupt(r.current, state) {
			return r.suspend(state)
		}
		skipInterrupt = false

		r.step++
		nodeID := r.current
		nodeCtx := r.ctx.at(nodeID, r.step)

		observability.LogNodeStart(cfg.logger, nodeID, r.step)
		spanCtx, nodeSpan := cfg.spans.StartNodeSpan(r.ctx, nodeID, r.step)
		nodeCtx.Context = spanCtx

		nodeStart := time.Now()
		var nodeErr error
		state, nodeErr = r.cg.executeNode(nodeCtx, nodeID, state)
		nodeDuration := time.Since(nodeStart)

		cfg.metrics.RecordNodeExecution(spanCtx, nodeID, nodeDuration, nodeErr)
		cfg.spans.EndSpanWithError(nodeSpan, nodeErr)
		r.lastNode = nodeID

		if nodeErr != nil {
			if r.cg.boundary == nil {
				observability.LogNodeError(cfg.logger, nodeID, nodeErr)
				err := wrapNodeError(nodeID, nodeErr)
				r.saveTerminal(state, checkpoint.StatusFailed, err)
				return state, err
			}
			observability.LogNodeRecovered(cfg.logger, nodeID, nodeErr)
			cfg.metrics.RecordRecoveredError(spanCtx, nodeID)
			cfg.spans.AddSpanEvent(r.ctx, "node failure recovered",
				attribute.String("node.id", nodeID),
				attribute.String("error", nodeErr.Error()))
			state = r.cg.boundary(nodeCtx, state, nodeID, nodeErr)
		} else {
			observability.LogNodeComplete(cfg.logger, nodeID, float64(nodeDuration.Microseconds())/1000)
		}

		if r.cg.position != nil {
			state = r.cg.position(state, nodeID)
		}

		next, err := r.cg.Next(nodeCtx, nodeID, state)
		if err != nil {
			r.saveTerminal(state, checkpoint.StatusFailed, err)
			return state, err
		}

		status := checkpoint.StatusRunning
		if next == END {
			status = checkpoint.StatusCompleted
		}
		if err := r.save(state, nodeID, next, status, ""); err != nil {
			return state, err
		}

		r.current = next
	}

	return state, nil
}

// suspend stops in front of the current node and records where to resume.
func (r *run[S]) suspend(state S) (S, error) {
	nodeID := r.current
	if r.cg.position != nil {
		state = r.cg.position(state, nodeID)
	}
	if err := r.save(state, nodeID, nodeID, checkpoint.StatusInterrupted, ""); err != nil {
		return state, err
	}
	r.cfg.metrics.RecordInterrupt(r.ctx, nodeID)
	r.cfg.spans.AddSpanEvent(r.ctx, "interrupt", attribute.String("node.id", nodeID))
	return state, &InterruptError{NodeID: nodeID, Step: r.step}
}

// saveTerminal records a fatal outcome. The run's own error takes
// precedence over a failure to persist it.
func (r *run[S]) saveTerminal(state S, status checkpoint.Status, cause error) {
	nodeID := r.lastNode
	if nodeID == "" {
		nodeID = r.current
	}
	if err := r.save(state, nodeID, r.current, status, cause.Error()); err != nil {
		observability.LogCheckpointError(r.cfg.logger, nodeID, "save", err)
	}
}

// save persists the envelope when checkpointing is enabled.
func (r *run[S]) save(state S, nodeID, next string, status checkpoint.Status, reason string) error {
	cfg := r.cfg
	if cfg.checkpointStore == nil {
		return nil
	}

	fail := func(op string, err error) error {
		if cfg.checkpointFailureFatal {
			return &CheckpointError{NodeID: nodeID, Op: op, Err: err}
		}
		observability.LogCheckpointError(cfg.logger, nodeID, op, err)
		return nil
	}

	stateBytes, err := json.Marshal(state)
	if err != nil {
		return fail("serialize", fmt.Errorf("%w: %v", ErrSerializeState, err))
	}

	data, err := checkpoint.New(r.runID, nodeID, r.step, stateBytes, next).
		WithStatus(status).
		WithReason(reason).
		Marshal()
	if err != nil {
		return fail("marshal", err)
	}

	// Terminal writes happen after cancellation too.
	saveCtx := context.WithoutCancel(r.ctx)
	if err := cfg.checkpointStore.Save(saveCtx, r.runID, data); err != nil {
		return fail("save", err)
	}

	observability.LogCheckpoint(cfg.logger, nodeID, string(status), len(data))
	cfg.metrics.RecordCheckpoint(saveCtx, nodeID, int64(len(data)))
	return nil
}

// executeNode executes a single node with panic recovery.
// Returns the node's state (the input state if it panicked) and its raw error.
func (cg *CompiledGraph[S]) executeNode(ctx Context, nodeID string, state S) (result S, err error) {
	fn, exists := cg.getNode(nodeID)
	if !exists {
		return state, &UnknownNodeError{NodeID: nodeID}
	}

	defer func() {
		if r := recover(); r != nil {
			result = state
			err = &PanicError{
				NodeID: nodeID,
				Value:  r,
				Stack:  string(debug.Stack()),
			}
		}
	}()

	return fn(ctx, state)
}

// wrapNodeError attaches node context to a failure that ends the run.
func wrapNodeError(nodeID string, err error) error {
	var pe *PanicError
	var ue *UnknownNodeError
	if errors.As(err, &pe) || errors.As(err, &ue) {
		return err
	}
	return &NodeError{NodeID: nodeID, Op: "execute", Err: err}
}
