package flowgraph

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph building and compilation.
var (
	// ErrNoEntryPoint indicates neither SetEntry nor AddEdge(START, ...) was called.
	ErrNoEntryPoint = errors.New("entry point not set")

	// ErrEntryNotFound indicates the entry point references a non-existent node.
	ErrEntryNotFound = errors.New("entry point node not found")

	// ErrNodeNotFound indicates an edge, route or interrupt references a non-existent node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrAmbiguousEdge indicates a node has more than one way out that is not a router.
	ErrAmbiguousEdge = errors.New("ambiguous outgoing edges")
)

// Sentinel errors for execution.
var (
	// ErrStepBudgetExceeded indicates a run executed more nodes than its budget allows.
	ErrStepBudgetExceeded = errors.New("step budget exceeded")

	// ErrNilContext indicates Run() was called with a nil context.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrUnknownNode indicates routing was asked about a node the graph does not have.
	ErrUnknownNode = errors.New("unknown node")

	// ErrUnroutedLabel indicates a router returned a label missing from its route table.
	ErrUnroutedLabel = errors.New("router label not in route table")

	// ErrInterrupted indicates execution suspended in front of an interrupt node.
	ErrInterrupted = errors.New("execution interrupted")
)

// Sentinel errors for checkpointing and resume.
var (
	// ErrRunIDRequired indicates checkpointing was enabled without a run ID.
	ErrRunIDRequired = errors.New("run ID required for checkpointing")

	// ErrSerializeState indicates state serialization failed.
	ErrSerializeState = errors.New("failed to serialize state")

	// ErrDeserializeState indicates state deserialization failed.
	ErrDeserializeState = errors.New("failed to deserialize state")

	// ErrNoCheckpoint indicates no checkpoint exists for the run.
	ErrNoCheckpoint = errors.New("no checkpoint found for run")

	// ErrInvalidResumeNode indicates the resume node doesn't exist in the graph.
	ErrInvalidResumeNode = errors.New("invalid resume node")

	// ErrCheckpointVersionMismatch indicates the checkpoint version is incompatible.
	ErrCheckpointVersionMismatch = errors.New("checkpoint version mismatch")

	// ErrRunTerminated indicates Resume was asked to continue a run that
	// already failed or was cancelled.
	ErrRunTerminated = errors.New("run already terminated")
)

// CheckpointError wraps errors from checkpoint operations.
type CheckpointError struct {
	// NodeID is the node where checkpointing failed.
	NodeID string
	// Op is the operation that failed ("save", "load", "serialize").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s at node %s: %v", e.Op, e.NodeID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CheckpointError) Unwrap() error {
	return e.Err
}

// NodeError wraps an error with node context.
// It is what a run returns when a node fails and no error boundary is set.
type NodeError struct {
	// NodeID is the identifier of the node that failed.
	NodeID string
	// Op is the operation that failed (e.g., "execute").
	Op string
	// Err is the underlying error from the node.
	Err error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %s: %v", e.NodeID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// PanicError captures panic information from node execution.
// It includes the stack trace for debugging.
type PanicError struct {
	// NodeID is the identifier of the node that panicked.
	NodeID string
	// Value is the value passed to panic().
	Value any
	// Stack is the full stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.NodeID, e.Value)
}

// CancellationError captures the state when execution was cancelled.
// Cancellation is only observed between nodes.
type CancellationError struct {
	// NodeID is the node that was about to execute.
	NodeID string
	// State is the state at cancellation (can type-assert to the actual type).
	State any
	// Cause is the underlying cancellation cause (context.Canceled or context.DeadlineExceeded).
	Cause error
}

// Error implements the error interface.
func (e *CancellationError) Error() string {
	return fmt.Sprintf("cancelled before node %s: %v", e.NodeID, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CancellationError) Unwrap() error {
	return e.Cause
}

// UnknownNodeError reports routing from a node the graph does not contain.
type UnknownNodeError struct {
	NodeID string
}

// Error implements the error interface.
func (e *UnknownNodeError) Error() string {
	return fmt.Sprintf("unknown node %q", e.NodeID)
}

// Unwrap returns ErrUnknownNode for errors.Is support.
func (e *UnknownNodeError) Unwrap() error {
	return ErrUnknownNode
}

// RoutingError reports a router label with no entry in its route table.
// It is a graph configuration defect and is never retried.
type RoutingError struct {
	// FromNode is the node with the conditional edge.
	FromNode string
	// Label is the value the router returned.
	Label string
	// Known lists the labels the route table does contain.
	Known []string
}

// Error implements the error interface.
func (e *RoutingError) Error() string {
	return fmt.Sprintf("router from %s returned label %q, known labels %v", e.FromNode, e.Label, e.Known)
}

// Unwrap returns ErrUnroutedLabel for errors.Is support.
func (e *RoutingError) Unwrap() error {
	return ErrUnroutedLabel
}

// StepBudgetError provides context when the step budget is exhausted.
// It includes the state at termination for inspection.
type StepBudgetError struct {
	// Budget is the configured step budget.
	Budget int
	// NodeID is the node that would have executed next.
	NodeID string
	// State is the state at termination (can type-assert to the actual type).
	State any
}

// Error implements the error interface.
func (e *StepBudgetError) Error() string {
	return fmt.Sprintf("step budget (%d) exceeded at node %s", e.Budget, e.NodeID)
}

// Unwrap returns ErrStepBudgetExceeded for errors.Is support.
func (e *StepBudgetError) Unwrap() error {
	return ErrStepBudgetExceeded
}

// InterruptError is returned when a run suspends before an interrupt node.
// The run's checkpoint holds the state; Resume continues at NodeID.
type InterruptError struct {
	// NodeID is the node execution stopped in front of.
	NodeID string
	// Step is the number of nodes executed so far in the run.
	Step int
}

// Error implements the error interface.
func (e *InterruptError) Error() string {
	return fmt.Sprintf("interrupted before node %s after %d steps", e.NodeID, e.Step)
}

// Unwrap returns ErrInterrupted for errors.Is support.
func (e *InterruptError) Unwrap() error {
	return ErrInterrupted
}

// IsInterrupt reports whether err is (or wraps) an InterruptError.
func IsInterrupt(err error) bool {
	var ie *InterruptError
	return errors.As(err, &ie)
}
