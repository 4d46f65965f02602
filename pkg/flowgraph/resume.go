package flowgraph

import (
	"fmt"

	"github.com/randalmurphal/agentflow/pkg/flowgraph/checkpoint"
)

// Resume continues a run from its checkpoint in store.
//
// Where execution continues depends on the recorded status:
//   - interrupted: at the node the run suspended in front of, without
//     checking that node's interrupt again and without re-running earlier nodes
//   - running (a crash between nodes): at the recorded next node, with
//     its interrupt checked as usual
//   - completed: nowhere; the stored state is returned and nothing is written
//   - failed or cancelled: nowhere; ErrRunTerminated is returned with the state
//
// The step budget covers the whole logical run, so steps taken before the
// checkpoint count against it.
//
// Example:
//
//	// Run suspended before "approve"; a reviewer has recorded a decision
//	result, err := compiled.Resume(ctx, store, "session-123")
func (cg *CompiledGraph[S]) Resume(ctx Context, store checkpoint.Store, runID string, opts ...RunOption) (S, error) {
	var zero S

	if ctx == nil {
		return zero, ErrNilContext
	}

	snap, err := LoadSnapshot[S](ctx, store, runID)
	if err != nil {
		return zero, err
	}

	var startNode string
	switch snap.Status {
	case checkpoint.StatusCompleted:
		return snap.State, nil
	case checkpoint.StatusFailed, checkpoint.StatusCancelled:
		return snap.State, fmt.Errorf("%w: %s: %s", ErrRunTerminated, snap.Status, snap.Reason)
	case checkpoint.StatusInterrupted:
		startNode = snap.NodeID
	default:
		startNode = snap.NextNode
	}

	if startNode != END && !cg.HasNode(startNode) {
		return snap.State, fmt.Errorf("%w: %s", ErrInvalidResumeNode, startNode)
	}

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.checkpointStore = store
	cfg.runID = runID

	skip := snap.Status == checkpoint.StatusInterrupted
	return cg.execute(ctx, snap.State, startNode, snap.Step, true, skip, &cfg)
}
