package flowgraph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/agentflow/pkg/flowgraph/checkpoint"
)

func mustCompile[S any](t *testing.T, g *Graph[S]) *CompiledGraph[S] {
	t.Helper()
	compiled, err := g.Compile()
	require.NoError(t, err)
	return compiled
}

// TestRun_LinearFlow tests basic linear execution.
func TestRun_LinearFlow(t *testing.T) {
	compiled := mustCompile(t, NewGraph[Counter]().
		AddNode("inc1", increment).
		AddNode("inc2", increment).
		AddNode("inc3", increment).
		AddEdge(START, "inc1").
		AddEdge("inc1", "inc2").
		AddEdge("inc2", "inc3").
		AddEdge("inc3", END))

	result, err := compiled.Run(testCtx(), Counter{Value: 0})

	require.NoError(t, err)
	assert.Equal(t, 3, result.Value)
}

// A node without outgoing edges ends the run.
func TestRun_ImplicitEnd(t *testing.T) {
	compiled := mustCompile(t, NewGraph[State]().
		AddNode("a", track("a")).
		AddNode("b", track("b")).
		SetEntry("a").
		AddEdge("a", "b"))

	result, err := compiled.Run(testCtx(), State{})

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, result.Progress)
}

func TestRun_ConditionalRouting(t *testing.T) {
	router := func(ctx Context, s State) string {
		if s.GoLeft {
			return "go-left"
		}
		return "go-right"
	}
	build := func() *CompiledGraph[State] {
		return mustCompile(t, NewGraph[State]().
			AddNode("start", track("start")).
			AddNode("left", track("left")).
			AddNode("right", track("right")).
			SetEntry("start").
			AddConditionalEdge("start", router, map[string]string{
				"go-left":  "left",
				"go-right": "right",
			}))
	}

	tests := []struct {
		name   string
		goLeft bool
		want   []string
	}{
		{"left", true, []string{"start", "left"}},
		{"right", false, []string{"start", "right"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := build().Run(testCtx(), State{GoLeft: tt.goLeft})
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Progress)
		})
	}
}

func TestRun_NilContext(t *testing.T) {
	compiled := mustCompile(t, NewGraph[Counter]().AddNode("a", increment).SetEntry("a"))

	//nolint:staticcheck // nil context is the point of the test
	_, err := compiled.Run(nil, Counter{})
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestRun_CheckpointingRequiresRunID(t *testing.T) {
	compiled := mustCompile(t, NewGraph[Counter]().AddNode("a", increment).SetEntry("a"))

	_, err := compiled.Run(testCtx(), Counter{}, WithCheckpointing(checkpoint.NewMemoryStore()))
	assert.ErrorIs(t, err, ErrRunIDRequired)
}

// TestRun_StepBudget verifies a routing loop terminates with a distinct error.
func TestRun_StepBudget(t *testing.T) {
	compiled := mustCompile(t, NewGraph[Counter]().
		AddNode("loop", increment).
		SetEntry("loop").
		AddConditionalEdge("loop", constRouter[Counter]("again"), map[string]string{"again": "loop"}))

	result, err := compiled.Run(testCtx(), Counter{}, WithStepBudget(5))

	var budget *StepBudgetError
	require.ErrorAs(t, err, &budget)
	assert.ErrorIs(t, err, ErrStepBudgetExceeded)
	assert.Equal(t, 5, budget.Budget)
	assert.Equal(t, "loop", budget.NodeID)
	assert.Equal(t, Counter{Value: 5}, budget.State)
	assert.Equal(t, 5, result.Value, "exactly budget nodes run")
}

func TestRun_StepBudget_ExactFitCompletes(t *testing.T) {
	compiled := mustCompile(t, NewGraph[Counter]().
		AddNode("a", increment).
		AddNode("b", increment).
		SetEntry("a").
		AddEdge("a", "b"))

	result, err := compiled.Run(testCtx(), Counter{}, WithStepBudget(2))

	require.NoError(t, err)
	assert.Equal(t, 2, result.Value)
}

func TestRun_StepBudget_DefaultIs50(t *testing.T) {
	compiled := mustCompile(t, NewGraph[Counter]().
		AddNode("loop", increment).
		SetEntry("loop").
		AddConditionalEdge("loop", constRouter[Counter]("again"), map[string]string{"again": "loop"}))

	result, err := compiled.Run(testCtx(), Counter{})

	assert.ErrorIs(t, err, ErrStepBudgetExceeded)
	assert.Equal(t, DefaultStepBudget, result.Value)
}

// Cancellation is observed before the next node starts, never mid-node.
func TestRun_CancelledBetweenNodes(t *testing.T) {
	base, cancel := context.WithCancel(context.Background())
	defer cancel()

	compiled := mustCompile(t, NewGraph[State]().
		AddNode("first", func(ctx Context, s State) (State, error) {
			cancel()
			s.Progress = append(s.Progress, "first")
			return s, nil
		}).
		AddNode("second", track("second")).
		SetEntry("first").
		AddEdge("first", "second"))

	store := checkpoint.NewMemoryStore()
	result, err := compiled.Run(NewContext(base), State{},
		WithCheckpointing(store), WithRunID("cancel-1"))

	var cancelled *CancellationError
	require.ErrorAs(t, err, &cancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "second", cancelled.NodeID)
	assert.Equal(t, []string{"first"}, result.Progress, "first node finished, second never started")

	snap, err := LoadSnapshot[State](context.Background(), store, "cancel-1")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusCancelled, snap.Status)
	assert.Contains(t, snap.Reason, "cancelled before node second")
}

func TestRun_AlreadyCancelled(t *testing.T) {
	base, cancel := context.WithCancel(context.Background())
	cancel()

	compiled := mustCompile(t, NewGraph[State]().AddNode("a", track("a")).SetEntry("a"))

	result, err := compiled.Run(NewContext(base), State{})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, result.Progress)
}

func TestRun_NodeError_WithoutBoundary(t *testing.T) {
	compiled := mustCompile(t, NewGraph[State]().
		AddNode("a", track("a")).
		AddNode("b", fail("b", errBoom)).
		AddNode("c", track("c")).
		SetEntry("a").
		AddEdge("a", "b").
		AddEdge("b", "c"))

	result, err := compiled.Run(testCtx(), State{})

	var nodeErr *NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "b", nodeErr.NodeID)
	assert.Equal(t, "execute", nodeErr.Op)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, []string{"a", "b"}, result.Progress, "partial state is returned")
}

func TestRun_Panic_WithoutBoundary(t *testing.T) {
	compiled := mustCompile(t, NewGraph[State]().
		AddNode("a", track("a")).
		AddNode("b", panics("kaboom")).
		SetEntry("a").
		AddEdge("a", "b"))

	result, err := compiled.Run(testCtx(), State{})

	var panicErr *PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "b", panicErr.NodeID)
	assert.Equal(t, "kaboom", panicErr.Value)
	assert.NotEmpty(t, panicErr.Stack)
	assert.Equal(t, []string{"a"}, result.Progress, "state before the panic is kept")
}

// The error boundary absorbs node failures; routing continues from the
// failed node and the graph's routers decide where the failure goes.
func TestRun_ErrorBoundary(t *testing.T) {
	router := func(ctx Context, s State) string {
		if s.LastError != "" {
			return "failed"
		}
		return "ok"
	}

	compiled := mustCompile(t, NewGraph[State]().
		AddNode("work", fail("work", errBoom)).
		AddNode("recover", track("recover")).
		AddNode("finish", track("finish")).
		SetEntry("work").
		AddConditionalEdge("work", router, map[string]string{"failed": "recover", "ok": "finish"}).
		AddEdge("recover", "finish").
		SetErrorBoundary(recordFailure))

	result, err := compiled.Run(testCtx(), State{})

	require.NoError(t, err)
	assert.Equal(t, []string{"work", "recover", "finish"}, result.Progress,
		"partial progress of the failing node is kept")
	assert.Equal(t, []string{"work: boom"}, result.Failures)
}

func TestRun_ErrorBoundary_ReceivesPanics(t *testing.T) {
	var received error

	compiled := mustCompile(t, NewGraph[State]().
		AddNode("a", panics("kaboom")).
		SetEntry("a").
		SetErrorBoundary(func(ctx Context, s State, nodeID string, err error) State {
			received = err
			return s
		}))

	_, err := compiled.Run(testCtx(), State{})

	require.NoError(t, err)
	var panicErr *PanicError
	require.ErrorAs(t, received, &panicErr)
	assert.Equal(t, "a", panicErr.NodeID)
}

// Routing defects are fatal even when a boundary is installed.
func TestRun_RoutingErrorIsFatal(t *testing.T) {
	boundaryCalls := 0

	compiled := mustCompile(t, NewGraph[State]().
		AddNode("a", track("a")).
		AddNode("b", track("b")).
		SetEntry("a").
		AddConditionalEdge("a", constRouter[State]("nowhere"), map[string]string{"ok": "b"}).
		SetErrorBoundary(func(ctx Context, s State, nodeID string, err error) State {
			boundaryCalls++
			return s
		}))

	store := checkpoint.NewMemoryStore()
	result, err := compiled.Run(testCtx(), State{}, WithCheckpointing(store), WithRunID("route-1"))

	var routing *RoutingError
	require.ErrorAs(t, err, &routing)
	assert.Equal(t, "nowhere", routing.Label)
	assert.Zero(t, boundaryCalls)
	assert.Equal(t, []string{"a"}, result.Progress)

	snap, err := LoadSnapshot[State](context.Background(), store, "route-1")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusFailed, snap.Status)
}

// A bounded retry loop expressed entirely in routing tables.
func TestRun_RetryLoop(t *testing.T) {
	const maxAttempts = 3

	afterWork := func(ctx Context, s State) string {
		if s.LastError != "" && s.Attempts < maxAttempts {
			return "retry"
		}
		return "done"
	}
	retry := func(ctx Context, s State) (State, error) {
		s.Attempts++
		s.LastError = ""
		return s, nil
	}

	compiled := mustCompile(t, NewGraph[State]().
		AddNode("work", fail("work", errBoom)).
		AddNode("retry", retry).
		AddNode("respond", track("respond")).
		SetEntry("work").
		AddConditionalEdge("work", afterWork, map[string]string{"retry": "retry", "done": "respond"}).
		AddEdge("retry", "work").
		SetErrorBoundary(recordFailure))

	result, err := compiled.Run(testCtx(), State{})

	require.NoError(t, err)
	assert.Equal(t, maxAttempts, result.Attempts)
	assert.Len(t, result.Failures, maxAttempts+1)
	assert.Equal(t, "respond", result.Progress[len(result.Progress)-1])
}

func TestRun_PositionTracking(t *testing.T) {
	var seen []string

	compiled := mustCompile(t, NewGraph[State]().
		AddNode("a", func(ctx Context, s State) (State, error) {
			seen = append(seen, s.Position)
			return s, nil
		}).
		AddNode("b", func(ctx Context, s State) (State, error) {
			seen = append(seen, s.Position)
			return s, nil
		}).
		SetEntry("a").
		AddEdge("a", "b").
		TrackPosition(recordPosition))

	result, err := compiled.Run(testCtx(), State{})

	require.NoError(t, err)
	assert.Equal(t, []string{"", "a"}, seen)
	assert.Equal(t, "b", result.Position)
}

func TestRun_NodeContext(t *testing.T) {
	type seenCtx struct {
		runID, nodeID string
		step          int
	}
	var seen []seenCtx

	record := func(ctx Context, s Counter) (Counter, error) {
		assert.NotNil(t, ctx.Logger())
		seen = append(seen, seenCtx{ctx.RunID(), ctx.NodeID(), ctx.Step()})
		return s, nil
	}

	compiled := mustCompile(t, NewGraph[Counter]().
		AddNode("a", record).
		AddNode("b", record).
		SetEntry("a").
		AddEdge("a", "b"))

	_, err := compiled.Run(testCtx(), Counter{}, WithRunID("session-9"))

	require.NoError(t, err)
	assert.Equal(t, []seenCtx{{"session-9", "a", 1}, {"session-9", "b", 2}}, seen)
}

// One checkpoint is written per completed node; the last one marks completion.
func TestRun_CheckpointAfterEveryNode(t *testing.T) {
	compiled := mustCompile(t, NewGraph[Counter]().
		AddNode("a", increment).
		AddNode("b", increment).
		AddNode("c", increment).
		SetEntry("a").
		AddEdge("a", "b").
		AddEdge("b", "c"))

	store := checkpoint.NewMemoryStore()
	_, err := compiled.Run(testCtx(), Counter{}, WithCheckpointing(store), WithRunID("run-1"))
	require.NoError(t, err)

	assert.Equal(t, 3, store.Saves("run-1"))

	snap, err := LoadSnapshot[Counter](context.Background(), store, "run-1")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusCompleted, snap.Status)
	assert.Equal(t, "c", snap.NodeID)
	assert.Equal(t, END, snap.NextNode)
	assert.Equal(t, 3, snap.Step)
	assert.Equal(t, Counter{Value: 3}, snap.State)
}

// The checkpoint written after a node reflects that node's output and the
// node that runs next.
func TestRun_CheckpointOrdering(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	var observed []*Snapshot[Counter]

	observe := func(ctx Context, s Counter) (Counter, error) {
		snap, err := LoadSnapshot[Counter](ctx, store, "order-1")
		if err == nil {
			observed = append(observed, snap)
		}
		s.Value++
		return s, nil
	}

	compiled := mustCompile(t, NewGraph[Counter]().
		AddNode("a", observe).
		AddNode("b", observe).
		AddNode("c", observe).
		SetEntry("a").
		AddEdge("a", "b").
		AddEdge("b", "c"))

	_, err := compiled.Run(testCtx(), Counter{}, WithCheckpointing(store), WithRunID("order-1"))
	require.NoError(t, err)

	require.Len(t, observed, 2)
	assert.Equal(t, "a", observed[0].NodeID)
	assert.Equal(t, "b", observed[0].NextNode)
	assert.Equal(t, 1, observed[0].State.Value)
	assert.Equal(t, checkpoint.StatusRunning, observed[0].Status)
	assert.Equal(t, "b", observed[1].NodeID)
	assert.Equal(t, "c", observed[1].NextNode)
	assert.Equal(t, 2, observed[1].State.Value)
}

// failingStore rejects every save.
type failingStore struct {
	*checkpoint.MemoryStore
}

func (failingStore) Save(context.Context, string, []byte) error {
	return errors.New("disk full")
}

func TestRun_CheckpointFailure(t *testing.T) {
	build := func() *CompiledGraph[Counter] {
		return mustCompile(t, NewGraph[Counter]().
			AddNode("a", increment).
			AddNode("b", increment).
			SetEntry("a").
			AddEdge("a", "b"))
	}
	store := failingStore{checkpoint.NewMemoryStore()}

	t.Run("fatal by default", func(t *testing.T) {
		result, err := build().Run(testCtx(), Counter{}, WithCheckpointing(store), WithRunID("x"))

		var cpErr *CheckpointError
		require.ErrorAs(t, err, &cpErr)
		assert.Equal(t, "a", cpErr.NodeID)
		assert.Equal(t, "save", cpErr.Op)
		assert.Equal(t, 1, result.Value, "run stops after the node whose checkpoint failed")
	})

	t.Run("non-fatal continues", func(t *testing.T) {
		result, err := build().Run(testCtx(), Counter{},
			WithCheckpointing(store), WithRunID("x"), WithCheckpointFailureFatal(false))

		require.NoError(t, err)
		assert.Equal(t, 2, result.Value)
	})
}

// A compiled graph is shared read-only across concurrent runs.
func TestRun_ConcurrentRunsShareGraph(t *testing.T) {
	compiled := mustCompile(t, NewGraph[Counter]().
		AddNode("a", increment).
		AddNode("b", increment).
		SetEntry("a").
		AddEdge("a", "b"))
	store := checkpoint.NewMemoryStore()

	const runs = 20
	errs := make(chan error, runs)
	for i := 0; i < runs; i++ {
		go func(i int) {
			id := "run-" + string(rune('a'+i))
			result, err := compiled.Run(testCtx(), Counter{Value: i}, WithCheckpointing(store), WithRunID(id))
			if err == nil && result.Value != i+2 {
				err = errors.New("wrong result for " + id)
			}
			errs <- err
		}(i)
	}
	for i := 0; i < runs; i++ {
		assert.NoError(t, <-errs)
	}
	assert.Equal(t, runs, store.Len())
}
