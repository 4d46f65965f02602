/*
Package flowgraph executes directed graphs of processing steps over a
shared, typed state record.

# Overview

A graph is a set of named nodes, each transforming the state, plus edges
that decide which node runs next. Edges are either unconditional or
routed: a router inspects the state and returns a label that is looked
up in a per-node route table fixed at construction time. A node with no
outgoing edge flows to END.

Graphs are built with a mutable builder and compiled into an immutable
CompiledGraph that can be shared by any number of concurrent runs.

# Basic Usage

	type State struct {
	    Input  string
	    Output string
	}

	func process(ctx flowgraph.Context, s State) (State, error) {
	    s.Output = "Processed: " + s.Input
	    return s, nil
	}

	compiled, err := flowgraph.NewGraph[State]().
	    AddNode("process", process).
	    AddEdge(flowgraph.START, "process").
	    Compile()
	if err != nil {
	    log.Fatal(err)
	}

	ctx := flowgraph.NewContext(context.Background())
	result, err := compiled.Run(ctx, State{Input: "hello"})

# Routing

	graph.AddConditionalEdge("review", func(ctx flowgraph.Context, s State) string {
	    if s.Approved {
	        return "approved"
	    }
	    return "rejected"
	}, map[string]string{
	    "approved": "publish",
	    "rejected": "revise",
	})

A label missing from the table is a *RoutingError. Routing defects,
unknown nodes and an exhausted step budget are fatal: they abort the run
and are returned to the caller.

# Failures

Without an error boundary a failing or panicking node aborts the run
with *NodeError or *PanicError. With SetErrorBoundary the failure is
folded into state instead and routing continues from the failed node,
so retry policy lives in the route tables:

	graph.SetErrorBoundary(func(ctx flowgraph.Context, s State, nodeID string, err error) State {
	    s.Errors = append(s.Errors, err.Error())
	    s.LastError = err.Error()
	    return s
	})

# Checkpoints and Suspension

WithCheckpointing writes a checkpoint after every node, keyed by the run
ID. InterruptBefore suspends a run in front of a node: the executor
checkpoints with status interrupted and returns *InterruptError. The
suspended run holds nothing but its checkpoint. Record a decision with
UpdateSnapshot and continue with Resume:

	_, err := compiled.Run(ctx, state,
	    flowgraph.WithCheckpointing(store),
	    flowgraph.WithRunID("session-1"))
	if flowgraph.IsInterrupt(err) {
	    // later, in any process sharing the store
	    flowgraph.UpdateSnapshot(ctx, store, "session-1", func(s *flowgraph.Snapshot[State]) error {
	        s.State.Approved = true
	        return nil
	    })
	    result, err = compiled.Resume(ctx, store, "session-1")
	}

# Cancellation and Budgets

Cancellation of the context is observed between nodes, never mid-node,
and ends the run with *CancellationError. Every run has a step budget
(DefaultStepBudget unless WithStepBudget says otherwise) that bounds the
number of node executions across suspensions; exceeding it returns
*StepBudgetError.

# Observability

WithObservabilityLogger enables structured run, node and checkpoint
logs. WithMetrics and WithTracing emit OpenTelemetry metrics and spans
through the global providers; WithMetricsRecorder and WithSpanManager
accept explicit ones. Nodes log through Context.Logger, which carries
session_id, node_id and step.
*/
package flowgraph
