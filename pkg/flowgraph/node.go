package flowgraph

// START is the virtual source of the entry edge.
// AddEdge(START, id) is equivalent to SetEntry(id).
const START = "__start__"

// END is the terminal node identifier.
// Use this as an edge or route target to indicate the graph should terminate.
const END = "__end__"

// NodeFunc is the signature for all node functions.
// Nodes receive the execution context and current state,
// and return the updated state and any error.
//
// The state parameter is passed by value. Nodes should modify and return
// the value, not rely on pointer mutation. A node that fails should still
// return the state it built so far: the executor keeps that partial state
// when it hands the failure to the error boundary.
//
// Example:
//
//	func increment(ctx flowgraph.Context, s Counter) (Counter, error) {
//	    s.Value++
//	    return s, nil
//	}
type NodeFunc[S any] func(ctx Context, state S) (S, error)

// RouterFunc selects an outgoing label for a conditional edge.
// The label is resolved through the route table given to AddConditionalEdge;
// a label missing from the table is a RoutingError.
//
// Routers must be pure functions of state.
//
// Example:
//
//	func route(ctx flowgraph.Context, s State) string {
//	    if s.Done {
//	        return "finish"
//	    }
//	    return "again"
//	}
type RouterFunc[S any] func(ctx Context, state S) string

// ErrorBoundary converts a recoverable node failure into state.
// It runs in place of propagating the failure; routing then continues
// from the failed node as if it had succeeded, so the graph's routers
// decide where failures go.
type ErrorBoundary[S any] func(ctx Context, state S, nodeID string, err error) S

// PositionFunc records the node the executor is positioned at.
// It is called after every node completes and when execution suspends
// in front of an interrupt node.
type PositionFunc[S any] func(state S, nodeID string) S

// InterruptFunc decides whether to suspend before entering a node.
type InterruptFunc[S any] func(state S) bool
