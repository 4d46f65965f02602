package flowgraph

import (
	"fmt"
	"strings"
	"sync"
)

// Graph is a mutable builder for creating execution graphs.
// Use NewGraph to create a new graph, then chain AddNode, AddEdge,
// AddConditionalEdge and SetEntry calls to define the workflow.
//
// Graph is NOT thread-safe during building. Use a single goroutine
// to construct the graph, then call Compile() to create an immutable
// CompiledGraph that can be safely shared.
//
// Example:
//
//	graph := flowgraph.NewGraph[MyState]().
//	    AddNode("fetch", fetchNode).
//	    AddNode("process", processNode).
//	    AddEdge(flowgraph.START, "fetch").
//	    AddConditionalEdge("fetch", route, map[string]string{
//	        "ok":    "process",
//	        "empty": flowgraph.END,
//	    })
//
//	compiled, err := graph.Compile()
type Graph[S any] struct {
	mu               sync.RWMutex
	nodes            map[string]NodeFunc[S]
	edges            map[string][]string
	conditionalEdges map[string]conditionalEdge[S]
	interrupts       map[string]InterruptFunc[S]
	entryPoint       string
	boundary         ErrorBoundary[S]
	position         PositionFunc[S]
}

// conditionalEdge pairs a router with its label table.
type conditionalEdge[S any] struct {
	router RouterFunc[S]
	routes map[string]string
}

// NewGraph creates a new graph builder for state type S.
// The type parameter S defines the state that flows through the graph.
func NewGraph[S any]() *Graph[S] {
	return &Graph[S]{
		nodes:            make(map[string]NodeFunc[S]),
		edges:            make(map[string][]string),
		conditionalEdges: make(map[string]conditionalEdge[S]),
		interrupts:       make(map[string]InterruptFunc[S]),
	}
}

// AddNode adds a named node to the graph.
// Returns the graph for method chaining.
//
// Panics if:
//   - id is empty
//   - id is a reserved word ("END", "__end__", "START", "__start__", case-insensitive)
//   - id contains whitespace (space, tab, newline)
//   - fn is nil
//   - id already exists in the graph
func (g *Graph[S]) AddNode(id string, fn NodeFunc[S]) *Graph[S] {
	validateNodeID(id)

	if fn == nil {
		panic("flowgraph: node function cannot be nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[id]; exists {
		panic(fmt.Sprintf("flowgraph: duplicate node ID: %s", id))
	}

	g.nodes[id] = fn
	return g
}

func validateNodeID(id string) {
	if id == "" {
		panic("flowgraph: node ID cannot be empty")
	}

	switch strings.ToLower(id) {
	case "end", END, "start", START:
		panic(fmt.Sprintf("flowgraph: node ID cannot be reserved word %q", id))
	}

	if strings.ContainsAny(id, " \t\n\r") {
		panic("flowgraph: node ID cannot contain whitespace")
	}
}

// AddEdge adds an unconditional edge from one node to another.
// The target can be a node ID or flowgraph.END. An edge from START
// designates the entry point.
// Returns the graph for method chaining.
//
// Edge validation happens at Compile() time, not here.
// This allows edges to be added in any order.
func (g *Graph[S]) AddEdge(from, to string) *Graph[S] {
	g.mu.Lock()
	defer g.mu.Unlock()

	if from == START {
		g.entryPoint = to
		return g
	}

	g.edges[from] = append(g.edges[from], to)
	return g
}

// AddConditionalEdge attaches a router to a node. After the node runs,
// the router's label is looked up in routes to find the next node.
// Targets may be node IDs or flowgraph.END.
// Returns the graph for method chaining.
//
// Panics if router is nil or routes is empty. Route targets are
// validated at Compile() time.
func (g *Graph[S]) AddConditionalEdge(from string, router RouterFunc[S], routes map[string]string) *Graph[S] {
	if router == nil {
		panic("flowgraph: router function cannot be nil")
	}
	if len(routes) == 0 {
		panic(fmt.Sprintf("flowgraph: route table for %s cannot be empty", from))
	}

	table := make(map[string]string, len(routes))
	for label, target := range routes {
		table[label] = target
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.conditionalEdges[from] = conditionalEdge[S]{router: router, routes: table}
	return g
}

// SetEntry designates the entry point node.
// Returns the graph for method chaining.
//
// Entry point validation happens at Compile() time.
func (g *Graph[S]) SetEntry(id string) *Graph[S] {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.entryPoint = id
	return g
}

// SetErrorBoundary installs the function that absorbs recoverable node
// failures. Without a boundary, a failing node aborts the run with a
// NodeError.
func (g *Graph[S]) SetErrorBoundary(fn ErrorBoundary[S]) *Graph[S] {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.boundary = fn
	return g
}

// TrackPosition installs the function that stamps the executor's
// position into state.
func (g *Graph[S]) TrackPosition(fn PositionFunc[S]) *Graph[S] {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.position = fn
	return g
}

// InterruptBefore suspends execution in front of the node whenever when
// returns true (always, if when is nil). A suspended run is continued with
// Resume, which enters the node without checking the interrupt again.
func (g *Graph[S]) InterruptBefore(id string, when InterruptFunc[S]) *Graph[S] {
	if when == nil {
		when = func(S) bool { return true }
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.interrupts[id] = when
	return g
}
