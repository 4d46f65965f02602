package flowgraph

import "sort"

// CompiledGraph is an immutable, executable graph.
// It is created by calling Compile() on a Graph builder.
//
// CompiledGraph is thread-safe and can be used concurrently for multiple
// Run() calls. The graph structure cannot be modified after compilation.
//
// Use the introspection methods (NodeIDs, Successors, etc.) to examine
// the graph structure for debugging or visualization.
type CompiledGraph[S any] struct {
	nodes            map[string]NodeFunc[S]
	edges            map[string]string
	conditionalEdges map[string]conditionalEdge[S]
	interrupts       map[string]InterruptFunc[S]
	entryPoint       string
	boundary         ErrorBoundary[S]
	position         PositionFunc[S]

	predecessors map[string][]string
}

// EntryPoint returns the entry node ID.
func (cg *CompiledGraph[S]) EntryPoint() string {
	return cg.entryPoint
}

// NodeIDs returns all node identifiers in the graph, sorted.
func (cg *CompiledGraph[S]) NodeIDs() []string {
	return sortedKeys(cg.nodes)
}

// HasNode checks if a node exists in the graph.
func (cg *CompiledGraph[S]) HasNode(id string) bool {
	_, exists := cg.nodes[id]
	return exists
}

// Successors returns every node the given node can transfer control to:
// its unconditional edge target, or all targets of its route table, or
// END when it has neither. Returns nil for END or unknown nodes.
func (cg *CompiledGraph[S]) Successors(id string) []string {
	if id == END || !cg.HasNode(id) {
		return nil
	}
	if to, ok := cg.edges[id]; ok {
		return []string{to}
	}
	if ce, ok := cg.conditionalEdges[id]; ok {
		seen := make(map[string]bool, len(ce.routes))
		var out []string
		for _, label := range sortedKeys(ce.routes) {
			to := ce.routes[label]
			if !seen[to] {
				seen[to] = true
				out = append(out, to)
			}
		}
		return out
	}
	return []string{END}
}

// Predecessors returns the node IDs that have edges or routes to the given node.
// Returns nil for the entry node or unknown nodes.
func (cg *CompiledGraph[S]) Predecessors(id string) []string {
	return cg.predecessors[id]
}

// IsConditional returns true if the node has a conditional edge.
func (cg *CompiledGraph[S]) IsConditional(id string) bool {
	_, ok := cg.conditionalEdges[id]
	return ok
}

// Routes returns a copy of the node's label table, or nil if the node
// has no conditional edge.
func (cg *CompiledGraph[S]) Routes(id string) map[string]string {
	ce, ok := cg.conditionalEdges[id]
	if !ok {
		return nil
	}
	out := make(map[string]string, len(ce.routes))
	for label, to := range ce.routes {
		out[label] = to
	}
	return out
}

// HasInterrupt reports whether execution may suspend before the node.
func (cg *CompiledGraph[S]) HasInterrupt(id string) bool {
	_, ok := cg.interrupts[id]
	return ok
}

// Next resolves the node that follows current for the given state.
//
// Fails with *UnknownNodeError if current is not registered and with
// *RoutingError if the node's router returns a label absent from its
// route table. A node with neither an edge nor a router flows to END.
func (cg *CompiledGraph[S]) Next(ctx Context, current string, state S) (string, error) {
	if !cg.HasNode(current) {
		return "", &UnknownNodeError{NodeID: current}
	}

	if to, ok := cg.edges[current]; ok {
		return to, nil
	}

	ce, ok := cg.conditionalEdges[current]
	if !ok {
		return END, nil
	}

	routerCtx := ctx
	if ec, ok := ctx.(*executionContext); ok {
		routerCtx = ec.withNodeID(current)
	}

	label := ce.router(routerCtx, state)
	to, ok := ce.routes[label]
	if !ok {
		known := make([]string, 0, len(ce.routes))
		for l := range ce.routes {
			known = append(known, l)
		}
		sort.Strings(known)
		return "", &RoutingError{FromNode: current, Label: label, Known: known}
	}
	return to, nil
}

// Describe returns a serializable description of the graph structure.
func (cg *CompiledGraph[S]) Describe() Description {
	d := Description{
		Entry: cg.entryPoint,
		Nodes: cg.NodeIDs(),
	}
	for _, from := range sortedKeys(cg.edges) {
		d.Edges = append(d.Edges, EdgeDescription{From: from, To: cg.edges[from]})
	}
	for _, from := range sortedKeys(cg.conditionalEdges) {
		routes := cg.conditionalEdges[from].routes
		for _, label := range sortedKeys(routes) {
			d.Edges = append(d.Edges, EdgeDescription{From: from, To: routes[label], Label: label})
		}
	}
	for _, id := range d.Nodes {
		if _, hasEdge := cg.edges[id]; hasEdge {
			continue
		}
		if _, hasRouter := cg.conditionalEdges[id]; hasRouter {
			continue
		}
		d.Edges = append(d.Edges, EdgeDescription{From: id, To: END})
	}
	d.Interrupts = sortedKeys(cg.interrupts)
	return d
}

// Description is the static shape of a compiled graph.
type Description struct {
	Entry      string            `json:"entry"`
	Nodes      []string          `json:"nodes"`
	Edges      []EdgeDescription `json:"edges"`
	Interrupts []string          `json:"interrupts,omitempty"`
}

// EdgeDescription is one transfer of control. Label is set for routed edges.
type EdgeDescription struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label,omitempty"`
}

// getNode returns the node function for the given ID.
// Used internally by the executor.
func (cg *CompiledGraph[S]) getNode(id string) (NodeFunc[S], bool) {
	fn, exists := cg.nodes[id]
	return fn, exists
}

// shouldInterrupt reports whether execution suspends before id.
func (cg *CompiledGraph[S]) shouldInterrupt(id string, state S) bool {
	when, ok := cg.interrupts[id]
	return ok && when(state)
}
