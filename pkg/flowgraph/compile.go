package flowgraph

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// Compile validates the graph and creates an executable CompiledGraph.
// Returns an error if validation fails. Multiple errors are joined together.
//
// Validation checks (in order):
//  1. Entry point must be set
//  2. Entry point must reference an existing node
//  3. All edge sources must reference existing nodes
//  4. All edge and route targets must reference existing nodes or END
//  5. A node may not have both unconditional edges and a conditional edge
//  6. Interrupts must reference existing nodes
//
// Nodes without outgoing edges flow to END. Unreachable nodes are logged
// as warnings but do not cause compilation to fail.
func (g *Graph[S]) Compile() (*CompiledGraph[S], error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var errs []error

	// 1 & 2. Entry point
	if g.entryPoint == "" {
		errs = append(errs, ErrNoEntryPoint)
	} else if _, exists := g.nodes[g.entryPoint]; !exists {
		errs = append(errs, fmt.Errorf("%w: %s", ErrEntryNotFound, g.entryPoint))
	}

	// 3 & 4. Simple edges
	for _, from := range sortedKeys(g.edges) {
		if _, exists := g.nodes[from]; !exists {
			errs = append(errs, fmt.Errorf("%w: edge source '%s' does not exist", ErrNodeNotFound, from))
		}
		for _, to := range g.edges[from] {
			if to != END && !g.hasNode(to) {
				errs = append(errs, fmt.Errorf("%w: edge target '%s' does not exist", ErrNodeNotFound, to))
			}
		}
		if len(g.edges[from]) > 1 {
			errs = append(errs, fmt.Errorf("%w: node '%s' has %d unconditional edges", ErrAmbiguousEdge, from, len(g.edges[from])))
		}
	}

	// 4 & 5. Conditional edges
	for _, from := range sortedKeys(g.conditionalEdges) {
		if !g.hasNode(from) {
			errs = append(errs, fmt.Errorf("%w: conditional edge source '%s' does not exist", ErrNodeNotFound, from))
		}
		if _, both := g.edges[from]; both {
			errs = append(errs, fmt.Errorf("%w: node '%s' has both an edge and a conditional edge", ErrAmbiguousEdge, from))
		}
		ce := g.conditionalEdges[from]
		for _, label := range sortedKeys(ce.routes) {
			to := ce.routes[label]
			if to != END && !g.hasNode(to) {
				errs = append(errs, fmt.Errorf("%w: route '%s' from '%s' targets '%s'", ErrNodeNotFound, label, from, to))
			}
		}
	}

	// 6. Interrupts
	for _, id := range sortedKeys(g.interrupts) {
		if !g.hasNode(id) {
			errs = append(errs, fmt.Errorf("%w: interrupt node '%s' does not exist", ErrNodeNotFound, id))
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	g.warnUnreachableNodes()

	return g.buildCompiledGraph(), nil
}

func (g *Graph[S]) hasNode(id string) bool {
	_, exists := g.nodes[id]
	return exists
}

// warnUnreachableNodes logs warnings for nodes not reachable from entry.
func (g *Graph[S]) warnUnreachableNodes() {
	reachable := g.findReachableNodes()

	for _, nodeID := range sortedKeys(g.nodes) {
		if !reachable[nodeID] {
			slog.Warn("node is unreachable from entry", "node_id", nodeID)
		}
	}
}

// findReachableNodes returns the set of nodes reachable from the entry point.
// Route tables make conditional targets known at compile time, so the
// traversal follows them exactly.
func (g *Graph[S]) findReachableNodes() map[string]bool {
	reachable := make(map[string]bool)
	if g.entryPoint == "" {
		return reachable
	}

	queue := []string{g.entryPoint}
	reachable[g.entryPoint] = true

	visit := func(target string) {
		if target != END && !reachable[target] {
			reachable[target] = true
			queue = append(queue, target)
		}
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, target := range g.edges[current] {
			visit(target)
		}
		if ce, ok := g.conditionalEdges[current]; ok {
			for _, target := range ce.routes {
				visit(target)
			}
		}
	}

	return reachable
}

// buildCompiledGraph creates the immutable CompiledGraph from the builder state.
func (g *Graph[S]) buildCompiledGraph() *CompiledGraph[S] {
	nodes := make(map[string]NodeFunc[S], len(g.nodes))
	for id, fn := range g.nodes {
		nodes[id] = fn
	}

	edges := make(map[string]string, len(g.edges))
	for from, targets := range g.edges {
		edges[from] = targets[0]
	}

	conditionalEdges := make(map[string]conditionalEdge[S], len(g.conditionalEdges))
	for from, ce := range g.conditionalEdges {
		routes := make(map[string]string, len(ce.routes))
		for label, target := range ce.routes {
			routes[label] = target
		}
		conditionalEdges[from] = conditionalEdge[S]{router: ce.router, routes: routes}
	}

	interrupts := make(map[string]InterruptFunc[S], len(g.interrupts))
	for id, when := range g.interrupts {
		interrupts[id] = when
	}

	predecessors := make(map[string][]string)
	addPred := func(from, to string) {
		if to != END {
			predecessors[to] = append(predecessors[to], from)
		}
	}
	for _, from := range sortedKeys(edges) {
		addPred(from, edges[from])
	}
	for _, from := range sortedKeys(conditionalEdges) {
		seen := make(map[string]bool)
		for _, label := range sortedKeys(conditionalEdges[from].routes) {
			to := conditionalEdges[from].routes[label]
			if !seen[to] {
				seen[to] = true
				addPred(from, to)
			}
		}
	}

	return &CompiledGraph[S]{
		nodes:            nodes,
		edges:            edges,
		conditionalEdges: conditionalEdges,
		interrupts:       interrupts,
		entryPoint:       g.entryPoint,
		boundary:         g.boundary,
		position:         g.position,
		predecessors:     predecessors,
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
