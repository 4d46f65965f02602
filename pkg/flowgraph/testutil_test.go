package flowgraph

import (
	"context"
	"errors"
)

// Test state types used across tests

// Counter is a simple state for testing incrementing.
type Counter struct {
	Value int
}

// State is a more complex state for testing routing, retries and suspension.
type State struct {
	Progress  []string
	Position  string
	GoLeft    bool
	Attempts  int
	Failures  []string
	LastError string
	Approved  *bool
	Output    string
}

var errBoom = errors.New("boom")

// Helper node functions

// increment is a node that increments the counter.
func increment(ctx Context, s Counter) (Counter, error) {
	s.Value++
	return s, nil
}

// passthrough returns the state unchanged.
func passthrough[S any](ctx Context, s S) (S, error) {
	return s, nil
}

// track creates a node that records its execution.
func track(name string) NodeFunc[State] {
	return func(ctx Context, s State) (State, error) {
		s.Progress = append(s.Progress, name)
		return s, nil
	}
}

// fail creates a node that records itself and then returns err.
func fail(name string, err error) NodeFunc[State] {
	return func(ctx Context, s State) (State, error) {
		s.Progress = append(s.Progress, name)
		return s, err
	}
}

// panics creates a node that panics with the given value.
func panics(value any) NodeFunc[State] {
	return func(ctx Context, s State) (State, error) {
		panic(value)
	}
}

// constRouter always returns label.
func constRouter[S any](label string) RouterFunc[S] {
	return func(ctx Context, s S) string {
		return label
	}
}

// recordFailure is an error boundary that keeps the failure in state.
func recordFailure(ctx Context, s State, nodeID string, err error) State {
	s.Failures = append(s.Failures, nodeID+": "+err.Error())
	s.LastError = err.Error()
	return s
}

// recordPosition stamps the executor position into state.
func recordPosition(s State, nodeID string) State {
	s.Position = nodeID
	return s
}

// testCtx creates a simple test context.
func testCtx() Context {
	return NewContext(context.Background())
}
