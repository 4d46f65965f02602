package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	flowerrors "github.com/randalmurphal/agentflow/pkg/flowgraph/errors"
)

// DefaultTimeout bounds a tool call when the registry is given none.
const DefaultTimeout = 5 * time.Second

var (
	// ErrUnknownTool indicates Invoke was asked for an unregistered tool.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrToolReportedFailure is used when a tool returns Success false
	// without an error message.
	ErrToolReportedFailure = errors.New("tool reported failure")
)

// Registry is a thread-safe set of tools indexed by name.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	timeout time.Duration
}

// NewRegistry creates an empty registry whose calls are bounded by timeout.
// A non-positive timeout means DefaultTimeout.
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Registry{
		tools:   make(map[string]Tool),
		timeout: timeout,
	}
}

// Register adds or replaces tools by name.
func (r *Registry) Register(tools ...Tool) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
	return r
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Timeout returns the per-call time limit.
func (r *Registry) Timeout() time.Duration {
	return r.timeout
}

// Invoke calls the named tool with the registry's timeout applied.
// Every failure is returned as *errors.ToolError; a timeout additionally
// matches *errors.TimeoutError. The Result is returned even on failure so
// callers can record it.
func (r *Registry) Invoke(ctx context.Context, name, input string) (Result, error) {
	t, ok := r.Get(name)
	if !ok {
		return Result{}, flowerrors.NewToolError(name, input, fmt.Errorf("%w: %s", ErrUnknownTool, name))
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", p)}
			}
		}()
		res, err := t.Call(callCtx, input)
		done <- outcome{res: res, err: err}
	}()

	select {
	case o := <-done:
		return settle(name, input, o.res, o.err)
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return Result{}, flowerrors.NewToolError(name, input, ctx.Err())
		}
		timeout := &flowerrors.TimeoutError{Operation: "tool " + name, Duration: r.timeout}
		return Result{Success: false, Error: timeout.Error()}, flowerrors.NewToolError(name, input, timeout)
	}
}

// settle normalizes a finished call.
func settle(name, input string, res Result, err error) (Result, error) {
	if err == nil && !res.Success {
		err = ErrToolReportedFailure
		if res.Error != "" {
			err = errors.New(res.Error)
		}
	}
	if err != nil {
		res.Success = false
		if res.Error == "" {
			res.Error = err.Error()
		}
		return res, flowerrors.NewToolError(name, input, err)
	}

	payload, perr := toPayload(res.Payload)
	if perr != nil {
		return Result{Success: false, Error: perr.Error()}, flowerrors.NewToolError(name, input, perr)
	}
	res.Payload = payload
	return res, nil
}
