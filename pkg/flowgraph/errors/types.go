package errors

import (
	"fmt"
	"time"
)

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("HTTP %d at %s: %s", e.StatusCode, e.Endpoint, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// ParseError indicates a model or tool produced output that could not be
// interpreted, such as a classifier returning an unknown label.
type ParseError struct {
	Input   string
	Message string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: %s", e.Message)
}

// TimeoutError indicates an external call exceeded its time limit.
type TimeoutError struct {
	Operation string
	Duration  time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s: %s", e.Duration, e.Operation)
}

// ToolError records a failed call to an external tool, classifier or
// language model. It is always retryable at the workflow level: the graph's
// retry loop, not the caller, decides whether to try again.
type ToolError struct {
	// Tool is the name of the tool or plug-in that failed.
	Tool string
	// Input is the input the tool was called with.
	Input string
	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

// Unwrap returns the underlying failure.
func (e *ToolError) Unwrap() error {
	return e.Err
}

// NewToolError wraps err as a failure of tool.
func NewToolError(tool, input string, err error) *ToolError {
	return &ToolError{Tool: tool, Input: input, Err: err}
}
