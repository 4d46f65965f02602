// Package tools defines the tool plug-in contract used by the agent's
// tool-execution node, a registry that invokes tools under a timeout, and
// the built-in tools.
//
// Every tool is treated the same way: it receives one input string and
// returns a Result. A returned error, a timeout, or a Result with Success
// false all surface from Registry.Invoke as *errors.ToolError.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Built-in tool names.
const (
	SearchProducts = "search_products"
	GetWeather     = "get_weather"
	GetUserProfile = "get_user_profile"
	AnswerQuestion = "answer_question"
	None           = "none"
)

// Result is the outcome of one tool call.
// Payload holds JSON-compatible values only.
type Result struct {
	Success bool           `json:"success"`
	Payload map[string]any `json:"payload,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Tool is an external operation the agent can call.
type Tool interface {
	Name() string
	Call(ctx context.Context, input string) (Result, error)
}

// Func adapts a function to the Tool interface.
type Func struct {
	name string
	fn   func(ctx context.Context, input string) (Result, error)
}

// NewFunc creates a Tool named name backed by fn.
func NewFunc(name string, fn func(ctx context.Context, input string) (Result, error)) *Func {
	return &Func{name: name, fn: fn}
}

// Name implements Tool.
func (f *Func) Name() string { return f.name }

// Call implements Tool.
func (f *Func) Call(ctx context.Context, input string) (Result, error) {
	return f.fn(ctx, input)
}

// Ok builds a successful Result from any JSON-encodable value.
func Ok(v any) (Result, error) {
	payload, err := toPayload(v)
	if err != nil {
		return Result{}, err
	}
	return Result{Success: true, Payload: payload}, nil
}

// toPayload converts v into its JSON object form so the payload looks the
// same before and after a checkpoint round trip.
func toPayload(v any) (map[string]any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool payload: %w", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("tool payload is not an object: %w", err)
	}
	return payload, nil
}

// DecodePayload decodes a payload into out using the json field names.
func DecodePayload(payload map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("create payload decoder: %w", err)
	}
	if err := dec.Decode(payload); err != nil {
		return fmt.Errorf("decode tool payload: %w", err)
	}
	return nil
}
