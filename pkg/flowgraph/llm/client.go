// Package llm defines the language-model client used by classifiers and
// answer tools, with an OpenAI-compatible implementation and a scripted mock.
package llm

import "context"

// Client sends completion requests to a language model.
//
// Implementations must honour ctx cancellation and deadlines; callers
// impose their own timeouts and treat a timeout like any other failure.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
