package tools

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/randalmurphal/agentflow/pkg/flowgraph/llm"
)

// NoModelAnswer is the answer given when no LLM client is configured.
const NoModelAnswer = "I'd like to help answer your question, but I need access to AI capabilities."

// ErrEmptyAnswer reports a completion with no text.
var ErrEmptyAnswer = errors.New("model returned an empty answer")

const answerSystemPrompt = "You are a helpful AI assistant. Give brief, accurate answers."

// Answer is the payload of answer_question.
type Answer struct {
	Answer   string `json:"answer"`
	Fallback bool   `json:"fallback,omitempty"`
}

// NewAnswerer returns the answer_question tool. With a nil client it
// answers with fallback text. A failed or empty completion is a tool
// failure, so the caller's retry policy applies.
func NewAnswerer(client llm.Client) Tool {
	return NewFunc(AnswerQuestion, func(ctx context.Context, question string) (Result, error) {
		if client == nil {
			return Ok(Answer{Answer: NoModelAnswer, Fallback: true})
		}
		resp, err := client.Complete(ctx, llm.UserPrompt(answerSystemPrompt, question))
		if err != nil {
			return Result{}, err
		}
		text := strings.TrimSpace(resp.Content)
		if text == "" {
			return Result{}, ErrEmptyAnswer
		}
		return Ok(Answer{Answer: text})
	})
}

// NewDefaultRegistry registers every built-in tool. client may be nil.
func NewDefaultRegistry(timeout time.Duration, client llm.Client) *Registry {
	return NewRegistry(timeout).Register(
		NewProductSearch(),
		NewWeather(),
		NewUserProfile(),
		NewAnswerer(client),
		NewNone(),
	)
}
