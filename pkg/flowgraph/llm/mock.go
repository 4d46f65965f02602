package llm

import (
	"context"
	"strings"
	"sync"
)

// MockClient is a scripted Client for tests and offline runs.
//
// By default it returns a fixed response. WithResponses cycles through a
// list, WithError fails every call and WithCompleteFunc takes over entirely.
type MockClient struct {
	mu        sync.Mutex
	response  string
	responses []string
	next      int
	err       error
	fn        func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Calls records every request in order.
	Calls []CompletionRequest
}

// NewMockClient creates a mock that always answers response.
func NewMockClient(response string) *MockClient {
	return &MockClient{response: response}
}

// WithResponses makes the mock cycle through responses.
func (m *MockClient) WithResponses(responses ...string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = responses
	m.next = 0
	return m
}

// WithError makes every call fail with err.
func (m *MockClient) WithError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithCompleteFunc delegates every call to fn.
func (m *MockClient) WithCompleteFunc(fn func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
	return m
}

// Complete implements Client.
func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	fn, err := m.fn, m.err
	content := m.response
	if len(m.responses) > 0 {
		content = m.responses[m.next%len(m.responses)]
		m.next++
	}
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	in := approxTokens(req.SystemPrompt)
	for _, msg := range req.Messages {
		in += approxTokens(msg.Content)
	}
	if in == 0 {
		in = 1
	}
	out := approxTokens(content)
	if out == 0 {
		out = 1
	}

	return &CompletionResponse{
		Content:      content,
		Model:        "mock",
		FinishReason: "stop",
		Attempts:     1,
		Usage:        TokenUsage{InputTokens: in, OutputTokens: out, TotalTokens: in + out},
	}, nil
}

// CallCount returns the number of calls made.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastCall returns the most recent request, or nil.
func (m *MockClient) LastCall() *CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return nil
	}
	last := m.Calls[len(m.Calls)-1]
	return &last
}

// Reset clears recorded calls and rewinds scripted responses.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.next = 0
}

// approxTokens estimates tokens as whitespace-separated words.
func approxTokens(s string) int {
	return len(strings.Fields(s))
}
