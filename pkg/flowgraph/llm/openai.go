package llm

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	flowerrors "github.com/randalmurphal/agentflow/pkg/flowgraph/errors"
)

// DefaultModel is used when neither the client nor the request names one.
const DefaultModel = "gpt-4o-mini"

// OpenAIClient implements Client against the OpenAI chat completions API
// or any compatible endpoint.
type OpenAIClient struct {
	client      openai.Client
	model       string
	maxTokens   int
	temperature float64
	retry       flowerrors.RetryPolicy
}

// OpenAIOption configures OpenAIClient.
type OpenAIOption func(*openAIConfig)

type openAIConfig struct {
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
	retry       flowerrors.RetryPolicy
}

// WithAPIKey sets the API key. Without it the SDK reads OPENAI_API_KEY.
func WithAPIKey(key string) OpenAIOption {
	return func(c *openAIConfig) { c.apiKey = key }
}

// WithBaseURL points the client at a compatible endpoint.
func WithBaseURL(url string) OpenAIOption {
	return func(c *openAIConfig) { c.baseURL = url }
}

// WithModel sets the default model.
func WithModel(model string) OpenAIOption {
	return func(c *openAIConfig) { c.model = model }
}

// WithMaxTokens sets the default completion token limit.
func WithMaxTokens(n int) OpenAIOption {
	return func(c *openAIConfig) { c.maxTokens = n }
}

// WithTemperature sets the default sampling temperature.
func WithTemperature(t float64) OpenAIOption {
	return func(c *openAIConfig) { c.temperature = t }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) OpenAIOption {
	return func(c *openAIConfig) { c.httpClient = hc }
}

// WithRetry sets the retry policy for transient API failures.
// Default: flowerrors.DefaultRetry.
func WithRetry(p flowerrors.RetryPolicy) OpenAIOption {
	return func(c *openAIConfig) { c.retry = p }
}

// NewOpenAIClient creates a client. Retries are handled by the client's
// retry policy, so the SDK's own retries are disabled.
func NewOpenAIClient(opts ...OpenAIOption) *OpenAIClient {
	cfg := openAIConfig{
		model: DefaultModel,
		retry: flowerrors.DefaultRetry,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	reqOpts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(cfg.apiKey))
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	}

	return &OpenAIClient{
		client:      openai.NewClient(reqOpts...),
		model:       cfg.model,
		maxTokens:   cfg.maxTokens,
		temperature: cfg.temperature,
		retry:       cfg.retry,
	}
}

// Complete implements Client.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()
	params := c.buildParams(req)

	completion, attempts, err := flowerrors.Retry(ctx, c.retry, func(ctx context.Context) (*openai.ChatCompletion, error) {
		resp, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return nil, translateError(err)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}

	if len(completion.Choices) == 0 {
		return nil, &flowerrors.ParseError{Message: "completion has no choices"}
	}
	choice := completion.Choices[0]

	return &CompletionResponse{
		Content:      choice.Message.Content,
		Model:        completion.Model,
		FinishReason: choice.FinishReason,
		Duration:     time.Since(start),
		Attempts:     attempts,
		Usage: TokenUsage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:  int(completion.Usage.TotalTokens),
		},
	}, nil
}

// buildParams converts a request into SDK parameters, applying client defaults.
func (c *OpenAIClient) buildParams(req CompletionRequest) openai.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = c.model
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: messages,
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(maxTokens))
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}
	if temperature > 0 {
		params.Temperature = openai.Float(temperature)
	}

	return params
}

// translateError maps SDK API errors onto HTTPError so they categorize
// by status code.
func translateError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		endpoint := ""
		if apiErr.Request != nil && apiErr.Request.URL != nil {
			endpoint = apiErr.Request.URL.Path
		}
		return &flowerrors.HTTPError{
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			Endpoint:   endpoint,
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &flowerrors.TimeoutError{Operation: "chat completion"}
	}
	return err
}
