package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	flowerrors "github.com/randalmurphal/agentflow/pkg/flowgraph/errors"
	"github.com/randalmurphal/agentflow/pkg/flowgraph/llm"
)

func TestRuleClassifier(t *testing.T) {
	tests := []struct {
		input string
		want  Classification
	}{
		{"hello", Classification{IntentGreeting, 0.9}},
		{"Hey there", Classification{IntentGreeting, 0.9}},
		{"find laptops", Classification{IntentSearchProducts, 0.8}},
		{"any phone deals", Classification{IntentSearchProducts, 0.8}},
		{"weather in Paris", Classification{IntentWeather, 0.8}},
		{"what's the forecast", Classification{IntentWeather, 0.8}},
		{"show my profile", Classification{IntentUserProfile, 0.7}},
		{"can you assist me", Classification{IntentHelp, 0.8}},
		{"goodbye", Classification{IntentGoodbye, 0.9}},
		{"why is the sky blue?", Classification{IntentQuestion, 0.6}},
		{"ok", Unmatched},
		{"", Unmatched},
	}
	c := NewRuleClassifier()
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := c.Classify(context.Background(), tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Priority order decides between rules that both match.
func TestRuleClassifier_FirstMatchWins(t *testing.T) {
	c := NewRuleClassifier()

	assert.Equal(t, IntentGreeting, c.Match("hi, find me a laptop").Intent)
	assert.Equal(t, IntentSearchProducts, c.Match("find the weather").Intent)
	assert.Equal(t, IntentHelp, c.Match("help with the support page?").Intent)
}

func TestRuleClassifier_CustomRules(t *testing.T) {
	c := NewRuleClassifier(Rule{Intent: "billing", Keywords: []string{"invoice"}, Confidence: 0.95})

	assert.Equal(t, Classification{"billing", 0.95}, c.Match("Where is my INVOICE"))
	assert.Equal(t, Unmatched, c.Match("hello"))
}

func TestParseClassification(t *testing.T) {
	tests := []struct {
		out     string
		want    Classification
		wantErr string
	}{
		{out: "weather 0.92", want: Classification{IntentWeather, 0.92}},
		{out: "  Greeting 1\n", want: Classification{IntentGreeting, 1}},
		{out: "question: 0.4.", want: Classification{IntentQuestion, 0.4}},
		{out: "weather", wantErr: "expected"},
		{out: "time 0.9", wantErr: `unknown intent "time"`},
		{out: "weather high", wantErr: "invalid confidence"},
		{out: "weather 1.5", wantErr: "invalid confidence"},
		{out: "", wantErr: "expected"},
	}
	for _, tt := range tests {
		t.Run(tt.out, func(t *testing.T) {
			got, err := parseClassification(tt.out)
			if tt.wantErr != "" {
				var pe *flowerrors.ParseError
				require.ErrorAs(t, err, &pe)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLLMClassifier(t *testing.T) {
	t.Run("parses model output", func(t *testing.T) {
		client := llm.NewMockClient("search_products 0.85")
		got, err := NewLLMClassifier(client).Classify(context.Background(), "I need a new laptop")

		require.NoError(t, err)
		assert.Equal(t, Classification{IntentSearchProducts, 0.85}, got)
		call := client.LastCall()
		require.NotNil(t, call)
		assert.Equal(t, classifyPrompt, call.SystemPrompt)
		assert.Equal(t, "I need a new laptop", call.Messages[0].Content)
	})

	t.Run("client failure is a tool error", func(t *testing.T) {
		client := llm.NewMockClient("").WithError(errors.New("503"))
		_, err := NewLLMClassifier(client).Classify(context.Background(), "hi")

		var toolErr *flowerrors.ToolError
		require.ErrorAs(t, err, &toolErr)
		assert.Equal(t, classifierTool, toolErr.Tool)
	})

	t.Run("unknown label is a failure", func(t *testing.T) {
		_, err := NewLLMClassifier(llm.NewMockClient("location 0.9")).Classify(context.Background(), "where am I")

		var pe *flowerrors.ParseError
		assert.ErrorAs(t, err, &pe)
	})
}

func TestFallbackClassifier(t *testing.T) {
	errDown := errors.New("classifier down")

	tests := []struct {
		name    string
		primary Classifier
		timeout time.Duration
	}{
		{"absent", nil, 0},
		{"fails", ClassifierFunc(func(context.Context, string) (Classification, error) {
			return Classification{}, errDown
		}), 0},
		{"times out", ClassifierFunc(func(ctx context.Context, _ string) (Classification, error) {
			<-ctx.Done()
			return Classification{}, ctx.Err()
		}), 10 * time.Millisecond},
		{"unparsable", NewLLMClassifier(llm.NewMockClient("no idea")), 0},
		{"panics", ClassifierFunc(func(context.Context, string) (Classification, error) {
			panic("model crashed")
		}), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewFallbackClassifier(tt.primary, nil, tt.timeout)

			got, err := c.Classify(context.Background(), "weather in Paris")

			require.NoError(t, err)
			assert.Equal(t, Classification{IntentWeather, 0.8}, got)
		})
	}
}

func TestFallbackClassifier_UsesPrimary(t *testing.T) {
	c := NewFallbackClassifier(NewLLMClassifier(llm.NewMockClient("help 0.65")), nil, time.Second)

	got, err := c.Classify(context.Background(), "weather in Paris")

	require.NoError(t, err)
	assert.Equal(t, Classification{IntentHelp, 0.65}, got)
}
