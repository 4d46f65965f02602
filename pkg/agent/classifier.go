package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/randalmurphal/agentflow/pkg/flowgraph"
	flowerrors "github.com/randalmurphal/agentflow/pkg/flowgraph/errors"
	"github.com/randalmurphal/agentflow/pkg/flowgraph/llm"
)

// Intents.
const (
	IntentGreeting       = "greeting"
	IntentSearchProducts = "search_products"
	IntentWeather        = "weather"
	IntentUserProfile    = "user_profile"
	IntentHelp           = "help"
	IntentGoodbye        = "goodbye"
	IntentQuestion       = "question"
	IntentGeneral        = "general"
)

// Intents lists every intent a classifier may return.
var Intents = []string{
	IntentGreeting, IntentSearchProducts, IntentWeather, IntentUserProfile,
	IntentHelp, IntentGoodbye, IntentQuestion, IntentGeneral,
}

// Classification is a classifier's verdict.
type Classification struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// Classifier maps user text to an intent.
type Classifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, text string) (Classification, error)

// Classify implements Classifier.
func (f ClassifierFunc) Classify(ctx context.Context, text string) (Classification, error) {
	return f(ctx, text)
}

// Rule matches when the lowercased text contains any keyword.
type Rule struct {
	Intent     string
	Keywords   []string
	Confidence float64
}

// DefaultRules is the built-in rule table, in priority order.
var DefaultRules = []Rule{
	{Intent: IntentGreeting, Keywords: []string{"hello", "hi", "hey"}, Confidence: 0.9},
	{Intent: IntentSearchProducts, Keywords: []string{"search", "find", "laptop", "phone", "product"}, Confidence: 0.8},
	{Intent: IntentWeather, Keywords: []string{"weather", "temperature", "forecast"}, Confidence: 0.8},
	{Intent: IntentUserProfile, Keywords: []string{"profile", "account", "my info"}, Confidence: 0.7},
	{Intent: IntentHelp, Keywords: []string{"help", "assist", "support"}, Confidence: 0.8},
	{Intent: IntentGoodbye, Keywords: []string{"bye", "goodbye"}, Confidence: 0.9},
	{Intent: IntentQuestion, Keywords: []string{"?"}, Confidence: 0.6},
}

// Unmatched is the classification when no rule matches.
var Unmatched = Classification{Intent: IntentGeneral, Confidence: 0.5}

// RuleClassifier classifies by substring rules; the first matching rule
// wins. It never fails.
type RuleClassifier struct {
	rules []Rule
}

// NewRuleClassifier creates a classifier over rules, or DefaultRules when
// none are given.
func NewRuleClassifier(rules ...Rule) *RuleClassifier {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &RuleClassifier{rules: rules}
}

// Classify implements Classifier.
func (c *RuleClassifier) Classify(_ context.Context, text string) (Classification, error) {
	return c.Match(text), nil
}

// Match returns the first matching rule's classification.
func (c *RuleClassifier) Match(text string) Classification {
	lower := strings.ToLower(text)
	for _, r := range c.rules {
		for _, kw := range r.Keywords {
			if strings.Contains(lower, kw) {
				return Classification{Intent: r.Intent, Confidence: r.Confidence}
			}
		}
	}
	return Unmatched
}

const classifierTool = "intent_classifier"

const classifyPrompt = `Classify the user's intent. Categories:
- greeting: hello, hi, good morning
- search_products: looking for products to buy
- weather: asking about weather conditions
- user_profile: asking about their account or profile
- help: asking what the assistant can do
- goodbye: farewell messages
- question: general knowledge questions
- general: everything else

Respond with the category name and a confidence between 0 and 1, for example: weather 0.9`

// LLMClassifier asks a language model for the intent. An unknown label or
// output it cannot parse is a failure.
type LLMClassifier struct {
	client llm.Client
}

// NewLLMClassifier creates a classifier backed by client.
func NewLLMClassifier(client llm.Client) *LLMClassifier {
	return &LLMClassifier{client: client}
}

// Classify implements Classifier.
func (c *LLMClassifier) Classify(ctx context.Context, text string) (Classification, error) {
	resp, err := c.client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: classifyPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: text}},
		MaxTokens:    10,
		Temperature:  0.1,
	})
	if err != nil {
		return Classification{}, flowerrors.NewToolError(classifierTool, text, err)
	}
	cls, err := parseClassification(resp.Content)
	if err != nil {
		return Classification{}, flowerrors.NewToolError(classifierTool, text, err)
	}
	return cls, nil
}

// parseClassification reads "label confidence".
func parseClassification(out string) (Classification, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(out)))
	if len(fields) != 2 {
		return Classification{}, &flowerrors.ParseError{Input: out, Message: "expected \"<intent> <confidence>\""}
	}
	label := strings.Trim(fields[0], ".,:")
	if !knownIntent(label) {
		return Classification{}, &flowerrors.ParseError{Input: out, Message: fmt.Sprintf("unknown intent %q", label)}
	}
	conf, err := strconv.ParseFloat(strings.Trim(fields[1], "."), 64)
	if err != nil || conf < 0 || conf > 1 {
		return Classification{}, &flowerrors.ParseError{Input: out, Message: fmt.Sprintf("invalid confidence %q", fields[1])}
	}
	return Classification{Intent: label, Confidence: conf}, nil
}

func knownIntent(label string) bool {
	for _, i := range Intents {
		if i == label {
			return true
		}
	}
	return false
}

// FallbackClassifier tries a primary classifier under a timeout and falls
// back to the rule table when the primary is absent, fails or times out.
// The fallback path is the same in every case.
type FallbackClassifier struct {
	primary Classifier
	rules   *RuleClassifier
	timeout time.Duration
}

// NewFallbackClassifier wraps primary, which may be nil. A non-positive
// timeout leaves the primary unbounded.
func NewFallbackClassifier(primary Classifier, rules *RuleClassifier, timeout time.Duration) *FallbackClassifier {
	if rules == nil {
		rules = NewRuleClassifier()
	}
	return &FallbackClassifier{primary: primary, rules: rules, timeout: timeout}
}

// Classify implements Classifier. It never fails.
func (c *FallbackClassifier) Classify(ctx context.Context, text string) (Classification, error) {
	if c.primary == nil {
		return c.rules.Match(text), nil
	}

	logger := contextLogger(ctx)
	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	cls, err := c.classifyPrimary(callCtx, text)
	if err != nil {
		logger.Warn("classifier failed, using rules", "error", err)
		return c.rules.Match(text), nil
	}
	return cls, nil
}

// classifyPrimary converts a panic in the primary into an error.
func (c *FallbackClassifier) classifyPrimary(ctx context.Context, text string) (cls Classification, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("classifier panic: %v", r)
		}
	}()
	return c.primary.Classify(ctx, text)
}

// contextLogger returns the node logger when ctx is a flowgraph.Context.
func contextLogger(ctx context.Context) *slog.Logger {
	if fc, ok := ctx.(flowgraph.Context); ok {
		return fc.Logger()
	}
	return slog.Default()
}
