package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/randalmurphal/agentflow/pkg/agent/tools"
	"github.com/randalmurphal/agentflow/pkg/flowgraph"
)

// Actions.
const (
	ActionGreetUser      = "greet_user"
	ActionSearchProducts = "search_products"
	ActionGetWeather     = "get_weather"
	ActionGetUserProfile = "get_user_profile"
	ActionProvideHelp    = "provide_help"
	ActionSayGoodbye     = "say_goodbye"
	ActionAnswerQuestion = "answer_question"
	ActionGeneralChat    = "general_chat"
)

var actions = map[string]string{
	IntentGreeting:       ActionGreetUser,
	IntentSearchProducts: ActionSearchProducts,
	IntentWeather:        ActionGetWeather,
	IntentUserProfile:    ActionGetUserProfile,
	IntentHelp:           ActionProvideHelp,
	IntentGoodbye:        ActionSayGoodbye,
	IntentQuestion:       ActionAnswerQuestion,
	IntentGeneral:        ActionGeneralChat,
}

// ActionFor maps an intent to its action; unknown intents chat.
func ActionFor(intent string) string {
	if a, ok := actions[intent]; ok {
		return a
	}
	return ActionGeneralChat
}

// Canned responses.
const (
	EscalationMessage = "I'm having persistent issues. Please try a different request or contact support."
	ApologyMessage    = "I encountered an issue generating a response. Please try again."
	GoodbyeMessage    = "Goodbye! Have a great day!"
	GeneralMessage    = "I understand you're trying to communicate with me. How can I help you today?"
	NoProductsMessage = "Sorry, I couldn't find any products matching your search."
	HelpMessage       = "I can help you with:\n" +
		"• Product search (try: 'find laptops')\n" +
		"• Weather info (try: 'weather in London')\n" +
		"• Your profile (try: 'show my profile')\n" +
		"• General questions"
)

var greetings = []string{"Hello!", "Hi there!", "Good to see you!", "Welcome!"}

var (
	positiveWords = []string{"great", "awesome", "love"}
	negativeWords = []string{"bad", "terrible", "hate"}
)

// Policy holds the tunables the nodes and routers consult.
type Policy struct {
	MaxRetries        int
	ApprovalThreshold float64
	MinConfidence     float64
	SensitiveActions  []string
	// Interactive suspends before human approval; otherwise the approval
	// node approves on its own.
	Interactive bool
}

// DefaultPolicy matches the default configuration.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:        3,
		ApprovalThreshold: 0.8,
		MinConfidence:     0.5,
		SensitiveActions:  []string{ActionGetUserProfile, ActionSearchProducts},
		Interactive:       true,
	}
}

func (p Policy) sensitive(action string) bool {
	for _, a := range p.SensitiveActions {
		if a == action {
			return true
		}
	}
	return false
}

// nodes holds the collaborators of the node functions.
type nodes struct {
	policy     Policy
	classifier Classifier
	tools      *tools.Registry
	now        func() time.Time
}

func (n *nodes) inputProcessing(_ flowgraph.Context, s StateRecord) (StateRecord, error) {
	s.ProcessedInput = strings.TrimSpace(s.UserInput)
	s.Sentiment = detectSentiment(s.ProcessedInput)
	return s, nil
}

func detectSentiment(text string) string {
	lower := strings.ToLower(text)
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			return SentimentPositive
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			return SentimentNegative
		}
	}
	return SentimentNeutral
}

func (n *nodes) intentClassification(ctx flowgraph.Context, s StateRecord) (StateRecord, error) {
	cls, err := n.classifier.Classify(ctx, s.ProcessedInput)
	if err != nil {
		return s, err
	}
	s.Intent = cls.Intent
	s.Confidence = cls.Confidence
	ctx.Logger().Debug("intent classified", "intent", cls.Intent, "confidence", cls.Confidence)
	return s, nil
}

func (n *nodes) decisionMaking(_ flowgraph.Context, s StateRecord) (StateRecord, error) {
	s.Action = ActionFor(s.Intent)
	s.RequiresApproval = n.policy.sensitive(s.Action) && s.Confidence < n.policy.ApprovalThreshold
	return s, nil
}

func (n *nodes) humanApproval(ctx flowgraph.Context, s StateRecord) (StateRecord, error) {
	switch {
	case s.ApprovalDecision != nil:
		s.ApprovalGranted = *s.ApprovalDecision
		s.ApprovalDecision = nil
		if s.ApprovalGranted {
			s.ApprovedAction = s.Action
		}
	case s.approvedAlready():
		s.ApprovalGranted = true
	default:
		s.ApprovalGranted = !n.policy.Interactive
	}
	ctx.Logger().Info("approval decided", "action", s.Action, "granted", s.ApprovalGranted)
	return s, nil
}

// toolCall picks the tool and its input for an action.
func toolCall(action, input string) (name, arg string) {
	switch action {
	case ActionSearchProducts:
		return tools.SearchProducts, input
	case ActionGetWeather:
		return tools.GetWeather, tools.ExtractCity(input)
	case ActionGetUserProfile:
		return tools.GetUserProfile, "default"
	case ActionAnswerQuestion:
		return tools.AnswerQuestion, input
	default:
		return tools.None, action
	}
}

// toolExecution records the call before returning, so a failure is
// visible in ToolResults as well as in Errors. The no-op tool is not
// recorded.
func (n *nodes) toolExecution(ctx flowgraph.Context, s StateRecord) (StateRecord, error) {
	name, arg := toolCall(s.Action, s.ProcessedInput)
	res, err := n.tools.Invoke(ctx, name, arg)
	if name == tools.None {
		return s, err
	}

	call := ToolCall{
		ToolName:  name,
		Input:     arg,
		Success:   err == nil,
		Output:    res.Payload,
		Timestamp: n.now(),
	}
	if err != nil {
		call.Error = err.Error()
	}
	s.ToolResults = append(s.ToolResults, call)
	return s, err
}

func (n *nodes) responseGeneration(ctx flowgraph.Context, s StateRecord) (StateRecord, error) {
	response, err := n.compose(s)
	if err != nil {
		ctx.Logger().Warn("response generation failed", "error", err)
		s.Errors = append(s.Errors, fmt.Sprintf("%s: %v", NodeResponseGeneration, err))
		response = ApologyMessage
	}

	s.FinalResponse = response
	s.Status = StatusCompleted
	if s.Escalated {
		s.Status = StatusTerminated
	}
	s.ConversationHistory = append(s.ConversationHistory, Turn{
		UserInput:     s.UserInput,
		AgentResponse: response,
		Intent:        s.Intent,
		Timestamp:     n.now(),
	})
	return s, nil
}

// compose builds the response text for the turn.
func (n *nodes) compose(s StateRecord) (string, error) {
	switch {
	case s.Escalated:
		return EscalationMessage, nil
	case s.RequiresApproval && !s.ApprovalGranted:
		return fmt.Sprintf("Okay, I won't %s without your approval. Is there anything else I can help with?",
			strings.ReplaceAll(s.Action, "_", " ")), nil
	}

	switch s.Action {
	case ActionGreetUser:
		return greetings[len(s.ConversationHistory)%len(greetings)], nil
	case ActionProvideHelp:
		return HelpMessage, nil
	case ActionSayGoodbye:
		return GoodbyeMessage, nil
	case ActionSearchProducts:
		var out tools.ProductResults
		if err := n.decodeLatest(s, tools.SearchProducts, &out); err != nil {
			return "", err
		}
		return formatProducts(out), nil
	case ActionGetWeather:
		var w tools.Weather
		if err := n.decodeLatest(s, tools.GetWeather, &w); err != nil {
			return "", err
		}
		return fmt.Sprintf("The weather in %s is %s with a temperature of %d°C", w.City, w.Condition, w.Temperature), nil
	case ActionGetUserProfile:
		var p tools.Profile
		if err := n.decodeLatest(s, tools.GetUserProfile, &p); err != nil {
			return "", err
		}
		return fmt.Sprintf("Profile for %s:\n• Loyalty Points: %d\n• Recent Purchases: %s",
			p.Name, p.LoyaltyPoints, strings.Join(p.PurchaseHistory, ", ")), nil
	case ActionAnswerQuestion:
		var a tools.Answer
		if err := n.decodeLatest(s, tools.AnswerQuestion, &a); err != nil {
			return "", err
		}
		return a.Answer, nil
	default:
		return GeneralMessage, nil
	}
}

// decodeLatest decodes the newest successful result of tool.
func (n *nodes) decodeLatest(s StateRecord, tool string, out any) error {
	if len(s.ToolResults) == 0 {
		return fmt.Errorf("no tool results for %s", tool)
	}
	last := s.ToolResults[len(s.ToolResults)-1]
	if last.ToolName != tool || !last.Success {
		return fmt.Errorf("latest tool result is %s (success=%t), want %s", last.ToolName, last.Success, tool)
	}
	return tools.DecodePayload(last.Output, out)
}

func formatProducts(r tools.ProductResults) string {
	if len(r.Products) == 0 {
		return NoProductsMessage
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d products:", len(r.Products))
	for i, p := range r.Products {
		if i == 3 {
			break
		}
		fmt.Fprintf(&b, "\n• %s - $%d (rating %.1f) - %d in stock", p.Name, p.Price, p.Rating, p.Stock)
	}
	return b.String()
}

// errorHandling spends one retry if any remain. Spending the last one
// escalates the run.
func (n *nodes) errorHandling(ctx flowgraph.Context, s StateRecord) (StateRecord, error) {
	if s.RetryCount < n.policy.MaxRetries {
		s.RetryCount++
		s.LastError = ""
	}
	if s.RetryCount >= n.policy.MaxRetries {
		s.Escalated = true
		s.FinalResponse = EscalationMessage
		ctx.Logger().Warn("retries exhausted", "retry_count", s.RetryCount)
	}
	return s, nil
}

// recordFailure is the error boundary: the failure joins the error history
// and marks the state for the retry loop.
func recordFailure(ctx flowgraph.Context, s StateRecord, nodeID string, err error) StateRecord {
	s.Errors = append(s.Errors, fmt.Sprintf("%s: %v", nodeID, err))
	s.LastError = err.Error()
	return s
}

func setCurrentNode(s StateRecord, nodeID string) StateRecord {
	s.CurrentNode = nodeID
	return s
}
