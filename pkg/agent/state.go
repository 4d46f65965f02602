package agent

import (
	"time"
)

// Status is the caller-visible state of a session's latest run.
type Status string

// Run statuses.
const (
	StatusRunning          Status = "RUNNING"
	StatusAwaitingApproval Status = "AWAITING_APPROVAL"
	StatusCompleted        Status = "COMPLETED"
	StatusTerminated       Status = "TERMINATED_WITH_ERROR"
)

// Sentiments detected by input processing.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// ToolCall records one tool invocation, successful or not.
type ToolCall struct {
	ToolName  string         `json:"tool_name"`
	Input     string         `json:"input"`
	Success   bool           `json:"success"`
	Output    map[string]any `json:"output,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Turn is one exchange in a session's conversation history.
type Turn struct {
	UserInput     string    `json:"user_input"`
	AgentResponse string    `json:"agent_response"`
	Intent        string    `json:"intent"`
	Timestamp     time.Time `json:"timestamp"`
}

// StateRecord is the state threaded through every node of the agent graph.
// All fields exist from construction; NewStateRecord initializes the
// sequences so a fresh record and its checkpointed copy compare equal.
type StateRecord struct {
	SessionID      string  `json:"session_id"`
	UserInput      string  `json:"user_input"`
	ProcessedInput string  `json:"processed_input"`
	Sentiment      string  `json:"sentiment"`
	CurrentNode    string  `json:"current_node"`
	Intent         string  `json:"intent"`
	Confidence     float64 `json:"confidence"`
	Action         string  `json:"action"`

	// ToolResults and Errors are append-only until the session is reset.
	ToolResults []ToolCall `json:"tool_results"`
	Errors      []string   `json:"errors"`

	FinalResponse string `json:"final_response"`

	// LastError marks a failure the retry loop has not handled yet.
	LastError  string `json:"last_error"`
	RetryCount int    `json:"retry_count"`
	Escalated  bool   `json:"escalated"`

	RequiresApproval bool `json:"requires_approval"`
	ApprovalGranted  bool `json:"approval_granted"`
	// ApprovalDecision is an out-of-band decision waiting to be consumed
	// by the approval node.
	ApprovalDecision *bool `json:"approval_decision"`
	// ApprovedAction is the action a grant covers for the rest of the turn,
	// so retries of it do not ask again.
	ApprovedAction string `json:"approved_action,omitempty"`

	Status              Status `json:"status"`
	ConversationHistory []Turn `json:"conversation_history"`
}

// NewStateRecord creates an empty record for a session.
func NewStateRecord(sessionID string) StateRecord {
	return StateRecord{
		SessionID:           sessionID,
		ToolResults:         []ToolCall{},
		Errors:              []string{},
		ConversationHistory: []Turn{},
	}
}

// beginTurn prepares the record for a new top-level run on input. Per-turn
// fields and the retry counter reset; tool results, errors and history are
// kept.
func (s *StateRecord) beginTurn(input string) {
	s.UserInput = input
	s.ProcessedInput = ""
	s.Sentiment = ""
	s.Intent = ""
	s.Confidence = 0
	s.Action = ""
	s.FinalResponse = ""
	s.LastError = ""
	s.RetryCount = 0
	s.Escalated = false
	s.RequiresApproval = false
	s.ApprovalGranted = false
	s.ApprovalDecision = nil
	s.ApprovedAction = ""
	s.Status = StatusRunning
}

// Result is what a caller sees after Process.
type Result struct {
	SessionID        string   `json:"session_id"`
	FinalResponse    string   `json:"final_response"`
	CurrentNode      string   `json:"current_node"`
	Errors           []string `json:"errors"`
	Status           Status   `json:"status"`
	Intent           string   `json:"intent,omitempty"`
	Confidence       float64  `json:"confidence"`
	Action           string   `json:"action,omitempty"`
	RequiresApproval bool     `json:"requires_approval"`
}

func resultOf(s StateRecord) Result {
	errs := make([]string, len(s.Errors))
	copy(errs, s.Errors)
	return Result{
		SessionID:        s.SessionID,
		FinalResponse:    s.FinalResponse,
		CurrentNode:      s.CurrentNode,
		Errors:           errs,
		Status:           s.Status,
		Intent:           s.Intent,
		Confidence:       s.Confidence,
		Action:           s.Action,
		RequiresApproval: s.RequiresApproval,
	}
}

// approvedAlready reports whether the current action was granted earlier
// in this turn.
func (s StateRecord) approvedAlready() bool {
	return s.ApprovedAction != "" && s.ApprovedAction == s.Action
}
