package agent

import (
	"github.com/randalmurphal/agentflow/pkg/flowgraph"
)

// Node IDs.
const (
	NodeInputProcessing      = "input_processing"
	NodeIntentClassification = "intent_classification"
	NodeDecisionMaking       = "decision_making"
	NodeToolExecution        = "tool_execution"
	NodeResponseGeneration   = "response_generation"
	NodeHumanApproval        = "human_approval"
	NodeErrorHandling        = "error_handling"
)

// Router labels.
const (
	labelLowConfidence = "low_confidence"
	labelNeedsApproval = "needs_approval"
	labelProceed       = "proceed"
	labelApproved      = "approved"
	labelRejected      = "rejected"
	labelRetry         = "retry"
	labelRespond       = "respond"
)

// Routers evaluate their conditions in order; the first true one wins.

func routeAfterDecision(p Policy) flowgraph.RouterFunc[StateRecord] {
	return func(_ flowgraph.Context, s StateRecord) string {
		switch {
		case s.Confidence < p.MinConfidence:
			return labelLowConfidence
		case s.RequiresApproval:
			return labelNeedsApproval
		default:
			return labelProceed
		}
	}
}

func routeAfterApproval(_ flowgraph.Context, s StateRecord) string {
	if s.ApprovalGranted {
		return labelApproved
	}
	return labelRejected
}

func routeAfterTool(p Policy) flowgraph.RouterFunc[StateRecord] {
	return func(_ flowgraph.Context, s StateRecord) string {
		if s.LastError != "" && s.RetryCount < p.MaxRetries {
			return labelRetry
		}
		return labelRespond
	}
}

func routeAfterErrorHandling(p Policy) flowgraph.RouterFunc[StateRecord] {
	return func(_ flowgraph.Context, s StateRecord) string {
		if s.RetryCount < p.MaxRetries && s.LastError == "" {
			return labelRetry
		}
		return labelRespond
	}
}

// awaitingDecision fires the approval interrupt until a decision is
// recorded, unless this turn already granted the same action.
func awaitingDecision(s StateRecord) bool {
	return s.ApprovalDecision == nil && !s.approvedAlready()
}

// buildGraph wires the agent's nodes and routers.
func buildGraph(n *nodes) (*flowgraph.CompiledGraph[StateRecord], error) {
	p := n.policy

	g := flowgraph.NewGraph[StateRecord]().
		AddNode(NodeInputProcessing, n.inputProcessing).
		AddNode(NodeIntentClassification, n.intentClassification).
		AddNode(NodeDecisionMaking, n.decisionMaking).
		AddNode(NodeHumanApproval, n.humanApproval).
		AddNode(NodeToolExecution, n.toolExecution).
		AddNode(NodeErrorHandling, n.errorHandling).
		AddNode(NodeResponseGeneration, n.responseGeneration).
		AddEdge(flowgraph.START, NodeInputProcessing).
		AddEdge(NodeInputProcessing, NodeIntentClassification).
		AddEdge(NodeIntentClassification, NodeDecisionMaking).
		AddConditionalEdge(NodeDecisionMaking, routeAfterDecision(p), map[string]string{
			labelLowConfidence: NodeErrorHandling,
			labelNeedsApproval: NodeHumanApproval,
			labelProceed:       NodeToolExecution,
		}).
		AddConditionalEdge(NodeHumanApproval, routeAfterApproval, map[string]string{
			labelApproved: NodeToolExecution,
			labelRejected: NodeResponseGeneration,
		}).
		AddConditionalEdge(NodeToolExecution, routeAfterTool(p), map[string]string{
			labelRetry:   NodeErrorHandling,
			labelRespond: NodeResponseGeneration,
		}).
		AddConditionalEdge(NodeErrorHandling, routeAfterErrorHandling(p), map[string]string{
			labelRetry:   NodeIntentClassification,
			labelRespond: NodeResponseGeneration,
		}).
		SetErrorBoundary(recordFailure).
		TrackPosition(setCurrentNode)

	if p.Interactive {
		g.InterruptBefore(NodeHumanApproval, awaitingDecision)
	}

	return g.Compile()
}
