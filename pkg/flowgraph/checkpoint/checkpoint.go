package checkpoint

import (
	"encoding/json"
	"time"
)

// Version is the current checkpoint format version.
// Increment when making breaking changes to checkpoint structure.
const Version = 2

// Status is the executor state recorded with a checkpoint.
type Status string

// Executor statuses.
const (
	// StatusRunning means the run was between nodes; NextNode is where it continues.
	StatusRunning Status = "running"
	// StatusInterrupted means the run suspended in front of NodeID.
	StatusInterrupted Status = "interrupted"
	// StatusCompleted means the run reached END.
	StatusCompleted Status = "completed"
	// StatusFailed means the run stopped on a fatal error after NodeID.
	StatusFailed Status = "failed"
	// StatusCancelled means the caller cancelled the run before NextNode.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further execution follows the status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Checkpoint is the persisted snapshot of a session's run.
// It contains all information needed to resume execution.
type Checkpoint struct {
	// Metadata
	Version   int       `json:"version"`
	RunID     string    `json:"run_id"`
	NodeID    string    `json:"node_id"`
	Step      int       `json:"step"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`

	// Execution state
	State    json.RawMessage `json:"state"`
	NextNode string          `json:"next_node"`

	// Reason holds the fatal error text for failed and cancelled runs.
	Reason string `json:"reason,omitempty"`
}

// Marshal serializes a checkpoint to JSON.
func (c *Checkpoint) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Unmarshal deserializes a checkpoint from JSON.
func Unmarshal(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// New creates a running checkpoint with the given parameters.
// State must already be JSON-serialized.
func New(runID, nodeID string, step int, state []byte, nextNode string) *Checkpoint {
	return &Checkpoint{
		Version:   Version,
		RunID:     runID,
		NodeID:    nodeID,
		Step:      step,
		Status:    StatusRunning,
		Timestamp: time.Now().UTC(),
		State:     state,
		NextNode:  nextNode,
	}
}

// WithStatus sets the executor status.
func (c *Checkpoint) WithStatus(status Status) *Checkpoint {
	c.Status = status
	return c
}

// WithReason records why a run stopped.
func (c *Checkpoint) WithReason(reason string) *Checkpoint {
	c.Reason = reason
	return c
}
