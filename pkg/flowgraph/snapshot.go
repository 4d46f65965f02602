package flowgraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/randalmurphal/agentflow/pkg/flowgraph/checkpoint"
)

// Snapshot is a decoded checkpoint with typed state.
type Snapshot[S any] struct {
	RunID     string
	NodeID    string
	NextNode  string
	Status    checkpoint.Status
	Step      int
	Reason    string
	Timestamp time.Time
	State     S
}

// LoadSnapshot reads and decodes the checkpoint for runID.
// A missing checkpoint matches both ErrNoCheckpoint and checkpoint.ErrNotFound.
func LoadSnapshot[S any](ctx context.Context, store checkpoint.Store, runID string) (*Snapshot[S], error) {
	data, err := store.Load(ctx, runID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s: %w", ErrNoCheckpoint, runID, err)
		}
		return nil, &CheckpointError{Op: "load", Err: err}
	}

	cp, err := checkpoint.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserializeState, err)
	}

	if cp.Version != checkpoint.Version {
		return nil, fmt.Errorf("%w: got %d, expected %d",
			ErrCheckpointVersionMismatch, cp.Version, checkpoint.Version)
	}

	var state S
	if err := json.Unmarshal(cp.State, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserializeState, err)
	}

	return &Snapshot[S]{
		RunID:     cp.RunID,
		NodeID:    cp.NodeID,
		NextNode:  cp.NextNode,
		Status:    cp.Status,
		Step:      cp.Step,
		Reason:    cp.Reason,
		Timestamp: cp.Timestamp,
		State:     state,
	}, nil
}

// SaveSnapshot encodes snap and overwrites the checkpoint for snap.RunID.
func SaveSnapshot[S any](ctx context.Context, store checkpoint.Store, snap *Snapshot[S]) error {
	stateBytes, err := json.Marshal(snap.State)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerializeState, err)
	}

	data, err := checkpoint.New(snap.RunID, snap.NodeID, snap.Step, stateBytes, snap.NextNode).
		WithStatus(snap.Status).
		WithReason(snap.Reason).
		Marshal()
	if err != nil {
		return &CheckpointError{NodeID: snap.NodeID, Op: "marshal", Err: err}
	}

	if err := store.Save(ctx, snap.RunID, data); err != nil {
		return &CheckpointError{NodeID: snap.NodeID, Op: "save", Err: err}
	}
	return nil
}

// UpdateSnapshot loads the checkpoint for runID, applies fn and saves the
// result. Nothing is written if fn returns an error.
//
// It is the way to hand an out-of-band decision to a suspended run:
//
//	_, err := flowgraph.UpdateSnapshot(ctx, store, id, func(s *flowgraph.Snapshot[State]) error {
//	    s.State.Approved = true
//	    return nil
//	})
func UpdateSnapshot[S any](ctx context.Context, store checkpoint.Store, runID string, fn func(*Snapshot[S]) error) (*Snapshot[S], error) {
	snap, err := LoadSnapshot[S](ctx, store, runID)
	if err != nil {
		return nil, err
	}
	if err := fn(snap); err != nil {
		return snap, err
	}
	if err := SaveSnapshot(ctx, store, snap); err != nil {
		return snap, err
	}
	return snap, nil
}
