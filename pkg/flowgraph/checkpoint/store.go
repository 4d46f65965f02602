// Package checkpoint provides persistent checkpoint storage keyed by session.
//
// Each session has exactly one snapshot: the envelope written after the
// session's most recent node. Save overwrites it, Delete discards it.
// Writes to one session are serialized; distinct sessions proceed
// concurrently.
package checkpoint

import (
	"context"
	"errors"
	"sort"
	"time"
)

// Store persists the latest checkpoint per session.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores the checkpoint for a session, replacing any prior one.
	Save(ctx context.Context, sessionID string, data []byte) error

	// Load retrieves a session's checkpoint.
	// Returns ErrNotFound if the session has none.
	Load(ctx context.Context, sessionID string) ([]byte, error)

	// Delete removes a session's checkpoint.
	// Returns nil if the session has none.
	Delete(ctx context.Context, sessionID string) error

	// List returns metadata for every stored session, ordered by session ID.
	List(ctx context.Context) ([]Info, error)

	// Close releases any resources (connections, files).
	Close() error
}

// Info provides metadata without loading full state.
type Info struct {
	SessionID string    `json:"session_id"`
	UpdatedAt time.Time `json:"updated_at"`
	Size      int64     `json:"size"`
}

// Sentinel errors for checkpoint operations.
var (
	// ErrNotFound indicates a checkpoint doesn't exist.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("checkpoint store closed")

	// ErrEmptySessionID indicates an operation was given an empty session ID.
	ErrEmptySessionID = errors.New("session ID cannot be empty")
)

func sortInfos(infos []Info) {
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].SessionID < infos[j].SessionID
	})
}
