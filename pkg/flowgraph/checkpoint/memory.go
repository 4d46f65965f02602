package checkpoint

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory checkpoint store.
// Data is lost when the process exits.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memorySlot
	closed   bool
}

// memorySlot holds one session's snapshot behind its own lock so that
// writes to distinct sessions do not contend.
type memorySlot struct {
	mu        sync.Mutex
	data      []byte
	updatedAt time.Time
	saves     int
	deleted   bool
}

// NewMemoryStore creates a new in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memorySlot),
	}
}

// slot returns the session's slot, creating it when create is set.
func (m *MemoryStore) slot(sessionID string, create bool) (*memorySlot, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if ok || !create {
		return s, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	if s, ok = m.sessions[sessionID]; !ok {
		s = &memorySlot{}
		m.sessions[sessionID] = s
	}
	return s, nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, sessionID string, data []byte) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}

	// Copy data to avoid retaining caller's slice
	stored := make([]byte, len(data))
	copy(stored, data)

	for {
		s, err := m.slot(sessionID, true)
		if err != nil {
			return err
		}
		// A concurrent Delete may have detached the slot; fetch a fresh one.
		if s.write(stored) {
			return nil
		}
	}
}

// write stores data unless the slot has been deleted.
func (s *memorySlot) write(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleted {
		return false
	}
	s.data = data
	s.updatedAt = time.Now().UTC()
	s.saves++
	return true
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, sessionID string) ([]byte, error) {
	s, err := m.slot(sessionID, false)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleted || s.data == nil {
		return nil, ErrNotFound
	}

	// Return a copy to prevent modification
	result := make([]byte, len(s.data))
	copy(result, s.data)
	return result, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	if s, ok := m.sessions[sessionID]; ok {
		s.mu.Lock()
		s.deleted = true
		s.data = nil
		s.mu.Unlock()
		delete(m.sessions, sessionID)
	}
	return nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	infos := make([]Info, 0, len(m.sessions))
	for id, s := range m.sessions {
		s.mu.Lock()
		if s.data != nil {
			infos = append(infos, Info{
				SessionID: id,
				UpdatedAt: s.updatedAt,
				Size:      int64(len(s.data)),
			})
		}
		s.mu.Unlock()
	}

	sortInfos(infos)
	return infos, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.sessions = nil
	return nil
}

// Len returns the number of stored sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Saves returns how many times the session's checkpoint has been written
// since it was created or last deleted.
func (m *MemoryStore) Saves(sessionID string) int {
	s, err := m.slot(sessionID, false)
	if err != nil || s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
