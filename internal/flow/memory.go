package flow

import (
	"context"
	"sync"
	"time"
)

// MemoryStorage keeps sessions in process memory, the default for a
// single-instance deployment.
type MemoryStorage struct {
	mu       sync.Mutex
	sessions map[int64]*Session
}

// NewMemoryStorage returns an empty in-memory session store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{sessions: make(map[int64]*Session)}
}

// Get returns a copy of the stored session.
func (s *MemoryStorage) Get(ctx context.Context, userID int64) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[userID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	clone := *session
	return &clone, nil
}

// Set stores a copy of the session.
func (s *MemoryStorage) Set(ctx context.Context, userID int64, session *Session) error {
	clone := *session
	clone.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[userID] = &clone
	return nil
}

// Clear removes the session if present.
func (s *MemoryStorage) Clear(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, userID)
	return nil
}
