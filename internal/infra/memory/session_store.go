package memory

import (
	"context"
	"sync"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// Attempt state lives only in the process; suitable for tests and the
// single-node demo mode.
type SessionStore struct {
	clock    func() time.Time
	mu       sync.RWMutex
	sessions map[domain.AttemptKey]*app.Session
}

func NewSessionStore() *SessionStore {
	return NewSessionStoreWithClock(time.Now)
}

// NewSessionStoreWithClock allows deterministic start times in tests.
func NewSessionStoreWithClock(now func() time.Time) *SessionStore {
	return &SessionStore{
		clock:    now,
		sessions: make(map[domain.AttemptKey]*app.Session),
	}
}

// GetOrCreate returns the existing session unchanged, or creates one with
// startedAt fixed to now. The map entry is the in-process guarantee that a
// reconnecting client never resets its countdown.
func (s *SessionStore) GetOrCreate(_ context.Context, key domain.AttemptKey, duration time.Duration) (*app.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[key]; ok {
		return session, nil
	}
	session := app.NewSessionWithClock(key, s.clock(), duration, s.clock)
	s.sessions[key] = session
	return session, nil
}

func (s *SessionStore) Get(_ context.Context, key domain.AttemptKey) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[key]
	return session, ok
}

// SaveAnswer is a no-op: answers already live on the in-memory session.
func (s *SessionStore) SaveAnswer(context.Context, domain.AttemptKey, int, string) error {
	return nil
}

// MarkFinalized is a no-op: the finalize flag lives on the session itself.
func (s *SessionStore) MarkFinalized(context.Context, domain.AttemptKey) error {
	return nil
}

func (s *SessionStore) Delete(_ context.Context, key domain.AttemptKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
}
