package memory

import (
	"context"
	"sync"
	"time"

	domainerrors "porter/contexts/messaging-core/session-state/domain/errors"
	"porter/contexts/messaging-core/session-state/ports"
)

// Store is the in-memory Repository used by tests. The conditional update
// holds the lock across compare and write, mirroring the atomicity of the
// durable store's conditional UPDATE.
type Store struct {
	mu       sync.Mutex
	sessions map[string]ports.Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]ports.Session)}
}

func (s *Store) Get(_ context.Context, subject string) (ports.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[subject]
	if !ok {
		return ports.Session{}, false, nil
	}
	session.Data = append([]byte(nil), session.Data...)
	return session, true, nil
}

func (s *Store) Create(_ context.Context, session ports.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.Subject]; ok {
		return domainerrors.ErrSessionExists
	}
	s.sessions[session.Subject] = session
	return nil
}

func (s *Store) UpdateIfVersion(_ context.Context, session ports.Session, expectedVersion int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sessions[session.Subject]
	if !ok {
		return domainerrors.ErrSessionNotFound
	}
	if current.Version != expectedVersion {
		return domainerrors.ErrConcurrencyConflict
	}

	session.Version = expectedVersion + 1
	session.UpdatedAt = now
	s.sessions[session.Subject] = session
	return nil
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
