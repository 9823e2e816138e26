package memory

import (
	"context"
	"sync"
	"time"

	"porter/contexts/messaging-core/dedup-gate/ports"
)

// Store is the in-memory Repository used by tests and single-process runs.
type Store struct {
	mu      sync.Mutex
	records map[string]ports.Record

	// FailNext makes the next Reserve call fail with the given error, for
	// exercising the gate's failure policy.
	FailNext error
}

func NewStore() *Store {
	return &Store{records: make(map[string]ports.Record)}
}

func (s *Store) Reserve(_ context.Context, messageID string, subject string, now time.Time) (ports.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailNext != nil {
		err := s.FailNext
		s.FailNext = nil
		return ports.Record{}, false, err
	}

	if existing, ok := s.records[messageID]; ok {
		existing.RetryCount++
		existing.LastSeenAt = now
		s.records[messageID] = existing
		return existing, false, nil
	}

	record := ports.Record{
		MessageID:   messageID,
		Subject:     subject,
		RetryCount:  0,
		FirstSeenAt: now,
		LastSeenAt:  now,
	}
	s.records[messageID] = record
	return record, true, nil
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
