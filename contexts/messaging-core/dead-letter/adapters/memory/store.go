package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	domainerrors "porter/contexts/messaging-core/dead-letter/domain/errors"
	"porter/contexts/messaging-core/dead-letter/ports"
)

// Store is the in-memory Repository used by tests.
type Store struct {
	mu      sync.Mutex
	entries map[string]ports.Entry
}

func NewStore() *Store {
	return &Store{entries: make(map[string]ports.Entry)}
}

func (s *Store) Create(_ context.Context, entry ports.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.EntryID] = cloneEntry(entry)
	return nil
}

func (s *Store) Get(_ context.Context, entryID string) (ports.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[entryID]
	if !ok {
		return ports.Entry{}, domainerrors.ErrEntryNotFound
	}
	return cloneEntry(entry), nil
}

func (s *Store) ListDue(_ context.Context, now time.Time, limit int) ([]ports.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []ports.Entry
	for _, entry := range s.entries {
		if entry.Status != ports.StatusPending && entry.Status != ports.StatusRetrying {
			continue
		}
		if entry.NextRetryAt == nil || entry.NextRetryAt.After(now) {
			continue
		}
		due = append(due, cloneEntry(entry))
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].NextRetryAt.Before(*due[j].NextRetryAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *Store) Update(_ context.Context, entry ports.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[entry.EntryID]; !ok {
		return domainerrors.ErrEntryNotFound
	}
	s.entries[entry.EntryID] = cloneEntry(entry)
	return nil
}

func (s *Store) CountByStatus(_ context.Context) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int)
	for _, entry := range s.entries {
		counts[entry.Status]++
	}
	return counts, nil
}

func (s *Store) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, entry := range s.entries {
		if ports.IsTerminal(entry.Status) && entry.UpdatedAt.Before(cutoff) {
			delete(s.entries, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func cloneEntry(entry ports.Entry) ports.Entry {
	entry.Payload = append([]byte(nil), entry.Payload...)
	if entry.NextRetryAt != nil {
		at := *entry.NextRetryAt
		entry.NextRetryAt = &at
	}
	return entry
}
