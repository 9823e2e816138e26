package application

import (
	"context"
	"log/slog"
	"strings"
	"time"

	domainerrors "porter/contexts/messaging-core/dedup-gate/domain/errors"
	"porter/contexts/messaging-core/dedup-gate/ports"
)

const defaultCacheTTL = 30 * time.Minute

// Service is the deduplication gate consulted immediately after a unit of
// work is received, before dispatch to business logic.
type Service struct {
	Repo     ports.Repository
	Cache    ports.SeenCache
	Policies ports.PolicyTable
	Clock    ports.Clock
	CacheTTL time.Duration
	Logger   *slog.Logger
}

// Check answers whether messageID was already accepted for processing.
// Fast path: the in-process cache short-circuits without touching the store.
// Slow path: one atomic upsert; the insert winner sees a fresh record, every
// loser observes a duplicate with an incremented retry count.
//
// A store failure never surfaces to the caller. The per-kind policy table
// decides the answer instead: fail-open kinds report "not a duplicate" and
// accept possible double processing, fail-closed kinds report "duplicate"
// and accept possible message loss.
func (s Service) Check(ctx context.Context, messageID string, subject string, kind string) (ports.Result, error) {
	if strings.TrimSpace(messageID) == "" {
		return ports.Result{}, domainerrors.ErrEmptyMessageID
	}
	if strings.TrimSpace(subject) == "" {
		return ports.Result{}, domainerrors.ErrEmptySubject
	}

	now := s.now()
	if record, ok := s.Cache.Get(messageID, now); ok {
		return ports.Result{IsDuplicate: true, RetryCount: record.RetryCount + 1}, nil
	}

	record, created, err := s.Repo.Reserve(ctx, messageID, subject, now)
	if err != nil {
		policy := s.Policies.For(kind)
		s.logger().Warn("dedup reserve failed, applying failure policy",
			"event", "dedup_reserve_failed",
			"module", "messaging-core/dedup-gate",
			"layer", "application",
			"message_id", messageID,
			"subject", subject,
			"kind", kind,
			"policy", string(policy),
			"error", err.Error(),
		)
		if policy == ports.FailClosed {
			return ports.Result{IsDuplicate: true}, nil
		}
		return ports.Result{}, nil
	}

	s.Cache.Put(record, now.Add(s.cacheTTL()))
	return ports.Result{IsDuplicate: !created, RetryCount: record.RetryCount}, nil
}

// CacheSize exposes the fast-path cache size for diagnostics.
func (s Service) CacheSize() int {
	return s.Cache.Len()
}

func (s Service) cacheTTL() time.Duration {
	if s.CacheTTL <= 0 {
		return defaultCacheTTL
	}
	return s.CacheTTL
}

func (s Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

func (s Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
