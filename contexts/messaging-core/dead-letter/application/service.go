package application

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	domainerrors "porter/contexts/messaging-core/dead-letter/domain/errors"
	"porter/contexts/messaging-core/dead-letter/ports"
	"porter/internal/shared/faults"
	"porter/internal/shared/units"
)

const (
	defaultMaxRetries   = 3
	defaultFirstBackoff = time.Minute
	defaultBackoffBase  = 5
	defaultMaxBackoff   = 6 * time.Hour
)

// Service owns the dead letter queue: it records failed units, tracks their
// retry budget and moves them to exactly one terminal status.
type Service struct {
	Repo         ports.Repository
	IDs          ports.IDGenerator
	Clock        ports.Clock
	MaxRetries   int
	FirstBackoff time.Duration
	BackoffBase  int
	MaxBackoff   time.Duration
	Logger       *slog.Logger
}

// SaveFailed persists a new entry for a unit whose handler failed. It never
// reports an error to the caller: the original failure already has priority,
// and masking it with a secondary persistence failure would lose both. The
// returned entry id is empty when persistence failed.
func (s Service) SaveFailed(ctx context.Context, u units.Unit, cause error) string {
	now := s.now()
	next := now.Add(s.firstBackoff())
	entry := ports.Entry{
		EntryID:       s.newID(),
		MessageID:     u.MessageID,
		Subject:       u.Subject,
		Kind:          u.Kind,
		Payload:       append([]byte(nil), u.Payload...),
		CorrelationID: u.CorrelationID,
		ErrorMessage:  errorMessage(cause),
		ErrorCode:     string(faults.ClassOf(cause)),
		RetryCount:    0,
		MaxRetries:    s.maxRetries(),
		NextRetryAt:   &next,
		Status:        ports.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.Repo.Create(ctx, entry); err != nil {
		s.logger().Error("dead letter persistence failed, unit may be lost",
			"event", "dead_letter_save_failed",
			"module", "messaging-core/dead-letter",
			"layer", "application",
			"message_id", u.MessageID,
			"subject", u.Subject,
			"correlation_id", u.CorrelationID,
			"original_error", errorMessage(cause),
			"error", err.Error(),
		)
		return ""
	}

	s.logger().Warn("unit dead lettered",
		"event", "dead_letter_saved",
		"module", "messaging-core/dead-letter",
		"layer", "application",
		"entry_id", entry.EntryID,
		"message_id", u.MessageID,
		"subject", u.Subject,
		"kind", u.Kind,
		"correlation_id", u.CorrelationID,
		"error_code", entry.ErrorCode,
		"next_retry_at", next,
	)
	return entry.EntryID
}

// RecordRetryFailure books one failed retry attempt. Reaching the retry
// budget moves the entry to the irrevocable failed status with NextRetryAt
// cleared; otherwise the next attempt is scheduled with exponential backoff
// keyed on the new retry count.
func (s Service) RecordRetryFailure(ctx context.Context, entryID string, cause error) error {
	entry, err := s.mutableEntry(ctx, entryID)
	if err != nil {
		return err
	}

	now := s.now()
	entry.RetryCount++
	entry.ErrorMessage = errorMessage(cause)
	entry.ErrorCode = string(faults.ClassOf(cause))
	entry.UpdatedAt = now

	if entry.RetryCount >= entry.MaxRetries {
		entry.Status = ports.StatusFailed
		entry.NextRetryAt = nil
	} else {
		next := now.Add(s.backoff(entry.RetryCount))
		entry.Status = ports.StatusRetrying
		entry.NextRetryAt = &next
	}

	if err := s.Repo.Update(ctx, entry); err != nil {
		return err
	}

	s.logger().Warn("dead letter retry failed",
		"event", "dead_letter_retry_failed",
		"module", "messaging-core/dead-letter",
		"layer", "application",
		"entry_id", entry.EntryID,
		"retry_count", entry.RetryCount,
		"max_retries", entry.MaxRetries,
		"status", entry.Status,
	)
	return nil
}

// MarkProcessed is the terminal success disposition.
func (s Service) MarkProcessed(ctx context.Context, entryID string) error {
	return s.finish(ctx, entryID, ports.StatusProcessed, "")
}

// MarkSkipped is the terminal disposition for entries whose payload outlived
// its usefulness, independent of remaining retry budget.
func (s Service) MarkSkipped(ctx context.Context, entryID string, reason string) error {
	return s.finish(ctx, entryID, ports.StatusSkipped, reason)
}

func (s Service) finish(ctx context.Context, entryID string, status string, reason string) error {
	entry, err := s.mutableEntry(ctx, entryID)
	if err != nil {
		return err
	}

	entry.Status = status
	entry.NextRetryAt = nil
	entry.UpdatedAt = s.now()
	if reason != "" {
		entry.ErrorMessage = reason
	}

	if err := s.Repo.Update(ctx, entry); err != nil {
		return err
	}

	s.logger().Info("dead letter entry closed",
		"event", "dead_letter_closed",
		"module", "messaging-core/dead-letter",
		"layer", "application",
		"entry_id", entry.EntryID,
		"status", status,
		"reason", reason,
	)
	return nil
}

// Due returns entries eligible for a retry sweep right now.
func (s Service) Due(ctx context.Context, limit int) ([]ports.Entry, error) {
	return s.Repo.ListDue(ctx, s.now(), limit)
}

// Stats exposes entry counts by status for diagnostics.
func (s Service) Stats(ctx context.Context) (map[string]int, error) {
	return s.Repo.CountByStatus(ctx)
}

func (s Service) mutableEntry(ctx context.Context, entryID string) (ports.Entry, error) {
	if strings.TrimSpace(entryID) == "" {
		return ports.Entry{}, domainerrors.ErrEmptyEntryID
	}
	entry, err := s.Repo.Get(ctx, entryID)
	if err != nil {
		return ports.Entry{}, err
	}
	if ports.IsTerminal(entry.Status) {
		return ports.Entry{}, domainerrors.ErrEntryTerminal
	}
	return entry, nil
}

// backoff grows as base^retryCount minutes, capped.
func (s Service) backoff(retryCount int) time.Duration {
	base := s.BackoffBase
	if base <= 1 {
		base = defaultBackoffBase
	}
	d := time.Duration(math.Pow(float64(base), float64(retryCount))) * time.Minute
	if max := s.maxBackoff(); d > max {
		return max
	}
	return d
}

func (s Service) maxRetries() int {
	if s.MaxRetries <= 0 {
		return defaultMaxRetries
	}
	return s.MaxRetries
}

func (s Service) firstBackoff() time.Duration {
	if s.FirstBackoff <= 0 {
		return defaultFirstBackoff
	}
	return s.FirstBackoff
}

func (s Service) maxBackoff() time.Duration {
	if s.MaxBackoff <= 0 {
		return defaultMaxBackoff
	}
	return s.MaxBackoff
}

func (s Service) newID() string {
	if s.IDs != nil {
		return s.IDs.NewID()
	}
	return uuid.NewString()
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

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
