package workers

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"porter/contexts/messaging-core/dead-letter/application"
	"porter/contexts/messaging-core/dead-letter/ports"
	"porter/internal/shared/units"
)

const (
	defaultBatchSize      = 50
	defaultAttemptTimeout = 30 * time.Second
)

// Summary is one sweep's aggregate outcome.
type Summary struct {
	Due              int
	Processed        int
	Failed           int
	PermanentlyDead  int
	Skipped          int
	TotalFailedCount int
}

// RetryScheduler periodically re-dispatches eligible dead-letter entries
// through the same handler entry point used for live traffic. Perishable
// payload kinds are checked for freshness first: a stale entry is skipped
// without invoking the handler, regardless of remaining retry budget.
type RetryScheduler struct {
	Queue   application.Service
	Handler units.Handler
	Clock   ports.Clock

	BatchSize      int
	AttemptTimeout time.Duration
	// Freshness maps perishable message kinds to the window after which a
	// retry is pointless (e.g. the vendor expires referenced media objects).
	Freshness map[string]time.Duration

	Notifier Notifier
	// AlertThreshold fires a notification when the permanently-failed
	// population crosses it. Zero disables alerting.
	AlertThreshold int

	Logger *slog.Logger
}

// Notifier is re-exported here so the worker can be wired without importing
// ports at the call site.
type Notifier = ports.Notifier

// RunOnce performs one sweep and returns its aggregate summary.
func (s RetryScheduler) RunOnce(ctx context.Context) (Summary, error) {
	logger := s.logger()
	now := s.now()

	due, err := s.Queue.Due(ctx, s.batchSize())
	if err != nil {
		logger.Error("dead letter sweep listing failed",
			"event", "dead_letter_sweep_list_failed",
			"module", "messaging-core/dead-letter",
			"layer", "worker",
			"error", err.Error(),
		)
		return Summary{}, err
	}

	summary := Summary{Due: len(due)}
	for _, entry := range due {
		if window, perishable := s.Freshness[entry.Kind]; perishable && now.Sub(entry.CreatedAt) > window {
			if err := s.Queue.MarkSkipped(ctx, entry.EntryID, "payload freshness window elapsed"); err != nil {
				logger.Error("dead letter skip failed",
					"event", "dead_letter_skip_failed",
					"module", "messaging-core/dead-letter",
					"layer", "worker",
					"entry_id", entry.EntryID,
					"error", err.Error(),
				)
				continue
			}
			summary.Skipped++
			continue
		}

		if err := s.attempt(ctx, entry); err != nil {
			if recordErr := s.Queue.RecordRetryFailure(ctx, entry.EntryID, err); recordErr != nil {
				logger.Error("dead letter retry bookkeeping failed",
					"event", "dead_letter_record_failed",
					"module", "messaging-core/dead-letter",
					"layer", "worker",
					"entry_id", entry.EntryID,
					"error", recordErr.Error(),
				)
				continue
			}
			if entry.RetryCount+1 >= entry.MaxRetries {
				summary.PermanentlyDead++
			} else {
				summary.Failed++
			}
			continue
		}

		if err := s.Queue.MarkProcessed(ctx, entry.EntryID); err != nil {
			logger.Error("dead letter mark processed failed",
				"event", "dead_letter_mark_processed_failed",
				"module", "messaging-core/dead-letter",
				"layer", "worker",
				"entry_id", entry.EntryID,
				"error", err.Error(),
			)
			continue
		}
		summary.Processed++
	}

	counts, err := s.Queue.Stats(ctx)
	if err == nil {
		summary.TotalFailedCount = counts[ports.StatusFailed]
	}

	logger.Info("dead letter sweep completed",
		"event", "dead_letter_sweep_completed",
		"module", "messaging-core/dead-letter",
		"layer", "worker",
		"due", summary.Due,
		"processed", summary.Processed,
		"failed", summary.Failed,
		"permanently_failed", summary.PermanentlyDead,
		"skipped", summary.Skipped,
		"total_failed", summary.TotalFailedCount,
	)

	s.maybeAlert(ctx, summary)
	return summary, nil
}

// attempt re-invokes the live dispatch entry point under the per-entry
// timeout; exceeding it counts as a failed attempt like any other error.
func (s RetryScheduler) attempt(ctx context.Context, entry ports.Entry) error {
	attemptCtx, cancel := context.WithTimeout(ctx, s.attemptTimeout())
	defer cancel()

	return s.Handler.Handle(attemptCtx, units.Unit{
		MessageID:     entry.MessageID,
		Subject:       entry.Subject,
		Kind:          entry.Kind,
		Payload:       append([]byte(nil), entry.Payload...),
		CorrelationID: entry.CorrelationID,
		ReceivedAt:    entry.CreatedAt,
	})
}

func (s RetryScheduler) maybeAlert(ctx context.Context, summary Summary) {
	if s.Notifier == nil || s.AlertThreshold <= 0 || summary.TotalFailedCount < s.AlertThreshold {
		return
	}
	if err := s.Notifier.Notify(ctx, "critical", "dead_letter_backlog",
		"permanently failed dead letter entries crossed threshold",
		map[string]string{
			"failed_count": strconv.Itoa(summary.TotalFailedCount),
			"threshold":    strconv.Itoa(s.AlertThreshold),
		}); err != nil {
		s.logger().Error("dead letter alert delivery failed",
			"event", "dead_letter_alert_failed",
			"module", "messaging-core/dead-letter",
			"layer", "worker",
			"error", err.Error(),
		)
	}
}

func (s RetryScheduler) batchSize() int {
	if s.BatchSize <= 0 {
		return defaultBatchSize
	}
	return s.BatchSize
}

func (s RetryScheduler) attemptTimeout() time.Duration {
	if s.AttemptTimeout <= 0 {
		return defaultAttemptTimeout
	}
	return s.AttemptTimeout
}

func (s RetryScheduler) now() time.Time {
	if s.Clock != nil {
		return s.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

func (s RetryScheduler) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
