package workers

import (
	"context"
	"log/slog"
	"time"

	"porter/contexts/messaging-core/dead-letter/ports"
)

const defaultRetention = 30 * 24 * time.Hour

// RetentionSweeper deletes terminal dead-letter entries older than the
// retention window. Runs on its own cadence, independent of retry sweeps.
type RetentionSweeper struct {
	Repo      ports.Repository
	Clock     ports.Clock
	Retention time.Duration
	Logger    *slog.Logger
}

func (s RetentionSweeper) RunOnce(ctx context.Context) error {
	logger := s.logger()
	retention := s.Retention
	if retention <= 0 {
		retention = defaultRetention
	}

	cutoff := s.now().Add(-retention)
	deleted, err := s.Repo.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		logger.Error("dead letter retention sweep failed",
			"event", "dead_letter_retention_failed",
			"module", "messaging-core/dead-letter",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}

	if deleted > 0 {
		logger.Info("dead letter retention sweep completed",
			"event", "dead_letter_retention_completed",
			"module", "messaging-core/dead-letter",
			"layer", "worker",
			"deleted_count", deleted,
			"cutoff", cutoff,
		)
	}
	return nil
}

func (s RetentionSweeper) now() time.Time {
	if s.Clock != nil {
		return s.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

func (s RetentionSweeper) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
