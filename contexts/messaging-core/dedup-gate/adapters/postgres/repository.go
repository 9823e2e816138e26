package postgresadapter

import (
	"context"
	"log/slog"
	"time"

	"porter/contexts/messaging-core/dedup-gate/ports"
	"porter/internal/shared/faults"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{db: db, logger: logger}
}

// Reserve is the atomic insert-if-absent. ON CONFLICT DO NOTHING decides the
// race: exactly one caller inserts (RowsAffected > 0), everyone else
// increments the retry counter and reads the row back.
func (r *Repository) Reserve(ctx context.Context, messageID string, subject string, now time.Time) (ports.Record, bool, error) {
	row := dedupModel{
		MessageID:   messageID,
		Subject:     subject,
		RetryCount:  0,
		FirstSeenAt: now.UTC(),
		LastSeenAt:  now.UTC(),
	}

	createResult := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}},
			DoNothing: true,
		}).
		Create(&row)
	if createResult.Error != nil {
		return ports.Record{}, false, createResult.Error
	}
	if createResult.RowsAffected > 0 {
		return row.toPort(), true, nil
	}

	if err := r.db.WithContext(ctx).
		Model(&dedupModel{}).
		Where("message_id = ?", messageID).
		UpdateColumns(map[string]any{
			"retry_count":  gorm.Expr("retry_count + 1"),
			"last_seen_at": now.UTC(),
		}).Error; err != nil {
		return ports.Record{}, false, err
	}

	var existing dedupModel
	err := faults.RetryTransient(ctx, 3, 100*time.Millisecond, func() error {
		return r.db.WithContext(ctx).
			Where("message_id = ?", messageID).
			First(&existing).
			Error
	})
	if err != nil {
		return ports.Record{}, false, err
	}
	return existing.toPort(), false, nil
}

type dedupModel struct {
	MessageID   string    `gorm:"column:message_id;primaryKey"`
	Subject     string    `gorm:"column:subject"`
	RetryCount  int       `gorm:"column:retry_count"`
	FirstSeenAt time.Time `gorm:"column:first_seen_at"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at"`
}

func (dedupModel) TableName() string {
	return "message_dedup"
}

func (m dedupModel) toPort() ports.Record {
	return ports.Record{
		MessageID:   m.MessageID,
		Subject:     m.Subject,
		RetryCount:  m.RetryCount,
		FirstSeenAt: m.FirstSeenAt.UTC(),
		LastSeenAt:  m.LastSeenAt.UTC(),
	}
}

// SystemClock satisfies ports.Clock with the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
