package postgresadapter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	domainerrors "porter/contexts/messaging-core/dead-letter/domain/errors"
	"porter/contexts/messaging-core/dead-letter/ports"
	"porter/internal/shared/faults"

	"github.com/google/uuid"
	"gorm.io/gorm"
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

func (r *Repository) Create(ctx context.Context, entry ports.Entry) error {
	row := entryModelFromPort(entry)
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *Repository) Get(ctx context.Context, entryID string) (ports.Entry, error) {
	var row entryModel
	err := r.db.WithContext(ctx).
		Where("entry_id = ?", entryID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.Entry{}, domainerrors.ErrEntryNotFound
		}
		return ports.Entry{}, err
	}
	return row.toPort(), nil
}

func (r *Repository) ListDue(ctx context.Context, now time.Time, limit int) ([]ports.Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []entryModel
	err := faults.RetryTransient(ctx, 3, 100*time.Millisecond, func() error {
		rows = rows[:0]
		return r.db.WithContext(ctx).
			Where("status IN ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?",
				[]string{ports.StatusPending, ports.StatusRetrying}, now.UTC()).
			Order("next_retry_at ASC").
			Limit(limit).
			Find(&rows).
			Error
	})
	if err != nil {
		return nil, err
	}

	items := make([]ports.Entry, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toPort())
	}
	return items, nil
}

func (r *Repository) Update(ctx context.Context, entry ports.Entry) error {
	var nextRetryAt any
	if entry.NextRetryAt != nil {
		nextRetryAt = entry.NextRetryAt.UTC()
	}

	result := r.db.WithContext(ctx).
		Model(&entryModel{}).
		Where("entry_id = ?", entry.EntryID).
		Updates(map[string]any{
			"error_message": entry.ErrorMessage,
			"error_code":    entry.ErrorCode,
			"retry_count":   entry.RetryCount,
			"next_retry_at": nextRetryAt,
			"status":        entry.Status,
			"updated_at":    entry.UpdatedAt.UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrEntryNotFound
	}
	return nil
}

func (r *Repository) CountByStatus(ctx context.Context) (map[string]int, error) {
	type statusCount struct {
		Status string
		Count  int64
	}

	var rows []statusCount
	err := faults.RetryTransient(ctx, 3, 100*time.Millisecond, func() error {
		rows = rows[:0]
		return r.db.WithContext(ctx).
			Model(&entryModel{}).
			Select("status, COUNT(*) AS count").
			Group("status").
			Find(&rows).
			Error
	})
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = int(row.Count)
	}
	return counts, nil
}

func (r *Repository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?",
			[]string{ports.StatusProcessed, ports.StatusFailed, ports.StatusSkipped}, cutoff.UTC()).
		Delete(&entryModel{})
	if result.Error != nil {
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}

type entryModel struct {
	EntryID       string     `gorm:"column:entry_id;primaryKey"`
	MessageID     string     `gorm:"column:message_id"`
	Subject       string     `gorm:"column:subject"`
	Kind          string     `gorm:"column:message_type"`
	Payload       []byte     `gorm:"column:payload"`
	CorrelationID string     `gorm:"column:correlation_id"`
	ErrorMessage  string     `gorm:"column:error_message"`
	ErrorCode     string     `gorm:"column:error_code"`
	RetryCount    int        `gorm:"column:retry_count"`
	MaxRetries    int        `gorm:"column:max_retries"`
	NextRetryAt   *time.Time `gorm:"column:next_retry_at"`
	Status        string     `gorm:"column:status"`
	CreatedAt     time.Time  `gorm:"column:created_at"`
	UpdatedAt     time.Time  `gorm:"column:updated_at"`
}

func (entryModel) TableName() string {
	return "dead_letters"
}

func entryModelFromPort(entry ports.Entry) entryModel {
	row := entryModel{
		EntryID:       entry.EntryID,
		MessageID:     entry.MessageID,
		Subject:       entry.Subject,
		Kind:          entry.Kind,
		Payload:       append([]byte(nil), entry.Payload...),
		CorrelationID: entry.CorrelationID,
		ErrorMessage:  entry.ErrorMessage,
		ErrorCode:     entry.ErrorCode,
		RetryCount:    entry.RetryCount,
		MaxRetries:    entry.MaxRetries,
		Status:        entry.Status,
		CreatedAt:     entry.CreatedAt.UTC(),
		UpdatedAt:     entry.UpdatedAt.UTC(),
	}
	if entry.NextRetryAt != nil {
		at := entry.NextRetryAt.UTC()
		row.NextRetryAt = &at
	}
	return row
}

func (m entryModel) toPort() ports.Entry {
	entry := ports.Entry{
		EntryID:       m.EntryID,
		MessageID:     m.MessageID,
		Subject:       m.Subject,
		Kind:          m.Kind,
		Payload:       append([]byte(nil), m.Payload...),
		CorrelationID: m.CorrelationID,
		ErrorMessage:  m.ErrorMessage,
		ErrorCode:     m.ErrorCode,
		RetryCount:    m.RetryCount,
		MaxRetries:    m.MaxRetries,
		Status:        m.Status,
		CreatedAt:     m.CreatedAt.UTC(),
		UpdatedAt:     m.UpdatedAt.UTC(),
	}
	if m.NextRetryAt != nil {
		at := m.NextRetryAt.UTC()
		entry.NextRetryAt = &at
	}
	return entry
}

// UUIDGenerator satisfies ports.IDGenerator.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string {
	return uuid.NewString()
}

// SystemClock satisfies ports.Clock with the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
