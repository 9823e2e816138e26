package postgresadapter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	domainerrors "porter/contexts/messaging-core/session-state/domain/errors"
	"porter/contexts/messaging-core/session-state/ports"
	"porter/internal/shared/faults"

	"github.com/jackc/pgx/v5/pgconn"
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

func (r *Repository) Get(ctx context.Context, subject string) (ports.Session, bool, error) {
	var row sessionModel
	err := faults.RetryTransient(ctx, 3, 100*time.Millisecond, func() error {
		return r.db.WithContext(ctx).
			Where("subject = ?", subject).
			First(&row).
			Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.Session{}, false, nil
		}
		return ports.Session{}, false, err
	}
	return row.toPort(), true, nil
}

func (r *Repository) Create(ctx context.Context, session ports.Session) error {
	row := sessionModelFromPort(session)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrSessionExists
		}
		return err
	}
	return nil
}

// UpdateIfVersion is the single conditional write: the WHERE clause compares
// the stored version and the SET increments it in the same statement. Zero
// rows affected means either a lost race or a missing row; a follow-up read
// distinguishes the two.
func (r *Repository) UpdateIfVersion(ctx context.Context, session ports.Session, expectedVersion int64, now time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&sessionModel{}).
		Where("subject = ? AND version = ?", session.Subject, expectedVersion).
		Updates(map[string]any{
			"state_code":    session.StateCode,
			"data":          session.Data,
			"equipment_ref": session.EquipmentRef,
			"version":       expectedVersion + 1,
			"updated_at":    now.UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).
		Model(&sessionModel{}).
		Where("subject = ?", session.Subject).
		Count(&count).
		Error; err != nil {
		return err
	}
	if count == 0 {
		return domainerrors.ErrSessionNotFound
	}
	return domainerrors.ErrConcurrencyConflict
}

type sessionModel struct {
	Subject      string    `gorm:"column:subject;primaryKey"`
	StateCode    string    `gorm:"column:state_code"`
	Data         []byte    `gorm:"column:data"`
	EquipmentRef string    `gorm:"column:equipment_ref"`
	Version      int64     `gorm:"column:version"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (sessionModel) TableName() string {
	return "chat_sessions"
}

func sessionModelFromPort(session ports.Session) sessionModel {
	return sessionModel{
		Subject:      session.Subject,
		StateCode:    session.StateCode,
		Data:         session.Data,
		EquipmentRef: session.EquipmentRef,
		Version:      session.Version,
		UpdatedAt:    session.UpdatedAt.UTC(),
	}
}

func (m sessionModel) toPort() ports.Session {
	return ports.Session{
		Subject:      m.Subject,
		StateCode:    m.StateCode,
		Data:         append([]byte(nil), m.Data...),
		EquipmentRef: m.EquipmentRef,
		Version:      m.Version,
		UpdatedAt:    m.UpdatedAt.UTC(),
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// SystemClock satisfies ports.Clock with the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
