package ports

import (
	"context"
	"time"
)

// Entry status values. pending/retrying entries carry a non-null NextRetryAt;
// processed/failed/skipped are terminal and final.
const (
	StatusPending   = "pending"
	StatusRetrying  = "retrying"
	StatusProcessed = "processed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

func IsTerminal(status string) bool {
	switch status {
	case StatusProcessed, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// Entry is one durably queued failed unit of work.
type Entry struct {
	EntryID       string
	MessageID     string
	Subject       string
	Kind          string
	Payload       []byte
	CorrelationID string
	ErrorMessage  string
	ErrorCode     string
	RetryCount    int
	MaxRetries    int
	NextRetryAt   *time.Time
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Repository interface {
	Create(ctx context.Context, entry Entry) error
	Get(ctx context.Context, entryID string) (Entry, error)
	// ListDue returns up to limit entries with status pending/retrying and
	// NextRetryAt <= now, oldest first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]Entry, error)
	// Update persists the entry's mutable disposition fields.
	Update(ctx context.Context, entry Entry) error
	CountByStatus(ctx context.Context) (map[string]int, error)
	// DeleteTerminalBefore removes terminal entries last updated before
	// cutoff and reports how many were removed.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Notifier raises threshold-crossing alerts to the external notification
// collaborator.
type Notifier interface {
	Notify(ctx context.Context, severity string, kind string, message string, details map[string]string) error
}

type IDGenerator interface {
	NewID() string
}

type Clock interface {
	Now() time.Time
}
