package ports

import (
	"context"
	"time"
)

// Session state codes. Sessions are never hard-deleted; they only transition
// into a terminal code.
const (
	StateNew            = "new"
	StateAwaitEquipment = "await_equipment"
	StateAwaitIssue     = "await_issue"
	StateAwaitRating    = "await_rating"
	StateClosed         = "closed"
)

// Session is the per-subject mutable conversation state. Version increases
// by exactly 1 on every successful write; writers must present the version
// they read.
type Session struct {
	Subject      string
	StateCode    string
	Data         []byte
	EquipmentRef string
	Version      int64
	UpdatedAt    time.Time
}

// Repository is the durable session store. UpdateIfVersion must be a single
// conditional write: compare stored version and write the new state
// atomically, never read-then-write.
type Repository interface {
	Get(ctx context.Context, subject string) (Session, bool, error)
	Create(ctx context.Context, session Session) error
	UpdateIfVersion(ctx context.Context, session Session, expectedVersion int64, now time.Time) error
}

// Transform computes the next session state from a freshly read one. It must
// be pure: the controller may call it once per attempt.
type Transform func(Session) (Session, error)

type Clock interface {
	Now() time.Time
}
