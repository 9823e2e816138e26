package ports

import (
	"context"
	"time"
)

// FailurePolicy decides how Check behaves when the durable upsert itself
// fails. Fail-open prefers duplicate processing over message loss; fail-closed
// protects handlers with non-idempotent side effects from double execution.
type FailurePolicy string

const (
	FailOpen   FailurePolicy = "fail-open"
	FailClosed FailurePolicy = "fail-closed"
)

// PolicyTable is the explicit, reviewable per-kind failure policy. The
// classification is business policy, not a bug: keep additions here, never
// as inline conditionals at call sites.
type PolicyTable struct {
	Default FailurePolicy
	ByKind  map[string]FailurePolicy
}

func (t PolicyTable) For(kind string) FailurePolicy {
	if policy, ok := t.ByKind[kind]; ok {
		return policy
	}
	if t.Default == "" {
		return FailOpen
	}
	return t.Default
}

// Record is the durable first-sight row for one external message id.
type Record struct {
	MessageID   string
	Subject     string
	RetryCount  int
	FirstSeenAt time.Time
	LastSeenAt  time.Time
}

// Result is the gate's answer for one inbound message.
type Result struct {
	IsDuplicate bool
	RetryCount  int
}

// Repository performs the atomic insert-if-absent against the durable store.
// When no row exists the record is created with RetryCount 0 and created is
// true; otherwise the stored retry count is incremented and the updated row
// is returned with created false. Concurrent first-sight attempts for the
// same id must resolve to exactly one creator.
type Repository interface {
	Reserve(ctx context.Context, messageID string, subject string, now time.Time) (Record, bool, error)
}

// SeenCache is the in-process fast path. Entries expire after the gate's
// cache TTL; Get must not return expired entries.
type SeenCache interface {
	Get(messageID string, now time.Time) (Record, bool)
	Put(record Record, expiresAt time.Time)
	Len() int
}

type Clock interface {
	Now() time.Time
}
