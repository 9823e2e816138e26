package application

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	domainerrors "porter/contexts/messaging-core/session-state/domain/errors"
	"porter/contexts/messaging-core/session-state/ports"
)

const (
	defaultMaxAttempts = 3
	defaultBackoffBase = 50 * time.Millisecond
)

// Controller wraps every read-modify-write of per-subject session state.
// Losers of a write race observe a ConflictError and retry against freshly
// read state; nothing is ever blindly overwritten.
type Controller struct {
	Repo        ports.Repository
	Clock       ports.Clock
	MaxAttempts int
	BackoffBase time.Duration
	Logger      *slog.Logger
}

// Read returns the current session and its version.
func (c Controller) Read(ctx context.Context, subject string) (ports.Session, error) {
	if strings.TrimSpace(subject) == "" {
		return ports.Session{}, domainerrors.ErrEmptySubjectForbidden
	}
	session, found, err := c.Repo.Get(ctx, subject)
	if err != nil {
		return ports.Session{}, err
	}
	if !found {
		return ports.Session{}, domainerrors.ErrSessionNotFound
	}
	return session, nil
}

// Create installs the initial session for a subject's first contact.
func (c Controller) Create(ctx context.Context, session ports.Session) (ports.Session, error) {
	if strings.TrimSpace(session.Subject) == "" {
		return ports.Session{}, domainerrors.ErrEmptySubjectForbidden
	}
	now := c.now()
	session.Version = 1
	session.UpdatedAt = now
	if session.StateCode == "" {
		session.StateCode = ports.StateNew
	}
	if err := c.Repo.Create(ctx, session); err != nil {
		return ports.Session{}, err
	}
	return session, nil
}

// Write performs one conditional write. On success the stored version becomes
// expectedVersion+1; on mismatch the returned error matches
// ErrConcurrencyConflict and carries subject, expected version and op.
func (c Controller) Write(ctx context.Context, session ports.Session, expectedVersion int64, op string) (ports.Session, error) {
	now := c.now()
	err := c.Repo.UpdateIfVersion(ctx, session, expectedVersion, now)
	if err != nil {
		if errors.Is(err, domainerrors.ErrConcurrencyConflict) {
			return ports.Session{}, &domainerrors.ConflictError{
				Subject:         session.Subject,
				ExpectedVersion: expectedVersion,
				Op:              op,
			}
		}
		return ports.Session{}, err
	}
	session.Version = expectedVersion + 1
	session.UpdatedAt = now
	return session, nil
}

// Update runs the bounded read -> compute -> conditional-write loop over the
// injected transform, re-reading fresh state on every attempt with
// exponential backoff plus jitter between attempts. After the attempt budget
// is spent the last ConflictError propagates to the caller.
func (c Controller) Update(ctx context.Context, subject string, op string, transform ports.Transform) (ports.Session, error) {
	if transform == nil {
		return ports.Session{}, domainerrors.ErrTransformNotSupplied
	}

	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}

	var conflict *domainerrors.ConflictError
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, attempt); err != nil {
				return ports.Session{}, err
			}
		}

		current, err := c.Read(ctx, subject)
		if err != nil {
			return ports.Session{}, err
		}

		next, err := transform(current)
		if err != nil {
			return ports.Session{}, err
		}
		next.Subject = current.Subject

		written, err := c.Write(ctx, next, current.Version, op)
		if err == nil {
			return written, nil
		}
		if !errors.As(err, &conflict) {
			return ports.Session{}, err
		}

		c.logger().Debug("session write conflict, retrying with fresh state",
			"event", "session_write_conflict",
			"module", "messaging-core/session-state",
			"layer", "application",
			"subject", subject,
			"op", op,
			"attempt", attempt+1,
			"expected_version", current.Version,
		)
	}

	return ports.Session{}, conflict
}

func (c Controller) sleep(ctx context.Context, attempt int) error {
	base := c.BackoffBase
	if base < 0 {
		base = 0
	} else if base == 0 {
		base = defaultBackoffBase
	}

	delay := base << (attempt - 1)
	if delay > 0 {
		delay += time.Duration(rand.Int63n(int64(delay)/2 + 1))
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c Controller) now() time.Time {
	if c.Clock != nil {
		return c.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

func (c Controller) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
