package errors

import (
	"errors"
	"fmt"

	"porter/internal/shared/faults"
)

var (
	ErrSessionNotFound       = errors.New("session not found")
	ErrSessionExists         = errors.New("session already exists")
	ErrConcurrencyConflict   = errors.New("concurrency conflict")
	ErrTransformNotSupplied  = errors.New("transform is required")
	ErrEmptySubjectForbidden = errors.New("subject is required")
)

// ConflictError reports a lost optimistic-concurrency race. It matches
// ErrConcurrencyConflict under errors.Is and classifies itself for the
// dispatch pipeline.
type ConflictError struct {
	Subject         string
	ExpectedVersion int64
	Op              string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("concurrency conflict on %q during %s (expected version %d)",
		e.Subject, e.Op, e.ExpectedVersion)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}

func (e *ConflictError) FaultClass() faults.Class {
	return faults.ClassConflict
}

func (e *ConflictError) Retryable() bool {
	return true
}
