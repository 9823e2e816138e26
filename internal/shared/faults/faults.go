package faults

// Cross-cutting failure taxonomy. Every error reaching the dispatch pipeline
// is classified here before the pipeline decides between acknowledging,
// replying to the user, and dead-lettering.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

type Class string

const (
	// ClassTransient covers store and outbound-API hiccups; eligible for
	// dead-letter retry.
	ClassTransient Class = "transient"
	// ClassValidation covers malformed units of work; never retried.
	ClassValidation Class = "validation"
	// ClassTimeout covers exhausted per-unit budgets; treated as transient
	// for retry purposes but kept distinct for diagnostics.
	ClassTimeout Class = "timeout"
	// ClassConflict covers optimistic-concurrency losses that survived the
	// controller's own retry budget.
	ClassConflict Class = "conflict"
	// ClassConfig is fatal at startup only; it must never be produced
	// mid-flow.
	ClassConfig Class = "config"
)

// Classifier lets domain error types declare their own class.
type Classifier interface {
	FaultClass() Class
}

type fault struct {
	class Class
	err   error
}

func (f *fault) Error() string     { return fmt.Sprintf("%s: %v", f.class, f.err) }
func (f *fault) Unwrap() error     { return f.err }
func (f *fault) FaultClass() Class { return f.class }

// Transient wraps err as a transient dependency failure.
func Transient(err error) error { return wrap(ClassTransient, err) }

// Validation wraps err as a non-retryable validation failure.
func Validation(err error) error { return wrap(ClassValidation, err) }

// Timeout wraps err as a budget-exhaustion failure.
func Timeout(err error) error { return wrap(ClassTimeout, err) }

// Config wraps err as a startup configuration failure.
func Config(err error) error { return wrap(ClassConfig, err) }

func wrap(class Class, err error) error {
	if err == nil {
		return nil
	}
	return &fault{class: class, err: err}
}

// ClassOf resolves the class of an arbitrary error. Unknown errors default
// to transient: the dead-letter scheduler, not the caller, decides when to
// give up on them.
func ClassOf(err error) Class {
	if err == nil {
		return ""
	}

	var classified Classifier
	if errors.As(err, &classified) {
		return classified.FaultClass()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && transientSQLState(pgErr.Code) {
		return ClassTransient
	}

	return ClassTransient
}

// Retryable reports whether an error of the given class should reach the
// dead letter queue.
func Retryable(class Class) bool {
	switch class {
	case ClassTransient, ClassTimeout, ClassConflict:
		return true
	default:
		return false
	}
}

// transientSQLState matches SQLSTATE classes that indicate a recoverable
// store condition: connection failures (08), insufficient resources (53),
// operator intervention (57) and lock/serialization failures (40).
func transientSQLState(code string) bool {
	for _, prefix := range []string{"08", "53", "57", "40"} {
		if strings.HasPrefix(code, prefix) {
			return true
		}
	}
	return false
}
