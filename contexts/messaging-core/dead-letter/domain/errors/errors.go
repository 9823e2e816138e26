package errors

import "errors"

var (
	ErrEntryNotFound  = errors.New("dead letter entry not found")
	ErrEntryTerminal  = errors.New("dead letter entry already terminal")
	ErrEmptyEntryID   = errors.New("entry id is required")
	ErrRetryExhausted = errors.New("retry budget exhausted")
)
