package errors

import "errors"

var (
	ErrEmptyMessageID = errors.New("message id is required")
	ErrEmptySubject   = errors.New("subject is required")
)
