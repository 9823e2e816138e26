package units

import "errors"

var (
	ErrMissingMessageID = errors.New("unit missing message id")
	ErrMissingSubject   = errors.New("unit missing subject")
)
