package errors

import "errors"

var ErrCircuitOpen = errors.New("circuit open")
