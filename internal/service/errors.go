package service

import "errors"

// ErrForbidden is returned when a caller edits a strategy it does not own.
var ErrForbidden = errors.New("forbidden")
