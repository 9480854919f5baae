package engine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation       = errors.New("validation error")
	ErrInsufficientData = errors.New("insufficient data")
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned before any computation when a strategy or
// backtest config is malformed.
type ValidationError struct {
	Problems []FieldError
}

// NewValidationError reports a single field problem.
func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	verr := &ValidationError{}
	verr.add(field, format, args...)
	return verr
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, fmt.Sprintf("%s: %s", p.Field, p.Message))
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) add(field, format string, args ...interface{}) {
	e.Problems = append(e.Problems, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (e *ValidationError) orNil() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}

// InsufficientDataError means a series is too short to evaluate, which is
// distinct from evaluating and finding no signal.
type InsufficientDataError struct {
	Symbol    string
	Required  int
	Available int
	Reason    string
}

func (e *InsufficientDataError) Error() string {
	msg := fmt.Sprintf("%s for %s: need %d bars, have %d", ErrInsufficientData, e.Symbol, e.Required, e.Available)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}
