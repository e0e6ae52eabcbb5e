package core

import "errors"

// Service errors. The api package maps each of them to one HTTP status.
var (
	ErrValidation         = errors.New("invalid request")
	ErrUserNotFound       = errors.New("user not found")
	ErrInsufficientCredit = errors.New("insufficient credits")
	ErrForbidden          = errors.New("forbidden")
	ErrStorage            = errors.New("credit store unavailable")
)

// ValidationError carries a caller-facing message and matches ErrValidation.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Is makes errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(msg string) error { return &ValidationError{Message: msg} }
