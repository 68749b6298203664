package models

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds shared by every service. Package-specific errors wrap one of
// these with %w so the HTTP boundary can classify them with errors.Is.
var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state")
	ErrValidation        = errors.New("validation failed")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrFull              = errors.New("capacity reached")
	ErrAlreadyRegistered = errors.New("already registered")
	ErrConflict          = errors.New("conflict")
	ErrInternal          = errors.New("internal error")
)

// ErrForbidden is the Unauthorized sub-kind for an identity that is known but
// lacks permission on the target record.
var ErrForbidden = fmt.Errorf("%w: permission denied", ErrUnauthorized)

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries per-field details and matches ErrValidation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Add records a field failure.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// Err returns nil when no field failed.
func (e *ValidationError) Err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// NewValidationError builds a single-field validation error.
func NewValidationError(field, message string) error {
	v := &ValidationError{}
	v.Add(field, message)
	return v
}
