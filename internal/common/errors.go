// Package common defines shared constants and sentinel errors used across
// userhub layers. Callers should use errors.Is / errors.As to match these
// values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrorInternal           = errors.New("internal error")
	ErrorInvalidCredentials = errors.New("invalid credentials")
	ErrorExternalService    = errors.New("external service error")
	ErrorForbidden          = errors.New("forbidden")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// ValidationError reports bad or missing input for a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a *ValidationError for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
