package core

import (
	"errors"
	"fmt"
)

// Stable error kinds surfaced to clients as the "error" field of the JSON
// envelope.
var (
	ErrNotFound          = errors.New("not_found")
	ErrAlreadyRegistered = errors.New("already_registered")
	ErrNotRegistered     = errors.New("not_registered")
	ErrInvalidCode       = errors.New("invalid_code")
	ErrExpired           = errors.New("expired")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrStoreUnavailable  = errors.New("store_unavailable")
)

// ValidationError rejects a whole batch or request body. Details carries
// per-field or per-index messages.
type ValidationError struct {
	Details map[string]string
}

func (e *ValidationError) Error() string { return "validation_error" }

func NewValidationError(details map[string]string) *ValidationError {
	return &ValidationError{Details: details}
}

// ProviderError is a delivery failure reported by a provider. It is returned
// as a plain error so the queue's retry policy applies uniformly; Diagnostic
// keeps whatever the provider said for the terminal failure record.
type ProviderError struct {
	Message    string
	Diagnostic any
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider: %s", e.Message)
}
