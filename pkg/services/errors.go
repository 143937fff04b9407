// Package services holds the error vocabulary shared by the subsystem
// packages (orchestrator, salience, memory, decision) and mapped to HTTP
// status codes by pkg/api.
package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an entity is not found
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists is returned when attempting to create a duplicate entity
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")

	// ErrQueueFull is returned when the bounded event queue rejects an event
	ErrQueueFull = errors.New("queue_full")

	// ErrFrozen is returned when a confidence update targets a frozen heuristic
	ErrFrozen = errors.New("heuristic is frozen")

	// ErrLLMUnavailable is returned when the decision layer has no working LLM
	ErrLLMUnavailable = errors.New("llm_unavailable")
)

// ValidationError wraps field-specific validation errors
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
