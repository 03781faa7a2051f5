// Package services exposes the casework use cases consumed by the HTTP API and the CLI.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/casework/pkg/definition"
	"github.com/dukex/casework/pkg/persistence"
	"github.com/dukex/casework/pkg/workflow"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest = errors.New("invalid request")
	ErrInvalidQuery   = persistence.ErrInvalidQuery

	// Reference Errors (400 Bad Request): a definition points at a missing entity.
	ErrUnknownReference = errors.New("unknown reference")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidQuery) ||
		errors.Is(err, ErrUnknownReference) ||
		errors.Is(err, definition.ErrInvalidDefinition) ||
		errors.Is(err, workflow.ErrExpression)
}

// IsConflictError checks if an error is a state conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, workflow.ErrInvalidState) ||
		errors.Is(err, workflow.ErrInvalidTask) ||
		errors.Is(err, persistence.ErrAlreadyExists)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
