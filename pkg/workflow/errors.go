package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/casework/pkg/expression"
	"github.com/dukex/casework/pkg/persistence"
)

var (
	// ErrInvalidState indicates the operation is not allowed in the current work item or case state.
	ErrInvalidState = errors.New("invalid state")

	// ErrValidationFailed indicates the form of a work item is incomplete.
	ErrValidationFailed = errors.New("validation failed")

	// ErrExpression indicates a malformed flow or group expression.
	ErrExpression = expression.ErrExpression

	// ErrInvalidTask indicates a multiple-instance operation on a regular task or an unusable task.
	ErrInvalidTask = errors.New("invalid task")

	// ErrNotFound indicates a missing entity. Every persistence not found error matches it.
	ErrNotFound = persistence.ErrNotFound

	// ErrTimeout indicates the case lock could not be taken in time. Callers should retry.
	ErrTimeout = errors.New("timeout")

	// ErrRepository wraps storage failures.
	ErrRepository = errors.New("repository error")
)

// Error adds the operation and the entity id to a workflow error.
type Error struct {
	Op  string
	ID  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op, id string, err error, format string, args ...any) *Error {
	return &Error{Op: op, ID: id, Err: fmt.Errorf("%w: %s", err, fmt.Sprintf(format, args...))}
}

// ValidationError lists the questions keeping a work item from being completed.
type ValidationError struct {
	WorkItemID string
	Missing    []string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) == 0 {
		return fmt.Sprintf("work item %s: %v", e.WorkItemID, ErrValidationFailed)
	}

	return fmt.Sprintf("work item %s: %v: missing %s", e.WorkItemID, ErrValidationFailed, strings.Join(e.Missing, ", "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// classify maps storage failures leaving a unit of work onto the workflow taxonomy.
// Errors already in the taxonomy pass unchanged.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case persistence.IsLockTimeout(err):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrValidationFailed),
		errors.Is(err, ErrExpression),
		errors.Is(err, ErrInvalidTask),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrRepository),
		errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %w", ErrRepository, err)
	}
}
