package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrNotFound is the parent of every entity-specific not found error.
	ErrNotFound = errors.New("not found")

	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = fmt.Errorf("workflow %w", ErrNotFound)

	// ErrTaskNotFound indicates a task was not found by the given identifier.
	ErrTaskNotFound = fmt.Errorf("task %w", ErrNotFound)

	// ErrFlowNotFound indicates a flow was not found by the given identifier.
	ErrFlowNotFound = fmt.Errorf("flow %w", ErrNotFound)

	// ErrCaseNotFound indicates a case was not found by the given identifier.
	ErrCaseNotFound = fmt.Errorf("case %w", ErrNotFound)

	// ErrWorkItemNotFound indicates a work item was not found by the given identifier.
	ErrWorkItemNotFound = fmt.Errorf("work item %w", ErrNotFound)

	// ErrFormNotFound indicates a form was not found by the given identifier.
	ErrFormNotFound = fmt.Errorf("form %w", ErrNotFound)

	// ErrQuestionNotFound indicates a question was not found by the given identifier.
	ErrQuestionNotFound = fmt.Errorf("question %w", ErrNotFound)

	// ErrDocumentNotFound indicates a document was not found by the given identifier.
	ErrDocumentNotFound = fmt.Errorf("document %w", ErrNotFound)

	// ErrAlreadyExists indicates an insert collided with an existing identifier.
	ErrAlreadyExists = errors.New("already exists")

	// ErrLockTimeout indicates a case lock could not be acquired before the timeout.
	ErrLockTimeout = errors.New("lock timeout")

	// ErrInvalidQuery indicates a malformed work item query.
	ErrInvalidQuery = errors.New("invalid query")
)

// EntityError wraps an entity-related error with the operation and identifier.
type EntityError struct {
	Op     string // Operation being performed (e.g., "GetByID", "Update", "Lock")
	Entity string // Entity kind (e.g., "case", "work item")
	ID     string
	Err    error
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for entity errors.
func (e *EntityError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewEntityError creates a new entity error with context.
func NewEntityError(op, entity, id string, err error) *EntityError {
	return &EntityError{
		Op:     op,
		Entity: entity,
		ID:     id,
		Err:    err,
	}
}

// IsNotFound checks if an error indicates a missing entity of any kind.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsLockTimeout checks if an error indicates a lock timeout.
func IsLockTimeout(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}
