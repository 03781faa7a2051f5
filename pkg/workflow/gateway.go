package workflow

import (
	"context"
	"fmt"

	"github.com/dukex/casework/pkg/models"
	"github.com/dukex/casework/pkg/validation"
)

// taskBehavior describes how work items of one task type are validated and created.
type taskBehavior struct {
	// document selects the document validated before completion, nil when nothing is validated.
	document func(c *models.Case, workItem *models.WorkItem) *string
	// ownDocument gives each new work item a fresh document of the task form.
	ownDocument bool
}

var taskTypes = map[models.TaskType]taskBehavior{
	models.TaskTypeSimple: {},
	models.TaskTypeCompleteWorkflowForm: {
		document: func(c *models.Case, _ *models.WorkItem) *string { return c.DocumentID },
	},
	models.TaskTypeCompleteTaskForm: {
		document:    func(_ *models.Case, workItem *models.WorkItem) *string { return workItem.DocumentID },
		ownDocument: true,
	},
}

func behaviorOf(task *models.Task) (taskBehavior, error) {
	behavior, ok := taskTypes[task.Type]
	if !ok {
		return taskBehavior{}, fmt.Errorf("%w: task %s has unknown type %q", ErrInvalidTask, task.ID, task.Type)
	}

	return behavior, nil
}

// Gateway decides whether the form attached to a work item is complete.
type Gateway struct {
	service validation.Service
}

// NewGateway creates a gateway consulting service.
func NewGateway(service validation.Service) *Gateway {
	return &Gateway{service: service}
}

// Validate checks the document a work item of task must complete. Tasks without a form
// validate OK.
func (g *Gateway) Validate(ctx context.Context, c *models.Case, task *models.Task, workItem *models.WorkItem) (validation.Result, error) {
	behavior, err := behaviorOf(task)
	if err != nil {
		return validation.Result{}, err
	}

	if behavior.document == nil {
		return validation.Result{OK: true}, nil
	}

	documentID := behavior.document(c, workItem)
	if documentID == nil || *documentID == "" {
		return validation.Result{OK: true}, nil
	}

	result, err := g.service.ValidateDocument(ctx, *documentID)
	if err != nil {
		return validation.Result{}, fmt.Errorf("failed to validate document %s: %w", *documentID, err)
	}

	return result, nil
}
