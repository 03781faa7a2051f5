// Package models defines the core domain models for case-based workflow management.
package models

import "time"

// Workflow is the template of a class of cases: the reachable tasks and the flows between them.
type Workflow struct {
	ID           string         `json:"id"                 validate:"required,slug"`
	Name         string         `json:"name"               validate:"required,min=3"`
	Description  string         `json:"description"`
	StartTaskIDs []string       `json:"start_tasks"        validate:"required,min=1,dive,slug"`
	FormID       string         `json:"form,omitempty"     validate:"omitempty,slug"` // Form of the case document
	IsPublished  bool           `json:"is_published"`
	Meta         map[string]any `json:"meta,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Flow is a conditional edge: Next is an expression resolving to the successor task(s).
type Flow struct {
	ID        string    `json:"id"   validate:"required"`
	Next      string    `json:"next" validate:"required"`
	CreatedAt time.Time `json:"created_at"`
}

// TaskFlow attaches a flow to a task within one workflow. Several tasks sharing a
// flow converge on its successors (merge).
type TaskFlow struct {
	ID         string `json:"id"          validate:"required"`
	WorkflowID string `json:"workflow_id" validate:"required"`
	TaskID     string `json:"task_id"     validate:"required"`
	FlowID     string `json:"flow_id"     validate:"required"`
}
