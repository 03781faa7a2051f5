package models

import "time"

// TaskType selects the completion behavior of a task's work items.
type TaskType string

const (
	TaskTypeSimple               TaskType = "simple"
	TaskTypeCompleteWorkflowForm TaskType = "complete_workflow_form"
	TaskTypeCompleteTaskForm     TaskType = "complete_task_form"
)

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeSimple, TaskTypeCompleteWorkflowForm, TaskTypeCompleteTaskForm:
		return true
	default:
		return false
	}
}

// Task is a unit of work definition shared across workflows.
type Task struct {
	ID                 string         `json:"id"                    validate:"required,slug"`
	Name               string         `json:"name"                  validate:"required"`
	Description        string         `json:"description,omitempty"`
	Type               TaskType       `json:"type"                  validate:"required,oneof=simple complete_workflow_form complete_task_form"`
	FormID             string         `json:"form,omitempty"        validate:"omitempty,slug"`
	AddressGroups      string         `json:"address_groups,omitempty"` // Expression producing the responsible groups
	IsMultipleInstance bool           `json:"is_multiple_instance"`
	LeadTime           int64          `json:"lead_time,omitempty"   validate:"min=0"` // Seconds until a new work item is due
	Meta               map[string]any `json:"meta,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// Deadline returns the due date of a work item created at from, or nil when the task
// has no lead time.
func (t *Task) Deadline(from time.Time) *time.Time {
	if t.LeadTime <= 0 {
		return nil
	}

	deadline := from.Add(time.Duration(t.LeadTime) * time.Second)

	return &deadline
}
