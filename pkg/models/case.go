package models

import "time"

// CaseStatus represents the lifecycle state of a case.
type CaseStatus string

const (
	CaseStatusRunning   CaseStatus = "running"
	CaseStatusCompleted CaseStatus = "completed"
	CaseStatusCanceled  CaseStatus = "canceled"
)

// Case is a running instance of a workflow. It exclusively owns its work items.
type Case struct {
	ID               string         `json:"id"`
	WorkflowID       string         `json:"workflow_id"                   validate:"required"`
	Status           CaseStatus     `json:"status"                        validate:"required,oneof=running completed canceled"`
	Meta             map[string]any `json:"meta"`
	DocumentID       *string        `json:"document_id,omitempty"`
	ParentWorkItemID *string        `json:"parent_work_item_id,omitempty"` // Set when the case is a child case
	CreatedByUser    string         `json:"created_by_user,omitempty"`
	ClosedByUser     string         `json:"closed_by_user,omitempty"`
	ClosedAt         *time.Time     `json:"closed_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	ModifiedAt       time.Time      `json:"modified_at"`
}

// IsRunning reports whether the case still accepts work.
func (c *Case) IsRunning() bool {
	return c.Status == CaseStatusRunning
}
