package models

import "time"

// WorkItemStatus represents the lifecycle state of a work item.
type WorkItemStatus string

const (
	WorkItemStatusReady     WorkItemStatus = "ready"
	WorkItemStatusCompleted WorkItemStatus = "completed"
	WorkItemStatusSkipped   WorkItemStatus = "skipped"
	WorkItemStatusCanceled  WorkItemStatus = "canceled"
)

// IsTerminal reports whether no further transition is allowed out of s.
func (s WorkItemStatus) IsTerminal() bool {
	return s != WorkItemStatusReady
}

// Valid reports whether s is a known status.
func (s WorkItemStatus) Valid() bool {
	switch s {
	case WorkItemStatusReady, WorkItemStatusCompleted, WorkItemStatusSkipped, WorkItemStatusCanceled:
		return true
	default:
		return false
	}
}

// WorkItem is an instance of a task within a case.
type WorkItem struct {
	ID              string         `json:"id"`
	CaseID          string         `json:"case_id"                  validate:"required"`
	TaskID          string         `json:"task_id"                  validate:"required"`
	Status          WorkItemStatus `json:"status"                   validate:"required"`
	ChildCaseID     *string        `json:"child_case_id,omitempty"`
	DocumentID      *string        `json:"document_id,omitempty"`
	AddressedGroups []string       `json:"addressed_groups"`
	AssignedUsers   []string       `json:"assigned_users"`
	Meta            map[string]any `json:"meta"`
	Deadline        *time.Time     `json:"deadline,omitempty"`
	CreatedByUser   string         `json:"created_by_user,omitempty"`
	ClosedByUser    string         `json:"closed_by_user,omitempty"`
	ClosedAt        *time.Time     `json:"closed_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	ModifiedAt      time.Time      `json:"modified_at"`
}

// IsReady reports whether the work item is still open.
func (w *WorkItem) IsReady() bool {
	return w.Status == WorkItemStatusReady
}
