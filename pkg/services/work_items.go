package services

import (
	"context"

	"github.com/dukex/casework/pkg/models"
	"github.com/dukex/casework/pkg/persistence"
	"github.com/dukex/casework/pkg/workflow"
	"github.com/go-playground/validator/v10"
)

// WorkItems reads and drives work items.
type WorkItems struct {
	persistence  persistence.Persistence
	orchestrator *workflow.Orchestrator
	validate     *validator.Validate
}

// NewWorkItems creates a new work items service.
func NewWorkItems(persistence persistence.Persistence, orchestrator *workflow.Orchestrator) *WorkItems {
	return &WorkItems{
		persistence:  persistence,
		orchestrator: orchestrator,
		validate:     models.NewValidator(),
	}
}

// AnswerFilter matches documents answering Question with exactly Value.
type AnswerFilter struct {
	Question string `json:"question" validate:"required"`
	Value    any    `json:"value"`
}

// ValueFilter compares a meta key against Value using Lookup (exact by default).
type ValueFilter struct {
	Key    string `json:"key"    validate:"required"`
	Value  any    `json:"value"`
	Lookup string `json:"lookup" validate:"omitempty,oneof=exact startswith contains icontains gte gt lte lt"`
}

// ListWorkItemsRequest contains options for listing work items.
type ListWorkItemsRequest struct {
	// Filtering
	Status          []string       `validate:"dive,oneof=ready completed skipped canceled"`
	AddressedGroups []string
	CaseID          string
	TaskIDs         []string
	HasAnswer       []AnswerFilter `validate:"dive"`
	CaseHasAnswer   []AnswerFilter `validate:"dive"`
	CaseMetaValue   []ValueFilter  `validate:"dive"`
	MetaValue       []ValueFilter  `validate:"dive"`

	// Sorting
	SortBy    string `validate:"omitempty,oneof=created_at modified_at deadline"`
	SortOrder string `validate:"omitempty,oneof=asc desc"`

	// Pagination
	Limit  int `validate:"min=0,max=1000"`
	Offset int `validate:"min=0"`
}

// Query converts the request to a work item query.
func (r ListWorkItemsRequest) Query() persistence.WorkItemQuery {
	query := persistence.WorkItemQuery{
		SortBy:    r.SortBy,
		SortOrder: r.SortOrder,
		Limit:     r.Limit,
		Offset:    r.Offset,
	}

	if len(r.Status) > 0 {
		statuses := make([]models.WorkItemStatus, 0, len(r.Status))
		for _, status := range r.Status {
			statuses = append(statuses, models.WorkItemStatus(status))
		}

		query.Filters = append(query.Filters, persistence.StatusFilter{Statuses: statuses})
	}

	if len(r.AddressedGroups) > 0 {
		query.Filters = append(query.Filters, persistence.AddressedGroupsFilter{Groups: r.AddressedGroups})
	}

	if r.CaseID != "" {
		query.Filters = append(query.Filters, persistence.CaseFilter{CaseID: r.CaseID})
	}

	if len(r.TaskIDs) > 0 {
		query.Filters = append(query.Filters, persistence.TaskFilter{TaskIDs: r.TaskIDs})
	}

	for _, f := range r.HasAnswer {
		query.Filters = append(query.Filters, persistence.DocumentHasAnswerFilter{QuestionID: f.Question, Value: f.Value})
	}

	for _, f := range r.CaseHasAnswer {
		query.Filters = append(query.Filters, persistence.CaseDocumentHasAnswerFilter{QuestionID: f.Question, Value: f.Value})
	}

	for _, f := range r.CaseMetaValue {
		query.Filters = append(query.Filters, persistence.CaseMetaValueFilter{Key: f.Key, Lookup: persistence.Lookup(f.Lookup), Value: f.Value})
	}

	for _, f := range r.MetaValue {
		query.Filters = append(query.Filters, persistence.MetaValueFilter{Key: f.Key, Lookup: persistence.Lookup(f.Lookup), Value: f.Value})
	}

	return query
}

// List retrieves work items with filtering, sorting, and pagination.
func (s *WorkItems) List(ctx context.Context, req ListWorkItemsRequest) (*persistence.WorkItemListResult, error) {
	err := s.validate.Struct(req)
	if err != nil {
		return nil, NewValidationError("list_work_items", "invalid_query", err.Error(), ErrInvalidQuery)
	}

	result, err := s.persistence.WorkItems().Query(ctx, req.Query())
	if err != nil {
		return nil, err
	}

	if result.WorkItems == nil {
		result.WorkItems = []*models.WorkItem{}
	}

	return result, nil
}

// Get returns a work item.
func (s *WorkItems) Get(ctx context.Context, id string) (*models.WorkItem, error) {
	return s.persistence.WorkItems().GetByID(ctx, id)
}

// Complete completes a work item and advances its case.
func (s *WorkItems) Complete(ctx context.Context, id, actor string) (*workflow.Transition, error) {
	return s.orchestrator.CompleteWorkItem(ctx, id, actor)
}

// Skip skips a work item and advances its case.
func (s *WorkItems) Skip(ctx context.Context, id, actor string) (*workflow.Transition, error) {
	return s.orchestrator.SkipWorkItem(ctx, id, actor)
}

// SaveWorkItemRequest contains the mutable fields of a Ready work item. Nil fields are
// left unchanged.
type SaveWorkItemRequest struct {
	AssignedUsers []string       `json:"assigned_users"`
	Meta          map[string]any `json:"meta"`
}

// Save updates the assigned users and meta of a Ready work item.
func (s *WorkItems) Save(ctx context.Context, id, actor string, req SaveWorkItemRequest) (*models.WorkItem, error) {
	return s.orchestrator.SaveWorkItem(ctx, id, actor, req.AssignedUsers, req.Meta)
}

// CreateWorkItemRequest contains the data of a new multiple-instance work item.
type CreateWorkItemRequest struct {
	TaskID        string         `json:"task_id"        validate:"required"`
	AssignedUsers []string       `json:"assigned_users"`
	Meta          map[string]any `json:"meta"`
}

// Create adds a work item of a multiple-instance task to a case.
func (s *WorkItems) Create(ctx context.Context, caseID, actor string, req CreateWorkItemRequest) (*models.WorkItem, error) {
	err := s.validate.Struct(req)
	if err != nil {
		return nil, NewValidationError("create_work_item", "invalid_request", err.Error(), ErrInvalidRequest)
	}

	return s.orchestrator.CreateWorkItem(ctx, caseID, req.TaskID, actor, req.AssignedUsers, req.Meta)
}
