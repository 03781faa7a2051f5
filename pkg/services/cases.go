package services

import (
	"context"
	"fmt"

	"github.com/dukex/casework/pkg/models"
	"github.com/dukex/casework/pkg/persistence"
	"github.com/dukex/casework/pkg/workflow"
	"github.com/go-playground/validator/v10"
)

// Cases starts, reads and cancels cases.
type Cases struct {
	persistence  persistence.Persistence
	orchestrator *workflow.Orchestrator
	validate     *validator.Validate
}

// NewCases creates a new cases service.
func NewCases(persistence persistence.Persistence, orchestrator *workflow.Orchestrator) *Cases {
	return &Cases{
		persistence:  persistence,
		orchestrator: orchestrator,
		validate:     models.NewValidator(),
	}
}

// StartCaseRequest contains the data to start a case.
type StartCaseRequest struct {
	WorkflowID       string         `json:"workflow_id"                   validate:"required"`
	Meta             map[string]any `json:"meta"`
	ParentWorkItemID string         `json:"parent_work_item_id,omitempty" validate:"omitempty,uuid"`
	Actor            string         `json:"-"`
}

// CaseDetail is a case with its work items.
type CaseDetail struct {
	*models.Case

	WorkItems []*models.WorkItem `json:"work_items"`
}

// Start starts a case of a workflow.
func (s *Cases) Start(ctx context.Context, req StartCaseRequest) (*CaseDetail, error) {
	err := s.validate.Struct(req)
	if err != nil {
		return nil, NewValidationError("start_case", "invalid_request", err.Error(), ErrInvalidRequest)
	}

	started, err := s.orchestrator.StartCase(ctx, workflow.StartCaseRequest{
		WorkflowID:       req.WorkflowID,
		Meta:             req.Meta,
		Actor:            req.Actor,
		ParentWorkItemID: req.ParentWorkItemID,
	})
	if err != nil {
		return nil, err
	}

	return &CaseDetail{Case: started.Case, WorkItems: started.Created}, nil
}

// Get returns a case with its work items.
func (s *Cases) Get(ctx context.Context, id string) (*CaseDetail, error) {
	c, err := s.persistence.Cases().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	workItems, err := s.persistence.WorkItems().ByCase(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list work items: %w", err)
	}

	if workItems == nil {
		workItems = []*models.WorkItem{}
	}

	return &CaseDetail{Case: c, WorkItems: workItems}, nil
}

// Cancel cancels a running case.
func (s *Cases) Cancel(ctx context.Context, id, actor string) (*CaseDetail, error) {
	_, err := s.orchestrator.CancelCase(ctx, id, actor)
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, id)
}
