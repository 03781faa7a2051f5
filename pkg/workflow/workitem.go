package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/casework/pkg/expression"
	"github.com/dukex/casework/pkg/models"
	"github.com/dukex/casework/pkg/persistence"
)

// StateMachine applies work item transitions inside a unit of work. Every transition
// leaves Ready; terminal states are final.
type StateMachine struct {
	gateway   *Gateway
	evaluator *expression.Evaluator
	now       func() time.Time
}

// NewStateMachine creates a state machine validating forms through gateway.
func NewStateMachine(gateway *Gateway, evaluator *expression.Evaluator) *StateMachine {
	return &StateMachine{
		gateway:   gateway,
		evaluator: evaluator,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Complete moves a Ready work item to Completed once its form validates and its child
// case, if any, is completed.
func (m *StateMachine) Complete(ctx context.Context, tx persistence.Tx, c *models.Case, workItem *models.WorkItem, actor string) error {
	err := m.ensureOpen("complete", c, workItem)
	if err != nil {
		return err
	}

	if workItem.ChildCaseID != nil {
		child, err := tx.Cases().GetByID(ctx, *workItem.ChildCaseID)
		if err != nil {
			return fmt.Errorf("failed to load child case: %w", err)
		}

		if child.Status != models.CaseStatusCompleted {
			return newError("complete", workItem.ID, ErrInvalidState, "child case %s is %s", child.ID, child.Status)
		}
	}

	task, err := tx.Tasks().GetByID(ctx, workItem.TaskID)
	if err != nil {
		return err
	}

	result, err := m.gateway.Validate(ctx, c, task, workItem)
	if err != nil {
		return err
	}

	if !result.OK {
		return &ValidationError{WorkItemID: workItem.ID, Missing: result.Missing}
	}

	return m.close(ctx, tx, workItem, models.WorkItemStatusCompleted, actor)
}

// Skip moves a Ready work item to Skipped without validating its form.
func (m *StateMachine) Skip(ctx context.Context, tx persistence.Tx, c *models.Case, workItem *models.WorkItem, actor string) error {
	err := m.ensureOpen("skip", c, workItem)
	if err != nil {
		return err
	}

	return m.close(ctx, tx, workItem, models.WorkItemStatusSkipped, actor)
}

// Cancel moves a Ready work item to Canceled.
func (m *StateMachine) Cancel(ctx context.Context, tx persistence.Tx, workItem *models.WorkItem, actor string) error {
	if !workItem.IsReady() {
		return newError("cancel", workItem.ID, ErrInvalidState, "work item is %s", workItem.Status)
	}

	return m.close(ctx, tx, workItem, models.WorkItemStatusCanceled, actor)
}

// Save replaces the assigned users and meta of a Ready work item. Nil arguments leave the
// field unchanged.
func (m *StateMachine) Save(ctx context.Context, tx persistence.Tx, workItem *models.WorkItem, assignedUsers []string, meta map[string]any) error {
	if !workItem.IsReady() {
		return newError("save", workItem.ID, ErrInvalidState, "work item is %s", workItem.Status)
	}

	if assignedUsers != nil {
		workItem.AssignedUsers = assignedUsers
	}

	if meta != nil {
		workItem.Meta = meta
	}

	workItem.ModifiedAt = m.now()

	return tx.WorkItems().Update(ctx, workItem)
}

// Create adds another Ready work item of a multiple-instance task to a running case that
// already holds one.
func (m *StateMachine) Create(
	ctx context.Context,
	tx persistence.Tx,
	c *models.Case,
	task *models.Task,
	actor string,
	assignedUsers []string,
	meta map[string]any,
) (*models.WorkItem, error) {
	if !task.IsMultipleInstance {
		return nil, newError("create", task.ID, ErrInvalidTask, "task is not multiple instance")
	}

	if !c.IsRunning() {
		return nil, newError("create", c.ID, ErrInvalidState, "case is %s", c.Status)
	}

	items, err := tx.WorkItems().ByCase(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	sibling := firstReady(items, task.ID)
	if sibling == nil {
		return nil, newError("create", c.ID, ErrInvalidState, "case has no ready work item of task %s", task.ID)
	}

	groups, err := m.groups(ctx, c, task, sibling)
	if err != nil {
		return nil, err
	}

	workItem, err := m.newWorkItem(ctx, tx, c, task, groups, actor, func(w *models.WorkItem) {
		if assignedUsers != nil {
			w.AssignedUsers = assignedUsers
		}

		if meta != nil {
			w.Meta = meta
		}
	})
	if err != nil {
		return nil, err
	}

	return workItem, nil
}

// spawn creates the work items of task. A multiple-instance task addressed to more than
// one group gets one work item per group; any other task gets a single work item
// addressed to every group.
func (m *StateMachine) spawn(ctx context.Context, tx persistence.Tx, c *models.Case, task *models.Task, groups []string, actor string) ([]*models.WorkItem, error) {
	if !task.IsMultipleInstance || len(groups) <= 1 {
		workItem, err := m.newWorkItem(ctx, tx, c, task, groups, actor, nil)
		if err != nil {
			return nil, err
		}

		return []*models.WorkItem{workItem}, nil
	}

	workItems := make([]*models.WorkItem, 0, len(groups))

	for _, group := range groups {
		workItem, err := m.newWorkItem(ctx, tx, c, task, []string{group}, actor, nil)
		if err != nil {
			return nil, err
		}

		workItems = append(workItems, workItem)
	}

	return workItems, nil
}

func (m *StateMachine) newWorkItem(
	ctx context.Context,
	tx persistence.Tx,
	c *models.Case,
	task *models.Task,
	groups []string,
	actor string,
	customize func(*models.WorkItem),
) (*models.WorkItem, error) {
	behavior, err := behaviorOf(task)
	if err != nil {
		return nil, err
	}

	now := m.now()

	if groups == nil {
		groups = []string{}
	}

	workItem := &models.WorkItem{
		ID:              models.NewID(),
		CaseID:          c.ID,
		TaskID:          task.ID,
		Status:          models.WorkItemStatusReady,
		AddressedGroups: groups,
		AssignedUsers:   []string{},
		Meta:            map[string]any{},
		Deadline:        task.Deadline(now),
		CreatedByUser:   actor,
		CreatedAt:       now,
		ModifiedAt:      now,
	}

	if behavior.ownDocument && task.FormID != "" {
		document := &models.Document{FormID: task.FormID}

		err = tx.Documents().CreateDocument(ctx, document)
		if err != nil {
			return nil, fmt.Errorf("failed to create work item document: %w", err)
		}

		workItem.DocumentID = &document.ID
	}

	if customize != nil {
		customize(workItem)
	}

	err = tx.WorkItems().Create(ctx, workItem)
	if err != nil {
		return nil, err
	}

	return workItem, nil
}

// groups resolves the address groups of task. from is the work item the new one follows,
// nil for the start tasks of a case.
func (m *StateMachine) groups(ctx context.Context, c *models.Case, task *models.Task, from *models.WorkItem) ([]string, error) {
	if task.AddressGroups == "" {
		return []string{}, nil
	}

	groups, err := m.evaluator.Groups(ctx, task.AddressGroups, "task "+task.ID, expression.Context{Case: c, WorkItem: from})
	if err != nil {
		return nil, err
	}

	return groups, nil
}

func (m *StateMachine) ensureOpen(op string, c *models.Case, workItem *models.WorkItem) error {
	if !workItem.IsReady() {
		return newError(op, workItem.ID, ErrInvalidState, "work item is %s", workItem.Status)
	}

	if !c.IsRunning() {
		return newError(op, workItem.ID, ErrInvalidState, "case %s is %s", c.ID, c.Status)
	}

	return nil
}

func (m *StateMachine) close(ctx context.Context, tx persistence.Tx, workItem *models.WorkItem, status models.WorkItemStatus, actor string) error {
	now := m.now()

	workItem.Status = status
	workItem.ClosedByUser = actor
	workItem.ClosedAt = &now
	workItem.ModifiedAt = now

	return tx.WorkItems().Update(ctx, workItem)
}

func firstReady(items []*models.WorkItem, taskID string) *models.WorkItem {
	for _, item := range items {
		if item.TaskID == taskID && item.IsReady() {
			return item
		}
	}

	return nil
}
