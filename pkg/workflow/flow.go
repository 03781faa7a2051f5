package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dukex/casework/pkg/expression"
	"github.com/dukex/casework/pkg/models"
	"github.com/dukex/casework/pkg/persistence"
)

// FlowResolver creates the work items following a closed work item.
type FlowResolver struct {
	logger    *slog.Logger
	machine   *StateMachine
	evaluator *expression.Evaluator
}

// NewFlowResolver creates a resolver spawning work items through machine.
func NewFlowResolver(logger *slog.Logger, machine *StateMachine, evaluator *expression.Evaluator) *FlowResolver {
	return &FlowResolver{logger: logger.With("module", "flow_resolver"), machine: machine, evaluator: evaluator}
}

// Resolve evaluates the flows leaving the task of closed and creates the successor work
// items that are due. A successor reached from several tasks (merge) is created only once
// every one of those tasks has a work item in the case and none of them is Ready. A
// successor with a Ready work item already in the case is not created again. Tasks
// without flows are dead ends.
func (r *FlowResolver) Resolve(ctx context.Context, tx persistence.Tx, c *models.Case, closed *models.WorkItem, actor string) ([]*models.WorkItem, error) {
	items, err := tx.WorkItems().ByCase(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	items = withCurrent(items, closed)

	task, err := tx.Tasks().GetByID(ctx, closed.TaskID)
	if err != nil {
		return nil, err
	}

	if task.IsMultipleInstance && firstReady(items, task.ID) != nil {
		return nil, nil
	}

	env := expression.Context{Case: c, WorkItem: closed}
	lookup := expression.TaskLookupFunc(tx.Tasks().Exists)

	successors, err := r.successors(ctx, tx, c, closed, env, lookup)
	if err != nil {
		return nil, err
	}

	if len(successors) == 0 {
		return nil, nil
	}

	predecessors, err := r.predecessors(ctx, tx, c, items, closed, successors, lookup)
	if err != nil {
		return nil, err
	}

	created := make([]*models.WorkItem, 0, len(successors))

	for _, taskID := range successors {
		if firstReady(items, taskID) != nil {
			continue
		}

		preds := predecessors[taskID]
		if len(preds) > 1 && !merged(items, preds) {
			continue
		}

		successor, err := tx.Tasks().GetByID(ctx, taskID)
		if err != nil {
			return nil, err
		}

		groups, err := r.machine.groups(ctx, c, successor, closed)
		if err != nil {
			return nil, err
		}

		spawned, err := r.machine.spawn(ctx, tx, c, successor, groups, actor)
		if err != nil {
			return nil, err
		}

		items = append(items, spawned...)
		created = append(created, spawned...)
	}

	return created, nil
}

// successors evaluates the flows leaving the task of closed, keeping first occurrences.
func (r *FlowResolver) successors(
	ctx context.Context,
	tx persistence.Tx,
	c *models.Case,
	closed *models.WorkItem,
	env expression.Context,
	lookup expression.TaskLookup,
) ([]string, error) {
	flows, err := tx.Flows().ByTask(ctx, c.WorkflowID, closed.TaskID)
	if err != nil {
		return nil, err
	}

	var successors []string

	for _, flow := range flows {
		taskIDs, err := r.evaluator.Tasks(ctx, flow.Next, "flow "+flow.ID, env, lookup)
		if err != nil {
			return nil, err
		}

		for _, taskID := range taskIDs {
			if !slices.Contains(successors, taskID) {
				successors = append(successors, taskID)
			}
		}
	}

	return successors, nil
}

// predecessors maps each successor to the tasks whose flows lead to it. The flows of
// closed's task target every successor. Other constant flows are read from their AST;
// the remaining ones are evaluated against the latest work item of their own task, and
// a flow that fails to evaluate is taken as leading nowhere.
func (r *FlowResolver) predecessors(
	ctx context.Context,
	tx persistence.Tx,
	c *models.Case,
	items []*models.WorkItem,
	closed *models.WorkItem,
	successors []string,
	lookup expression.TaskLookup,
) (map[string][]string, error) {
	taskFlows, err := tx.Flows().TaskFlows(ctx, c.WorkflowID)
	if err != nil {
		return nil, err
	}

	predecessors := make(map[string][]string, len(successors))

	add := func(taskID, predecessor string) {
		if slices.Contains(successors, taskID) && !slices.Contains(predecessors[taskID], predecessor) {
			predecessors[taskID] = append(predecessors[taskID], predecessor)
		}
	}

	for _, taskID := range successors {
		add(taskID, closed.TaskID)
	}

	for _, taskFlow := range taskFlows {
		if taskFlow.TaskID == closed.TaskID {
			continue
		}

		env := expression.Context{Case: c, WorkItem: latest(items, taskFlow.TaskID)}

		next, err := r.targets(ctx, tx, taskFlow.FlowID, env, lookup)
		if err != nil {
			if !errors.Is(err, expression.ErrExpression) {
				return nil, err
			}

			r.logger.WarnContext(ctx, "ignoring flow in merge analysis",
				"case_id", c.ID, "flow_id", taskFlow.FlowID, "task_id", taskFlow.TaskID, "error", err)

			continue
		}

		for _, taskID := range next {
			add(taskID, taskFlow.TaskID)
		}
	}

	return predecessors, nil
}

func (r *FlowResolver) targets(ctx context.Context, tx persistence.Tx, flowID string, env expression.Context, lookup expression.TaskLookup) ([]string, error) {
	flow, err := tx.Flows().GetByID(ctx, flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load flow %s: %w", flowID, err)
	}

	node, err := r.evaluator.Parse(flow.Next)
	if err == nil {
		if static, ok := expression.StaticTaskRefs(node); ok {
			return static, nil
		}
	}

	return r.evaluator.Tasks(ctx, flow.Next, "flow "+flow.ID, env, lookup)
}

// latest returns the most recently created work item of task, nil when there is none.
func latest(items []*models.WorkItem, taskID string) *models.WorkItem {
	var found *models.WorkItem

	for _, item := range items {
		if item.TaskID == taskID && (found == nil || !item.CreatedAt.Before(found.CreatedAt)) {
			found = item
		}
	}

	return found
}

// merged reports whether every predecessor task has a work item in the case and none of
// them is Ready.
func merged(items []*models.WorkItem, predecessors []string) bool {
	for _, taskID := range predecessors {
		seen := false

		for _, item := range items {
			if item.TaskID != taskID {
				continue
			}

			if item.IsReady() {
				return false
			}

			seen = true
		}

		if !seen {
			return false
		}
	}

	return true
}

// withCurrent replaces the stored copy of current in items.
func withCurrent(items []*models.WorkItem, current *models.WorkItem) []*models.WorkItem {
	for i, item := range items {
		if item.ID == current.ID {
			items[i] = current

			return items
		}
	}

	return append(items, current)
}
