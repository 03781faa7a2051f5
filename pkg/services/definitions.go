package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/casework/pkg/definition"
	"github.com/dukex/casework/pkg/expression"
	"github.com/dukex/casework/pkg/models"
	"github.com/dukex/casework/pkg/persistence"
)

// Definitions manages workflow definitions.
type Definitions struct {
	persistence persistence.Persistence
	logger      *slog.Logger
}

// NewDefinitions creates a new definitions service.
func NewDefinitions(logger *slog.Logger, persistence persistence.Persistence) *Definitions {
	return &Definitions{
		persistence: persistence,
		logger:      logger.With("module", "definitions"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (d *Definitions) HealthCheck(ctx context.Context) (string, bool) {
	if d.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := d.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ImportResult counts the imported definitions.
type ImportResult struct {
	Forms     int `json:"forms"`
	Questions int `json:"questions"`
	Tasks     int `json:"tasks"`
	Workflows int `json:"workflows"`
	Flows     int `json:"flows"`
}

// Import saves every definition of doc in one unit of work. The flows of an imported
// workflow replace its previous flows. References to forms and tasks may point at the
// document itself or at definitions already stored.
func (d *Definitions) Import(ctx context.Context, doc *definition.Document) (*ImportResult, error) {
	err := doc.Validate()
	if err != nil {
		return nil, err
	}

	graph, err := doc.Graph()
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}

	err = d.persistence.Transaction(ctx, func(ctx context.Context, tx persistence.Tx) error {
		result = &ImportResult{}

		for _, question := range graph.Questions {
			err := tx.Forms().SaveQuestion(ctx, question)
			if err != nil {
				return err
			}

			result.Questions++
		}

		for _, form := range graph.Forms {
			err := tx.Forms().SaveForm(ctx, form)
			if err != nil {
				return err
			}

			result.Forms++
		}

		for _, question := range graph.Questions {
			if question.RowFormID != "" {
				err := formExists(ctx, tx, "question "+question.ID, question.RowFormID)
				if err != nil {
					return err
				}
			}
		}

		for _, task := range graph.Tasks {
			if task.FormID != "" {
				err := formExists(ctx, tx, "task "+task.ID, task.FormID)
				if err != nil {
					return err
				}
			}

			err := tx.Tasks().Save(ctx, task)
			if err != nil {
				return err
			}

			result.Tasks++
		}

		for _, wg := range graph.Workflows {
			err := importWorkflow(ctx, tx, wg)
			if err != nil {
				return err
			}

			result.Workflows++
			result.Flows += len(wg.Flows)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to import definitions: %w", err)
	}

	d.logger.InfoContext(ctx, "Imported definitions",
		"forms", result.Forms,
		"tasks", result.Tasks,
		"workflows", result.Workflows,
		"flows", result.Flows,
	)

	return result, nil
}

func importWorkflow(ctx context.Context, tx persistence.Tx, wg *definition.WorkflowGraph) error {
	workflow := wg.Workflow
	source := "workflow " + workflow.ID

	if workflow.FormID != "" {
		err := formExists(ctx, tx, source, workflow.FormID)
		if err != nil {
			return err
		}
	}

	for _, taskID := range workflow.StartTaskIDs {
		err := taskExists(ctx, tx, source, taskID)
		if err != nil {
			return err
		}
	}

	existing, err := tx.Workflows().GetByID(ctx, workflow.ID)
	if err == nil {
		workflow.CreatedAt = existing.CreatedAt
	} else if !persistence.IsNotFound(err) {
		return err
	}

	err = tx.Workflows().Save(ctx, workflow)
	if err != nil {
		return err
	}

	err = tx.Flows().DeleteTaskFlows(ctx, workflow.ID)
	if err != nil {
		return err
	}

	for _, flow := range wg.Flows {
		err = flowTargetsExist(ctx, tx, flow)
		if err != nil {
			return err
		}

		err = tx.Flows().Save(ctx, flow)
		if err != nil {
			return err
		}
	}

	for _, taskFlow := range wg.TaskFlows {
		err = taskExists(ctx, tx, "flow "+taskFlow.FlowID, taskFlow.TaskID)
		if err != nil {
			return err
		}

		err = tx.Flows().SaveTaskFlow(ctx, taskFlow)
		if err != nil {
			return err
		}
	}

	return nil
}

// flowTargetsExist checks the successors of a flow that can be known without a case.
func flowTargetsExist(ctx context.Context, tx persistence.Tx, flow *models.Flow) error {
	node, err := expression.Parse(flow.Next)
	if err != nil {
		return err
	}

	targets, static := expression.StaticTaskRefs(node)
	if !static {
		return nil
	}

	for _, taskID := range targets {
		exists, err := tx.Tasks().Exists(ctx, taskID)
		if err != nil {
			return err
		}

		if !exists {
			return &expression.Error{Expr: flow.Next, Source: "flow " + flow.ID, Reason: fmt.Sprintf("unknown task %q", taskID)}
		}
	}

	return nil
}

func taskExists(ctx context.Context, tx persistence.Tx, source, taskID string) error {
	exists, err := tx.Tasks().Exists(ctx, taskID)
	if err != nil {
		return err
	}

	if !exists {
		return fmt.Errorf("%w: %s references task %q", ErrUnknownReference, source, taskID)
	}

	return nil
}

func formExists(ctx context.Context, tx persistence.Tx, source, formID string) error {
	_, err := tx.Forms().GetForm(ctx, formID)
	if persistence.IsNotFound(err) {
		return fmt.Errorf("%w: %s references form %q", ErrUnknownReference, source, formID)
	}

	return err
}

// WorkflowDetail is a workflow with its flows.
type WorkflowDetail struct {
	*models.Workflow

	Flows     []*models.Flow     `json:"flows"`
	TaskFlows []*models.TaskFlow `json:"task_flows"`
}

// ListWorkflows returns every workflow.
func (d *Definitions) ListWorkflows(ctx context.Context) ([]*models.Workflow, error) {
	workflows, err := d.persistence.Workflows().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return workflows, nil
}

// GetWorkflow returns a workflow with its flows.
func (d *Definitions) GetWorkflow(ctx context.Context, id string) (*WorkflowDetail, error) {
	workflow, err := d.persistence.Workflows().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	taskFlows, err := d.persistence.Flows().TaskFlows(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list task flows: %w", err)
	}

	detail := &WorkflowDetail{Workflow: workflow, Flows: []*models.Flow{}, TaskFlows: taskFlows}
	seen := map[string]bool{}

	for _, taskFlow := range taskFlows {
		if seen[taskFlow.FlowID] {
			continue
		}

		seen[taskFlow.FlowID] = true

		flow, err := d.persistence.Flows().GetByID(ctx, taskFlow.FlowID)
		if err != nil {
			return nil, err
		}

		detail.Flows = append(detail.Flows, flow)
	}

	return detail, nil
}

// ListTasks returns every task.
func (d *Definitions) ListTasks(ctx context.Context) ([]*models.Task, error) {
	tasks, err := d.persistence.Tasks().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	return tasks, nil
}
