package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/casework/pkg/models"
	"github.com/dukex/casework/pkg/persistence"
	"github.com/lib/pq"
)

type scanner interface {
	Scan(dest ...any) error
}

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	q      querier
	logger *slog.Logger
}

const workflowColumns = `
	id
  , name
  , description
  , start_task_ids
  , form_id
  , is_published
  , meta
  , created_at
  , updated_at
`

// Save inserts or updates a workflow.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	meta, err := marshalMeta(workflow.Meta)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflows (id, name, description, start_task_ids, form_id, is_published, meta, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			start_task_ids = EXCLUDED.start_task_ids,
			form_id = EXCLUDED.form_id,
			is_published = EXCLUDED.is_published,
			meta = EXCLUDED.meta,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.q.ExecContext(ctx, query,
		workflow.ID,
		workflow.Name,
		workflow.Description,
		textArray(workflow.StartTaskIDs),
		workflow.FormID,
		workflow.IsPublished,
		meta,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow %s: %w", workflow.ID, err)
	}

	return nil
}

// GetByID returns a workflow by id.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	row := r.q.QueryRowContext(ctx, "SELECT "+workflowColumns+" FROM workflows WHERE id = $1", id)

	workflow, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewEntityError("GetByID", "workflow", id, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	return workflow, nil
}

// List returns all workflows ordered by id.
func (r *WorkflowRepository) List(ctx context.Context) ([]*models.Workflow, error) {
	rows, err := r.q.QueryContext(ctx, "SELECT "+workflowColumns+" FROM workflows ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

func scanWorkflow(row scanner) (*models.Workflow, error) {
	var (
		workflow models.Workflow
		meta     []byte
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.Name,
		&workflow.Description,
		pq.Array(&workflow.StartTaskIDs),
		&workflow.FormID,
		&workflow.IsPublished,
		&meta,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	workflow.Meta, err = unmarshalMeta(meta)
	if err != nil {
		return nil, err
	}

	return &workflow, nil
}

// TaskRepository handles task-related database operations.
type TaskRepository struct {
	q      querier
	logger *slog.Logger
}

const taskColumns = `
	id
  , name
  , description
  , type
  , form_id
  , address_groups
  , is_multiple_instance
  , lead_time
  , meta
  , created_at
  , updated_at
`

// Save inserts or updates a task.
func (r *TaskRepository) Save(ctx context.Context, task *models.Task) error {
	now := time.Now().UTC()

	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}

	task.UpdatedAt = now

	meta, err := marshalMeta(task.Meta)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tasks (id, name, description, type, form_id, address_groups, is_multiple_instance, lead_time, meta, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			type = EXCLUDED.type,
			form_id = EXCLUDED.form_id,
			address_groups = EXCLUDED.address_groups,
			is_multiple_instance = EXCLUDED.is_multiple_instance,
			lead_time = EXCLUDED.lead_time,
			meta = EXCLUDED.meta,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.q.ExecContext(ctx, query,
		task.ID,
		task.Name,
		task.Description,
		task.Type,
		task.FormID,
		task.AddressGroups,
		task.IsMultipleInstance,
		task.LeadTime,
		meta,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save task %s: %w", task.ID, err)
	}

	return nil
}

// GetByID returns a task by id.
func (r *TaskRepository) GetByID(ctx context.Context, id string) (*models.Task, error) {
	row := r.q.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = $1", id)

	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewEntityError("GetByID", "task", id, persistence.ErrTaskNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	return task, nil
}

// List returns all tasks ordered by id.
func (r *TaskRepository) List(ctx context.Context) ([]*models.Task, error) {
	rows, err := r.q.QueryContext(ctx, "SELECT "+taskColumns+" FROM tasks ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	tasks := make([]*models.Task, 0)

	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}

		tasks = append(tasks, task)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

// Exists reports whether a task with the given id exists.
func (r *TaskRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool

	err := r.q.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check task %s: %w", id, err)
	}

	return exists, nil
}

func scanTask(row scanner) (*models.Task, error) {
	var (
		task models.Task
		meta []byte
	)

	err := row.Scan(
		&task.ID,
		&task.Name,
		&task.Description,
		&task.Type,
		&task.FormID,
		&task.AddressGroups,
		&task.IsMultipleInstance,
		&task.LeadTime,
		&meta,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Meta, err = unmarshalMeta(meta)
	if err != nil {
		return nil, err
	}

	return &task, nil
}

// FlowRepository handles flow-related database operations.
type FlowRepository struct {
	q      querier
	logger *slog.Logger
}

// Save inserts or updates a flow.
func (r *FlowRepository) Save(ctx context.Context, flow *models.Flow) error {
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO flows (id, next, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET next = EXCLUDED.next
	`

	_, err := r.q.ExecContext(ctx, query, flow.ID, flow.Next, flow.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save flow %s: %w", flow.ID, err)
	}

	return nil
}

// GetByID returns a flow by id.
func (r *FlowRepository) GetByID(ctx context.Context, id string) (*models.Flow, error) {
	var flow models.Flow

	err := r.q.QueryRowContext(ctx, "SELECT id, next, created_at FROM flows WHERE id = $1", id).
		Scan(&flow.ID, &flow.Next, &flow.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewEntityError("GetByID", "flow", id, persistence.ErrFlowNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to scan flow: %w", err)
	}

	return &flow, nil
}

// SaveTaskFlow attaches a flow to a task of a workflow.
func (r *FlowRepository) SaveTaskFlow(ctx context.Context, taskFlow *models.TaskFlow) error {
	if taskFlow.ID == "" {
		taskFlow.ID = fmt.Sprintf("%s/%s/%s", taskFlow.WorkflowID, taskFlow.TaskID, taskFlow.FlowID)
	}

	query := `
		INSERT INTO task_flows (id, workflow_id, task_id, flow_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (workflow_id, task_id, flow_id) DO NOTHING
	`

	_, err := r.q.ExecContext(ctx, query, taskFlow.ID, taskFlow.WorkflowID, taskFlow.TaskID, taskFlow.FlowID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation {
			switch pqErr.Constraint {
			case "task_flows_flow_id_fkey":
				return persistence.NewEntityError("SaveTaskFlow", "flow", taskFlow.FlowID, persistence.ErrFlowNotFound)
			case "task_flows_task_id_fkey":
				return persistence.NewEntityError("SaveTaskFlow", "task", taskFlow.TaskID, persistence.ErrTaskNotFound)
			case "task_flows_workflow_id_fkey":
				return persistence.NewEntityError("SaveTaskFlow", "workflow", taskFlow.WorkflowID, persistence.ErrWorkflowNotFound)
			}
		}

		return fmt.Errorf("failed to save task flow %s: %w", taskFlow.ID, err)
	}

	return nil
}

// DeleteTaskFlows detaches every flow from the tasks of a workflow.
func (r *FlowRepository) DeleteTaskFlows(ctx context.Context, workflowID string) error {
	_, err := r.q.ExecContext(ctx, "DELETE FROM task_flows WHERE workflow_id = $1", workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete task flows of workflow %s: %w", workflowID, err)
	}

	return nil
}

// TaskFlows returns all task flows of a workflow.
func (r *FlowRepository) TaskFlows(ctx context.Context, workflowID string) ([]*models.TaskFlow, error) {
	query := `
		SELECT id, workflow_id, task_id, flow_id
		FROM task_flows
		WHERE workflow_id = $1
		ORDER BY task_id, flow_id
	`

	rows, err := r.q.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query task flows: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	taskFlows := make([]*models.TaskFlow, 0)

	for rows.Next() {
		var taskFlow models.TaskFlow

		err := rows.Scan(&taskFlow.ID, &taskFlow.WorkflowID, &taskFlow.TaskID, &taskFlow.FlowID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task flow: %w", err)
		}

		taskFlows = append(taskFlows, &taskFlow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating task flows: %w", err)
	}

	return taskFlows, nil
}

// ByTask returns the flows leaving a task within a workflow.
func (r *FlowRepository) ByTask(ctx context.Context, workflowID, taskID string) ([]*models.Flow, error) {
	query := `
		SELECT DISTINCT f.id, f.next, f.created_at
		FROM flows f
		JOIN task_flows tf ON tf.flow_id = f.id
		WHERE tf.workflow_id = $1 AND tf.task_id = $2
		ORDER BY f.id
	`

	rows, err := r.q.QueryContext(ctx, query, workflowID, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query flows: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	flows := make([]*models.Flow, 0)

	for rows.Next() {
		var flow models.Flow

		err := rows.Scan(&flow.ID, &flow.Next, &flow.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flow: %w", err)
		}

		flows = append(flows, &flow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating flows: %w", err)
	}

	return flows, nil
}

func textArray(items []string) any {
	if items == nil {
		items = []string{}
	}

	return pq.Array(items)
}

func marshalMeta(meta map[string]any) ([]byte, error) {
	if meta == nil {
		return []byte("{}"), nil
	}

	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal meta: %w", err)
	}

	return data, nil
}

func unmarshalMeta(data []byte) (map[string]any, error) {
	meta := map[string]any{}

	if len(data) == 0 {
		return meta, nil
	}

	err := json.Unmarshal(data, &meta)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal meta: %w", err)
	}

	return meta, nil
}
