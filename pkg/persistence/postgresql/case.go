package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/casework/pkg/models"
	"github.com/dukex/casework/pkg/persistence"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// CaseRepository handles case-related database operations.
type CaseRepository struct {
	q      querier
	logger *slog.Logger
}

const caseColumns = `
	id
  , workflow_id
  , status
  , meta
  , document_id
  , parent_work_item_id
  , created_by_user
  , closed_by_user
  , closed_at
  , created_at
  , modified_at
`

// Create inserts a new case.
func (r *CaseRepository) Create(ctx context.Context, c *models.Case) error {
	meta, err := marshalMeta(c.Meta)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO cases (id, workflow_id, status, meta, document_id, parent_work_item_id,
			created_by_user, closed_by_user, closed_at, created_at, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.q.ExecContext(ctx, query,
		c.ID,
		c.WorkflowID,
		c.Status,
		meta,
		c.DocumentID,
		c.ParentWorkItemID,
		c.CreatedByUser,
		c.ClosedByUser,
		c.ClosedAt,
		c.CreatedAt,
		c.ModifiedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return persistence.NewEntityError("Create", "case", c.ID, persistence.ErrAlreadyExists)
		}

		return fmt.Errorf("failed to create case %s: %w", c.ID, err)
	}

	return nil
}

// Update replaces the mutable fields of a case.
func (r *CaseRepository) Update(ctx context.Context, c *models.Case) error {
	meta, err := marshalMeta(c.Meta)
	if err != nil {
		return err
	}

	query := `
		UPDATE cases SET
			status = $2,
			meta = $3,
			document_id = $4,
			closed_by_user = $5,
			closed_at = $6,
			modified_at = $7
		WHERE id = $1
	`

	result, err := r.q.ExecContext(ctx, query,
		c.ID,
		c.Status,
		meta,
		c.DocumentID,
		c.ClosedByUser,
		c.ClosedAt,
		c.ModifiedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update case %s: %w", c.ID, err)
	}

	return expectRow(result, persistence.NewEntityError("Update", "case", c.ID, persistence.ErrCaseNotFound))
}

// GetByID returns a case by id.
func (r *CaseRepository) GetByID(ctx context.Context, id string) (*models.Case, error) {
	if !isUUID(id) {
		return nil, persistence.NewEntityError("GetByID", "case", id, persistence.ErrCaseNotFound)
	}

	row := r.q.QueryRowContext(ctx, "SELECT "+caseColumns+" FROM cases WHERE id = $1", id)

	c, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewEntityError("GetByID", "case", id, persistence.ErrCaseNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to scan case: %w", err)
	}

	return c, nil
}

// Lock takes the row lock of a case until the enclosing transaction ends.
func (r *CaseRepository) Lock(ctx context.Context, id string) error {
	if !isUUID(id) {
		return persistence.NewEntityError("Lock", "case", id, persistence.ErrCaseNotFound)
	}

	var locked string

	err := r.q.QueryRowContext(ctx, "SELECT id FROM cases WHERE id = $1 FOR UPDATE", id).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.NewEntityError("Lock", "case", id, persistence.ErrCaseNotFound)
	}

	if err != nil {
		return persistence.NewEntityError("Lock", "case", id, mapError(err))
	}

	return nil
}

func scanCase(row scanner) (*models.Case, error) {
	var (
		c    models.Case
		meta []byte
	)

	err := row.Scan(
		&c.ID,
		&c.WorkflowID,
		&c.Status,
		&meta,
		&c.DocumentID,
		&c.ParentWorkItemID,
		&c.CreatedByUser,
		&c.ClosedByUser,
		&c.ClosedAt,
		&c.CreatedAt,
		&c.ModifiedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Meta, err = unmarshalMeta(meta)
	if err != nil {
		return nil, err
	}

	return &c, nil
}

// WorkItemRepository handles work item-related database operations.
type WorkItemRepository struct {
	q      querier
	logger *slog.Logger
}

const workItemColumns = `
	wi.id
  , wi.case_id
  , wi.task_id
  , wi.status
  , wi.child_case_id
  , wi.document_id
  , wi.addressed_groups
  , wi.assigned_users
  , wi.meta
  , wi.deadline
  , wi.created_by_user
  , wi.closed_by_user
  , wi.closed_at
  , wi.created_at
  , wi.modified_at
`

// Create inserts a new work item.
func (r *WorkItemRepository) Create(ctx context.Context, workItem *models.WorkItem) error {
	meta, err := marshalMeta(workItem.Meta)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO work_items (id, case_id, task_id, status, child_case_id, document_id,
			addressed_groups, assigned_users, meta, deadline, created_by_user, closed_by_user,
			closed_at, created_at, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err = r.q.ExecContext(ctx, query,
		workItem.ID,
		workItem.CaseID,
		workItem.TaskID,
		workItem.Status,
		workItem.ChildCaseID,
		workItem.DocumentID,
		textArray(workItem.AddressedGroups),
		textArray(workItem.AssignedUsers),
		meta,
		workItem.Deadline,
		workItem.CreatedByUser,
		workItem.ClosedByUser,
		workItem.ClosedAt,
		workItem.CreatedAt,
		workItem.ModifiedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch {
			case pqErr.Code == pqUniqueViolation:
				return persistence.NewEntityError("Create", "work item", workItem.ID, persistence.ErrAlreadyExists)
			case pqErr.Code == pqForeignKeyViolation && pqErr.Constraint == "work_items_case_id_fkey":
				return persistence.NewEntityError("Create", "case", workItem.CaseID, persistence.ErrCaseNotFound)
			case pqErr.Code == pqForeignKeyViolation && pqErr.Constraint == "work_items_task_id_fkey":
				return persistence.NewEntityError("Create", "task", workItem.TaskID, persistence.ErrTaskNotFound)
			}
		}

		return fmt.Errorf("failed to create work item %s: %w", workItem.ID, err)
	}

	return nil
}

// Update replaces the mutable fields of a work item.
func (r *WorkItemRepository) Update(ctx context.Context, workItem *models.WorkItem) error {
	meta, err := marshalMeta(workItem.Meta)
	if err != nil {
		return err
	}

	query := `
		UPDATE work_items SET
			status = $2,
			child_case_id = $3,
			document_id = $4,
			addressed_groups = $5,
			assigned_users = $6,
			meta = $7,
			deadline = $8,
			closed_by_user = $9,
			closed_at = $10,
			modified_at = $11
		WHERE id = $1
	`

	result, err := r.q.ExecContext(ctx, query,
		workItem.ID,
		workItem.Status,
		workItem.ChildCaseID,
		workItem.DocumentID,
		textArray(workItem.AddressedGroups),
		textArray(workItem.AssignedUsers),
		meta,
		workItem.Deadline,
		workItem.ClosedByUser,
		workItem.ClosedAt,
		workItem.ModifiedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update work item %s: %w", workItem.ID, err)
	}

	return expectRow(result, persistence.NewEntityError("Update", "work item", workItem.ID, persistence.ErrWorkItemNotFound))
}

// GetByID returns a work item by id.
func (r *WorkItemRepository) GetByID(ctx context.Context, id string) (*models.WorkItem, error) {
	if !isUUID(id) {
		return nil, persistence.NewEntityError("GetByID", "work item", id, persistence.ErrWorkItemNotFound)
	}

	row := r.q.QueryRowContext(ctx, "SELECT "+workItemColumns+" FROM work_items wi WHERE wi.id = $1", id)

	workItem, err := scanWorkItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewEntityError("GetByID", "work item", id, persistence.ErrWorkItemNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to scan work item: %w", err)
	}

	return workItem, nil
}

// ByCase returns the work items of a case ordered by creation time.
func (r *WorkItemRepository) ByCase(ctx context.Context, caseID string) ([]*models.WorkItem, error) {
	if !isUUID(caseID) {
		return []*models.WorkItem{}, nil
	}

	query := "SELECT " + workItemColumns + " FROM work_items wi WHERE wi.case_id = $1 ORDER BY wi.created_at, wi.id"

	return r.list(ctx, query, caseID)
}

func (r *WorkItemRepository) list(ctx context.Context, query string, args ...any) ([]*models.WorkItem, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query work items: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	workItems := make([]*models.WorkItem, 0)

	for rows.Next() {
		workItem, err := scanWorkItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan work item: %w", err)
		}

		workItems = append(workItems, workItem)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating work items: %w", err)
	}

	return workItems, nil
}

func scanWorkItem(row scanner) (*models.WorkItem, error) {
	var (
		workItem models.WorkItem
		meta     []byte
	)

	err := row.Scan(
		&workItem.ID,
		&workItem.CaseID,
		&workItem.TaskID,
		&workItem.Status,
		&workItem.ChildCaseID,
		&workItem.DocumentID,
		pq.Array(&workItem.AddressedGroups),
		pq.Array(&workItem.AssignedUsers),
		&meta,
		&workItem.Deadline,
		&workItem.CreatedByUser,
		&workItem.ClosedByUser,
		&workItem.ClosedAt,
		&workItem.CreatedAt,
		&workItem.ModifiedAt,
	)
	if err != nil {
		return nil, err
	}

	workItem.Meta, err = unmarshalMeta(meta)
	if err != nil {
		return nil, err
	}

	return &workItem, nil
}

func expectRow(result sql.Result, notFound error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return notFound
	}

	return nil
}

// isUUID guards lookups on uuid columns, which reject malformed input with an error.
func isUUID(id string) bool {
	return uuid.Validate(id) == nil
}
