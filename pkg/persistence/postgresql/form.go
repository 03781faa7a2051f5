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

// FormRepository handles form and question database operations.
type FormRepository struct {
	q      querier
	logger *slog.Logger
}

// SaveForm inserts or updates a form.
func (r *FormRepository) SaveForm(ctx context.Context, form *models.Form) error {
	if form.CreatedAt.IsZero() {
		form.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO forms (id, name, question_ids, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			question_ids = EXCLUDED.question_ids
	`

	_, err := r.q.ExecContext(ctx, query, form.ID, form.Name, textArray(form.QuestionIDs), form.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save form %s: %w", form.ID, err)
	}

	return nil
}

// GetForm returns a form by id.
func (r *FormRepository) GetForm(ctx context.Context, id string) (*models.Form, error) {
	var form models.Form

	err := r.q.QueryRowContext(ctx, "SELECT id, name, question_ids, created_at FROM forms WHERE id = $1", id).
		Scan(&form.ID, &form.Name, pq.Array(&form.QuestionIDs), &form.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewEntityError("GetForm", "form", id, persistence.ErrFormNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to scan form: %w", err)
	}

	return &form, nil
}

// SaveQuestion inserts or updates a question.
func (r *FormRepository) SaveQuestion(ctx context.Context, question *models.Question) error {
	if question.CreatedAt.IsZero() {
		question.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO questions (id, label, type, is_required, options, row_form_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			label = EXCLUDED.label,
			type = EXCLUDED.type,
			is_required = EXCLUDED.is_required,
			options = EXCLUDED.options,
			row_form_id = EXCLUDED.row_form_id
	`

	_, err := r.q.ExecContext(ctx, query,
		question.ID,
		question.Label,
		question.Type,
		question.IsRequired,
		textArray(question.Options),
		question.RowFormID,
		question.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save question %s: %w", question.ID, err)
	}

	return nil
}

// GetQuestion returns a question by id.
func (r *FormRepository) GetQuestion(ctx context.Context, id string) (*models.Question, error) {
	var question models.Question

	query := "SELECT id, label, type, is_required, options, row_form_id, created_at FROM questions WHERE id = $1"

	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&question.ID,
		&question.Label,
		&question.Type,
		&question.IsRequired,
		pq.Array(&question.Options),
		&question.RowFormID,
		&question.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewEntityError("GetQuestion", "question", id, persistence.ErrQuestionNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to scan question: %w", err)
	}

	return &question, nil
}

// DocumentRepository handles document and answer database operations.
type DocumentRepository struct {
	q      querier
	logger *slog.Logger
}

// CreateDocument inserts a new document, assigning an id when missing.
func (r *DocumentRepository) CreateDocument(ctx context.Context, document *models.Document) error {
	if document.ID == "" {
		document.ID = models.NewID()
	}

	if document.CreatedAt.IsZero() {
		document.CreatedAt = time.Now().UTC()
	}

	_, err := r.q.ExecContext(ctx,
		"INSERT INTO documents (id, form_id, created_at) VALUES ($1, $2, $3)",
		document.ID, document.FormID, document.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return persistence.NewEntityError("CreateDocument", "document", document.ID, persistence.ErrAlreadyExists)
		}

		return fmt.Errorf("failed to create document %s: %w", document.ID, err)
	}

	return nil
}

// GetDocument returns a document by id.
func (r *DocumentRepository) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	if !isUUID(id) {
		return nil, persistence.NewEntityError("GetDocument", "document", id, persistence.ErrDocumentNotFound)
	}

	var document models.Document

	err := r.q.QueryRowContext(ctx, "SELECT id, form_id, created_at FROM documents WHERE id = $1", id).
		Scan(&document.ID, &document.FormID, &document.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewEntityError("GetDocument", "document", id, persistence.ErrDocumentNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}

	return &document, nil
}

// SaveAnswer inserts or replaces the answer of a question within a document.
func (r *DocumentRepository) SaveAnswer(ctx context.Context, answer *models.Answer) error {
	if !isUUID(answer.DocumentID) {
		return persistence.NewEntityError("SaveAnswer", "document", answer.DocumentID, persistence.ErrDocumentNotFound)
	}

	now := time.Now().UTC()

	if answer.ID == "" {
		answer.ID = models.NewID()
	}

	value, err := json.Marshal(answer.Value)
	if err != nil {
		return fmt.Errorf("failed to marshal answer value: %w", err)
	}

	query := `
		INSERT INTO answers (id, document_id, question_id, value, row_document_ids, created_at, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (document_id, question_id) DO UPDATE SET
			value = EXCLUDED.value,
			row_document_ids = EXCLUDED.row_document_ids,
			modified_at = EXCLUDED.modified_at
		RETURNING id, created_at, modified_at
	`

	err = r.q.QueryRowContext(ctx, query,
		answer.ID,
		answer.DocumentID,
		answer.QuestionID,
		value,
		textArray(answer.RowDocumentIDs),
		now,
	).Scan(&answer.ID, &answer.CreatedAt, &answer.ModifiedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation {
			return persistence.NewEntityError("SaveAnswer", "document", answer.DocumentID, persistence.ErrDocumentNotFound)
		}

		return fmt.Errorf("failed to save answer: %w", err)
	}

	return nil
}

// Answers returns the answers of a document ordered by question.
func (r *DocumentRepository) Answers(ctx context.Context, documentID string) ([]*models.Answer, error) {
	if !isUUID(documentID) {
		return []*models.Answer{}, nil
	}

	query := `
		SELECT id, document_id, question_id, value, row_document_ids, created_at, modified_at
		FROM answers
		WHERE document_id = $1
		ORDER BY question_id
	`

	rows, err := r.q.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query answers: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	answers := make([]*models.Answer, 0)

	for rows.Next() {
		var (
			answer models.Answer
			value  []byte
		)

		err := rows.Scan(
			&answer.ID,
			&answer.DocumentID,
			&answer.QuestionID,
			&value,
			pq.Array(&answer.RowDocumentIDs),
			&answer.CreatedAt,
			&answer.ModifiedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan answer: %w", err)
		}

		if len(value) > 0 {
			err = json.Unmarshal(value, &answer.Value)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal answer value: %w", err)
			}
		}

		answers = append(answers, &answer)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating answers: %w", err)
	}

	return answers, nil
}
