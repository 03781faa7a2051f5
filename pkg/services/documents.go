package services

import (
	"context"
	"fmt"
	"slices"

	"github.com/dukex/casework/pkg/models"
	"github.com/dukex/casework/pkg/persistence"
	"github.com/dukex/casework/pkg/validation"
)

// Documents reads and answers form documents.
type Documents struct {
	persistence persistence.Persistence
	validator   validation.Service
}

// NewDocuments creates a new documents service.
func NewDocuments(persistence persistence.Persistence, validator validation.Service) *Documents {
	return &Documents{
		persistence: persistence,
		validator:   validator,
	}
}

// DocumentDetail is a document with its answers and validation state.
type DocumentDetail struct {
	*models.Document

	Answers    []*models.Answer  `json:"answers"`
	Validation validation.Result `json:"validation"`
}

// Create creates an empty document of a form, e.g. a table row.
func (s *Documents) Create(ctx context.Context, formID string) (*models.Document, error) {
	_, err := s.persistence.Forms().GetForm(ctx, formID)
	if err != nil {
		return nil, err
	}

	document := &models.Document{FormID: formID}

	err = s.persistence.Documents().CreateDocument(ctx, document)
	if err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	return document, nil
}

// Get returns a document with its answers.
func (s *Documents) Get(ctx context.Context, id string) (*DocumentDetail, error) {
	document, err := s.persistence.Documents().GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}

	answers, err := s.persistence.Documents().Answers(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}

	result, err := s.validator.ValidateDocument(ctx, id)
	if err != nil {
		return nil, err
	}

	return &DocumentDetail{Document: document, Answers: answers, Validation: result}, nil
}

// SaveAnswerRequest contains the answer to one question of a document.
type SaveAnswerRequest struct {
	Value          any      `json:"value"`
	RowDocumentIDs []string `json:"row_documents"`
}

// SaveAnswer answers a question of the document's form.
func (s *Documents) SaveAnswer(ctx context.Context, documentID, questionID string, req SaveAnswerRequest) (*models.Answer, error) {
	document, err := s.persistence.Documents().GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	form, err := s.persistence.Forms().GetForm(ctx, document.FormID)
	if err != nil {
		return nil, err
	}

	if !slices.Contains(form.QuestionIDs, questionID) {
		return nil, NewValidationError("save_answer", "unknown_question",
			fmt.Sprintf("question %q is not part of form %q", questionID, form.ID), ErrInvalidRequest)
	}

	answer := &models.Answer{
		DocumentID:     documentID,
		QuestionID:     questionID,
		Value:          req.Value,
		RowDocumentIDs: req.RowDocumentIDs,
	}

	err = s.persistence.Documents().SaveAnswer(ctx, answer)
	if err != nil {
		return nil, fmt.Errorf("failed to save answer: %w", err)
	}

	return answer, nil
}
