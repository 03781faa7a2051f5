package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dukex/casework/pkg/models"
	"github.com/dukex/casework/pkg/persistence"
	"github.com/dukex/casework/pkg/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string {
	return &s
}

func TestGateway_Validate(t *testing.T) {
	var validated []string

	gateway := NewGateway(validation.ServiceFunc(func(_ context.Context, documentID string) (validation.Result, error) {
		validated = append(validated, documentID)

		return validation.Result{OK: false, Missing: []string{"q1"}}, nil
	}))

	c := &models.Case{ID: "case", DocumentID: ptr("case-document")}
	workItem := &models.WorkItem{ID: "item", DocumentID: ptr("item-document")}

	tests := []struct {
		name     string
		taskType models.TaskType
		c        *models.Case
		want     validation.Result
		document string
	}{
		{name: "simple", taskType: models.TaskTypeSimple, c: c, want: validation.Result{OK: true}},
		{
			name:     "workflow form",
			taskType: models.TaskTypeCompleteWorkflowForm,
			c:        c,
			want:     validation.Result{Missing: []string{"q1"}},
			document: "case-document",
		},
		{
			name:     "task form",
			taskType: models.TaskTypeCompleteTaskForm,
			c:        c,
			want:     validation.Result{Missing: []string{"q1"}},
			document: "item-document",
		},
		{
			name:     "workflow form without document",
			taskType: models.TaskTypeCompleteWorkflowForm,
			c:        &models.Case{ID: "bare"},
			want:     validation.Result{OK: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validated = nil

			result, err := gateway.Validate(t.Context(), tt.c, &models.Task{ID: "task", Type: tt.taskType}, workItem)
			require.NoError(t, err)

			assert.Equal(t, tt.want, result)

			if tt.document == "" {
				assert.Empty(t, validated)
			} else {
				assert.Equal(t, []string{tt.document}, validated)
			}
		})
	}
}

func TestGateway_UnknownTaskType(t *testing.T) {
	gateway := NewGateway(validation.ServiceFunc(nil))

	_, err := gateway.Validate(t.Context(), &models.Case{}, &models.Task{ID: "task", Type: "legacy"}, &models.WorkItem{})

	assert.ErrorIs(t, err, ErrInvalidTask)
}

func TestGateway_ServiceFailure(t *testing.T) {
	boom := errors.New("boom")
	gateway := NewGateway(validation.ServiceFunc(func(context.Context, string) (validation.Result, error) {
		return validation.Result{}, boom
	}))

	_, err := gateway.Validate(t.Context(), &models.Case{DocumentID: ptr("doc")},
		&models.Task{Type: models.TaskTypeCompleteWorkflowForm}, &models.WorkItem{})

	assert.ErrorIs(t, err, boom)
}

func TestClassify(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "lock timeout", err: persistence.NewEntityError("Lock", "case", "1", persistence.ErrLockTimeout), want: ErrTimeout},
		{name: "deadline", err: context.DeadlineExceeded, want: ErrTimeout},
		{name: "not found", err: persistence.NewEntityError("GetByID", "case", "1", persistence.ErrCaseNotFound), want: ErrNotFound},
		{name: "invalid state", err: newError("complete", "1", ErrInvalidState, "work item is %s", "completed"), want: ErrInvalidState},
		{name: "validation", err: &ValidationError{WorkItemID: "1"}, want: ErrValidationFailed},
		{name: "storage", err: fmt.Errorf("failed to update: %w", boom), want: ErrRepository},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)

			assert.ErrorIs(t, got, tt.want)
			assert.ErrorIs(t, got, tt.err)
		})
	}

	assert.NoError(t, classify(nil))
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{WorkItemID: "item", Missing: []string{"a", "b"}}

	assert.Equal(t, "work item item: validation failed: missing a, b", err.Error())
	assert.ErrorIs(t, err, ErrValidationFailed)
	assert.NotErrorIs(t, err, ErrInvalidState)
}
