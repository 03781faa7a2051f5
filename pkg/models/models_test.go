package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	first := NewID()
	second := NewID()

	parsed, err := uuid.Parse(first)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.NotEqual(t, first, second)
}

func TestTask_Deadline(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	assert.Nil(t, (&Task{}).Deadline(now))

	deadline := (&Task{LeadTime: 3600}).Deadline(now)
	require.NotNil(t, deadline)
	assert.Equal(t, now.Add(time.Hour), *deadline)
}

func TestWorkItemStatus(t *testing.T) {
	assert.False(t, WorkItemStatusReady.IsTerminal())

	for _, status := range []WorkItemStatus{WorkItemStatusCompleted, WorkItemStatusSkipped, WorkItemStatusCanceled} {
		assert.True(t, status.IsTerminal(), status)
		assert.True(t, status.Valid(), status)
	}

	assert.False(t, WorkItemStatus("done").Valid())
}

func TestTaskType_Valid(t *testing.T) {
	assert.True(t, TaskTypeCompleteTaskForm.Valid())
	assert.False(t, TaskType("manual").Valid())
}

func TestValidation(t *testing.T) {
	validate := NewValidator()

	tests := []struct {
		name    string
		model   any
		wantErr bool
	}{
		{
			name:  "valid task",
			model: &Task{ID: "review", Name: "Review", Type: TaskTypeSimple},
		},
		{
			name:    "task id is not a slug",
			model:   &Task{ID: "Review Task", Name: "Review", Type: TaskTypeSimple},
			wantErr: true,
		},
		{
			name:    "unknown task type",
			model:   &Task{ID: "review", Name: "Review", Type: "manual"},
			wantErr: true,
		},
		{
			name:  "valid workflow",
			model: &Workflow{ID: "permit", Name: "Permit", StartTaskIDs: []string{"intake"}},
		},
		{
			name:    "workflow without start tasks",
			model:   &Workflow{ID: "permit", Name: "Permit"},
			wantErr: true,
		},
		{
			name:    "choice question without options",
			model:   &Question{ID: "verdict", Type: QuestionTypeChoice},
			wantErr: true,
		},
		{
			name:    "table question without row form",
			model:   &Question{ID: "rooms", Type: QuestionTypeTable},
			wantErr: true,
		},
		{
			name:  "choice question",
			model: &Question{ID: "verdict", Type: QuestionTypeChoice, Options: []string{"approve", "reject"}},
		},
		{
			name:    "case with unknown status",
			model:   &Case{WorkflowID: "permit", Status: "paused"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(tt.model)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
