package events

import (
	"encoding/json"
	"testing"

	"github.com/dukex/casework/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCase() *models.Case {
	return &models.Case{ID: "case-1", WorkflowID: "permit", Status: models.CaseStatusRunning}
}

func TestNewBaseEvent(t *testing.T) {
	base := NewBaseEvent(CaseCreatedEvent, testCase(), "alice")

	assert.NotEmpty(t, base.ID)
	assert.Equal(t, CaseCreatedEvent, base.Type)
	assert.Equal(t, "case-1", base.CaseID)
	assert.Equal(t, "permit", base.WorkflowID)
	assert.Equal(t, "alice", base.Actor)
	assert.Equal(t, "case-1", base.Key())
	assert.False(t, base.Timestamp.IsZero())
}

func TestNewWorkItemEvent(t *testing.T) {
	workItem := &models.WorkItem{
		ID:              "wi-1",
		TaskID:          "review",
		Status:          models.WorkItemStatusCompleted,
		AddressedGroups: []string{"clerks"},
		Meta:            map[string]any{"note": "ok"},
	}

	tests := []struct {
		eventType EventType
		want      any
	}{
		{WorkItemCreatedEvent, WorkItemCreated{}},
		{WorkItemCompletedEvent, WorkItemCompleted{}},
		{WorkItemSkippedEvent, WorkItemSkipped{}},
		{WorkItemCanceledEvent, WorkItemCanceled{}},
		{WorkItemSavedEvent, WorkItemSaved{}},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			event, err := NewWorkItemEvent(tt.eventType, testCase(), workItem, "alice")
			require.NoError(t, err)
			assert.IsType(t, tt.want, event)
			assert.Equal(t, tt.eventType, event.GetType())
			assert.Equal(t, "case-1", event.Key())
		})
	}

	_, err := NewWorkItemEvent(CaseCreatedEvent, testCase(), workItem, "alice")
	assert.Error(t, err)
}

func TestDecode(t *testing.T) {
	original, err := NewWorkItemEvent(WorkItemCompletedEvent, testCase(), &models.WorkItem{
		ID:              "wi-1",
		TaskID:          "review",
		Status:          models.WorkItemStatusCompleted,
		AddressedGroups: []string{"clerks"},
	}, "alice")
	require.NoError(t, err)

	payload, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"type":"workitem.completed"`)
	assert.Contains(t, string(payload), `"work_item_id":"wi-1"`)

	decoded, err := Decode(WorkItemCompletedEvent, payload)
	require.NoError(t, err)

	completed, ok := decoded.(*WorkItemCompleted)
	require.True(t, ok)
	assert.Equal(t, "wi-1", completed.WorkItemID)
	assert.Equal(t, "review", completed.TaskID)
	assert.Equal(t, []string{"clerks"}, completed.AddressedGroups)
	assert.Equal(t, "alice", completed.Actor)

	_, err = Decode("unknown", payload)
	assert.Error(t, err)

	_, err = Decode(CaseCreatedEvent, []byte("{"))
	assert.Error(t, err)
}
