package services_test

import (
	"testing"

	"github.com/dukex/casework/pkg/models"
	"github.com/dukex/casework/pkg/persistence"
	"github.com/dukex/casework/pkg/services"
	"github.com/dukex/casework/pkg/testutil"
	"github.com/dukex/casework/pkg/validation"
	"github.com/dukex/casework/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListWorkItemsRequest_Query(t *testing.T) {
	req := services.ListWorkItemsRequest{
		Status:          []string{"ready"},
		AddressedGroups: []string{"zoning"},
		CaseID:          "case",
		TaskIDs:         []string{"intake"},
		HasAnswer:       []services.AnswerFilter{{Question: "verdict", Value: "approve"}},
		CaseHasAnswer:   []services.AnswerFilter{{Question: "floors", Value: float64(3)}},
		CaseMetaValue:   []services.ValueFilter{{Key: "district", Value: "north", Lookup: "startswith"}},
		MetaValue:       []services.ValueFilter{{Key: "priority", Value: 2, Lookup: "gte"}},
		SortBy:          "deadline",
		SortOrder:       "desc",
		Limit:           10,
		Offset:          5,
	}

	assert.Equal(t, persistence.WorkItemQuery{
		Filters: []persistence.WorkItemFilter{
			persistence.StatusFilter{Statuses: []models.WorkItemStatus{models.WorkItemStatusReady}},
			persistence.AddressedGroupsFilter{Groups: []string{"zoning"}},
			persistence.CaseFilter{CaseID: "case"},
			persistence.TaskFilter{TaskIDs: []string{"intake"}},
			persistence.DocumentHasAnswerFilter{QuestionID: "verdict", Value: "approve"},
			persistence.CaseDocumentHasAnswerFilter{QuestionID: "floors", Value: float64(3)},
			persistence.CaseMetaValueFilter{Key: "district", Lookup: persistence.LookupStartsWith, Value: "north"},
			persistence.MetaValueFilter{Key: "priority", Lookup: persistence.LookupGTE, Value: 2},
		},
		SortBy:    "deadline",
		SortOrder: "desc",
		Limit:     10,
		Offset:    5,
	}, req.Query())
}

func TestWorkItems_ListAndComplete(t *testing.T) {
	p, _ := importPermit(t)
	o := newOrchestrator(p)

	cases := services.NewCases(p, o)
	workItems := services.NewWorkItems(p, o)

	started, err := cases.Start(t.Context(), services.StartCaseRequest{
		WorkflowID: "building-permit",
		Meta:       map[string]any{"boards": []any{"fire", "water"}, "district": "north-7"},
		Actor:      "alice",
	})
	require.NoError(t, err)
	require.Len(t, started.WorkItems, 1)
	assert.NotNil(t, started.DocumentID)

	_, err = workItems.Complete(t.Context(), started.WorkItems[0].ID, "alice")
	require.NoError(t, err)

	ready, err := workItems.List(t.Context(), services.ListWorkItemsRequest{
		Status:        []string{"ready"},
		CaseMetaValue: []services.ValueFilter{{Key: "district", Value: "north", Lookup: "startswith"}},
	})
	require.NoError(t, err)

	assert.EqualValues(t, 2, ready.TotalCount)

	var tasks []string
	for _, item := range ready.WorkItems {
		tasks = append(tasks, item.TaskID)
		require.NotNil(t, item.DocumentID)
	}

	assert.ElementsMatch(t, []string{"structural-review", "zoning-review"}, tasks)

	for _, item := range ready.WorkItems {
		_, err = workItems.Complete(t.Context(), item.ID, "bob")
		require.NoError(t, err)
	}

	signOff, err := workItems.List(t.Context(), services.ListWorkItemsRequest{TaskIDs: []string{"sign-off"}})
	require.NoError(t, err)
	require.Len(t, signOff.WorkItems, 2)

	created, err := workItems.Create(t.Context(), started.ID, "carol", services.CreateWorkItemRequest{TaskID: "sign-off"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"fire", "water"}, created.AddressedGroups)

	saved, err := workItems.Save(t.Context(), created.ID, "carol", services.SaveWorkItemRequest{AssignedUsers: []string{"dave"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"dave"}, saved.AssignedUsers)

	_, err = workItems.Skip(t.Context(), created.ID, "carol")
	require.NoError(t, err)

	detail, err := cases.Get(t.Context(), started.ID)
	require.NoError(t, err)
	assert.Len(t, detail.WorkItems, 6)
	assert.Equal(t, models.CaseStatusRunning, detail.Status)

	canceled, err := cases.Cancel(t.Context(), started.ID, "carol")
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusCanceled, canceled.Status)
}

func TestWorkItems_ListRejectsInvalidRequests(t *testing.T) {
	p, _ := importPermit(t)
	workItems := services.NewWorkItems(p, newOrchestrator(p))

	for name, req := range map[string]services.ListWorkItemsRequest{
		"status":     {Status: []string{"done"}},
		"sort field": {SortBy: "name"},
		"lookup":     {MetaValue: []services.ValueFilter{{Key: "k", Lookup: "regex"}}},
		"no key":     {MetaValue: []services.ValueFilter{{Value: "v"}}},
		"limit":      {Limit: -1},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := workItems.List(t.Context(), req)

			require.ErrorIs(t, err, services.ErrInvalidQuery)
			assert.True(t, services.IsValidationError(err))
		})
	}
}

func TestCases_StartValidation(t *testing.T) {
	p, _ := importPermit(t)
	cases := services.NewCases(p, newOrchestrator(p))

	_, err := cases.Start(t.Context(), services.StartCaseRequest{})
	require.ErrorIs(t, err, services.ErrInvalidRequest)

	_, err = cases.Start(t.Context(), services.StartCaseRequest{WorkflowID: "missing"})
	require.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestDocuments(t *testing.T) {
	p, _ := importPermit(t)
	o := newOrchestrator(p)

	started, err := services.NewCases(p, o).Start(t.Context(), services.StartCaseRequest{WorkflowID: "building-permit"})
	require.NoError(t, err)

	documents := services.NewDocuments(p, validation.NewSchemaService(testutil.Logger(), p))

	detail, err := documents.Get(t.Context(), *started.DocumentID)
	require.NoError(t, err)
	assert.False(t, detail.Validation.OK)
	assert.Equal(t, []string{"applicant", "floors"}, detail.Validation.Missing)

	_, err = documents.SaveAnswer(t.Context(), *started.DocumentID, "applicant", services.SaveAnswerRequest{Value: "Ada"})
	require.NoError(t, err)

	_, err = documents.SaveAnswer(t.Context(), *started.DocumentID, "floors", services.SaveAnswerRequest{Value: 3})
	require.NoError(t, err)

	detail, err = documents.Get(t.Context(), *started.DocumentID)
	require.NoError(t, err)
	assert.True(t, detail.Validation.OK)
	assert.Len(t, detail.Answers, 2)

	_, err = documents.SaveAnswer(t.Context(), *started.DocumentID, "verdict", services.SaveAnswerRequest{Value: "approve"})
	require.ErrorIs(t, err, services.ErrInvalidRequest)

	row, err := documents.Create(t.Context(), "review-report")
	require.NoError(t, err)
	assert.Equal(t, "review-report", row.FormID)

	_, err = documents.Create(t.Context(), "missing")
	require.ErrorIs(t, err, persistence.ErrFormNotFound)
}
