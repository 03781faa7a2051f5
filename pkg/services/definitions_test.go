package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/casework/pkg/definition"
	"github.com/dukex/casework/pkg/persistence"
	"github.com/dukex/casework/pkg/persistence/file"
	"github.com/dukex/casework/pkg/services"
	"github.com/dukex/casework/pkg/testutil"
	"github.com/dukex/casework/pkg/validation"
	"github.com/dukex/casework/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func importPermit(t *testing.T) (*file.Persistence, *services.Definitions) {
	t.Helper()

	p := testutil.NewMemoryPersistence(t, time.Second)
	definitions := services.NewDefinitions(testutil.Logger(), p)

	doc, err := definition.LoadFile("../../examples/definitions/permit.yaml")
	require.NoError(t, err)

	_, err = definitions.Import(t.Context(), doc)
	require.NoError(t, err)

	return p, definitions
}

func TestDefinitions_Import(t *testing.T) {
	p := testutil.NewMemoryPersistence(t, time.Second)
	definitions := services.NewDefinitions(testutil.Logger(), p)

	doc, err := definition.LoadFile("../../examples/definitions/permit.yaml")
	require.NoError(t, err)

	result, err := definitions.Import(t.Context(), doc)
	require.NoError(t, err)

	assert.Equal(t, &services.ImportResult{Forms: 2, Questions: 4, Tasks: 5, Workflows: 1, Flows: 3}, result)

	detail, err := definitions.GetWorkflow(t.Context(), "building-permit")
	require.NoError(t, err)

	assert.Equal(t, []string{"intake"}, detail.StartTaskIDs)
	assert.Len(t, detail.Flows, 3)
	assert.Len(t, detail.TaskFlows, 4)

	flows, err := p.Flows().ByTask(t.Context(), "building-permit", "zoning-review")
	require.NoError(t, err)
	require.Len(t, flows, 1)
	assert.Equal(t, "reviews-to-sign-off", flows[0].ID)

	tasks, err := definitions.ListTasks(t.Context())
	require.NoError(t, err)
	assert.Len(t, tasks, 5)
}

func TestDefinitions_ReimportReplacesFlows(t *testing.T) {
	p, definitions := importPermit(t)

	doc, err := definition.Parse([]byte(`
workflows:
  - id: building-permit
    name: Building permit
    start_tasks: [intake]
    flows:
      - id: shortcut
        tasks: [intake]
        next: "'decision'|task"
`))
	require.NoError(t, err)

	_, err = definitions.Import(t.Context(), doc)
	require.NoError(t, err)

	taskFlows, err := p.Flows().TaskFlows(t.Context(), "building-permit")
	require.NoError(t, err)
	require.Len(t, taskFlows, 1)
	assert.Equal(t, "shortcut", taskFlows[0].FlowID)

	workflows, err := definitions.ListWorkflows(t.Context())
	require.NoError(t, err)
	assert.Len(t, workflows, 1)
}

func TestDefinitions_ImportRejectsUnknownReferences(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{
			name: "start task",
			doc:  "workflows:\n  - id: permit\n    name: Permit\n    start_tasks: [missing]\n",
			want: services.ErrUnknownReference,
		},
		{
			name: "task form",
			doc:  "tasks:\n  - id: review\n    name: Review\n    type: complete_task_form\n    form: missing\n",
			want: services.ErrUnknownReference,
		},
		{
			name: "flow source",
			doc: "tasks:\n  - id: review\n    name: Review\n" +
				"workflows:\n  - id: permit\n    name: Permit\n    start_tasks: [review]\n    flows:\n" +
				"      - tasks: [missing]\n        next: \"'review'|task\"\n",
			want: services.ErrUnknownReference,
		},
		{
			name: "flow target",
			doc: "tasks:\n  - id: review\n    name: Review\n" +
				"workflows:\n  - id: permit\n    name: Permit\n    start_tasks: [review]\n    flows:\n" +
				"      - tasks: [review]\n        next: \"'missing'|task\"\n",
			want: workflow.ErrExpression,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testutil.NewMemoryPersistence(t, time.Second)
			definitions := services.NewDefinitions(testutil.Logger(), p)

			doc, err := definition.Parse([]byte(tt.doc))
			require.NoError(t, err)

			_, err = definitions.Import(t.Context(), doc)
			require.ErrorIs(t, err, tt.want)
			assert.True(t, services.IsValidationError(err))

			tasks, err := p.Tasks().List(t.Context())
			require.NoError(t, err)
			assert.Empty(t, tasks, "import must be atomic")
		})
	}
}

func TestDefinitions_HealthCheck(t *testing.T) {
	_, definitions := importPermit(t)

	message, ok := definitions.HealthCheck(t.Context())

	assert.True(t, ok)
	assert.Equal(t, "Persistence layer is healthy", message)
}

func newOrchestrator(p persistence.Persistence) *workflow.Orchestrator {
	return workflow.NewOrchestrator(testutil.Logger(), p, validation.ServiceFunc(func(context.Context, string) (validation.Result, error) {
		return validation.Result{OK: true}, nil
	}))
}
