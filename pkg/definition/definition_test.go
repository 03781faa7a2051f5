package definition_test

import (
	"strings"
	"testing"

	"github.com/dukex/casework/pkg/definition"
	"github.com/dukex/casework/pkg/expression"
	"github.com/dukex/casework/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	doc, err := definition.LoadFile("../../examples/definitions/permit.yaml")
	require.NoError(t, err)

	graph, err := doc.Graph()
	require.NoError(t, err)

	assert.Len(t, graph.Forms, 2)
	assert.Len(t, graph.Questions, 4)
	assert.Equal(t, []string{"applicant", "floors"}, graph.Forms[0].QuestionIDs)
	assert.Len(t, graph.Tasks, 5)

	require.Len(t, graph.Workflows, 1)

	permit := graph.Workflows[0]
	assert.Equal(t, "application", permit.Workflow.FormID)
	assert.True(t, permit.Workflow.IsPublished)
	assert.Len(t, permit.Flows, 3)
	assert.Len(t, permit.TaskFlows, 4)

	var signOff *models.Task
	for _, task := range graph.Tasks {
		if task.ID == "sign-off" {
			signOff = task
		}
	}

	require.NotNil(t, signOff)
	assert.True(t, signOff.IsMultipleInstance)
	assert.Equal(t, models.TaskTypeSimple, signOff.Type)
}

func TestParse_JSON(t *testing.T) {
	doc, err := definition.Parse([]byte(`{
		"tasks": [{"id": "review", "name": "Review"}],
		"workflows": [{
			"id": "permit",
			"name": "Permit",
			"start_tasks": ["review"],
			"flows": [{"tasks": ["review"], "next": "null"}]
		}]
	}`))
	require.NoError(t, err)

	graph, err := doc.Graph()
	require.NoError(t, err)

	assert.Equal(t, "permit-1", graph.Workflows[0].Flows[0].ID)
	assert.Equal(t, "permit/review/permit-1", graph.Workflows[0].TaskFlows[0].ID)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		expression bool
	}{
		{name: "empty", input: "  "},
		{name: "malformed", input: "tasks: [", expression: false},
		{name: "missing name", input: "tasks:\n  - id: review\n"},
		{name: "bad slug", input: "tasks:\n  - id: Review Task\n    name: Review\n"},
		{name: "unknown task type", input: "tasks:\n  - id: review\n    name: Review\n    type: legacy\n"},
		{name: "choice without options", input: "forms:\n  - id: f\n    name: F\n    questions:\n      - id: q\n        type: choice\n"},
		{
			name:  "workflow without start tasks",
			input: "workflows:\n  - id: permit\n    name: Permit\n",
		},
		{
			name:       "bad flow expression",
			input:      "workflows:\n  - id: permit\n    name: Permit\n    start_tasks: [a]\n    flows:\n      - tasks: [a]\n        next: \"'b'|tsk\"\n",
			expression: true,
		},
		{
			name:       "task reference as address groups",
			input:      "tasks:\n  - id: review\n    name: Review\n    address_groups: \"'a'|task\"\n",
			expression: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := definition.Parse([]byte(tt.input))
			require.Error(t, err)

			if tt.expression {
				assert.ErrorIs(t, err, expression.ErrExpression)
			} else {
				assert.ErrorIs(t, err, definition.ErrInvalidDefinition)
			}
		})
	}
}

func TestParse_ExpressionErrorNamesFlow(t *testing.T) {
	_, err := definition.Parse([]byte(strings.Join([]string{
		"workflows:",
		"  - id: permit",
		"    name: Permit",
		"    start_tasks: [a]",
		"    flows:",
		"      - id: broken",
		"        tasks: [a]",
		"        next: \"['a'\"",
	}, "\n")))

	var exprErr *expression.Error
	require.ErrorAs(t, err, &exprErr)
	assert.Equal(t, "flow broken", exprErr.Source)
}
