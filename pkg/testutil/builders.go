// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/casework/pkg/models"
	"github.com/dukex/casework/pkg/persistence"
	"github.com/dukex/casework/pkg/persistence/file"
	"github.com/stretchr/testify/require"
)

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewMemoryPersistence creates an in-memory file persistence.
func NewMemoryPersistence(t testing.TB, lockTimeout time.Duration) *file.Persistence {
	t.Helper()

	p, err := file.NewPersistence(Logger(), "", lockTimeout)
	require.NoError(t, err)

	return p
}

// Graph seeds workflow definitions into a store.
type Graph struct {
	t     testing.TB
	store persistence.Store
}

func NewGraph(t testing.TB, store persistence.Store) *Graph {
	return &Graph{t: t, store: store}
}

// Task saves a simple task with default values that can be overridden.
func (g *Graph) Task(id string, overrides ...func(*models.Task)) *models.Task {
	g.t.Helper()

	task := &models.Task{
		ID:   id,
		Name: "Task " + id,
		Type: models.TaskTypeSimple,
	}

	for _, override := range overrides {
		override(task)
	}

	require.NoError(g.t, g.store.Tasks().Save(g.t.Context(), task))

	return task
}

// MultipleInstance marks the task multiple-instance, addressed by groups.
func MultipleInstance(groups string) func(*models.Task) {
	return func(task *models.Task) {
		task.IsMultipleInstance = true
		task.AddressGroups = groups
	}
}

// AddressGroups sets the address groups expression of the task.
func AddressGroups(expr string) func(*models.Task) {
	return func(task *models.Task) {
		task.AddressGroups = expr
	}
}

// WithForm sets the task type and the form its work items complete.
func WithForm(taskType models.TaskType, formID string) func(*models.Task) {
	return func(task *models.Task) {
		task.Type = taskType
		task.FormID = formID
	}
}

// LeadTime sets the lead time of the task.
func LeadTime(d time.Duration) func(*models.Task) {
	return func(task *models.Task) {
		task.LeadTime = int64(d / time.Second)
	}
}

// Workflow saves a published workflow starting at startTasks.
func (g *Graph) Workflow(id string, startTasks ...string) *models.Workflow {
	g.t.Helper()

	workflow := &models.Workflow{
		ID:           id,
		Name:         "Workflow " + id,
		StartTaskIDs: startTasks,
		IsPublished:  true,
	}

	require.NoError(g.t, g.store.Workflows().Save(g.t.Context(), workflow))

	return workflow
}

// Flow saves a flow and attaches it to taskIDs within workflowID.
func (g *Graph) Flow(workflowID, flowID, next string, taskIDs ...string) *models.Flow {
	g.t.Helper()

	flow := &models.Flow{ID: flowID, Next: next}
	require.NoError(g.t, g.store.Flows().Save(g.t.Context(), flow))

	for _, taskID := range taskIDs {
		require.NoError(g.t, g.store.Flows().SaveTaskFlow(g.t.Context(), &models.TaskFlow{
			WorkflowID: workflowID,
			TaskID:     taskID,
			FlowID:     flowID,
		}))
	}

	return flow
}

// Form saves questions and a form listing them in order.
func (g *Graph) Form(id string, questions ...*models.Question) *models.Form {
	g.t.Helper()

	form := &models.Form{ID: id, Name: "Form " + id}

	for _, question := range questions {
		require.NoError(g.t, g.store.Forms().SaveQuestion(g.t.Context(), question))
		form.QuestionIDs = append(form.QuestionIDs, question.ID)
	}

	require.NoError(g.t, g.store.Forms().SaveForm(g.t.Context(), form))

	return form
}
