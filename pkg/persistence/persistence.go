// Package persistence provides the storage abstraction for workflow definitions, cases and
// work items, including the transactional unit of work used by the case orchestrator.
package persistence

import (
	"context"

	"github.com/dukex/casework/pkg/models"
)

// Persistence is the task graph repository. Calls made directly on its repositories run
// in their own implicit transaction; Transaction groups several calls into one atomic
// unit of work.
type Persistence interface {
	Store

	// Transaction runs fn inside a unit of work. Everything fn writes through tx is
	// committed when fn returns nil and discarded otherwise.
	Transaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// Tx is the view of the store inside a unit of work.
type Tx interface {
	Store
}

// Store groups the repositories of the task graph.
type Store interface {
	Workflows() WorkflowRepository
	Tasks() TaskRepository
	Flows() FlowRepository
	Cases() CaseRepository
	WorkItems() WorkItemRepository
	Forms() FormRepository
	Documents() DocumentRepository
}

// WorkflowRepository stores workflow definitions.
type WorkflowRepository interface {
	Save(ctx context.Context, workflow *models.Workflow) error
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	List(ctx context.Context) ([]*models.Workflow, error)
}

// TaskRepository stores task definitions. Tasks are shared across workflows.
type TaskRepository interface {
	Save(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id string) (*models.Task, error)
	List(ctx context.Context) ([]*models.Task, error)
	Exists(ctx context.Context, id string) (bool, error)
}

// FlowRepository stores flows and their attachment to the tasks of a workflow.
type FlowRepository interface {
	Save(ctx context.Context, flow *models.Flow) error
	GetByID(ctx context.Context, id string) (*models.Flow, error)

	SaveTaskFlow(ctx context.Context, taskFlow *models.TaskFlow) error
	// DeleteTaskFlows detaches every flow from the tasks of a workflow.
	DeleteTaskFlows(ctx context.Context, workflowID string) error
	// TaskFlows returns all task flows of a workflow ordered by task and flow id.
	TaskFlows(ctx context.Context, workflowID string) ([]*models.TaskFlow, error)
	// ByTask returns the flows leaving taskID within workflowID ordered by id.
	ByTask(ctx context.Context, workflowID, taskID string) ([]*models.Flow, error)
}

// CaseRepository stores cases.
type CaseRepository interface {
	Create(ctx context.Context, c *models.Case) error
	Update(ctx context.Context, c *models.Case) error
	GetByID(ctx context.Context, id string) (*models.Case, error)

	// Lock takes the exclusive lock of a case until the enclosing transaction ends. It
	// fails with ErrLockTimeout when the lock cannot be acquired in time.
	Lock(ctx context.Context, id string) error
}

// WorkItemRepository stores work items.
type WorkItemRepository interface {
	Create(ctx context.Context, workItem *models.WorkItem) error
	Update(ctx context.Context, workItem *models.WorkItem) error
	GetByID(ctx context.Context, id string) (*models.WorkItem, error)
	// ByCase returns the work items of a case ordered by creation time.
	ByCase(ctx context.Context, caseID string) ([]*models.WorkItem, error)
	Query(ctx context.Context, query WorkItemQuery) (*WorkItemListResult, error)
}

// FormRepository stores forms and their questions.
type FormRepository interface {
	SaveForm(ctx context.Context, form *models.Form) error
	GetForm(ctx context.Context, id string) (*models.Form, error)
	SaveQuestion(ctx context.Context, question *models.Question) error
	GetQuestion(ctx context.Context, id string) (*models.Question, error)
}

// DocumentRepository stores documents and their answers.
type DocumentRepository interface {
	CreateDocument(ctx context.Context, document *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	// SaveAnswer inserts or replaces the answer of a question within a document.
	SaveAnswer(ctx context.Context, answer *models.Answer) error
	Answers(ctx context.Context, documentID string) ([]*models.Answer, error)
}
