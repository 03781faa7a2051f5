// Package workflow drives cases through their workflows: work item transitions, flow
// resolution and case completion, each applied atomically under the case lock.
package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/casework/pkg/eventbus"
	"github.com/dukex/casework/pkg/events"
	"github.com/dukex/casework/pkg/expression"
	"github.com/dukex/casework/pkg/models"
	"github.com/dukex/casework/pkg/otelhelper"
	"github.com/dukex/casework/pkg/persistence"
	"github.com/dukex/casework/pkg/validation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Orchestrator is the entry point of every case mutation.
type Orchestrator struct {
	persistence persistence.Persistence
	machine     *StateMachine
	flows       *FlowResolver
	publisher   eventbus.EventPublisher
	tracer      trace.Tracer
	logger      *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPublisher publishes case lifecycle events after each committed operation.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(o *Orchestrator) {
		o.publisher = publisher
	}
}

// WithTracer replaces the global tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = tracer
	}
}

// WithClock replaces the wall clock used for timestamps and deadlines.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.machine.now = now
	}
}

func NewOrchestrator(logger *slog.Logger, p persistence.Persistence, validator validation.Service, opts ...Option) *Orchestrator {
	evaluator := expression.NewEvaluator()
	machine := NewStateMachine(NewGateway(validator), evaluator)

	o := &Orchestrator{
		persistence: p,
		machine:     machine,
		flows:       NewFlowResolver(logger, machine, evaluator),
		tracer:      otel.Tracer("github.com/dukex/casework/pkg/workflow"),
		logger:      logger.With("module", "orchestrator"),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// StartCaseRequest describes a new case.
type StartCaseRequest struct {
	WorkflowID string
	Meta       map[string]any
	Actor      string
	// ParentWorkItemID links the case as the child case of a Ready work item.
	ParentWorkItemID string
}

// Transition is the outcome of an operation: the case, the work item it acted on and the
// work items it created.
type Transition struct {
	Case     *models.Case
	WorkItem *models.WorkItem
	Created  []*models.WorkItem
}

// unit collects the events of one unit of work until it commits.
type unit struct {
	tx     persistence.Tx
	events []events.Event
}

func (u *unit) emit(event events.Event) {
	u.events = append(u.events, event)
}

func (u *unit) emitWorkItem(eventType events.EventType, c *models.Case, workItem *models.WorkItem, actor string) error {
	event, err := events.NewWorkItemEvent(eventType, c, workItem, actor)
	if err != nil {
		return err
	}

	u.emit(event)

	return nil
}

// StartCase creates a case, its document and the work items of the workflow start tasks.
func (o *Orchestrator) StartCase(ctx context.Context, req StartCaseRequest) (*Transition, error) {
	var (
		lockID string
		result *Transition
	)

	if req.ParentWorkItemID != "" {
		parent, err := o.persistence.WorkItems().GetByID(ctx, req.ParentWorkItemID)
		if err != nil {
			return nil, classify(err)
		}

		lockID = parent.CaseID
	}

	attrs := []attribute.KeyValue{
		attribute.String(otelhelper.WorkflowIDKey, req.WorkflowID),
		attribute.String(otelhelper.ActorKey, req.Actor),
	}

	err := o.run(ctx, "start_case", lockID, attrs, func(ctx context.Context, u *unit) error {
		var err error

		result, err = o.startCase(ctx, u, req)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (o *Orchestrator) startCase(ctx context.Context, u *unit, req StartCaseRequest) (*Transition, error) {
	workflow, err := u.tx.Workflows().GetByID(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}

	now := o.machine.now()

	meta := req.Meta
	if meta == nil {
		meta = map[string]any{}
	}

	c := &models.Case{
		ID:            models.NewID(),
		WorkflowID:    workflow.ID,
		Status:        models.CaseStatusRunning,
		Meta:          meta,
		CreatedByUser: req.Actor,
		CreatedAt:     now,
		ModifiedAt:    now,
	}

	var parent *models.WorkItem

	if req.ParentWorkItemID != "" {
		parent, err = u.tx.WorkItems().GetByID(ctx, req.ParentWorkItemID)
		if err != nil {
			return nil, err
		}

		if !parent.IsReady() || parent.ChildCaseID != nil {
			return nil, newError("start_case", parent.ID, ErrInvalidState, "work item %s cannot take a child case", parent.ID)
		}

		c.ParentWorkItemID = &parent.ID
	}

	if workflow.FormID != "" {
		document := &models.Document{FormID: workflow.FormID}

		err = u.tx.Documents().CreateDocument(ctx, document)
		if err != nil {
			return nil, err
		}

		c.DocumentID = &document.ID
	}

	err = u.tx.Cases().Create(ctx, c)
	if err != nil {
		return nil, err
	}

	if parent != nil {
		parent.ChildCaseID = &c.ID
		parent.ModifiedAt = now

		err = u.tx.WorkItems().Update(ctx, parent)
		if err != nil {
			return nil, err
		}
	}

	created := events.CaseCreated{BaseEvent: events.NewBaseEvent(events.CaseCreatedEvent, c, req.Actor)}
	if parent != nil {
		created.ParentWorkItemID = parent.ID
	}

	u.emit(created)

	result := &Transition{Case: c}

	for _, taskID := range workflow.StartTaskIDs {
		task, err := u.tx.Tasks().GetByID(ctx, taskID)
		if err != nil {
			return nil, err
		}

		groups, err := o.machine.groups(ctx, c, task, nil)
		if err != nil {
			return nil, err
		}

		spawned, err := o.machine.spawn(ctx, u.tx, c, task, groups, req.Actor)
		if err != nil {
			return nil, err
		}

		for _, workItem := range spawned {
			err = u.emitWorkItem(events.WorkItemCreatedEvent, c, workItem, req.Actor)
			if err != nil {
				return nil, err
			}
		}

		result.Created = append(result.Created, spawned...)
	}

	return result, nil
}

// CompleteWorkItem completes a work item, creates its due successors and completes the
// case when no Ready work item remains, all in one unit of work.
func (o *Orchestrator) CompleteWorkItem(ctx context.Context, id, actor string) (*Transition, error) {
	return o.finish(ctx, "complete_work_item", id, actor, events.WorkItemCompletedEvent, o.machine.Complete)
}

// SkipWorkItem closes a work item without validating its form and advances the case as
// CompleteWorkItem does.
func (o *Orchestrator) SkipWorkItem(ctx context.Context, id, actor string) (*Transition, error) {
	return o.finish(ctx, "skip_work_item", id, actor, events.WorkItemSkippedEvent, o.machine.Skip)
}

type transitionFunc func(ctx context.Context, tx persistence.Tx, c *models.Case, workItem *models.WorkItem, actor string) error

func (o *Orchestrator) finish(ctx context.Context, op, id, actor string, eventType events.EventType, transition transitionFunc) (*Transition, error) {
	var result *Transition

	err := o.withWorkItem(ctx, op, id, actor, func(ctx context.Context, u *unit, c *models.Case, workItem *models.WorkItem) error {
		err := transition(ctx, u.tx, c, workItem, actor)
		if err != nil {
			return err
		}

		err = u.emitWorkItem(eventType, c, workItem, actor)
		if err != nil {
			return err
		}

		created, err := o.flows.Resolve(ctx, u.tx, c, workItem, actor)
		if err != nil {
			return err
		}

		for _, next := range created {
			err = u.emitWorkItem(events.WorkItemCreatedEvent, c, next, actor)
			if err != nil {
				return err
			}
		}

		err = o.completeCase(ctx, u, c, actor)
		if err != nil {
			return err
		}

		result = &Transition{Case: c, WorkItem: workItem, Created: created}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// completeCase completes c when none of its work items is Ready.
func (o *Orchestrator) completeCase(ctx context.Context, u *unit, c *models.Case, actor string) error {
	items, err := u.tx.WorkItems().ByCase(ctx, c.ID)
	if err != nil {
		return err
	}

	for _, item := range items {
		if item.IsReady() {
			return nil
		}
	}

	now := o.machine.now()

	c.Status = models.CaseStatusCompleted
	c.ClosedByUser = actor
	c.ClosedAt = &now
	c.ModifiedAt = now

	err = u.tx.Cases().Update(ctx, c)
	if err != nil {
		return err
	}

	u.emit(events.CaseCompleted{BaseEvent: events.NewBaseEvent(events.CaseCompletedEvent, c, actor)})

	return nil
}

// SaveWorkItem replaces the assigned users and meta of a Ready work item.
func (o *Orchestrator) SaveWorkItem(ctx context.Context, id, actor string, assignedUsers []string, meta map[string]any) (*models.WorkItem, error) {
	var result *models.WorkItem

	err := o.withWorkItem(ctx, "save_work_item", id, actor, func(ctx context.Context, u *unit, c *models.Case, workItem *models.WorkItem) error {
		err := o.machine.Save(ctx, u.tx, workItem, assignedUsers, meta)
		if err != nil {
			return err
		}

		result = workItem

		return u.emitWorkItem(events.WorkItemSavedEvent, c, workItem, actor)
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// CreateWorkItem adds a work item of a multiple-instance task to a case.
func (o *Orchestrator) CreateWorkItem(
	ctx context.Context,
	caseID, taskID, actor string,
	assignedUsers []string,
	meta map[string]any,
) (*models.WorkItem, error) {
	var result *models.WorkItem

	attrs := []attribute.KeyValue{
		attribute.String(otelhelper.CaseIDKey, caseID),
		attribute.String(otelhelper.TaskIDKey, taskID),
		attribute.String(otelhelper.ActorKey, actor),
	}

	err := o.run(ctx, "create_work_item", caseID, attrs, func(ctx context.Context, u *unit) error {
		c, err := u.tx.Cases().GetByID(ctx, caseID)
		if err != nil {
			return err
		}

		task, err := u.tx.Tasks().GetByID(ctx, taskID)
		if err != nil {
			return err
		}

		workItem, err := o.machine.Create(ctx, u.tx, c, task, actor, assignedUsers, meta)
		if err != nil {
			return err
		}

		result = workItem

		return u.emitWorkItem(events.WorkItemCreatedEvent, c, workItem, actor)
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// CancelCase cancels a running case and every Ready work item it holds.
func (o *Orchestrator) CancelCase(ctx context.Context, id, actor string) (*Transition, error) {
	var result *Transition

	attrs := []attribute.KeyValue{
		attribute.String(otelhelper.CaseIDKey, id),
		attribute.String(otelhelper.ActorKey, actor),
	}

	err := o.run(ctx, "cancel_case", id, attrs, func(ctx context.Context, u *unit) error {
		c, err := u.tx.Cases().GetByID(ctx, id)
		if err != nil {
			return err
		}

		if !c.IsRunning() {
			return newError("cancel_case", c.ID, ErrInvalidState, "case is %s", c.Status)
		}

		items, err := u.tx.WorkItems().ByCase(ctx, c.ID)
		if err != nil {
			return err
		}

		canceled := 0

		for _, item := range items {
			if !item.IsReady() {
				continue
			}

			err = o.machine.Cancel(ctx, u.tx, item, actor)
			if err != nil {
				return err
			}

			err = u.emitWorkItem(events.WorkItemCanceledEvent, c, item, actor)
			if err != nil {
				return err
			}

			canceled++
		}

		now := o.machine.now()

		c.Status = models.CaseStatusCanceled
		c.ClosedByUser = actor
		c.ClosedAt = &now
		c.ModifiedAt = now

		err = u.tx.Cases().Update(ctx, c)
		if err != nil {
			return err
		}

		u.emit(events.CaseCanceled{
			BaseEvent:         events.NewBaseEvent(events.CaseCanceledEvent, c, actor),
			CanceledWorkItems: canceled,
		})

		result = &Transition{Case: c}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// withWorkItem runs fn under the lock of the case owning work item id, with fresh copies
// of the case and the work item.
func (o *Orchestrator) withWorkItem(
	ctx context.Context,
	op, id, actor string,
	fn func(ctx context.Context, u *unit, c *models.Case, workItem *models.WorkItem) error,
) error {
	workItem, err := o.persistence.WorkItems().GetByID(ctx, id)
	if err != nil {
		return classify(err)
	}

	attrs := []attribute.KeyValue{
		attribute.String(otelhelper.CaseIDKey, workItem.CaseID),
		attribute.String(otelhelper.WorkItemIDKey, id),
		attribute.String(otelhelper.TaskIDKey, workItem.TaskID),
		attribute.String(otelhelper.ActorKey, actor),
	}

	return o.run(ctx, op, workItem.CaseID, attrs, func(ctx context.Context, u *unit) error {
		c, err := u.tx.Cases().GetByID(ctx, workItem.CaseID)
		if err != nil {
			return err
		}

		current, err := u.tx.WorkItems().GetByID(ctx, id)
		if err != nil {
			return err
		}

		return fn(ctx, u, c, current)
	})
}

// run executes fn as one unit of work holding the lock of case lockID, when set. Events
// emitted by fn are published once the unit of work has committed.
func (o *Orchestrator) run(ctx context.Context, op, lockID string, attrs []attribute.KeyValue, fn func(ctx context.Context, u *unit) error) error {
	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "workflow."+op, attrs...)
	defer span.End()

	var pending []events.Event

	err := o.persistence.Transaction(ctx, func(ctx context.Context, tx persistence.Tx) error {
		u := &unit{tx: tx}

		if lockID != "" {
			err := tx.Cases().Lock(ctx, lockID)
			if err != nil {
				return err
			}
		}

		err := fn(ctx, u)
		if err != nil {
			return err
		}

		pending = u.events

		return nil
	})
	if err != nil {
		err = classify(err)
		otelhelper.SetError(span, err, attribute.String(otelhelper.OperationKey, op))
		o.logger.DebugContext(ctx, "operation failed", "operation", op, "error", err)

		return err
	}

	o.publish(ctx, pending)

	return nil
}

// publish logs failures, the unit of work has already committed.
func (o *Orchestrator) publish(ctx context.Context, pending []events.Event) {
	if o.publisher == nil {
		return
	}

	ctx = context.WithoutCancel(ctx)

	for _, event := range pending {
		err := o.publisher.Publish(ctx, event.Key(), event)
		if err != nil {
			o.logger.ErrorContext(ctx, "failed to publish event",
				"event_type", event.GetType(),
				"case_id", event.Key(),
				"error", err,
			)
		}
	}
}
