// Package events defines event types and structures for case lifecycle notifications.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukex/casework/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic all case lifecycle events are published to.
const Topic = "casework.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Case lifecycle events.
	CaseCreatedEvent   EventType = "case.created"
	CaseCompletedEvent EventType = "case.completed"
	CaseCanceledEvent  EventType = "case.canceled"

	// Work item lifecycle events.
	WorkItemCreatedEvent   EventType = "workitem.created"
	WorkItemCompletedEvent EventType = "workitem.completed"
	WorkItemSkippedEvent   EventType = "workitem.skipped"
	WorkItemCanceledEvent  EventType = "workitem.canceled"
	WorkItemSavedEvent     EventType = "workitem.saved"
)

// Event is implemented by every event published on the bus.
type Event interface {
	GetType() EventType
	// Key is the partitioning key; events of one case share it.
	Key() string
}

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	CaseID     string         `json:"case_id"`
	WorkflowID string         `json:"workflow_id"`
	Actor      string         `json:"actor,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func (b BaseEvent) Key() string {
	return b.CaseID
}

type CaseCreated struct {
	BaseEvent

	ParentWorkItemID string `json:"parent_work_item_id,omitempty"`
}

func (c CaseCreated) GetType() EventType {
	return CaseCreatedEvent
}

type CaseCompleted struct {
	BaseEvent
}

func (c CaseCompleted) GetType() EventType {
	return CaseCompletedEvent
}

type CaseCanceled struct {
	BaseEvent

	CanceledWorkItems int `json:"canceled_work_items"`
}

func (c CaseCanceled) GetType() EventType {
	return CaseCanceledEvent
}

// WorkItem carries the state of a work item at the time of the event.
type WorkItem struct {
	WorkItemID      string                `json:"work_item_id"`
	TaskID          string                `json:"task_id"`
	Status          models.WorkItemStatus `json:"status"`
	AddressedGroups []string              `json:"addressed_groups"`
	AssignedUsers   []string              `json:"assigned_users"`
	Deadline        *time.Time            `json:"deadline,omitempty"`
}

type WorkItemCreated struct {
	BaseEvent
	WorkItem
}

func (w WorkItemCreated) GetType() EventType {
	return WorkItemCreatedEvent
}

type WorkItemCompleted struct {
	BaseEvent
	WorkItem
}

func (w WorkItemCompleted) GetType() EventType {
	return WorkItemCompletedEvent
}

type WorkItemSkipped struct {
	BaseEvent
	WorkItem
}

func (w WorkItemSkipped) GetType() EventType {
	return WorkItemSkippedEvent
}

type WorkItemCanceled struct {
	BaseEvent
	WorkItem
}

func (w WorkItemCanceled) GetType() EventType {
	return WorkItemCanceledEvent
}

type WorkItemSaved struct {
	BaseEvent
	WorkItem

	Meta map[string]any `json:"meta,omitempty"`
}

func (w WorkItemSaved) GetType() EventType {
	return WorkItemSavedEvent
}

func NewBaseEvent(eventType EventType, c *models.Case, actor string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		CaseID:     c.ID,
		WorkflowID: c.WorkflowID,
		Actor:      actor,
		Metadata:   make(map[string]any),
	}
}

// NewWorkItem snapshots the event-relevant fields of a work item.
func NewWorkItem(workItem *models.WorkItem) WorkItem {
	return WorkItem{
		WorkItemID:      workItem.ID,
		TaskID:          workItem.TaskID,
		Status:          workItem.Status,
		AddressedGroups: workItem.AddressedGroups,
		AssignedUsers:   workItem.AssignedUsers,
		Deadline:        workItem.Deadline,
	}
}

// NewWorkItemEvent builds the lifecycle event matching the work item's current status.
func NewWorkItemEvent(eventType EventType, c *models.Case, workItem *models.WorkItem, actor string) (Event, error) {
	base := NewBaseEvent(eventType, c, actor)
	snapshot := NewWorkItem(workItem)

	switch eventType {
	case WorkItemCreatedEvent:
		return WorkItemCreated{BaseEvent: base, WorkItem: snapshot}, nil
	case WorkItemCompletedEvent:
		return WorkItemCompleted{BaseEvent: base, WorkItem: snapshot}, nil
	case WorkItemSkippedEvent:
		return WorkItemSkipped{BaseEvent: base, WorkItem: snapshot}, nil
	case WorkItemCanceledEvent:
		return WorkItemCanceled{BaseEvent: base, WorkItem: snapshot}, nil
	case WorkItemSavedEvent:
		return WorkItemSaved{BaseEvent: base, WorkItem: snapshot, Meta: workItem.Meta}, nil
	default:
		return nil, fmt.Errorf("%s is not a work item event", eventType)
	}
}

var registry = map[EventType]func() Event{
	CaseCreatedEvent:       func() Event { return &CaseCreated{} },
	CaseCompletedEvent:     func() Event { return &CaseCompleted{} },
	CaseCanceledEvent:      func() Event { return &CaseCanceled{} },
	WorkItemCreatedEvent:   func() Event { return &WorkItemCreated{} },
	WorkItemCompletedEvent: func() Event { return &WorkItemCompleted{} },
	WorkItemSkippedEvent:   func() Event { return &WorkItemSkipped{} },
	WorkItemCanceledEvent:  func() Event { return &WorkItemCanceled{} },
	WorkItemSavedEvent:     func() Event { return &WorkItemSaved{} },
}

// Decode unmarshals payload into the concrete event registered for eventType.
func Decode(eventType EventType, payload []byte) (Event, error) {
	newEvent, ok := registry[eventType]
	if !ok {
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}

	event := newEvent()

	err := json.Unmarshal(payload, event)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s event: %w", eventType, err)
	}

	return event, nil
}
