package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/casework/pkg/channels/gochannel"
	"github.com/dukex/casework/pkg/events"
	"github.com/dukex/casework/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) *WatermillEventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(slog.Default(), pub, sub)

	t.Cleanup(func() {
		_ = bus.Close()
	})

	return bus
}

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	bus := newTestBus(t)
	received := make(chan events.Event, 1)

	require.NoError(t, bus.Handle(events.CaseCompletedEvent, func(_ context.Context, event events.Event) error {
		received <- event

		return nil
	}))
	require.NoError(t, bus.Subscribe(t.Context()))

	c := &models.Case{ID: "case-1", WorkflowID: "permit"}
	event := events.CaseCompleted{BaseEvent: events.NewBaseEvent(events.CaseCompletedEvent, c, "alice")}

	require.NoError(t, bus.Publish(t.Context(), event.Key(), event))

	select {
	case got := <-received:
		completed, ok := got.(*events.CaseCompleted)
		require.True(t, ok)
		assert.Equal(t, "case-1", completed.CaseID)
		assert.Equal(t, "alice", completed.Actor)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestWatermillEventBus_UnhandledEventsAreAcked(t *testing.T) {
	bus := newTestBus(t)

	var calls atomic.Int32

	require.NoError(t, bus.Handle(events.CaseCreatedEvent, func(_ context.Context, _ events.Event) error {
		calls.Add(1)

		return nil
	}))
	require.NoError(t, bus.Subscribe(t.Context()))

	c := &models.Case{ID: "case-1", WorkflowID: "permit"}
	require.NoError(t, bus.Publish(t.Context(), c.ID, events.CaseCanceled{BaseEvent: events.NewBaseEvent(events.CaseCanceledEvent, c, "")}))
	require.NoError(t, bus.Publish(t.Context(), c.ID, events.CaseCreated{BaseEvent: events.NewBaseEvent(events.CaseCreatedEvent, c, "")}))

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestWatermillEventBus_Metadata(t *testing.T) {
	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(slog.Default(), pub, sub)
	defer func() { _ = bus.Close() }()

	messages, err := sub.Subscribe(t.Context(), events.Topic)
	require.NoError(t, err)

	c := &models.Case{ID: "case-9", WorkflowID: "permit"}
	require.NoError(t, bus.Publish(t.Context(), c.ID, events.CaseCompleted{BaseEvent: events.NewBaseEvent(events.CaseCompletedEvent, c, "")}))

	var msg *message.Message

	select {
	case msg = <-messages:
		msg.Ack()
	case <-time.After(5 * time.Second):
		t.Fatal("message was not delivered")
	}

	assert.Equal(t, "case-9", msg.Metadata.Get(events.EventMetadataKey))
	assert.Equal(t, string(events.CaseCompletedEvent), msg.Metadata.Get(events.EventTypeMetadataKey))
}

type failingPublisher struct{}

func (failingPublisher) Publish(string, ...*message.Message) error {
	return errors.New("broker down")
}

func (failingPublisher) Close() error {
	return nil
}

func TestWatermillEventBus_PublishError(t *testing.T) {
	_, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(slog.Default(), failingPublisher{}, sub)

	c := &models.Case{ID: "case-1", WorkflowID: "permit"}
	err = bus.Publish(t.Context(), c.ID, events.CaseCompleted{BaseEvent: events.NewBaseEvent(events.CaseCompletedEvent, c, "")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}
