package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"raffler/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockEventPublisher records published events
type MockEventPublisher struct {
	PublishedEvents []events.Event
	PublishError    error
}

func (m *MockEventPublisher) Publish(event events.Event) error {
	if m.PublishError != nil {
		return m.PublishError
	}
	m.PublishedEvents = append(m.PublishedEvents, event)
	return nil
}

type loopbackBus struct {
	published map[string][][]byte
	handlers  map[string]func([]byte) error
	failWith  error
	msgIDs    []string
}

func newLoopbackBus() *loopbackBus {
	return &loopbackBus{published: map[string][][]byte{}, handlers: map[string]func([]byte) error{}}
}

func (b *loopbackBus) Publish(ctx context.Context, subject, msgID string, data []byte) error {
	if b.failWith != nil {
		return b.failWith
	}
	b.msgIDs = append(b.msgIDs, msgID)
	b.published[subject] = append(b.published[subject], data)
	if h, ok := b.handlers[subject]; ok {
		return h(data)
	}
	return nil
}

func (b *loopbackBus) Subscribe(subject string, handler func([]byte) error) error {
	b.handlers[subject] = handler
	return nil
}

func TestNATSTransactionalPublisher_FlushAfterCommit(t *testing.T) {
	t.Parallel()

	inner := &MockEventPublisher{}
	tx := NewNATSTransactionalPublisher(inner)

	phase := events.DrawPhaseEvent{DrawID: "d-1", Phase: "drawing", OccurredAt: time.Now().UTC()}
	require.NoError(t, tx.Publish(phase))
	assert.Empty(t, inner.PublishedEvents)

	require.NoError(t, tx.Flush(context.Background()))
	require.Len(t, inner.PublishedEvents, 1)
	assert.Equal(t, phase, inner.PublishedEvents[0])

	// Pending queue is empty after a flush
	require.NoError(t, tx.Flush(context.Background()))
	assert.Len(t, inner.PublishedEvents, 1)
}

func TestNATSTransactionalPublisher_Discard(t *testing.T) {
	t.Parallel()

	inner := &MockEventPublisher{}
	tx := NewNATSTransactionalPublisher(inner)

	require.NoError(t, tx.Publish(events.DrawFinishedEvent{DrawID: "d-1"}))
	tx.Discard()
	require.NoError(t, tx.Flush(context.Background()))
	assert.Empty(t, inner.PublishedEvents)
}

func TestNATSTransactionalPublisher_FlushContinuesPastErrors(t *testing.T) {
	t.Parallel()

	inner := &MockEventPublisher{PublishError: errors.New("nats down")}
	tx := NewNATSTransactionalPublisher(inner)
	require.NoError(t, tx.Publish(events.DrawFinishedEvent{DrawID: "d-1"}))
	assert.NoError(t, tx.Flush(context.Background()))
}

func TestNATSEventPublisher_RoundTrip(t *testing.T) {
	t.Parallel()

	bus := newLoopbackBus()
	mapper := NewEventSubjectMapper()
	publisher := NewNATSEventPublisher(bus, mapper)
	subscriber := NewNATSEventSubscriber(bus, mapper)

	var local []events.Event
	publisher.RegisterLocalHandler(events.EventTypeClaimObserved, func(ctx context.Context, e events.Event) error {
		local = append(local, e)
		return nil
	})

	var received events.Event
	require.NoError(t, subscriber.Subscribe(events.EventTypeClaimObserved, func(ctx context.Context, e events.Event) error {
		received = e
		return nil
	}))

	claim := events.ClaimObservedEvent{
		Signature:  "sig-1",
		Amount:     1_500_000,
		ObservedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Source:     "tracker",
	}
	require.NoError(t, publisher.Publish(claim))

	require.Len(t, bus.published[SubjectClaimObserved], 1)
	var envelope EventEnvelope
	require.NoError(t, json.Unmarshal(bus.published[SubjectClaimObserved][0], &envelope))
	assert.Equal(t, string(events.EventTypeClaimObserved), envelope.EventType)
	assert.Equal(t, "raffler", envelope.SourceService)
	assert.NotEmpty(t, envelope.EventID)

	assert.Equal(t, claim, received)
	assert.Equal(t, []events.Event{claim}, local)

	require.NoError(t, publisher.Publish(claim))
	require.Len(t, bus.msgIDs, 2)
	assert.Equal(t, envelope.EventID, bus.msgIDs[0])
	assert.Equal(t, bus.msgIDs[0], bus.msgIDs[1], "republished claim keeps its message id")
}

func TestEventID(t *testing.T) {
	t.Parallel()

	finished := events.DrawFinishedEvent{DrawID: "d-1"}
	assert.Equal(t, eventID(finished), eventID(finished))
	assert.NotEqual(t, eventID(finished), eventID(events.DrawFinishedEvent{DrawID: "d-2"}))

	selected := events.DrawPhaseEvent{DrawID: "d-1", Phase: "selected_winners"}
	paid := events.DrawPhaseEvent{DrawID: "d-1", Phase: "payouts_sent"}
	assert.NotEqual(t, eventID(selected), eventID(paid))

	drawing := events.DrawPhaseEvent{Phase: "drawing"}
	assert.NotEqual(t, eventID(drawing), eventID(drawing), "phase events without a draw are never deduplicated")
}

func TestNATSEventPublisher_Errors(t *testing.T) {
	t.Parallel()

	bus := newLoopbackBus()
	bus.failWith = errors.New("nats: no response from stream")
	publisher := NewNATSEventPublisher(bus, NewEventSubjectMapper())
	assert.NoError(t, publisher.Publish(events.DrawPhaseEvent{Phase: "drawing"}))

	bus.failWith = errors.New("connection closed")
	assert.Error(t, publisher.Publish(events.DrawPhaseEvent{Phase: "drawing"}))
}

func TestNATSEventSubscriber_RejectsBadMessages(t *testing.T) {
	t.Parallel()

	bus := newLoopbackBus()
	subscriber := NewNATSEventSubscriber(bus, NewEventSubjectMapper())
	require.NoError(t, subscriber.Subscribe(events.EventTypeClaimObserved, func(ctx context.Context, e events.Event) error {
		return nil
	}))

	handler := bus.handlers[SubjectClaimObserved]
	assert.Error(t, handler([]byte("not json")))
	assert.Error(t, handler([]byte(`{"eventType":"mystery","payload":{}}`)))
}

func TestEventSubjectMapper(t *testing.T) {
	t.Parallel()

	mapper := NewEventSubjectMapper()
	for _, subject := range mapper.GetAllSubjects() {
		assert.Equal(t, subject, mapper.MapEventTypeToSubject(mapper.MapSubjectToEventType(subject)))
	}
	assert.Equal(t, "raffle.unknown.other", mapper.MapEventTypeToSubject("other"))
}
