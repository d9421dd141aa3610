package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"raffler/events"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// EventEnvelope wraps every event published on NATS
type EventEnvelope struct {
	EventID       string          `json:"eventId"`
	EventType     string          `json:"eventType"`
	Timestamp     time.Time       `json:"timestamp"`
	SourceService string          `json:"sourceService"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEventEnvelope serializes event into a fresh envelope
func NewEventEnvelope(event events.Event) (*EventEnvelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	return &EventEnvelope{
		EventID:       eventID(event),
		EventType:     string(event.Type()),
		Timestamp:     time.Now().UTC(),
		SourceService: natsClientName,
		Payload:       payload,
	}, nil
}

var eventIDNamespace = uuid.MustParse("5b0e6c1e-3f7d-4b8e-9a61-0d2c7f4e9b13")

// eventID is stable for events with a natural key so JetStream drops
// republished copies; other events get a random id
func eventID(event events.Event) string {
	var key string
	switch e := event.(type) {
	case events.DrawFinishedEvent:
		key = "draw_finished:" + e.DrawID
	case events.ClaimObservedEvent:
		key = "claim_observed:" + e.Signature
	case events.DrawPhaseEvent:
		if e.DrawID != "" {
			key = "draw_phase:" + e.DrawID + ":" + e.Phase
		}
	}
	if key == "" {
		return uuid.New().String()
	}
	return uuid.NewSHA1(eventIDNamespace, []byte(key)).String()
}

// messagePublisher is the part of NATSClient the publisher needs
type messagePublisher interface {
	Publish(ctx context.Context, subject, msgID string, data []byte) error
}

// NATSEventPublisher publishes events to NATS after running local handlers
type NATSEventPublisher struct {
	client        messagePublisher
	subjectMapper *EventSubjectMapper
	localHandlers map[events.EventType][]func(context.Context, events.Event) error
}

// NewNATSEventPublisher creates a publisher on client
func NewNATSEventPublisher(client messagePublisher, subjectMapper *EventSubjectMapper) *NATSEventPublisher {
	return &NATSEventPublisher{
		client:        client,
		subjectMapper: subjectMapper,
		localHandlers: make(map[events.EventType][]func(context.Context, events.Event) error),
	}
}

// Publish runs local handlers, then publishes the event envelope to its subject
func (p *NATSEventPublisher) Publish(event events.Event) error {
	ctx := context.Background()
	eventType := event.Type()

	for _, handler := range p.localHandlers[eventType] {
		if err := handler(ctx, event); err != nil {
			log.WithFields(log.Fields{
				"eventType": eventType,
				"error":     err,
			}).Error("Local event handler failed")
		}
	}

	if p.client == nil {
		return nil
	}

	envelope, err := NewEventEnvelope(event)
	if err != nil {
		return err
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	subject := p.subjectMapper.MapEventTypeToSubject(eventType)
	if err := p.client.Publish(ctx, subject, envelope.EventID, data); err != nil {
		if strings.Contains(err.Error(), "no response from stream") {
			log.WithField("subject", subject).Warn("No JetStream stream bound to subject, event dropped")
			return nil
		}
		return fmt.Errorf("failed to publish event to NATS: %w", err)
	}

	log.WithFields(log.Fields{
		"eventType": eventType,
		"eventId":   envelope.EventID,
		"subject":   subject,
	}).Debug("Successfully published event to NATS")
	return nil
}

// RegisterLocalHandler registers a handler invoked in-process for every published event of a type
func (p *NATSEventPublisher) RegisterLocalHandler(eventType events.EventType, handler func(context.Context, events.Event) error) {
	p.localHandlers[eventType] = append(p.localHandlers[eventType], handler)
	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(p.localHandlers[eventType]),
	}).Info("Registered local event handler")
}

// EnsureRaffleStream makes sure the stream for all raffle subjects exists
func (p *NATSEventPublisher) EnsureRaffleStream(client *NATSClient) error {
	return client.EnsureStream(RaffleStreamName, p.subjectMapper.GetAllSubjects())
}
