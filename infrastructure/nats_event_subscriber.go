package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"

	"raffler/events"

	log "github.com/sirupsen/logrus"
)

// messageSubscriber is the part of NATSClient the subscriber needs
type messageSubscriber interface {
	Subscribe(subject string, handler func([]byte) error) error
}

// NATSEventSubscriber decodes event envelopes from NATS and routes them to handlers
type NATSEventSubscriber struct {
	client        messageSubscriber
	subjectMapper *EventSubjectMapper
	handlers      map[string]func(context.Context, events.Event) error
}

func NewNATSEventSubscriber(client messageSubscriber, subjectMapper *EventSubjectMapper) *NATSEventSubscriber {
	return &NATSEventSubscriber{
		client:        client,
		subjectMapper: subjectMapper,
		handlers:      make(map[string]func(context.Context, events.Event) error),
	}
}

// Subscribe registers handler for an event type and starts consuming its subject
func (s *NATSEventSubscriber) Subscribe(eventType events.EventType, handler func(context.Context, events.Event) error) error {
	subject := s.subjectMapper.MapEventTypeToSubject(eventType)
	s.handlers[subject] = handler

	log.WithFields(log.Fields{
		"eventType": eventType,
		"subject":   subject,
	}).Info("Registering event handler for subject")

	return s.client.Subscribe(subject, func(data []byte) error {
		return s.handleMessage(subject, data)
	})
}

func (s *NATSEventSubscriber) handleMessage(subject string, data []byte) error {
	var envelope EventEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("failed to unmarshal event envelope: %w", err)
	}

	eventType := events.EventType(envelope.EventType)
	event, err := deserializeEvent(eventType, envelope.Payload)
	if err != nil {
		log.WithFields(log.Fields{
			"subject":   subject,
			"eventType": eventType,
			"eventId":   envelope.EventID,
			"error":     err,
		}).Error("Failed to deserialize event payload")
		return err
	}

	handler, ok := s.handlers[subject]
	if !ok {
		return fmt.Errorf("no handler registered for subject %s", subject)
	}

	if err := handler(context.Background(), event); err != nil {
		log.WithFields(log.Fields{
			"subject":   subject,
			"eventType": eventType,
			"eventId":   envelope.EventID,
			"error":     err,
		}).Error("Event handler failed")
		return err
	}

	log.WithFields(log.Fields{
		"subject": subject,
		"eventId": envelope.EventID,
	}).Debug("Successfully processed NATS event")
	return nil
}

func deserializeEvent(eventType events.EventType, payload []byte) (events.Event, error) {
	switch eventType {
	case events.EventTypeClaimObserved:
		var e events.ClaimObservedEvent
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("failed to decode claim observed event: %w", err)
		}
		return e, nil
	case events.EventTypeDrawPhase:
		var e events.DrawPhaseEvent
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("failed to decode draw phase event: %w", err)
		}
		return e, nil
	case events.EventTypeDrawFinished:
		var e events.DrawFinishedEvent
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("failed to decode draw finished event: %w", err)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}
