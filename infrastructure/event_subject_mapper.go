package infrastructure

import (
	"fmt"

	"raffler/events"
)

// RaffleStreamName is the JetStream stream carrying every raffle subject
const RaffleStreamName = "raffle_events"

const (
	SubjectDrawPhase     = "raffle.draw.phase"
	SubjectDrawFinished  = "raffle.draw.finished"
	SubjectClaimObserved = "raffle.claims.observed"
)

// EventSubjectMapper maps between event types and NATS subjects
type EventSubjectMapper struct{}

func NewEventSubjectMapper() *EventSubjectMapper {
	return &EventSubjectMapper{}
}

// MapEventTypeToSubject returns the subject an event type is published on
func (m *EventSubjectMapper) MapEventTypeToSubject(eventType events.EventType) string {
	switch eventType {
	case events.EventTypeDrawPhase:
		return SubjectDrawPhase
	case events.EventTypeDrawFinished:
		return SubjectDrawFinished
	case events.EventTypeClaimObserved:
		return SubjectClaimObserved
	default:
		return fmt.Sprintf("raffle.unknown.%s", eventType)
	}
}

// MapSubjectToEventType converts a subject back to its event type
func (m *EventSubjectMapper) MapSubjectToEventType(subject string) events.EventType {
	switch subject {
	case SubjectDrawPhase:
		return events.EventTypeDrawPhase
	case SubjectDrawFinished:
		return events.EventTypeDrawFinished
	case SubjectClaimObserved:
		return events.EventTypeClaimObserved
	default:
		return events.EventType(subject)
	}
}

// GetAllSubjects returns every subject of the raffle stream
func (m *EventSubjectMapper) GetAllSubjects() []string {
	return []string{SubjectDrawPhase, SubjectDrawFinished, SubjectClaimObserved}
}
