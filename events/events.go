package events

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeDrawPhase     EventType = "draw_phase"
	EventTypeDrawFinished  EventType = "draw_finished"
	EventTypeClaimObserved EventType = "claim_observed"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// DrawPhaseEvent announces a phase transition of a draw
type DrawPhaseEvent struct {
	DrawID     string         `json:"drawId"`
	Phase      string         `json:"phase"`
	Data       map[string]any `json:"data,omitempty"`
	OccurredAt time.Time      `json:"timestamp"`
}

func (e DrawPhaseEvent) Type() EventType {
	return EventTypeDrawPhase
}

// WinnerSummary is a winner as carried on the wire
type WinnerSummary struct {
	Wallet            string  `json:"wallet"`
	Probability       float64 `json:"probability"`
	PayoutAmount      int64   `json:"payoutAmount"`
	TransferReference string  `json:"transferReference,omitempty"`
}

// DrawFinishedEvent is emitted once a draw reaches a final status
type DrawFinishedEvent struct {
	DrawID         string          `json:"drawId"`
	ClaimSignature string          `json:"claimSignature"`
	Status         string          `json:"status"`
	TotalAmount    int64           `json:"totalAmount"`
	PayoutPool     int64           `json:"payoutPool"`
	Winners        []WinnerSummary `json:"winners"`
	EndedAt        time.Time       `json:"endedAt"`
}

func (e DrawFinishedEvent) Type() EventType {
	return EventTypeDrawFinished
}

// ClaimObservedEvent is a funding event reported by an external tracker
type ClaimObservedEvent struct {
	Signature  string    `json:"signature"`
	Amount     int64     `json:"amount"`
	ObservedAt time.Time `json:"observedAt"`
	Source     string    `json:"source"`
}

func (e ClaimObservedEvent) Type() EventType {
	return EventTypeClaimObserved
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus dispatches events to in-process subscribers
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	wg       sync.WaitGroup
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type")
}

// Publish emits the event to all registered handlers without blocking the caller
func (b *Bus) Publish(event Event) error {
	b.Emit(context.Background(), event)
	return nil
}

// Emit publishes an event to all registered handlers asynchronously
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	for i, handler := range handlers {
		b.wg.Add(1)
		go func(h Handler, handlerIndex int) {
			defer b.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// Wait blocks until every handler started so far has returned
func (b *Bus) Wait() {
	b.wg.Wait()
}
