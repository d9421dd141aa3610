package infrastructure

import (
	"context"
	"sync"

	"raffler/domain/interfaces"
	"raffler/events"

	log "github.com/sirupsen/logrus"
)

// NATSTransactionalPublisher holds events until the database transaction commits
type NATSTransactionalPublisher struct {
	realPublisher interfaces.EventPublisher
	mu            sync.Mutex
	pending       []events.Event
}

// NewNATSTransactionalPublisher creates a transactional publisher in front of realPublisher
func NewNATSTransactionalPublisher(realPublisher interfaces.EventPublisher) *NATSTransactionalPublisher {
	return &NATSTransactionalPublisher{realPublisher: realPublisher}
}

// Publish queues the event without delivering it
func (p *NATSTransactionalPublisher) Publish(event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pending = append(p.pending, event)
	log.WithFields(log.Fields{
		"eventType":    event.Type(),
		"pendingCount": len(p.pending),
	}).Debug("Queued event until commit")
	return nil
}

// Flush delivers pending events. A failed event is logged and does not stop the rest.
func (p *NATSTransactionalPublisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, event := range pending {
		if err := p.realPublisher.Publish(event); err != nil {
			log.WithFields(log.Fields{
				"eventType": event.Type(),
				"error":     err,
			}).Error("Failed to publish event during flush")
		}
	}
	return nil
}

// Discard drops pending events after a rollback
func (p *NATSTransactionalPublisher) Discard() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pending) > 0 {
		log.WithField("discardedEventCount", len(p.pending)).Debug("Discarding pending events")
	}
	p.pending = nil
}
