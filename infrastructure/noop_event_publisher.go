package infrastructure

import "raffler/events"

// NoopEventPublisher drops every event. One-shot CLI commands use it.
type NoopEventPublisher struct{}

func NewNoopEventPublisher() *NoopEventPublisher {
	return &NoopEventPublisher{}
}

func (n *NoopEventPublisher) Publish(event events.Event) error {
	return nil
}
