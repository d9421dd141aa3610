package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"raffler/domain/entities"
	"raffler/domain/interfaces"
	"raffler/events"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// CurrentPhaseKey caches the latest phase event for live display
const CurrentPhaseKey = "current_draw_status"

type phasePublisher struct {
	uowFactory interfaces.UnitOfWorkFactory
	store      interfaces.KeyValueStore
	ttl        time.Duration
	now        func() time.Time
}

// NewPhasePublisher creates a publisher persisting phase events and caching the current one for ttl
func NewPhasePublisher(uowFactory interfaces.UnitOfWorkFactory, store interfaces.KeyValueStore, ttl time.Duration) interfaces.PhasePublisher {
	return &phasePublisher{
		uowFactory: uowFactory,
		store:      store,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Record appends a phase event to the stream and publishes it after commit
func (p *phasePublisher) Record(ctx context.Context, drawID *uuid.UUID, phase entities.Phase, data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode %s phase data: %w", phase, err)
	}

	event := &entities.PhaseEvent{
		DrawID:     drawID,
		Phase:      phase,
		Data:       payload,
		OccurredAt: p.now().UTC(),
	}

	uow := p.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := uow.PhaseEventRepository().Append(ctx, event); err != nil {
		return fmt.Errorf("failed to append %s phase event: %w", phase, err)
	}

	wire := events.DrawPhaseEvent{
		Phase:      string(phase),
		Data:       data,
		OccurredAt: event.OccurredAt,
	}
	if drawID != nil {
		wire.DrawID = drawID.String()
	}
	if err := uow.EventBus().Publish(wire); err != nil {
		return fmt.Errorf("failed to queue %s phase event: %w", phase, err)
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s phase event: %w", phase, err)
	}

	if cached, err := json.Marshal(event); err == nil {
		if err := p.store.Put(ctx, CurrentPhaseKey, string(cached), p.ttl); err != nil {
			log.WithError(err).Warn("Failed to cache current draw phase")
		}
	}

	log.WithFields(log.Fields{
		"phase":  phase,
		"drawId": wire.DrawID,
	}).Info("Draw phase recorded")
	return nil
}

// Current returns the cached phase event, or nil once it expired
func (p *phasePublisher) Current(ctx context.Context) (*entities.PhaseEvent, error) {
	raw, err := p.store.Get(ctx, CurrentPhaseKey)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read current phase: %w", err)
	}

	var event entities.PhaseEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return nil, fmt.Errorf("failed to decode current phase: %w", err)
	}
	return &event, nil
}
