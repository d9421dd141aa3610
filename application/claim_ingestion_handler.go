package application

import (
	"context"
	"fmt"

	"raffler/domain/entities"
	"raffler/domain/interfaces"
	"raffler/events"

	log "github.com/sirupsen/logrus"
)

// ClaimIngestionHandler is the single path from reported claims to draws.
// Webhooks, pollers and the message bus all feed it.
type ClaimIngestionHandler struct {
	dedup        interfaces.ClaimDeduplicator
	orchestrator interfaces.DrawOrchestrator
}

func NewClaimIngestionHandler(dedup interfaces.ClaimDeduplicator, orchestrator interfaces.DrawOrchestrator) *ClaimIngestionHandler {
	return &ClaimIngestionHandler{dedup: dedup, orchestrator: orchestrator}
}

// IngestResult reports what happened to a batch of claims
type IngestResult struct {
	Received int                   `json:"received"`
	Admitted int                   `json:"admitted"`
	Outcome  *entities.DrawOutcome `json:"outcome,omitempty"`
}

// Ingest records every claim without drawing
func (h *ClaimIngestionHandler) Ingest(ctx context.Context, claims []entities.ClaimEvent) (*IngestResult, error) {
	result := &IngestResult{Received: len(claims)}

	for _, claim := range claims {
		admitted, err := h.dedup.Ingest(ctx, claim)
		if err != nil {
			return result, fmt.Errorf("failed to ingest claim %s: %w", claim.Signature, err)
		}
		if admitted {
			result.Admitted++
		}
	}
	return result, nil
}

// HandleClaims records every claim and runs one draw when any of them is new
func (h *ClaimIngestionHandler) HandleClaims(ctx context.Context, claims []entities.ClaimEvent) (*IngestResult, error) {
	result, err := h.Ingest(ctx, claims)
	if err != nil {
		return result, err
	}

	if result.Admitted == 0 {
		log.WithField("received", result.Received).Debug("No new claims in batch")
		return result, nil
	}

	outcome, err := h.orchestrator.RunDraw(ctx, entities.TriggerClaim)
	result.Outcome = outcome
	if err != nil {
		return result, fmt.Errorf("claim-triggered draw failed: %w", err)
	}

	log.WithFields(log.Fields{
		"received": result.Received,
		"admitted": result.Admitted,
		"result":   outcome.Result,
		"reason":   outcome.Reason,
	}).Info("Processed claim batch")
	return result, nil
}

// HandleClaimObserved adapts claim_observed bus events to HandleClaims
func (h *ClaimIngestionHandler) HandleClaimObserved(ctx context.Context, event events.Event) error {
	observed, ok := event.(events.ClaimObservedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	claim := entities.ClaimEvent{
		Signature:  observed.Signature,
		Amount:     observed.Amount,
		ObservedAt: observed.ObservedAt,
		Source:     observed.Source,
	}
	if claim.Source == "" {
		claim.Source = "nats"
	}
	if err := claim.Validate(); err != nil {
		// Redelivery cannot fix a malformed event
		log.WithError(err).Warn("Dropping invalid claim_observed event")
		return nil
	}

	_, err := h.HandleClaims(ctx, []entities.ClaimEvent{claim})
	return err
}
