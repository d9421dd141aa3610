package application

import (
	"context"
	"time"

	"raffler/domain/entities"
	"raffler/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

// ClaimPollWorker pulls recent funding events from claim sources and feeds
// them to the ingestion handler
type ClaimPollWorker struct {
	sources  []interfaces.ClaimSource
	handler  *ClaimIngestionHandler
	interval time.Duration
}

func NewClaimPollWorker(handler *ClaimIngestionHandler, interval time.Duration, sources ...interfaces.ClaimSource) *ClaimPollWorker {
	return &ClaimPollWorker{sources: sources, handler: handler, interval: interval}
}

// Start polls immediately, then on every interval. The returned function stops the worker.
func (w *ClaimPollWorker) Start(ctx context.Context) func() {
	if len(w.sources) == 0 || w.interval <= 0 {
		log.Info("Claim polling disabled")
		return func() {}
	}

	stopChan := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		log.WithFields(log.Fields{
			"interval": w.interval,
			"sources":  len(w.sources),
		}).Info("Claim poll worker started")

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			w.PollOnce(ctx)
			select {
			case <-ctx.Done():
				log.Info("Claim poll worker shutting down (context cancelled)...")
				return
			case <-stopChan:
				log.Info("Claim poll worker shutting down (stop requested)...")
				return
			case <-ticker.C:
			}
		}
	}()

	return func() {
		close(stopChan)
		<-done
	}
}

// PollOnce queries every source and hands the combined batch to the handler.
// A failing source is skipped.
func (w *ClaimPollWorker) PollOnce(ctx context.Context) {
	var batch []entities.ClaimEvent
	for _, source := range w.sources {
		claims, err := source.PollRecentFundingEvents(ctx)
		if err != nil {
			log.WithFields(log.Fields{
				"source": source.Name(),
				"error":  err,
			}).Warn("Claim source poll failed")
			continue
		}
		batch = append(batch, claims...)
	}
	if len(batch) == 0 {
		return
	}

	if _, err := w.handler.HandleClaims(ctx, batch); err != nil {
		log.Errorf("Failed to handle polled claims: %v", err)
	}
}
