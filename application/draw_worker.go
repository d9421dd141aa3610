package application

import (
	"context"
	"time"

	"raffler/domain/entities"
	"raffler/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

// DrawWorker runs a scheduled draw attempt on a fixed interval
type DrawWorker struct {
	orchestrator interfaces.DrawOrchestrator
	interval     time.Duration
}

func NewDrawWorker(orchestrator interfaces.DrawOrchestrator, interval time.Duration) *DrawWorker {
	return &DrawWorker{orchestrator: orchestrator, interval: interval}
}

// Start begins the draw worker and returns a function that stops it.
// A non-positive interval leaves draws to claim events and admin requests.
func (w *DrawWorker) Start(ctx context.Context) func() {
	if w.interval <= 0 {
		log.Info("Scheduled draws disabled")
		return func() {}
	}

	stopChan := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		log.WithField("interval", w.interval).Info("Draw worker started")

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Info("Draw worker shutting down (context cancelled)...")
				return
			case <-stopChan:
				log.Info("Draw worker shutting down (stop requested)...")
				return
			case <-ticker.C:
				w.tick(ctx)
			}
		}
	}()

	return func() {
		close(stopChan)
		<-done
	}
}

func (w *DrawWorker) tick(ctx context.Context) {
	outcome, err := w.orchestrator.RunDraw(ctx, entities.TriggerScheduled)
	if err != nil {
		log.Errorf("Scheduled draw failed: %v", err)
		return
	}
	log.WithFields(log.Fields{
		"result": outcome.Result,
		"reason": outcome.Reason,
	}).Debug("Scheduled draw attempt finished")
}
