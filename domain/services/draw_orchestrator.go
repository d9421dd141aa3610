package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"raffler/domain/entities"
	"raffler/domain/interfaces"
	"raffler/events"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var (
	ErrDrawNotFound     = errors.New("draw not found")
	ErrDrawNotRetriable = errors.New("draw is still pending")
	ErrDrawInProgress   = errors.New("another draw is in progress")
	ErrAllPayoutsFailed = errors.New("all winner payouts failed")
	ErrLockLost         = errors.New("draw lock lost")
)

// DrawState is a state of the orchestrator state machine
type DrawState string

const (
	StateIdle       DrawState = "idle"
	StateLocking    DrawState = "locking"
	StateDetecting  DrawState = "detecting"
	StateSelecting  DrawState = "selecting"
	StatePaying     DrawState = "paying"
	StateFinalizing DrawState = "finalizing"
	StateAborted    DrawState = "aborted"
	StateFailed     DrawState = "failed"
)

// DrawSettings are the draw parameters captured at configuration time
type DrawSettings struct {
	OddsMode         entities.OddsMode
	MaxWeightRatio   float64
	WinnerCount      int
	PayoutFraction   float64
	MinClaimAmount   int64
	MinHolderBalance int64
	SecondaryWallet  string
}

// PayoutSplit is how a claim amount is divided between winners and the secondary recipient
type PayoutSplit struct {
	PayoutPool     int64
	PerWinner      int64
	SecondaryShare int64
}

// SplitClaim computes floor(amount*fraction) for the pool and floor(pool/k) per winner.
// The fraction is applied in decimal so amounts near float64 precision limits stay exact.
func SplitClaim(amount int64, fraction float64, winners int) PayoutSplit {
	pool := decimal.NewFromInt(amount).Mul(decimal.NewFromFloat(fraction)).Floor().IntPart()
	split := PayoutSplit{
		PayoutPool:     pool,
		SecondaryShare: amount - pool,
	}
	if winners > 0 {
		split.PerWinner = pool / int64(winners)
	}
	return split
}

// drawRun carries the state of one orchestrator invocation
type drawRun struct {
	trigger entities.DrawTrigger
	state   DrawState
	lock    *entities.DrawLock
	drawID  *uuid.UUID
	started time.Time
}

func (r *drawRun) logger() *log.Entry {
	fields := log.Fields{
		"trigger": r.trigger,
		"state":   r.state,
	}
	if r.drawID != nil {
		fields["drawId"] = r.drawID.String()
	}
	return log.WithFields(fields)
}

func (r *drawRun) transition(next DrawState) {
	r.logger().WithField("next", next).Debug("Draw state transition")
	r.state = next
}

type drawOrchestrator struct {
	uowFactory interfaces.UnitOfWorkFactory
	locker     *DrawLocker
	claims     interfaces.ClaimDeduplicator
	balances   interfaces.BalanceSource
	payouts    interfaces.PayoutDispatcher
	phases     interfaces.PhasePublisher
	totals     *TotalsTracker
	metrics    interfaces.DrawMetrics
	rng        RandomSource
	settings   DrawSettings
	now        func() time.Time
}

// OrchestratorDeps groups the collaborators of the draw orchestrator
type OrchestratorDeps struct {
	UnitOfWorkFactory interfaces.UnitOfWorkFactory
	Locker            *DrawLocker
	Claims            interfaces.ClaimDeduplicator
	Balances          interfaces.BalanceSource
	Payouts           interfaces.PayoutDispatcher
	Phases            interfaces.PhasePublisher
	Totals            *TotalsTracker
	Metrics           interfaces.DrawMetrics
	Random            RandomSource
	Now               func() time.Time
}

// NewDrawOrchestrator creates the orchestrator. Random defaults to crypto/rand,
// Metrics to a no-op recorder and Now to the wall clock.
func NewDrawOrchestrator(deps OrchestratorDeps, settings DrawSettings) interfaces.DrawOrchestrator {
	o := &drawOrchestrator{
		uowFactory: deps.UnitOfWorkFactory,
		locker:     deps.Locker,
		claims:     deps.Claims,
		balances:   deps.Balances,
		payouts:    deps.Payouts,
		phases:     deps.Phases,
		totals:     deps.Totals,
		metrics:    deps.Metrics,
		rng:        deps.Random,
		settings:   settings,
		now:        deps.Now,
	}
	if o.rng == nil {
		o.rng = CryptoRandom{}
	}
	if o.metrics == nil {
		o.metrics = noopMetrics{}
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// RunDraw executes one draw attempt through the state machine
func (o *drawOrchestrator) RunDraw(ctx context.Context, trigger entities.DrawTrigger) (*entities.DrawOutcome, error) {
	run := &drawRun{trigger: trigger, state: StateIdle, started: o.now()}

	outcome, err := o.runDraw(ctx, run)
	if err != nil {
		run.transition(StateFailed)
		run.logger().WithError(err).Error("Draw failed")
		if outcome == nil {
			outcome = &entities.DrawOutcome{Result: entities.DrawResultFailed, Reason: err.Error(), DrawID: run.drawID}
		}
	}

	o.metrics.RecordDrawOutcome(ctx, string(outcome.Result), outcome.Reason, o.now().Sub(run.started))
	return outcome, err
}

func (o *drawOrchestrator) runDraw(ctx context.Context, run *drawRun) (*entities.DrawOutcome, error) {
	run.transition(StateLocking)
	lock, acquired, err := o.locker.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if !acquired {
		run.logger().Debug("Draw lock held by another run, skipping")
		o.metrics.RecordLockContention(ctx)
		run.transition(StateIdle)
		return &entities.DrawOutcome{Result: entities.DrawResultSkipped, Reason: "lock_held"}, nil
	}
	run.lock = lock

	// Best-effort release on every exit path; the lock TTL covers the rest
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if _, err := o.locker.Release(releaseCtx, lock); err != nil {
			run.logger().WithError(err).Warn("Failed to release draw lock")
		}
	}()

	run.transition(StateDetecting)
	o.recordPhase(ctx, run, nil, entities.PhaseDrawing, map[string]any{"trigger": run.trigger})

	pending, err := o.latestPendingDraw(ctx)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		run.drawID = &pending.ID
		run.logger().Warn("Resuming pending draw left by an interrupted run")
		return o.payAndFinalize(ctx, run, pending)
	}

	claim, err := o.claims.DetectNewClaim(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to detect claim: %w", err)
	}
	if claim == nil {
		return o.abort(run, entities.AbortNoNewClaim, nil), nil
	}
	if claim.Amount < o.settings.MinClaimAmount {
		return o.abort(run, entities.AbortClaimBelowMinimum, log.Fields{
			"signature": claim.Signature,
			"amount":    claim.Amount,
			"minimum":   o.settings.MinClaimAmount,
		}), nil
	}

	drawID := entities.DrawIDForClaim(claim.Signature)
	run.drawID = &drawID

	existing, err := o.getDraw(ctx, drawID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.IsPending() {
			return o.payAndFinalize(ctx, run, existing)
		}
		// Finished before the watermark moved, only finalization remains
		run.logger().Warn("Claim already drew, completing finalization")
		run.transition(StateFinalizing)
		return o.finalize(ctx, run, existing)
	}

	run.transition(StateSelecting)
	draw, outcome, err := o.selectWinners(ctx, run, *claim)
	if err != nil || outcome != nil {
		return outcome, err
	}

	run.transition(StatePaying)
	if err := o.ensureHeld(ctx, run); err != nil {
		return o.lockLost(run, err)
	}
	if err := o.createDraw(ctx, draw); err != nil {
		return nil, err
	}

	return o.payAndFinalize(ctx, run, draw)
}

// selectWinners fetches holders and draws winners. A non-nil outcome means the run aborted.
func (o *drawOrchestrator) selectWinners(ctx context.Context, run *drawRun, claim entities.ClaimEvent) (*entities.Draw, *entities.DrawOutcome, error) {
	raw, err := o.balances.ListEligibleHolders(ctx, o.settings.MinHolderBalance)
	if err != nil {
		return nil, o.abort(run, entities.AbortHoldersUnavailable, log.Fields{"error": err.Error()}), nil
	}

	holders := EligibleHolders(raw, o.settings.MinHolderBalance)
	if len(holders) < o.settings.WinnerCount {
		return nil, o.abort(run, entities.AbortInsufficientHolders, log.Fields{
			"holders":  len(holders),
			"required": o.settings.WinnerCount,
		}), nil
	}

	weighted, err := CalculateWeights(holders, o.settings.OddsMode, o.settings.MaxWeightRatio)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to calculate weights: %w", err)
	}
	selected, err := SelectWinners(weighted, o.settings.WinnerCount, o.rng)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to select winners: %w", err)
	}

	split := SplitClaim(claim.Amount, o.settings.PayoutFraction, o.settings.WinnerCount)
	draw := &entities.Draw{
		ID:              *run.drawID,
		ClaimSignature:  claim.Signature,
		ClaimObservedAt: claim.ObservedAt,
		StartedAt:       run.started.UTC(),
		TotalAmount:     claim.Amount,
		PayoutPool:      split.PayoutPool,
		PerWinner:       split.PerWinner,
		SecondaryShare:  split.SecondaryShare,
		OddsMode:        o.settings.OddsMode,
		MaxWeightRatio:  o.settings.MaxWeightRatio,
		Status:          entities.DrawStatusPending,
	}

	winners := make([]map[string]any, 0, len(selected))
	for i, w := range selected {
		draw.Winners = append(draw.Winners, &entities.WinnerRecord{
			DrawID:       draw.ID,
			Position:     i + 1,
			Wallet:       w.Wallet,
			Probability:  w.Probability,
			PayoutAmount: split.PerWinner,
		})
		winners = append(winners, map[string]any{
			"wallet":      w.Wallet,
			"probability": w.Probability,
		})
	}

	o.recordPhase(ctx, run, run.drawID, entities.PhaseSelectedWinners, map[string]any{
		"winners":     winners,
		"holderCount": len(holders),
		"payoutPool":  split.PayoutPool,
		"perWinner":   split.PerWinner,
	})

	run.logger().WithFields(log.Fields{
		"claim":      claim.Signature,
		"amount":     claim.Amount,
		"holders":    len(holders),
		"payoutPool": split.PayoutPool,
		"perWinner":  split.PerWinner,
	}).Info("Winners selected")

	return draw, nil, nil
}

// payAndFinalize dispatches outstanding payouts of a pending draw and finalizes it
func (o *drawOrchestrator) payAndFinalize(ctx context.Context, run *drawRun, draw *entities.Draw) (*entities.DrawOutcome, error) {
	run.transition(StatePaying)

	if err := o.payWinners(ctx, run, draw); err != nil {
		if errors.Is(err, ErrLockLost) {
			return o.lockLost(run, err)
		}
		return nil, err
	}
	o.paySecondary(ctx, run, draw)

	run.transition(StateFinalizing)
	if err := o.ensureHeld(ctx, run); err != nil {
		return o.lockLost(run, err)
	}

	status := entities.DrawStatusCompleted
	if draw.PaidCount() == 0 {
		status = entities.DrawStatusFailed
	}
	if err := o.finishDraw(ctx, draw, status); err != nil {
		return nil, err
	}

	payouts := make([]map[string]any, 0, len(draw.Winners))
	for _, w := range draw.Winners {
		entry := map[string]any{"wallet": w.Wallet, "amount": w.PayoutAmount}
		if w.IsPaid() {
			entry["reference"] = *w.TransferReference
		}
		payouts = append(payouts, entry)
	}
	o.recordPhase(ctx, run, &draw.ID, entities.PhasePayoutsSent, map[string]any{
		"payouts": payouts,
		"status":  draw.Status,
	})

	return o.finalize(ctx, run, draw)
}

// payWinners pays every winner lacking a reference. A failed payout is logged and
// left for the retry operation; only a lost lock stops the loop.
func (o *drawOrchestrator) payWinners(ctx context.Context, run *drawRun, draw *entities.Draw) error {
	for _, winner := range draw.UnpaidWinners() {
		if err := o.ensureHeld(ctx, run); err != nil {
			return err
		}

		reference, err := o.payouts.Payout(ctx, draw.ID, winner.Wallet, winner.PayoutAmount)
		if err != nil {
			o.metrics.RecordPayout(ctx, "winner", false, winner.PayoutAmount)
			run.logger().WithFields(log.Fields{
				"wallet": winner.Wallet,
				"amount": winner.PayoutAmount,
				"error":  err,
			}).Error("Winner payout failed")
			continue
		}
		o.metrics.RecordPayout(ctx, "winner", true, winner.PayoutAmount)

		paidAt := o.now().UTC()
		winner.MarkPaid(reference, paidAt)
		if err := o.recordWinnerTransfer(ctx, draw.ID, winner.Wallet, reference, paidAt); err != nil {
			// The idempotency key still holds the reference for a later run
			run.logger().WithError(err).WithField("wallet", winner.Wallet).Error("Failed to record winner transfer")
		}
	}
	return nil
}

// paySecondary sends the remainder share; failures never block finalization
func (o *drawOrchestrator) paySecondary(ctx context.Context, run *drawRun, draw *entities.Draw) {
	if o.settings.SecondaryWallet == "" || draw.SecondaryShare <= 0 || draw.SecondaryRef != nil {
		return
	}

	reference, err := o.payouts.PayoutSecondary(ctx, draw.ID, o.settings.SecondaryWallet, draw.SecondaryShare)
	if err != nil {
		o.metrics.RecordPayout(ctx, "secondary", false, draw.SecondaryShare)
		run.logger().WithFields(log.Fields{
			"wallet": o.settings.SecondaryWallet,
			"amount": draw.SecondaryShare,
			"error":  err,
		}).Error("Secondary payout failed, needs manual retry")
		return
	}
	o.metrics.RecordPayout(ctx, "secondary", true, draw.SecondaryShare)

	draw.SecondaryRef = &reference
	if err := o.recordSecondaryTransfer(ctx, draw.ID, reference); err != nil {
		run.logger().WithError(err).Error("Failed to record secondary transfer")
	}
}

// finalize applies totals, advances the claim watermark and reports the outcome.
// Every step is safe to repeat for a draw that was already finalized.
func (o *drawOrchestrator) finalize(ctx context.Context, run *drawRun, draw *entities.Draw) (*entities.DrawOutcome, error) {
	if err := o.ensureHeld(ctx, run); err != nil {
		return o.lockLost(run, err)
	}

	at := o.now().UTC()
	if draw.EndedAt != nil {
		at = *draw.EndedAt
	}
	if _, err := o.totals.ApplyDraw(ctx, draw, at); err != nil {
		return nil, err
	}

	if err := o.claims.Commit(ctx, draw.Claim()); err != nil {
		return nil, fmt.Errorf("failed to advance claim watermark: %w", err)
	}

	run.transition(StateIdle)
	outcome := &entities.DrawOutcome{DrawID: &draw.ID, Draw: draw}

	if draw.Status == entities.DrawStatusFailed {
		outcome.Result = entities.DrawResultFailed
		outcome.Reason = "all_payouts_failed"
		run.logger().WithFields(log.Fields{
			"winners":            len(draw.Winners),
			"manualIntervention": true,
		}).Error("Every winner payout failed")
		return outcome, ErrAllPayoutsFailed
	}

	outcome.Result = entities.DrawResultCompleted
	run.logger().WithFields(log.Fields{
		"paid":        draw.PaidCount(),
		"winners":     len(draw.Winners),
		"distributed": draw.DistributedAmount(),
	}).Info("Draw completed")
	return outcome, nil
}

func (o *drawOrchestrator) abort(run *drawRun, reason string, fields log.Fields) *entities.DrawOutcome {
	run.transition(StateAborted)
	entry := run.logger().WithField("reason", reason)
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	if reason == entities.AbortNoNewClaim {
		entry.Debug("Draw aborted")
	} else {
		entry.Info("Draw aborted")
	}
	return &entities.DrawOutcome{Result: entities.DrawResultAborted, Reason: reason, DrawID: run.drawID}
}

func (o *drawOrchestrator) lockLost(run *drawRun, err error) (*entities.DrawOutcome, error) {
	if !errors.Is(err, ErrLockLost) {
		return nil, err
	}
	run.logger().Warn("Draw lock expired mid-run, abandoning work")
	return o.abort(run, entities.AbortLockLost, nil), nil
}

// ensureHeld verifies this run still owns the lock before a shared-state write
func (o *drawOrchestrator) ensureHeld(ctx context.Context, run *drawRun) error {
	held, err := o.locker.StillHeld(ctx, run.lock)
	if err != nil {
		return err
	}
	if !held {
		return ErrLockLost
	}
	return nil
}

// recordPhase is best-effort but still writes shared state, so a run that lost its lock records nothing
func (o *drawOrchestrator) recordPhase(ctx context.Context, run *drawRun, drawID *uuid.UUID, phase entities.Phase, data map[string]any) {
	if err := o.ensureHeld(ctx, run); err != nil {
		run.logger().WithError(err).WithField("phase", phase).Warn("Skipping draw phase")
		return
	}
	if err := o.phases.Record(ctx, drawID, phase, data); err != nil {
		run.logger().WithError(err).WithField("phase", phase).Warn("Failed to record draw phase")
	}
}

// RetryPayout re-attempts payouts for winners of a finished draw without reselecting
func (o *drawOrchestrator) RetryPayout(ctx context.Context, drawID uuid.UUID) (*entities.RetryResult, error) {
	run := &drawRun{trigger: entities.TriggerForced, state: StateLocking, drawID: &drawID, started: o.now()}

	lock, acquired, err := o.locker.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrDrawInProgress
	}
	run.lock = lock
	defer func() {
		if _, err := o.locker.Release(context.WithoutCancel(ctx), lock); err != nil {
			run.logger().WithError(err).Warn("Failed to release draw lock")
		}
	}()

	draw, err := o.getDraw(ctx, drawID)
	if err != nil {
		return nil, err
	}
	if draw == nil {
		return nil, ErrDrawNotFound
	}
	if draw.IsPending() {
		return nil, ErrDrawNotRetriable
	}

	run.transition(StatePaying)
	unpaid := draw.UnpaidWinners()
	result := &entities.RetryResult{DrawID: drawID, Attempted: len(unpaid)}
	distributedBefore := draw.DistributedAmount()

	if err := o.payWinners(ctx, run, draw); err != nil {
		return nil, err
	}
	o.paySecondary(ctx, run, draw)

	result.Remaining = len(draw.UnpaidWinners())
	result.Paid = result.Attempted - result.Remaining

	if err := o.totals.AddDistributed(ctx, draw.DistributedAmount()-distributedBefore); err != nil {
		run.logger().WithError(err).Warn("Failed to update totals after retry")
	}

	run.transition(StateIdle)
	run.logger().WithFields(log.Fields{
		"attempted": result.Attempted,
		"paid":      result.Paid,
		"remaining": result.Remaining,
	}).Info("Payout retry finished")
	return result, nil
}

func (o *drawOrchestrator) latestPendingDraw(ctx context.Context) (*entities.Draw, error) {
	uow := o.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	latest, err := uow.DrawRepository().GetLatest(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest draw: %w", err)
	}
	if latest == nil || !latest.IsPending() {
		return nil, nil
	}
	return latest, nil
}

func (o *drawOrchestrator) getDraw(ctx context.Context, id uuid.UUID) (*entities.Draw, error) {
	uow := o.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	draw, err := uow.DrawRepository().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get draw: %w", err)
	}
	return draw, nil
}

func (o *drawOrchestrator) createDraw(ctx context.Context, draw *entities.Draw) error {
	uow := o.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := uow.DrawRepository().Create(ctx, draw); err != nil {
		return fmt.Errorf("failed to create draw: %w", err)
	}
	return uow.Commit()
}

func (o *drawOrchestrator) recordWinnerTransfer(ctx context.Context, drawID uuid.UUID, wallet, reference string, paidAt time.Time) error {
	uow := o.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := uow.DrawRepository().RecordWinnerTransfer(ctx, drawID, wallet, reference, paidAt); err != nil {
		return err
	}
	return uow.Commit()
}

func (o *drawOrchestrator) recordSecondaryTransfer(ctx context.Context, drawID uuid.UUID, reference string) error {
	uow := o.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := uow.DrawRepository().RecordSecondaryTransfer(ctx, drawID, reference); err != nil {
		return err
	}
	return uow.Commit()
}

// finishDraw persists the final status and queues the finished event in one transaction
func (o *drawOrchestrator) finishDraw(ctx context.Context, draw *entities.Draw, status entities.DrawStatus) error {
	endedAt := o.now().UTC()

	uow := o.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := uow.DrawRepository().Finish(ctx, draw.ID, status, endedAt); err != nil {
		return fmt.Errorf("failed to finish draw: %w", err)
	}

	finished := events.DrawFinishedEvent{
		DrawID:         draw.ID.String(),
		ClaimSignature: draw.ClaimSignature,
		Status:         string(status),
		TotalAmount:    draw.TotalAmount,
		PayoutPool:     draw.PayoutPool,
		EndedAt:        endedAt,
	}
	for _, w := range draw.Winners {
		summary := events.WinnerSummary{
			Wallet:       w.Wallet,
			Probability:  w.Probability,
			PayoutAmount: w.PayoutAmount,
		}
		if w.IsPaid() {
			summary.TransferReference = *w.TransferReference
		}
		finished.Winners = append(finished.Winners, summary)
	}
	if err := uow.EventBus().Publish(finished); err != nil {
		return fmt.Errorf("failed to queue draw finished event: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit draw: %w", err)
	}

	draw.Finish(status, endedAt)
	return nil
}

type noopMetrics struct{}

func (noopMetrics) RecordDrawOutcome(context.Context, string, string, time.Duration) {}
func (noopMetrics) RecordPayout(context.Context, string, bool, int64)                {}
func (noopMetrics) RecordLockContention(context.Context)                             {}
