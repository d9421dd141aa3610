package entities

import "github.com/google/uuid"

// DrawTrigger identifies what started a draw attempt
type DrawTrigger string

const (
	TriggerScheduled DrawTrigger = "scheduled"
	TriggerForced    DrawTrigger = "forced"
	TriggerClaim     DrawTrigger = "claim"
)

// DrawResult classifies how a draw attempt ended
type DrawResult string

const (
	// DrawResultSkipped means another run held the lock
	DrawResultSkipped   DrawResult = "skipped"
	DrawResultAborted   DrawResult = "aborted"
	DrawResultCompleted DrawResult = "completed"
	DrawResultFailed    DrawResult = "failed"
)

// Abort reasons. Aborts are expected outcomes, not errors.
const (
	AbortNoNewClaim          = "no_new_claim"
	AbortClaimBelowMinimum   = "claim_below_minimum"
	AbortInsufficientHolders = "insufficient_holders"
	AbortHoldersUnavailable  = "holders_unavailable"
	AbortLockLost            = "lock_lost"
)

// DrawOutcome reports the result of one orchestrator run
type DrawOutcome struct {
	Result DrawResult `json:"result"`
	Reason string     `json:"reason,omitempty"`
	DrawID *uuid.UUID `json:"drawId,omitempty"`
	Draw   *Draw      `json:"draw,omitempty"`
}

// RetryResult reports a manual payout retry
type RetryResult struct {
	DrawID    uuid.UUID `json:"drawId"`
	Attempted int       `json:"attempted"`
	Paid      int       `json:"paid"`
	Remaining int       `json:"remaining"`
}
