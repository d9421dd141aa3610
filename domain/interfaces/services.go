package interfaces

import (
	"context"

	"raffler/domain/entities"

	"github.com/google/uuid"
)

// DrawOrchestrator runs draws and manual payout retries
type DrawOrchestrator interface {
	// RunDraw executes one lock-guarded draw attempt. Contention and unmet
	// preconditions are reported in the outcome, not as errors.
	RunDraw(ctx context.Context, trigger entities.DrawTrigger) (*entities.DrawOutcome, error)

	// RetryPayout re-attempts transfers for winners of a finished draw that lack a reference
	RetryPayout(ctx context.Context, drawID uuid.UUID) (*entities.RetryResult, error)
}

// ClaimDeduplicator decides whether a funding event may trigger a draw
type ClaimDeduplicator interface {
	// DetectNewClaim returns the newest claim past the watermark, or nil
	DetectNewClaim(ctx context.Context) (*entities.ClaimEvent, error)

	// Ingest records a pushed or polled claim and reports whether it is newer than the watermark
	Ingest(ctx context.Context, claim entities.ClaimEvent) (bool, error)

	// Commit advances the watermark to a processed claim
	Commit(ctx context.Context, claim entities.ClaimEvent) error

	Watermark(ctx context.Context) (entities.ClaimWatermark, error)
}

// PayoutDispatcher sends funds exactly once per (draw, wallet)
type PayoutDispatcher interface {
	Payout(ctx context.Context, drawID uuid.UUID, wallet string, amount int64) (string, error)
	PayoutSecondary(ctx context.Context, drawID uuid.UUID, wallet string, amount int64) (string, error)
}

// PhasePublisher records phase transitions for the phase stream
type PhasePublisher interface {
	Record(ctx context.Context, drawID *uuid.UUID, phase entities.Phase, data map[string]any) error
	Current(ctx context.Context) (*entities.PhaseEvent, error)
}

// StatusService exposes read models to external consumers
type StatusService interface {
	GetStatus(ctx context.Context) (*entities.SystemStatus, error)
	GetRecentWinners(ctx context.Context, limit int) ([]*entities.RecentWinner, error)
	GetPhaseStream(ctx context.Context, limit int) ([]*entities.PhaseEvent, error)
	GetOdds(ctx context.Context, wallet string) (*entities.WalletOdds, error)
	GetClaimSummaries(ctx context.Context) ([]*entities.ClaimSummary, error)
}
