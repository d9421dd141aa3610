package interfaces

import (
	"context"

	"raffler/domain/entities"
)

// BalanceSource lists wallets eligible for a draw
type BalanceSource interface {
	ListEligibleHolders(ctx context.Context, minBalance int64) ([]entities.Holder, error)
}

// TransferExecutor submits a transfer and returns its reference. The idempotency
// key is forwarded so the executor can reject duplicates on its side too.
type TransferExecutor interface {
	Transfer(ctx context.Context, destination string, amount int64, idempotencyKey string) (string, error)
}

// ClaimSource reports recent funding events
type ClaimSource interface {
	Name() string
	PollRecentFundingEvents(ctx context.Context) ([]entities.ClaimEvent, error)
}
