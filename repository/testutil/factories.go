package testutil

import (
	"time"

	"raffler/domain/entities"
)

// CreateTestClaim creates a claim observed at the given time
func CreateTestClaim(signature string, amount int64, observedAt time.Time) *entities.ClaimEvent {
	return &entities.ClaimEvent{
		Signature:  signature,
		Amount:     amount,
		ObservedAt: observedAt.UTC().Truncate(time.Microsecond),
		Source:     "test",
	}
}

// CreateTestDraw creates a pending draw for the claim with one winner per wallet
func CreateTestDraw(claim *entities.ClaimEvent, startedAt time.Time, wallets ...string) *entities.Draw {
	draw := &entities.Draw{
		ID:              entities.DrawIDForClaim(claim.Signature),
		ClaimSignature:  claim.Signature,
		ClaimObservedAt: claim.ObservedAt,
		StartedAt:       startedAt.UTC().Truncate(time.Microsecond),
		TotalAmount:     claim.Amount,
		PayoutPool:      claim.Amount * 95 / 100,
		OddsMode:        entities.OddsModeSqrt,
		MaxWeightRatio:  5,
		Status:          entities.DrawStatusPending,
	}
	draw.SecondaryShare = claim.Amount - draw.PayoutPool
	if len(wallets) > 0 {
		draw.PerWinner = draw.PayoutPool / int64(len(wallets))
	}
	for i, wallet := range wallets {
		draw.Winners = append(draw.Winners, &entities.WinnerRecord{
			DrawID:       draw.ID,
			Position:     i + 1,
			Wallet:       wallet,
			Probability:  1 / float64(len(wallets)-i),
			PayoutAmount: draw.PerWinner,
		})
	}
	return draw
}
