package entities

import (
	"time"

	"github.com/google/uuid"
)

// DrawStatus represents the lifecycle state of a persisted draw
type DrawStatus string

const (
	DrawStatusPending   DrawStatus = "pending"
	DrawStatusCompleted DrawStatus = "completed"
	DrawStatusFailed    DrawStatus = "failed"
)

// Draw is one lottery execution tied to a single claim event
type Draw struct {
	ID              uuid.UUID  `db:"id" json:"drawId"`
	ClaimSignature  string     `db:"claim_signature" json:"claimSignature"`
	ClaimObservedAt time.Time  `db:"claim_observed_at" json:"claimObservedAt"`
	StartedAt       time.Time  `db:"started_at" json:"startedAt"`
	EndedAt         *time.Time `db:"ended_at" json:"endedAt,omitempty"`
	TotalAmount     int64      `db:"total_amount" json:"totalAmount"`
	PayoutPool      int64      `db:"payout_pool" json:"payoutPool"`
	PerWinner       int64      `db:"per_winner" json:"perWinner"`
	SecondaryShare  int64      `db:"secondary_share" json:"secondaryShare"`
	SecondaryRef    *string    `db:"secondary_ref" json:"secondaryRef,omitempty"`
	OddsMode        OddsMode   `db:"odds_mode" json:"oddsMode"`
	MaxWeightRatio  float64    `db:"max_weight_ratio" json:"maxWeightRatio"`
	Status          DrawStatus `db:"status" json:"status"`

	Winners []*WinnerRecord `json:"winners"`
}

// drawNamespace scopes draw ids derived from claim signatures
var drawNamespace = uuid.MustParse("6f0c2a4e-1d3b-5c7e-9a8f-2b4d6e8f0a1c")

// DrawIDForClaim derives the draw id for a claim. The same claim always maps to
// the same draw, so a re-detected claim resumes its draw instead of starting another.
func DrawIDForClaim(signature string) uuid.UUID {
	return uuid.NewSHA1(drawNamespace, []byte(signature))
}

// Claim returns the claim event that drove the draw
func (d *Draw) Claim() ClaimEvent {
	return ClaimEvent{Signature: d.ClaimSignature, ObservedAt: d.ClaimObservedAt, Amount: d.TotalAmount}
}

// IsPending returns true while payouts may still be dispatched by the orchestrator
func (d *Draw) IsPending() bool {
	return d.Status == DrawStatusPending
}

// IsFinal returns true once the draw status can no longer change
func (d *Draw) IsFinal() bool {
	return d.Status == DrawStatusCompleted || d.Status == DrawStatusFailed
}

// Finish moves a pending draw to its final status
func (d *Draw) Finish(status DrawStatus, endedAt time.Time) {
	if !d.IsPending() {
		return
	}
	d.Status = status
	d.EndedAt = &endedAt
}

// UnpaidWinners returns winners without a confirmed transfer
func (d *Draw) UnpaidWinners() []*WinnerRecord {
	var unpaid []*WinnerRecord
	for _, w := range d.Winners {
		if !w.IsPaid() {
			unpaid = append(unpaid, w)
		}
	}
	return unpaid
}

// PaidCount returns the number of winners with a confirmed transfer
func (d *Draw) PaidCount() int {
	return len(d.Winners) - len(d.UnpaidWinners())
}

// DistributedAmount returns the total of confirmed transfers, secondary share included
func (d *Draw) DistributedAmount() int64 {
	var total int64
	for _, w := range d.Winners {
		if w.IsPaid() {
			total += w.PayoutAmount
		}
	}
	if d.SecondaryRef != nil {
		total += d.SecondaryShare
	}
	return total
}

// WinnerRecord is one selected winner of a draw
type WinnerRecord struct {
	DrawID            uuid.UUID  `db:"draw_id" json:"drawId"`
	Position          int        `db:"position" json:"position"`
	Wallet            string     `db:"wallet" json:"wallet"`
	Probability       float64    `db:"probability" json:"probability"`
	PayoutAmount      int64      `db:"payout_amount" json:"payoutAmount"`
	TransferReference *string    `db:"transfer_reference" json:"transferReference"`
	PaidAt            *time.Time `db:"paid_at" json:"paidAt,omitempty"`
}

// IsPaid returns true once the payout has a transfer reference
func (w *WinnerRecord) IsPaid() bool {
	return w.TransferReference != nil && *w.TransferReference != ""
}

// MarkPaid records the transfer reference of a confirmed payout
func (w *WinnerRecord) MarkPaid(reference string, paidAt time.Time) {
	w.TransferReference = &reference
	w.PaidAt = &paidAt
}

// RecentWinner is a winner joined with the timestamp of its draw
type RecentWinner struct {
	WinnerRecord
	DrawStartedAt time.Time  `db:"started_at" json:"drawStartedAt"`
	DrawStatus    DrawStatus `db:"status" json:"drawStatus"`
}
