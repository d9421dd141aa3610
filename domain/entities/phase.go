package entities

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Phase is an externally visible step of a draw
type Phase string

const (
	PhaseDrawing         Phase = "drawing"
	PhaseSelectedWinners Phase = "selected_winners"
	PhasePayoutsSent     Phase = "payouts_sent"
)

// PhaseEvent is one entry of the phase stream
type PhaseEvent struct {
	ID         int64           `db:"id" json:"id,omitempty"`
	DrawID     *uuid.UUID      `db:"draw_id" json:"drawId,omitempty"` // unset until a claim is accepted
	Phase      Phase           `db:"phase" json:"phase"`
	Data       json.RawMessage `db:"data" json:"data"`
	OccurredAt time.Time       `db:"occurred_at" json:"timestamp"`
}

// Totals are the aggregate counters shared across draws
type Totals struct {
	TotalDistributed int64      `json:"totalDistributed"`
	DrawCount        int64      `json:"drawCount"`
	LastDrawID       *uuid.UUID `json:"lastDrawId,omitempty"`
	LastDrawAt       *time.Time `json:"lastDrawAt,omitempty"`
}

// Apply folds a finished draw into the totals
func (t Totals) Apply(draw *Draw, at time.Time) Totals {
	id := draw.ID
	t.TotalDistributed += draw.DistributedAmount()
	t.DrawCount++
	t.LastDrawID = &id
	t.LastDrawAt = &at
	return t
}
