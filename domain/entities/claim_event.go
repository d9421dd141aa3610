package entities

import (
	"fmt"
	"time"
)

// ClaimEvent is one external funding event that can drive a single draw
type ClaimEvent struct {
	Signature  string    `db:"signature" json:"signature"`
	ObservedAt time.Time `db:"observed_at" json:"observedAt"`
	Amount     int64     `db:"amount" json:"amount"`
	Source     string    `db:"source" json:"source"`
}

// Validate checks the fields required before a claim may reach the orchestrator
func (c *ClaimEvent) Validate() error {
	if c.Signature == "" {
		return fmt.Errorf("claim signature is required")
	}
	if c.ObservedAt.IsZero() {
		return fmt.Errorf("claim %s has no observed time", c.Signature)
	}
	if c.Amount < 0 {
		return fmt.Errorf("claim %s has negative amount %d", c.Signature, c.Amount)
	}
	return nil
}

// ClaimWatermark is the last claim that drove a finished draw
type ClaimWatermark struct {
	Signature  string    `json:"lastProcessedSignature"`
	ObservedAt time.Time `json:"lastProcessedTime"`
}

// Admits reports whether a candidate claim is newer than the watermark
func (w ClaimWatermark) Admits(c ClaimEvent) bool {
	return c.Signature != w.Signature && c.ObservedAt.After(w.ObservedAt)
}

// ClaimSummary aggregates recorded claims over a window
type ClaimSummary struct {
	Window      string     `json:"window"`
	Count       int64      `json:"count"`
	TotalAmount int64      `json:"totalAmount"`
	LastClaimAt *time.Time `json:"lastClaimAt,omitempty"`
}
