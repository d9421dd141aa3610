package entities

import (
	"time"

	"github.com/google/uuid"
)

// SystemStatus is the externally visible state of the raffle
type SystemStatus struct {
	NextDrawEligibleAt *time.Time      `json:"nextDrawEligibleAt,omitempty"`
	Schedule           string          `json:"schedule"` // "interval" or "event-driven"
	LastDrawID         *uuid.UUID      `json:"lastDrawId,omitempty"`
	LastDrawAt         *time.Time      `json:"lastDrawAt,omitempty"`
	TotalDistributed   int64           `json:"totalDistributed"`
	DrawCount          int64           `json:"drawCount"`
	CurrentPhase       *PhaseEvent     `json:"currentPhase,omitempty"`
	Claims             []*ClaimSummary `json:"claims"`
}

// WalletOdds is a wallet's chance of being selected in the next draw
type WalletOdds struct {
	Wallet      string   `json:"wallet"`
	Eligible    bool     `json:"eligible"`
	Balance     int64    `json:"balance"`
	Weight      float64  `json:"weight"`
	Probability float64  `json:"probability"`
	WinChance   float64  `json:"winChance"` // chance of being any one of the winners
	HolderCount int      `json:"holderCount"`
	WinnerCount int      `json:"winnerCount"`
	OddsMode    OddsMode `json:"oddsMode"`
}
