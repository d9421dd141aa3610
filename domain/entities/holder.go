package entities

import "math"

// OddsMode selects the dampening function applied to balances
type OddsMode string

const (
	OddsModeSqrt OddsMode = "sqrt"
	OddsModeLog  OddsMode = "log"
)

// IsValid reports whether the mode is one of the supported dampening functions
func (m OddsMode) IsValid() bool {
	return m == OddsModeSqrt || m == OddsModeLog
}

// Holder is an eligible wallet and its raw balance in the smallest unit.
// Holders are fetched fresh for every draw and never persisted.
type Holder struct {
	Wallet  string `json:"wallet"`
	Balance int64  `json:"balance"`
}

// WeightedHolder is a holder scored for one draw
type WeightedHolder struct {
	Holder
	Weight      float64 `json:"weight"`
	Probability float64 `json:"probability"`
}

// AddBalance sums two balances, saturating at math.MaxInt64
func AddBalance(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}
