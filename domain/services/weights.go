package services

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sort"

	"raffler/domain/entities"
)

// FloorWeight keeps every eligible holder at a non-zero chance
const FloorWeight = 0.1

var ErrNoHolders = errors.New("no eligible holders")

// EligibleHolders drops entries at or below the balance floor and sums the remaining
// entries per wallet, since one owner may hold several token accounts. The result is
// ordered by balance descending, then wallet, so selection does not depend on the
// order the source returned.
func EligibleHolders(holders []entities.Holder, minBalance int64) []entities.Holder {
	byWallet := make(map[string]int64, len(holders))
	for _, h := range holders {
		if h.Wallet == "" || h.Balance <= minBalance {
			continue
		}
		byWallet[h.Wallet] = entities.AddBalance(byWallet[h.Wallet], h.Balance)
	}

	eligible := make([]entities.Holder, 0, len(byWallet))
	for wallet, balance := range byWallet {
		eligible = append(eligible, entities.Holder{Wallet: wallet, Balance: balance})
	}
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].Balance != eligible[j].Balance {
			return eligible[i].Balance > eligible[j].Balance
		}
		return eligible[i].Wallet < eligible[j].Wallet
	})
	return eligible
}

// dampen applies the odds mode's dampening function to a raw balance
func dampen(balance int64, mode entities.OddsMode) float64 {
	b := float64(balance)
	if mode == entities.OddsModeLog {
		return 1 + math.Log10(1+b)
	}
	return math.Sqrt(b)
}

// CalculateWeights scores holders, caps the spread between the largest and smallest
// weight at maxRatio and normalizes the weights into probabilities.
func CalculateWeights(holders []entities.Holder, mode entities.OddsMode, maxRatio float64) ([]entities.WeightedHolder, error) {
	if len(holders) == 0 {
		return nil, ErrNoHolders
	}
	if !mode.IsValid() {
		return nil, fmt.Errorf("unsupported odds mode %q", mode)
	}
	if maxRatio < 1 {
		return nil, fmt.Errorf("max weight ratio must be at least 1, got %v", maxRatio)
	}

	weighted := make([]entities.WeightedHolder, len(holders))
	minW, maxW := math.Inf(1), math.Inf(-1)
	for i, h := range holders {
		w := math.Max(dampen(h.Balance, mode), FloorWeight)
		weighted[i] = entities.WeightedHolder{Holder: h, Weight: w}
		minW = math.Min(minW, w)
		maxW = math.Max(maxW, w)
	}

	// Ratio cap uses the post-dampening minimum
	if maxW/minW > maxRatio {
		threshold := minW * maxRatio
		for i := range weighted {
			if weighted[i].Weight > threshold {
				weighted[i].Weight = threshold
			}
		}
	}

	normalize(weighted)
	return weighted, nil
}

func normalize(weighted []entities.WeightedHolder) {
	var total float64
	for _, h := range weighted {
		total += h.Weight
	}
	for i := range weighted {
		weighted[i].Probability = weighted[i].Weight / total
	}
}

// SelectWinners draws up to k distinct holders without replacement. Each winner
// carries its conditional probability at the moment it was picked.
func SelectWinners(weighted []entities.WeightedHolder, k int, rng RandomSource) ([]entities.WeightedHolder, error) {
	remaining := make([]entities.WeightedHolder, len(weighted))
	copy(remaining, weighted)
	normalize(remaining)

	winners := make([]entities.WeightedHolder, 0, k)
	for len(winners) < k && len(remaining) > 0 {
		u, err := rng.Float64()
		if err != nil {
			return nil, fmt.Errorf("failed to draw random value: %w", err)
		}

		selected := len(remaining) - 1
		var cumulative float64
		for i, h := range remaining {
			cumulative += h.Probability
			if cumulative >= u {
				selected = i
				break
			}
		}

		winners = append(winners, remaining[selected])
		remaining = append(remaining[:selected], remaining[selected+1:]...)
		if len(remaining) > 0 {
			normalize(remaining)
		}
	}

	return winners, nil
}

// RandomSource yields uniform values in [0, 1)
type RandomSource interface {
	Float64() (float64, error)
}

// CryptoRandom draws from crypto/rand with 53 bits of precision
type CryptoRandom struct{}

var float53 = big.NewInt(1 << 53)

// Float64 returns a uniform value in [0, 1)
func (CryptoRandom) Float64() (float64, error) {
	n, err := rand.Int(rand.Reader, float53)
	if err != nil {
		return 0, err
	}
	return float64(n.Int64()) / float64(1<<53), nil
}
