package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"time"

	"raffler/domain/entities"
)

// ErrDevSourceDisabled is returned when synthetic claims are requested outside development
var ErrDevSourceDisabled = errors.New("synthetic claims are only available in development")

// DevClaimSource produces one deterministic synthetic claim per period for local runs
type DevClaimSource struct {
	enabled bool
	period  time.Duration
	amount  int64
	now     func() time.Time
}

// NewDevClaimSource creates a synthetic source; enabled must be false in production
func NewDevClaimSource(enabled bool, period time.Duration, amount int64) *DevClaimSource {
	if period <= 0 {
		period = 20 * time.Minute
	}
	return &DevClaimSource{enabled: enabled, period: period, amount: amount, now: time.Now}
}

func (s *DevClaimSource) Name() string {
	return "dev"
}

// PollRecentFundingEvents returns the claim of the current period. Repeated polls
// within a period return the same signature.
func (s *DevClaimSource) PollRecentFundingEvents(ctx context.Context) ([]entities.ClaimEvent, error) {
	if !s.enabled {
		return nil, ErrDevSourceDisabled
	}
	slot := s.now().UTC().Truncate(s.period)
	return []entities.ClaimEvent{{
		Signature:  fmt.Sprintf("dev-claim-%d", slot.Unix()),
		ObservedAt: slot,
		Amount:     s.amount,
		Source:     s.Name(),
	}}, nil
}
