package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"raffler/domain/entities"
	"raffler/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultWinnersLimit = 10
	MaxListLimit        = 100
)

// ClaimWindows are the summary windows reported by the status endpoints
var ClaimWindows = []struct {
	Name   string
	Period time.Duration
}{
	{Name: "7d", Period: 7 * 24 * time.Hour},
	{Name: "30d", Period: 30 * 24 * time.Hour},
	{Name: "all"},
}

// StatusSettings are the draw parameters needed to describe the system
type StatusSettings struct {
	DrawInterval     time.Duration // zero means draws are event-driven only
	OddsMode         entities.OddsMode
	MaxWeightRatio   float64
	WinnerCount      int
	MinHolderBalance int64
}

type statusService struct {
	uowFactory interfaces.UnitOfWorkFactory
	totals     *TotalsTracker
	phases     interfaces.PhasePublisher
	balances   interfaces.BalanceSource
	settings   StatusSettings
	now        func() time.Time
}

// NewStatusService creates the read side used by the HTTP API and announcers
func NewStatusService(
	uowFactory interfaces.UnitOfWorkFactory,
	totals *TotalsTracker,
	phases interfaces.PhasePublisher,
	balances interfaces.BalanceSource,
	settings StatusSettings,
) interfaces.StatusService {
	return &statusService{
		uowFactory: uowFactory,
		totals:     totals,
		phases:     phases,
		balances:   balances,
		settings:   settings,
		now:        time.Now,
	}
}

func (s *statusService) GetStatus(ctx context.Context) (*entities.SystemStatus, error) {
	totals, err := s.totals.Get(ctx)
	if err != nil {
		return nil, err
	}

	status := &entities.SystemStatus{
		Schedule:         "event-driven",
		LastDrawID:       totals.LastDrawID,
		LastDrawAt:       totals.LastDrawAt,
		TotalDistributed: totals.TotalDistributed,
		DrawCount:        totals.DrawCount,
	}

	if s.settings.DrawInterval > 0 {
		status.Schedule = "interval"
		next := s.now().UTC()
		if totals.LastDrawAt != nil {
			next = totals.LastDrawAt.Add(s.settings.DrawInterval)
		}
		status.NextDrawEligibleAt = &next
	}

	current, err := s.phases.Current(ctx)
	if err != nil {
		log.WithError(err).Warn("Failed to read current draw phase")
	} else {
		status.CurrentPhase = current
	}

	summaries, err := s.GetClaimSummaries(ctx)
	if err != nil {
		return nil, err
	}
	status.Claims = summaries

	return status, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultWinnersLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

func (s *statusService) GetRecentWinners(ctx context.Context, limit int) ([]*entities.RecentWinner, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	winners, err := uow.DrawRepository().GetRecentWinners(ctx, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to get recent winners: %w", err)
	}
	return winners, nil
}

func (s *statusService) GetPhaseStream(ctx context.Context, limit int) ([]*entities.PhaseEvent, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	stream, err := uow.PhaseEventRepository().ListRecent(ctx, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list phase events: %w", err)
	}
	return stream, nil
}

// GetOdds weighs the live holder set and reports the wallet's selection chance
func (s *statusService) GetOdds(ctx context.Context, wallet string) (*entities.WalletOdds, error) {
	raw, err := s.balances.ListEligibleHolders(ctx, s.settings.MinHolderBalance)
	if err != nil {
		return nil, fmt.Errorf("failed to list holders: %w", err)
	}
	holders := EligibleHolders(raw, s.settings.MinHolderBalance)

	odds := &entities.WalletOdds{
		Wallet:      wallet,
		HolderCount: len(holders),
		WinnerCount: s.settings.WinnerCount,
		OddsMode:    s.settings.OddsMode,
	}
	if len(holders) == 0 {
		return odds, nil
	}

	weighted, err := CalculateWeights(holders, s.settings.OddsMode, s.settings.MaxWeightRatio)
	if err != nil {
		return nil, err
	}
	for _, h := range weighted {
		if h.Wallet != wallet {
			continue
		}
		odds.Eligible = true
		odds.Balance = h.Balance
		odds.Weight = h.Weight
		odds.Probability = h.Probability
		odds.WinChance = winChance(h.Probability, len(holders), s.settings.WinnerCount)
		break
	}
	return odds, nil
}

// winChance approximates the chance of being any of k winners as 1-(1-p)^k.
// It understates the exact value for draws without replacement. Fewer than k
// holders abort the draw, so nobody can win.
func winChance(p float64, holders, k int) float64 {
	switch {
	case holders < k:
		return 0
	case holders == k:
		return 1
	}
	return 1 - math.Pow(1-p, float64(k))
}

func (s *statusService) GetClaimSummaries(ctx context.Context) ([]*entities.ClaimSummary, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	now := s.now().UTC()
	summaries := make([]*entities.ClaimSummary, 0, len(ClaimWindows))
	for _, w := range ClaimWindows {
		var since *time.Time
		if w.Period > 0 {
			t := now.Add(-w.Period)
			since = &t
		}
		summary, err := uow.ClaimRepository().GetSummary(ctx, w.Name, since)
		if err != nil {
			return nil, fmt.Errorf("failed to summarize claims for %s: %w", w.Name, err)
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}
