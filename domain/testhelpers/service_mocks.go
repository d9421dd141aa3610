package testhelpers

import (
	"context"

	"raffler/domain/entities"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockDrawOrchestrator is a mock implementation of interfaces.DrawOrchestrator
type MockDrawOrchestrator struct {
	mock.Mock
}

func (m *MockDrawOrchestrator) RunDraw(ctx context.Context, trigger entities.DrawTrigger) (*entities.DrawOutcome, error) {
	args := m.Called(ctx, trigger)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.DrawOutcome), args.Error(1)
}

func (m *MockDrawOrchestrator) RetryPayout(ctx context.Context, drawID uuid.UUID) (*entities.RetryResult, error) {
	args := m.Called(ctx, drawID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.RetryResult), args.Error(1)
}

// MockStatusService is a mock implementation of interfaces.StatusService
type MockStatusService struct {
	mock.Mock
}

func (m *MockStatusService) GetStatus(ctx context.Context) (*entities.SystemStatus, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.SystemStatus), args.Error(1)
}

func (m *MockStatusService) GetRecentWinners(ctx context.Context, limit int) ([]*entities.RecentWinner, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.RecentWinner), args.Error(1)
}

func (m *MockStatusService) GetPhaseStream(ctx context.Context, limit int) ([]*entities.PhaseEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.PhaseEvent), args.Error(1)
}

func (m *MockStatusService) GetOdds(ctx context.Context, wallet string) (*entities.WalletOdds, error) {
	args := m.Called(ctx, wallet)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.WalletOdds), args.Error(1)
}

func (m *MockStatusService) GetClaimSummaries(ctx context.Context) ([]*entities.ClaimSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.ClaimSummary), args.Error(1)
}
