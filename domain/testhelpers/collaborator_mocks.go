package testhelpers

import (
	"context"

	"raffler/domain/entities"

	"github.com/stretchr/testify/mock"
)

// MockBalanceSource is a mock implementation of interfaces.BalanceSource
type MockBalanceSource struct {
	mock.Mock
}

func (m *MockBalanceSource) ListEligibleHolders(ctx context.Context, minBalance int64) ([]entities.Holder, error) {
	args := m.Called(ctx, minBalance)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entities.Holder), args.Error(1)
}

// MockTransferExecutor is a mock implementation of interfaces.TransferExecutor
type MockTransferExecutor struct {
	mock.Mock
}

func (m *MockTransferExecutor) Transfer(ctx context.Context, destination string, amount int64, idempotencyKey string) (string, error) {
	args := m.Called(ctx, destination, amount, idempotencyKey)
	return args.String(0), args.Error(1)
}

// MockClaimSource is a mock implementation of interfaces.ClaimSource
type MockClaimSource struct {
	mock.Mock
	SourceName string
}

func (m *MockClaimSource) Name() string {
	if m.SourceName == "" {
		return "mock"
	}
	return m.SourceName
}

func (m *MockClaimSource) PollRecentFundingEvents(ctx context.Context) ([]entities.ClaimEvent, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entities.ClaimEvent), args.Error(1)
}

// MockClaimDeduplicator is a mock implementation of interfaces.ClaimDeduplicator
type MockClaimDeduplicator struct {
	mock.Mock
}

func (m *MockClaimDeduplicator) DetectNewClaim(ctx context.Context) (*entities.ClaimEvent, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.ClaimEvent), args.Error(1)
}

func (m *MockClaimDeduplicator) Ingest(ctx context.Context, claim entities.ClaimEvent) (bool, error) {
	args := m.Called(ctx, claim)
	return args.Bool(0), args.Error(1)
}

func (m *MockClaimDeduplicator) Commit(ctx context.Context, claim entities.ClaimEvent) error {
	args := m.Called(ctx, claim)
	return args.Error(0)
}

func (m *MockClaimDeduplicator) Watermark(ctx context.Context) (entities.ClaimWatermark, error) {
	args := m.Called(ctx)
	return args.Get(0).(entities.ClaimWatermark), args.Error(1)
}
