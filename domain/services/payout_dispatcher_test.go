package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"raffler/domain/interfaces"
	"raffler/domain/testhelpers"
	"raffler/infrastructure"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestPayoutDispatcher_Idempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	drawID := uuid.New()
	executor := &testhelpers.MockTransferExecutor{}
	executor.On("Transfer", mock.Anything, "wallet-a", int64(316_666_666), PayoutKey(drawID, "wallet-a")).
		Return("tx-1", nil).Once()

	dispatcher := NewPayoutDispatcher(infrastructure.NewMemoryStore(), executor, 24*time.Hour)

	first, err := dispatcher.Payout(ctx, drawID, "wallet-a", 316_666_666)
	require.NoError(t, err)
	second, err := dispatcher.Payout(ctx, drawID, "wallet-a", 316_666_666)
	require.NoError(t, err)

	assert.Equal(t, "tx-1", first)
	assert.Equal(t, first, second)
	executor.AssertNumberOfCalls(t, "Transfer", 1)
}

func TestPayoutDispatcher_KeysAreScopedByDrawAndRole(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	drawA, drawB := uuid.New(), uuid.New()
	executor := &testhelpers.MockTransferExecutor{}
	executor.On("Transfer", mock.Anything, "wallet-a", mock.Anything, PayoutKey(drawA, "wallet-a")).Return("tx-a", nil).Once()
	executor.On("Transfer", mock.Anything, "wallet-a", mock.Anything, PayoutKey(drawB, "wallet-a")).Return("tx-b", nil).Once()
	executor.On("Transfer", mock.Anything, "wallet-a", mock.Anything, SecondaryPayoutKey(drawA, "wallet-a")).Return("tx-s", nil).Once()

	dispatcher := NewPayoutDispatcher(infrastructure.NewMemoryStore(), executor, time.Hour)

	refA, err := dispatcher.Payout(ctx, drawA, "wallet-a", 10)
	require.NoError(t, err)
	refB, err := dispatcher.Payout(ctx, drawB, "wallet-a", 10)
	require.NoError(t, err)
	refS, err := dispatcher.PayoutSecondary(ctx, drawA, "wallet-a", 5)
	require.NoError(t, err)

	assert.Equal(t, []string{"tx-a", "tx-b", "tx-s"}, []string{refA, refB, refS})
	executor.AssertExpectations(t)
}

func TestPayoutDispatcher_TransferFailureIsRetriable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	drawID := uuid.New()
	executor := &testhelpers.MockTransferExecutor{}
	executor.On("Transfer", mock.Anything, "wallet-a", int64(10), mock.Anything).Return("", errors.New("rpc timeout")).Once()
	executor.On("Transfer", mock.Anything, "wallet-a", int64(10), mock.Anything).Return("tx-2", nil).Once()

	dispatcher := NewPayoutDispatcher(infrastructure.NewMemoryStore(), executor, time.Hour)

	_, err := dispatcher.Payout(ctx, drawID, "wallet-a", 10)
	require.Error(t, err)

	ref, err := dispatcher.Payout(ctx, drawID, "wallet-a", 10)
	require.NoError(t, err)
	assert.Equal(t, "tx-2", ref)
}

// unavailableStore fails every read
type unavailableStore struct {
	interfaces.KeyValueStore
}

func (unavailableStore) Get(ctx context.Context, key string) (string, error) {
	return "", errors.New("store unavailable")
}

func TestPayoutDispatcher_RefusesWithoutIdempotencyCheck(t *testing.T) {
	t.Parallel()

	executor := &testhelpers.MockTransferExecutor{}
	dispatcher := NewPayoutDispatcher(unavailableStore{infrastructure.NewMemoryStore()}, executor, time.Hour)

	_, err := dispatcher.Payout(context.Background(), uuid.New(), "wallet-a", 10)
	require.Error(t, err)
	executor.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPayoutDispatcher_RejectsNonPositiveAmount(t *testing.T) {
	t.Parallel()

	executor := &testhelpers.MockTransferExecutor{}
	dispatcher := NewPayoutDispatcher(infrastructure.NewMemoryStore(), executor, time.Hour)

	_, err := dispatcher.Payout(context.Background(), uuid.New(), "wallet-a", 0)
	require.Error(t, err)
	executor.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
