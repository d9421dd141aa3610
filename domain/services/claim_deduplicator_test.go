package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"raffler/domain/entities"
	"raffler/domain/interfaces"
	"raffler/domain/testhelpers"
	"raffler/infrastructure"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var claimBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testClaim(sig string, offset time.Duration, amount int64) entities.ClaimEvent {
	return entities.ClaimEvent{Signature: sig, ObservedAt: claimBase.Add(offset), Amount: amount, Source: "test"}
}

func TestClaimDeduplicator_SameSignatureTwice(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := testhelpers.NewMemoryDatabase()
	store := infrastructure.NewMemoryStore()
	dedup := NewClaimDeduplicator(db, store)

	claim := testClaim("sig-1", time.Minute, 2_000_000)
	admitted, err := dedup.Ingest(ctx, claim)
	require.NoError(t, err)
	assert.True(t, admitted)

	// Without a watermark advance the claim stays detectable
	detected, err := dedup.DetectNewClaim(ctx)
	require.NoError(t, err)
	require.NotNil(t, detected)
	assert.Equal(t, "sig-1", detected.Signature)

	require.NoError(t, dedup.Commit(ctx, *detected))

	detected, err = dedup.DetectNewClaim(ctx)
	require.NoError(t, err)
	assert.Nil(t, detected)

	// A webhook retry of the same event is recorded once and not admitted
	admitted, err = dedup.Ingest(ctx, claim)
	require.NoError(t, err)
	assert.False(t, admitted)
}

func TestClaimDeduplicator_PushAndPollSeeSameClaim(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := testhelpers.NewMemoryDatabase()
	claim := testClaim("sig-shared", time.Minute, 5_000_000)

	poller := &testhelpers.MockClaimSource{SourceName: "tracker"}
	poller.On("PollRecentFundingEvents", mock.Anything).Return([]entities.ClaimEvent{claim}, nil)

	dedup := NewClaimDeduplicator(db, infrastructure.NewMemoryStore(), poller)

	admitted, err := dedup.Ingest(ctx, claim)
	require.NoError(t, err)
	assert.True(t, admitted)

	detected, err := dedup.DetectNewClaim(ctx)
	require.NoError(t, err)
	require.NotNil(t, detected)
	require.NoError(t, dedup.Commit(ctx, *detected))

	detected, err = dedup.DetectNewClaim(ctx)
	require.NoError(t, err)
	assert.Nil(t, detected, "poll path must not re-trigger a claim the push path already drove")
}

func TestClaimDeduplicator_PicksNewestAdmitted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := testhelpers.NewMemoryDatabase()
	store := infrastructure.NewMemoryStore()
	dedup := NewClaimDeduplicator(db, store)

	require.NoError(t, dedup.Commit(ctx, testClaim("sig-0", 0, 1)))
	db.SeedClaim(testClaim("sig-old", -time.Minute, 1))
	db.SeedClaim(testClaim("sig-1", time.Minute, 1))
	db.SeedClaim(testClaim("sig-2", 2*time.Minute, 1))

	detected, err := dedup.DetectNewClaim(ctx)
	require.NoError(t, err)
	require.NotNil(t, detected)
	assert.Equal(t, "sig-2", detected.Signature)
}

func TestClaimDeduplicator_FailClosed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := testhelpers.NewMemoryDatabase()
	db.BeginErr = errors.New("connection refused")

	source := &testhelpers.MockClaimSource{}
	source.On("PollRecentFundingEvents", mock.Anything).Return(nil, errors.New("tracker down"))

	dedup := NewClaimDeduplicator(db, infrastructure.NewMemoryStore(), source)

	detected, err := dedup.DetectNewClaim(ctx)
	require.NoError(t, err)
	assert.Nil(t, detected)
	source.AssertExpectations(t)
}

func TestClaimDeduplicator_OneSourceDown(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	down := &testhelpers.MockClaimSource{SourceName: "down"}
	down.On("PollRecentFundingEvents", mock.Anything).Return(nil, errors.New("timeout"))
	up := &testhelpers.MockClaimSource{SourceName: "up"}
	up.On("PollRecentFundingEvents", mock.Anything).Return([]entities.ClaimEvent{
		testClaim("sig-up", time.Minute, 3_000_000),
		{Signature: "", ObservedAt: claimBase, Amount: 1},
	}, nil)

	db := testhelpers.NewMemoryDatabase()
	dedup := NewClaimDeduplicator(db, infrastructure.NewMemoryStore(), down, up)

	detected, err := dedup.DetectNewClaim(ctx)
	require.NoError(t, err)
	require.NotNil(t, detected)
	assert.Equal(t, "sig-up", detected.Signature)

	// The polled claim landed in the ledger
	summary, err := func() (*entities.ClaimSummary, error) {
		uow := db.Create()
		require.NoError(t, uow.Begin(ctx))
		defer uow.Rollback()
		return uow.ClaimRepository().GetSummary(ctx, "all", nil)
	}()
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Count)
}

func TestClaimDeduplicator_CommitNeverMovesBackwards(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dedup := NewClaimDeduplicator(testhelpers.NewMemoryDatabase(), infrastructure.NewMemoryStore())

	require.NoError(t, dedup.Commit(ctx, testClaim("sig-2", 2*time.Minute, 1)))
	require.NoError(t, dedup.Commit(ctx, testClaim("sig-1", time.Minute, 1)))
	require.NoError(t, dedup.Commit(ctx, testClaim("sig-2", 2*time.Minute, 1)))

	wm, err := dedup.Watermark(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sig-2", wm.Signature)
	assert.True(t, wm.ObservedAt.Equal(claimBase.Add(2*time.Minute)))
}

// conflictingStore loses every compare-and-swap
type conflictingStore struct {
	interfaces.KeyValueStore
}

func (conflictingStore) CompareAndSwap(ctx context.Context, key, expected, value string, ttl time.Duration) (bool, error) {
	return false, nil
}

func TestClaimDeduplicator_CommitConflict(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := conflictingStore{KeyValueStore: infrastructure.NewMemoryStore()}
	dedup := NewClaimDeduplicator(testhelpers.NewMemoryDatabase(), store)

	require.NoError(t, dedup.Commit(ctx, testClaim("sig-1", time.Minute, 1)))
	err := dedup.Commit(ctx, testClaim("sig-2", 2*time.Minute, 1))
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestClaimDeduplicator_IngestRejectsMalformed(t *testing.T) {
	t.Parallel()

	dedup := NewClaimDeduplicator(testhelpers.NewMemoryDatabase(), infrastructure.NewMemoryStore())
	_, err := dedup.Ingest(context.Background(), entities.ClaimEvent{Signature: "sig"})
	assert.Error(t, err)
}
