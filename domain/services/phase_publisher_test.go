package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"raffler/domain/entities"
	"raffler/domain/testhelpers"
	"raffler/events"
	"raffler/infrastructure"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPhasePublisher(db *testhelpers.MemoryDatabase, store *infrastructure.MemoryStore, now time.Time) *phasePublisher {
	p := NewPhasePublisher(db, store, 5*time.Minute).(*phasePublisher)
	p.now = func() time.Time { return now }
	return p
}

func TestPhasePublisher_RecordPersistsCachesAndPublishes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	db := testhelpers.NewMemoryDatabase()
	store := infrastructure.NewMemoryStoreWithClock(func() time.Time { return now })
	publisher := newTestPhasePublisher(db, store, now)

	require.NoError(t, publisher.Record(ctx, nil, entities.PhaseDrawing, nil))

	drawID := uuid.New()
	require.NoError(t, publisher.Record(ctx, &drawID, entities.PhaseSelectedWinners, map[string]any{"winners": 3}))

	stream := db.PhaseEvents()
	require.Len(t, stream, 2)
	assert.Nil(t, stream[0].DrawID)
	assert.JSONEq(t, `{}`, string(stream[0].Data))
	assert.JSONEq(t, `{"winners":3}`, string(stream[1].Data))

	published := db.PublishedEvents()
	require.Len(t, published, 2)
	wire, ok := published[1].(events.DrawPhaseEvent)
	require.True(t, ok)
	assert.Equal(t, drawID.String(), wire.DrawID)
	assert.Equal(t, "selected_winners", wire.Phase)

	current, err := publisher.Current(ctx)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, entities.PhaseSelectedWinners, current.Phase)
	require.NotNil(t, current.DrawID)
	assert.Equal(t, drawID, *current.DrawID)
}

func TestPhasePublisher_CurrentExpires(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	store := infrastructure.NewMemoryStoreWithClock(func() time.Time { return clock })
	publisher := newTestPhasePublisher(testhelpers.NewMemoryDatabase(), store, now)

	none, err := publisher.Current(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, publisher.Record(ctx, nil, entities.PhaseDrawing, nil))
	clock = now.Add(6 * time.Minute)

	expired, err := publisher.Current(ctx)
	require.NoError(t, err)
	assert.Nil(t, expired)
}

func TestPhasePublisher_FailedTransactionPublishesNothing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := testhelpers.NewMemoryDatabase()
	db.BeginErr = errors.New("connection refused")
	store := infrastructure.NewMemoryStore()
	publisher := newTestPhasePublisher(db, store, time.Now())

	assert.Error(t, publisher.Record(ctx, nil, entities.PhaseDrawing, nil))
	assert.Empty(t, db.PublishedEvents())

	current, err := publisher.Current(ctx)
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestPhasePublisher_UnencodableData(t *testing.T) {
	t.Parallel()

	publisher := newTestPhasePublisher(testhelpers.NewMemoryDatabase(), infrastructure.NewMemoryStore(), time.Now())
	err := publisher.Record(context.Background(), nil, entities.PhaseDrawing, map[string]any{"bad": make(chan int)})
	assert.Error(t, err)
}
