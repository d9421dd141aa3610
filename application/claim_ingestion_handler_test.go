package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"raffler/domain/entities"
	"raffler/domain/testhelpers"
	"raffler/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var claimTime = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func testClaim(sig string) entities.ClaimEvent {
	return entities.ClaimEvent{Signature: sig, ObservedAt: claimTime, Amount: 1_000_000_000, Source: "webhook"}
}

func TestClaimIngestionHandler_HandleClaims(t *testing.T) {
	t.Parallel()

	completed := &entities.DrawOutcome{Result: entities.DrawResultCompleted}

	tests := []struct {
		name         string
		admitted     []bool
		ingestErr    error
		drawErr      error
		wantAdmitted int
		wantDraw     bool
		wantErr      bool
	}{
		{name: "new claim triggers one draw", admitted: []bool{true, true}, wantAdmitted: 2, wantDraw: true},
		{name: "stale claims do not draw", admitted: []bool{false, false}, wantAdmitted: 0},
		{name: "ingest failure stops the batch", admitted: []bool{true}, ingestErr: errors.New("db down"), wantErr: true},
		{name: "draw error is reported", admitted: []bool{true}, drawErr: errors.New("boom"), wantAdmitted: 1, wantDraw: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dedup := &testhelpers.MockClaimDeduplicator{}
			orchestrator := &testhelpers.MockDrawOrchestrator{}

			var claims []entities.ClaimEvent
			for i, admitted := range tt.admitted {
				claim := testClaim(string(rune('a' + i)))
				claims = append(claims, claim)
				dedup.On("Ingest", mock.Anything, claim).Return(admitted, tt.ingestErr).Once()
			}
			if tt.wantDraw {
				orchestrator.On("RunDraw", mock.Anything, entities.TriggerClaim).Return(completed, tt.drawErr).Once()
			}

			result, err := NewClaimIngestionHandler(dedup, orchestrator).HandleClaims(context.Background(), claims)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			require.NotNil(t, result)
			assert.Equal(t, tt.wantAdmitted, result.Admitted)
			if !tt.wantDraw {
				orchestrator.AssertNotCalled(t, "RunDraw", mock.Anything, mock.Anything)
			}
			orchestrator.AssertExpectations(t)
		})
	}
}

func TestClaimIngestionHandler_HandleClaimObserved(t *testing.T) {
	t.Parallel()

	t.Run("bus event becomes a claim", func(t *testing.T) {
		t.Parallel()
		dedup := &testhelpers.MockClaimDeduplicator{}
		orchestrator := &testhelpers.MockDrawOrchestrator{}

		dedup.On("Ingest", mock.Anything, mock.MatchedBy(func(c entities.ClaimEvent) bool {
			return c.Signature == "sig-nats" && c.Source == "nats" && c.Amount == 5
		})).Return(false, nil)

		handler := NewClaimIngestionHandler(dedup, orchestrator)
		err := handler.HandleClaimObserved(context.Background(), events.ClaimObservedEvent{
			Signature: "sig-nats", Amount: 5, ObservedAt: claimTime,
		})
		require.NoError(t, err)
		dedup.AssertExpectations(t)
	})

	t.Run("invalid event is dropped", func(t *testing.T) {
		t.Parallel()
		dedup := &testhelpers.MockClaimDeduplicator{}
		handler := NewClaimIngestionHandler(dedup, &testhelpers.MockDrawOrchestrator{})

		require.NoError(t, handler.HandleClaimObserved(context.Background(), events.ClaimObservedEvent{Amount: 5}))
		dedup.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything)
	})

	t.Run("wrong event type", func(t *testing.T) {
		t.Parallel()
		handler := NewClaimIngestionHandler(&testhelpers.MockClaimDeduplicator{}, &testhelpers.MockDrawOrchestrator{})
		assert.Error(t, handler.HandleClaimObserved(context.Background(), events.DrawPhaseEvent{}))
	})
}
