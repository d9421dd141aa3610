package events

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_DeliversToSubscribersOfType(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	received := make(chan DrawFinishedEvent, 1)
	var phaseCalls atomic.Int32

	bus.Subscribe(EventTypeDrawFinished, func(ctx context.Context, event Event) {
		finished, ok := event.(DrawFinishedEvent)
		assert.True(t, ok)
		received <- finished
	})
	bus.Subscribe(EventTypeDrawPhase, func(ctx context.Context, event Event) {
		phaseCalls.Add(1)
	})

	require.NoError(t, bus.Publish(DrawFinishedEvent{DrawID: "d1", Status: "completed"}))
	bus.Wait()

	select {
	case ev := <-received:
		assert.Equal(t, "d1", ev.DrawID)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
	assert.Equal(t, int32(0), phaseCalls.Load())
}

func TestBus_RecoversFromPanickingHandler(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	var calls atomic.Int32
	bus.Subscribe(EventTypeDrawPhase, func(ctx context.Context, event Event) {
		panic("boom")
	})
	bus.Subscribe(EventTypeDrawPhase, func(ctx context.Context, event Event) {
		calls.Add(1)
	})

	bus.Emit(context.Background(), DrawPhaseEvent{DrawID: "d1", Phase: "drawing"})
	bus.Wait()

	assert.Equal(t, int32(1), calls.Load())
}
