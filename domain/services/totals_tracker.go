package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"raffler/domain/entities"
	"raffler/domain/interfaces"
)

// TotalsKey holds the aggregate counters document
const TotalsKey = "raffle:totals"

const maxTotalsWrites = 8

// TotalsTracker maintains aggregate counters with compare-and-swap writes
type TotalsTracker struct {
	store interfaces.KeyValueStore
}

// NewTotalsTracker creates a tracker over store
func NewTotalsTracker(store interfaces.KeyValueStore) *TotalsTracker {
	return &TotalsTracker{store: store}
}

// Get returns the current totals; missing totals are zero
func (t *TotalsTracker) Get(ctx context.Context) (entities.Totals, error) {
	totals, _, err := t.read(ctx)
	return totals, err
}

func (t *TotalsTracker) read(ctx context.Context) (entities.Totals, string, error) {
	raw, err := t.store.Get(ctx, TotalsKey)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return entities.Totals{}, "", nil
	}
	if err != nil {
		return entities.Totals{}, "", fmt.Errorf("failed to read totals: %w", err)
	}

	var totals entities.Totals
	if err := json.Unmarshal([]byte(raw), &totals); err != nil {
		return entities.Totals{}, "", fmt.Errorf("failed to decode totals: %w", err)
	}
	return totals, raw, nil
}

// update applies fn until the write wins against concurrent writers. fn returns
// false when there is nothing to write.
func (t *TotalsTracker) update(ctx context.Context, fn func(entities.Totals) (entities.Totals, bool)) (bool, error) {
	for attempt := 0; attempt < maxTotalsWrites; attempt++ {
		current, raw, err := t.read(ctx)
		if err != nil {
			return false, err
		}

		next, changed := fn(current)
		if !changed {
			return false, nil
		}
		encoded, err := json.Marshal(next)
		if err != nil {
			return false, fmt.Errorf("failed to encode totals: %w", err)
		}

		var ok bool
		if raw == "" {
			ok, err = t.store.PutIfAbsent(ctx, TotalsKey, string(encoded), 0)
		} else {
			ok, err = t.store.CompareAndSwap(ctx, TotalsKey, raw, string(encoded), 0)
		}
		if err != nil {
			return false, fmt.Errorf("failed to write totals: %w", err)
		}
		if ok {
			return true, nil
		}
	}
	return false, fmt.Errorf("failed to update totals: %w", ErrVersionConflict)
}

// ApplyDraw folds a finished draw into the totals once. A draw that is already
// the last applied draw is skipped, so finalization can be repeated after a crash.
func (t *TotalsTracker) ApplyDraw(ctx context.Context, draw *entities.Draw, at time.Time) (bool, error) {
	return t.update(ctx, func(current entities.Totals) (entities.Totals, bool) {
		if current.LastDrawID != nil && *current.LastDrawID == draw.ID {
			return current, false
		}
		return current.Apply(draw, at), true
	})
}

// AddDistributed records payouts made after a draw was finalized
func (t *TotalsTracker) AddDistributed(ctx context.Context, amount int64) error {
	if amount <= 0 {
		return nil
	}
	_, err := t.update(ctx, func(current entities.Totals) (entities.Totals, bool) {
		current.TotalDistributed += amount
		return current, true
	})
	return err
}
