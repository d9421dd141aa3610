package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"raffler/domain/entities"
	"raffler/domain/interfaces"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// LockKey is the key-value store key holding the draw lock token
const LockKey = "raffle:lock"

// DrawLocker grants at most one live draw lock at a time
type DrawLocker struct {
	store interfaces.KeyValueStore
	ttl   time.Duration
	now   func() time.Time
}

// NewDrawLocker creates a locker whose locks expire after ttl
func NewDrawLocker(store interfaces.KeyValueStore, ttl time.Duration) *DrawLocker {
	return &DrawLocker{store: store, ttl: ttl, now: time.Now}
}

// Acquire tries to take the lock. It returns false without error when another run holds it.
func (l *DrawLocker) Acquire(ctx context.Context) (*entities.DrawLock, bool, error) {
	lock := &entities.DrawLock{
		Token:     uuid.NewString(),
		ExpiresAt: l.now().Add(l.ttl),
	}

	ok, err := l.store.PutIfAbsent(ctx, LockKey, lock.Token, l.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire draw lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return lock, true, nil
}

// StillHeld reports whether the stored token still belongs to lock. A lock past
// its own expiry is never held, whatever the store still reports.
func (l *DrawLocker) StillHeld(ctx context.Context, lock *entities.DrawLock) (bool, error) {
	if lock.Expired(l.now()) {
		return false, nil
	}
	token, err := l.store.Get(ctx, LockKey)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read draw lock: %w", err)
	}
	return token == lock.Token, nil
}

// Release deletes the lock only if it still belongs to this holder
func (l *DrawLocker) Release(ctx context.Context, lock *entities.DrawLock) (bool, error) {
	released, err := l.store.CompareAndDelete(ctx, LockKey, lock.Token)
	if err != nil {
		return false, fmt.Errorf("failed to release draw lock: %w", err)
	}
	if !released {
		log.WithField("token", lock.Token).Warn("Draw lock was no longer held at release")
	}
	return released, nil
}
