package infrastructure

import (
	"context"
	"sync"
	"time"

	"raffler/domain/interfaces"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore is an in-process KeyValueStore. It backs single-instance
// development runs and tests; expired keys are dropped lazily on access.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty store using the wall clock
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock creates an empty store reading time from now
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     now,
	}
}

// lookup returns the live entry for key; callers hold mu
func (s *MemoryStore) lookup(key string) (memoryEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if e.expired(s.now()) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (s *MemoryStore) set(key, value string, ttl time.Duration) {
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = e
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	if !ok {
		return "", interfaces.ErrKeyNotFound
	}
	return e.value, nil
}

func (s *MemoryStore) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.set(key, value, ttl)
	return nil
}

func (s *MemoryStore) PutIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lookup(key); ok {
		return false, nil
	}
	s.set(key, value, ttl)
	return true, nil
}

func (s *MemoryStore) CompareAndSwap(ctx context.Context, key, expected, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	if !ok || e.value != expected {
		return false, nil
	}
	s.set(key, value, ttl)
	return true, nil
}

func (s *MemoryStore) CompareAndDelete(ctx context.Context, key, expected string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	if !ok || e.value != expected {
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}
