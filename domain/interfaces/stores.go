package interfaces

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by KeyValueStore.Get for missing or expired keys
var ErrKeyNotFound = errors.New("key not found")

// KeyValueStore is the durable coordination store holding the draw lock, the
// claim watermark, aggregate totals and payout idempotency keys. A ttl of zero
// means the key never expires. Conditional writes are atomic.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	PutIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	CompareAndSwap(ctx context.Context, key, expected, value string, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
	Delete(ctx context.Context, key string) error
}
