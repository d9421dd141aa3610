package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"time"

	"raffler/domain/interfaces"

	"github.com/redis/go-redis/v9"
)

// compareAndDeleteScript deletes KEYS[1] only while it still holds ARGV[1]
var compareAndDeleteScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// compareAndSwapScript replaces KEYS[1] only while it still holds ARGV[1].
// ARGV[3] is the TTL in milliseconds, 0 keeps the key persistent.
var compareAndSwapScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return 0
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ttl)
else
	redis.call("SET", KEYS[1], ARGV[2])
end
return 1
`)

// RedisStore implements KeyValueStore on Redis
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// NewRedisStore wraps a client; every key is namespaced with keyPrefix
func NewRedisStore(client redis.UniversalClient, keyPrefix string) *RedisStore {
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisStore) key(k string) string {
	return s.keyPrefix + k
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", interfaces.ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, nil
}

func (s *RedisStore) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) PutIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.key(key), value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to put %s if absent: %w", key, err)
	}
	return ok, nil
}

func (s *RedisStore) CompareAndSwap(ctx context.Context, key, expected, value string, ttl time.Duration) (bool, error) {
	res, err := compareAndSwapScript.Run(ctx, s.client, []string{s.key(key)}, expected, value, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to compare and swap %s: %w", key, err)
	}
	return res == 1, nil
}

func (s *RedisStore) CompareAndDelete(ctx context.Context, key, expected string) (bool, error) {
	res, err := compareAndDeleteScript.Run(ctx, s.client, []string{s.key(key)}, expected).Int()
	if err != nil {
		return false, fmt.Errorf("failed to compare and delete %s: %w", key, err)
	}
	return res == 1, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
