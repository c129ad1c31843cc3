// Package cache holds short-lived Redis-backed lookups.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const idempotencyPrefix = "booking:idem:"

// IdempotencyStore binds client-supplied Idempotency-Key values to booking ids.
type IdempotencyStore interface {
	// Reserve binds key to bookingID unless key is already bound. It returns
	// the booking id bound to key and whether this call created the binding.
	Reserve(ctx context.Context, key, bookingID string) (string, bool, error)
}

type kv interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

type RedisIdempotencyStore struct {
	client kv
	ttl    time.Duration
}

func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, ttl: ttl}
}

func (s *RedisIdempotencyStore) Reserve(ctx context.Context, key, bookingID string) (string, bool, error) {
	k := idempotencyPrefix + key
	for i := 0; i < 2; i++ {
		ok, err := s.client.SetNX(ctx, k, bookingID, s.ttl).Result()
		if err != nil {
			return "", false, err
		}
		if ok {
			return bookingID, true, nil
		}
		existing, err := s.client.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			// Expired between the two calls.
			continue
		}
		if err != nil {
			return "", false, err
		}
		return existing, false, nil
	}
	return "", false, errors.New("idempotency key is contended")
}

// MemoryIdempotencyStore is used when Redis is not configured.
type MemoryIdempotencyStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]memoryEntry
	now   func() time.Time
}

type memoryEntry struct {
	bookingID string
	expires   time.Time
}

func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{ttl: ttl, items: make(map[string]memoryEntry), now: time.Now}
}

func (s *MemoryIdempotencyStore) Reserve(_ context.Context, key, bookingID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if e, ok := s.items[key]; ok && now.Before(e.expires) {
		return e.bookingID, false, nil
	}
	s.items[key] = memoryEntry{bookingID: bookingID, expires: now.Add(s.ttl)}
	return bookingID, true, nil
}
