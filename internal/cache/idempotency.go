package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrMiss = errors.New("idempotency key not found")

// IdempotencyStore remembers the first result produced for a client
// supplied key. Remember never overwrites an existing entry.
type IdempotencyStore interface {
	Lookup(ctx context.Context, userID uuid.UUID, key string) ([]byte, error)
	Remember(ctx context.Context, userID uuid.UUID, key string, value []byte) error
}

func idempotencyKey(userID uuid.UUID, key string) string {
	return fmt.Sprintf("checkout:idempotency:%s:%s", userID, key)
}

type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, ttl: ttl}
}

func (s *RedisIdempotencyStore) Lookup(ctx context.Context, userID uuid.UUID, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, idempotencyKey(userID, key)).Bytes()
	if err == redis.Nil {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup error: %w", err)
	}
	return value, nil
}

func (s *RedisIdempotencyStore) Remember(ctx context.Context, userID uuid.UUID, key string, value []byte) error {
	if err := s.client.SetNX(ctx, idempotencyKey(userID, key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency store error: %w", err)
	}
	return nil
}

// MemoryIdempotencyStore serves the in-memory mode.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryIdempotencyStore) Lookup(_ context.Context, userID uuid.UUID, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := idempotencyKey(userID, key)
	entry, ok := s.entries[k]
	if !ok {
		return nil, ErrMiss
	}
	if s.ttl > 0 && s.now().After(entry.expiresAt) {
		delete(s.entries, k)
		return nil, ErrMiss
	}
	return entry.value, nil
}

func (s *MemoryIdempotencyStore) Remember(_ context.Context, userID uuid.UUID, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := idempotencyKey(userID, key)
	if entry, ok := s.entries[k]; ok && (s.ttl <= 0 || s.now().Before(entry.expiresAt)) {
		return nil
	}
	s.entries[k] = memoryEntry{value: value, expiresAt: s.now().Add(s.ttl)}
	return nil
}
