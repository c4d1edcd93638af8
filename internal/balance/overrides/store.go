// Package overrides persists manual line overrides so a rebuild with
// unchanged inputs keeps every amount the user entered.
package overrides

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// DefaultRedisKey is the hash holding line ID -> amount.
const DefaultRedisKey = "balance360:overrides"

// MemoryStore keeps overrides for the life of the process.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]decimal.Decimal
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]decimal.Decimal)}
}

// List returns a copy of every override.
func (s *MemoryStore) List(ctx context.Context) (map[string]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out, nil
}

// Set stores amount for lineID.
func (s *MemoryStore) Set(ctx context.Context, lineID string, amount decimal.Decimal) error {
	s.mu.Lock()
	s.values[lineID] = amount
	s.mu.Unlock()
	return nil
}

// Delete removes lineID. Deleting an absent line is not an error.
func (s *MemoryStore) Delete(ctx context.Context, lineID string) error {
	s.mu.Lock()
	delete(s.values, lineID)
	s.mu.Unlock()
	return nil
}

// RedisStore keeps overrides in a Redis hash so the API and the worker share
// them.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore binds the store to a hash key; an empty key uses
// DefaultRedisKey.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

// List reads the whole hash. Unparseable values are reported as errors
// rather than skipped.
func (s *RedisStore) List(ctx context.Context) (map[string]decimal.Decimal, error) {
	if s == nil || s.client == nil {
		return map[string]decimal.Decimal{}, nil
	}
	raw, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("overrides: hgetall: %w", err)
	}
	out := make(map[string]decimal.Decimal, len(raw))
	for id, v := range raw {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("overrides: line %s: %w", id, err)
		}
		out[id] = d
	}
	return out, nil
}

// Set writes amount for lineID.
func (s *RedisStore) Set(ctx context.Context, lineID string, amount decimal.Decimal) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("overrides: redis client not configured")
	}
	if err := s.client.HSet(ctx, s.key, lineID, amount.String()).Err(); err != nil {
		return fmt.Errorf("overrides: hset: %w", err)
	}
	return nil
}

// Delete removes lineID.
func (s *RedisStore) Delete(ctx context.Context, lineID string) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("overrides: redis client not configured")
	}
	if err := s.client.HDel(ctx, s.key, lineID).Err(); err != nil {
		return fmt.Errorf("overrides: hdel: %w", err)
	}
	return nil
}
