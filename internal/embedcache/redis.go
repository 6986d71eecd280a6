package embedcache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"
)

// RedisStore implements Store via rueidis
type RedisStore struct {
	client rueidis.Client
}

// NewRedisStore connects to Redis at the given address
func NewRedisStore(addr, password string) (*RedisStore, error) {
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{addr},
		Password:     password,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Get retrieves a value by key
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	cmd := s.client.B().Get().Key(key).Build()
	return s.client.Do(ctx, cmd).AsBytes()
}

// SetWithTTL stores a value with an expiration. A non-positive TTL stores
// the key without expiry.
func (s *RedisStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		cmd := s.client.B().Set().Key(key).Value(string(value)).Build()
		return s.client.Do(ctx, cmd).Error()
	}
	cmd := s.client.B().Set().Key(key).Value(string(value)).Ex(ttl).Build()
	return s.client.Do(ctx, cmd).Error()
}

// Ping checks connectivity
func (s *RedisStore) Ping(ctx context.Context) error {
	cmd := s.client.B().Ping().Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client
func (s *RedisStore) Close() {
	s.client.Close()
}
