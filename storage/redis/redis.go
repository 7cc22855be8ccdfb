// Package redis provides a Redis-backed gateway.QuotaStore, storing the
// provider -> used_units counters in a single hash so Load/Save is one
// round trip regardless of provider count.
package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Config configures the Redis store.
type Config struct {
	// KeyPrefix is prepended to the counters hash key (default "gateway:").
	KeyPrefix string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{KeyPrefix: "gateway:"}
}

// Store implements gateway.QuotaStore backed by Redis.
type Store struct {
	client redis.UniversalClient
	config Config
	ctx    context.Context
}

// New constructs a Store. client may be *redis.Client, *redis.ClusterClient,
// or *redis.Ring. ctx is used for every Load/Save call since QuotaStore's
// interface carries no context parameter (the Quota Manager calls it while
// already holding its mutex); pass context.Background() for a long-lived
// store.
func New(ctx context.Context, client redis.UniversalClient, config Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "gateway:"
	}
	return &Store{client: client, config: config, ctx: ctx}, nil
}

func (s *Store) key() string {
	return s.config.KeyPrefix + "usage_counters"
}

// Load reads the counters hash. A missing key yields an empty map.
func (s *Store) Load() (map[string]int, error) {
	raw, err := s.client.HGetAll(s.ctx, s.key()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: load counters: %w", err)
	}
	out := make(map[string]int, len(raw))
	for provider, v := range raw {
		n, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		out[provider] = n
	}
	return out, nil
}

// Save replaces the counters hash with counters, via a pipelined delete +
// HSET so a reader never observes a partial write.
func (s *Store) Save(counters map[string]int) error {
	pipe := s.client.TxPipeline()
	pipe.Del(s.ctx, s.key())
	if len(counters) > 0 {
		fields := make(map[string]interface{}, len(counters))
		for provider, used := range counters {
			fields[provider] = used
		}
		pipe.HSet(s.ctx, s.key(), fields)
	}
	if _, err := pipe.Exec(s.ctx); err != nil {
		return fmt.Errorf("redis: save counters: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks connectivity.
func (s *Store) Ping() error {
	return s.client.Ping(s.ctx).Err()
}
