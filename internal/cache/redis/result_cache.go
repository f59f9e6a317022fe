package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/davidbz/promptfmt/internal/domain"
	"github.com/davidbz/promptfmt/internal/observability"
)

// Config contains result cache settings.
type Config struct {
	Enabled  bool   `env:"CACHE_ENABLED"  envDefault:"false"`
	Addr     string `env:"REDIS_ADDR"     envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB"       envDefault:"0"`
	TTL      int    `env:"CACHE_TTL"      envDefault:"3600"`
	Prefix   string `env:"CACHE_PREFIX"   envDefault:"promptfmt:"`
}

// TTLDuration returns the entry lifetime.
func (c *Config) TTLDuration() time.Duration {
	return time.Duration(c.TTL) * time.Second
}

// ResultCache stores transformed prompt text in Redis hashes.
type ResultCache struct {
	client *redis.Client
	prefix string
}

// Compile-time check that ResultCache satisfies the ResultCache interface.
var _ domain.ResultCache = (*ResultCache)(nil)

// NewClient creates a Redis client from config.
func NewClient(config *Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
}

// NewResultCache creates a new Redis result cache.
func NewResultCache(client *redis.Client, prefix string) (*ResultCache, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}

	return &ResultCache{
		client: client,
		prefix: prefix,
	}, nil
}

// Key returns the Redis key for a cache key.
func (c *ResultCache) Key(key string) string {
	return c.prefix + key
}

// Get returns the cached text for key, or domain.ErrCacheMiss.
func (c *ResultCache) Get(ctx context.Context, key string) (string, error) {
	logger := observability.FromContext(ctx)

	data, err := c.client.HGet(ctx, c.Key(key), "data").Result()
	if errors.Is(err, redis.Nil) {
		logger.Debug("result cache miss", observability.String("key", key))
		return "", domain.ErrCacheMiss
	}
	if err != nil {
		return "", fmt.Errorf("failed to read cache entry: %w", err)
	}

	logger.Debug("result cache hit", observability.String("key", key))
	return data, nil
}

// Set stores value under key for ttl. A non-positive ttl keeps the entry
// until evicted.
func (c *ResultCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	logger := observability.FromContext(ctx)
	logger.Debug("storing result",
		observability.String("key", key),
		observability.Int("data_size", len(value)))

	pipe := c.client.Pipeline()

	pipe.HSet(ctx, c.Key(key),
		"data", value,
		"indexed_at", time.Now().Unix(),
	)

	if ttl > 0 {
		pipe.Expire(ctx, c.Key(key), ttl)
	}

	if _, execErr := pipe.Exec(ctx); execErr != nil {
		logger.Error("result cache store failed", observability.Error(execErr))
		return fmt.Errorf("failed to store cache entry: %w", execErr)
	}

	return nil
}

// Ping checks that Redis is reachable.
func (c *ResultCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (c *ResultCache) Close() error {
	return c.client.Close()
}
