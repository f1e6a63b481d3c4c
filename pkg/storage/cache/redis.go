package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/closingroom/pkg/storage"
)

// RedisClient caches per-cycle usage counters and backs the distributed rate limiter
type RedisClient struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient creates a new Redis client and verifies the connection
func NewRedisClient(config storage.Config) (*RedisClient, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if config.RedisPassword != "" {
		opts.Password = config.RedisPassword
	}
	if config.RedisDB >= 0 {
		opts.DB = config.RedisDB
	}
	if config.RedisMaxRetries > 0 {
		opts.MaxRetries = config.RedisMaxRetries
	}
	if config.RedisPoolSize > 0 {
		opts.PoolSize = config.RedisPoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := config.UsageCacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisClient{client: client, ttl: ttl}, nil
}

// UsageKey returns the cache key of a usage counter
func UsageKey(teamID int64, cycleStart time.Time, resource string) string {
	return fmt.Sprintf("usage:%d:%d:%s", teamID, cycleStart.Unix(), resource)
}

// GetUsage reads a cached counter. The bool is false on a cache miss.
func (c *RedisClient) GetUsage(ctx context.Context, teamID int64, cycleStart time.Time, resource string) (int64, bool, error) {
	key := UsageKey(teamID, cycleStart, resource)

	data, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, false, nil
	} else if err != nil {
		return 0, false, fmt.Errorf("redis get failed: %w", err)
	}

	n, err := strconv.ParseInt(data, 10, 64)
	if err != nil {
		c.client.Del(ctx, key)
		return 0, false, fmt.Errorf("corrupt usage counter %s: %w", key, err)
	}
	return n, true, nil
}

// SetUsage stores a counter computed from the database
func (c *RedisClient) SetUsage(ctx context.Context, teamID int64, cycleStart time.Time, resource string, value int64) error {
	return c.client.Set(ctx, UsageKey(teamID, cycleStart, resource), value, c.ttl).Err()
}

// incrIfPresent increments a key only when it is already cached, so a counter is never
// created from zero and under-reported.
var incrIfPresent = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return redis.call('INCR', KEYS[1])
end
return -1
`)

// IncrUsage bumps a cached counter after a successful write. It reports whether the
// counter was cached.
func (c *RedisClient) IncrUsage(ctx context.Context, teamID int64, cycleStart time.Time, resource string) (bool, error) {
	n, err := incrIfPresent.Run(ctx, c.client, []string{UsageKey(teamID, cycleStart, resource)}).Int64()
	if err != nil {
		return false, fmt.Errorf("redis incr failed: %w", err)
	}
	return n >= 0, nil
}

// InvalidateTeam drops every cached counter of a team
func (c *RedisClient) InvalidateTeam(ctx context.Context, teamID int64) error {
	return c.InvalidatePatterns(ctx, fmt.Sprintf("usage:%d:*", teamID))
}

// InvalidatePatterns removes keys matching patterns
func (c *RedisClient) InvalidatePatterns(ctx context.Context, patterns ...string) error {
	for _, pattern := range patterns {
		iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
				return fmt.Errorf("failed to delete key %s: %w", iter.Val(), err)
			}
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("scan failed for pattern %s: %w", pattern, err)
		}
	}
	return nil
}

// Ping checks Redis connectivity
func (c *RedisClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// GetClient returns the underlying Redis client for the rate limiter and health checks
func (c *RedisClient) GetClient() *redis.Client {
	return c.client
}

// Close closes the Redis connection
func (c *RedisClient) Close() error {
	return c.client.Close()
}
