package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	lockKeyPrefix         = "dispatch:lock:"
	pageCountKey          = "dispatch:count:pages"
	domainPageCountPrefix = "dispatch:count:pages:"
	nextJobsCountKey      = "dispatch:count:next_jobs"
)

// RedisCache implements Cache over github.com/redis/go-redis/v9, grounded
// on the control-plane stack the pack's FluxForge repo uses for exactly
// this role: an out-of-process store for locks and counters shared across
// processes.
type RedisCache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisCache returns a Cache backed by a Redis client built from addr.
func NewRedisCache(addr, password string, db int, logger *slog.Logger) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		logger: logger.With("component", "redis_cache"),
	}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// TryLock issues SET key token NX PX ttl. A false OK means another caller
// holds the lock — that is the expected, non-error "not acquired" path.
func (c *RedisCache) TryLock(ctx context.Context, key string, ttlSeconds int64) (string, error) {
	token, err := randomToken()
	if err != nil {
		return "", fmt.Errorf("generate lock token: %w", err)
	}

	ok, err := c.client.SetNX(ctx, lockKeyPrefix+key, token, time.Duration(ttlSeconds)*time.Second).Result()
	if err != nil {
		c.logger.Warn("lock acquisition failed", "key", key, "error", err)
		return "", err
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

func (c *RedisCache) IncrementPageCount(ctx context.Context) error {
	if err := c.client.Incr(ctx, pageCountKey).Err(); err != nil {
		c.logger.Warn("increment page count failed", "error", err)
		return err
	}
	return nil
}

func (c *RedisCache) IncrementDomainPageCount(ctx context.Context, domainURL string) error {
	if err := c.client.Incr(ctx, domainPageCountPrefix+domainURL).Err(); err != nil {
		c.logger.Warn("increment domain page count failed", "domain", domainURL, "error", err)
		return err
	}
	return nil
}

func (c *RedisCache) IncrementNextJobsCount(ctx context.Context) error {
	if err := c.client.Incr(ctx, nextJobsCountKey).Err(); err != nil {
		c.logger.Warn("increment next jobs count failed", "error", err)
		return err
	}
	return nil
}

func (c *RedisCache) GetPageCount(ctx context.Context, domainURL string) (int64, error) {
	key := pageCountKey
	if domainURL != "" {
		key = domainPageCountPrefix + domainURL
	}
	n, err := c.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		c.logger.Warn("get page count failed", "domain", domainURL, "error", err)
		return 0, err
	}
	return n, nil
}

func randomToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
