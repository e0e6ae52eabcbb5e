package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "completion:"

// NewRedisClient parses a redis:// URL and checks connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

// CachedCompleter serves identical completions from Redis. Cache failures are logged and
// bypassed; only the wrapped Completer's errors reach the caller.
type CachedCompleter struct {
	next   Completer
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedCompleter wraps next with a Redis cache.
func NewCachedCompleter(next Completer, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedCompleter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedCompleter{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func cacheKey(req Completion) string {
	h := sha256.New()
	for _, part := range []string{req.Model, req.System, req.User} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Complete returns a cached reply when present, otherwise calls through and caches the result.
// Replies rejected by req.Accept are neither served from nor written to the cache.
func (c *CachedCompleter) Complete(ctx context.Context, req Completion) (string, error) {
	key := cacheKey(req)
	cached, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil && cached != "":
		if accepted(req, cached) {
			return cached, nil
		}
		c.logger.Warn("Dropping rejected completion from cache")
		if err := c.rdb.Del(ctx, key).Err(); err != nil {
			c.logger.Warn("Completion cache delete failed", zap.Error(err))
		}
	case err != nil && !errors.Is(err, redis.Nil):
		c.logger.Warn("Completion cache read failed", zap.Error(err))
	}

	out, err := c.next.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	if !accepted(req, out) {
		return out, nil
	}
	if err := c.rdb.Set(ctx, key, out, c.ttl).Err(); err != nil {
		c.logger.Warn("Completion cache write failed", zap.Error(err))
	}
	return out, nil
}

func accepted(req Completion, reply string) bool {
	return req.Accept == nil || req.Accept(reply) == nil
}
