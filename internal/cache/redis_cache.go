package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by Get when the key is absent, expired, unreadable
// or the cache could not be reached in time.
var ErrCacheMiss = errors.New("cache miss")

const DefaultOpTimeout = 250 * time.Millisecond

type CacheService interface {
	Set(ctx context.Context, key Key, value interface{}) error
	Get(ctx context.Context, key Key, dest interface{}) error
	Delete(ctx context.Context, keys ...Key) error
	DeletePattern(ctx context.Context, ns Namespace, pattern string) error
}

type redisCache struct {
	client  redis.UniversalClient
	logger  *slog.Logger
	prefix  string
	timeout time.Duration
}

func NewRedisCache(client redis.UniversalClient, logger *slog.Logger, prefix string, timeout time.Duration) CacheService {
	if timeout <= 0 {
		timeout = DefaultOpTimeout
	}
	if prefix == "" {
		prefix = "cache"
	}
	return &redisCache{
		client:  client,
		logger:  logger.With("component", "cache"),
		prefix:  prefix,
		timeout: timeout,
	}
}

func (r *redisCache) redisKey(key Key) string {
	return r.prefix + ":" + key.String()
}

func (r *redisCache) Set(ctx context.Context, key Key, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		r.logger.Error("Failed to encode cache entry", "key", key.String(), "error", err)
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.client.Set(ctx, r.redisKey(key), data, key.Namespace.TTL()).Err(); err != nil {
		r.logger.Warn("Failed to write cache entry", "key", key.String(), "error", err)
		return err
	}
	return nil
}

func (r *redisCache) Get(ctx context.Context, key Key, dest interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		r.logger.Warn("Cache read failed, treating as miss", "key", key.String(), "error", err)
		return ErrCacheMiss
	}
	if err := json.Unmarshal(data, dest); err != nil {
		r.logger.Warn("Discarding unreadable cache entry", "key", key.String(), "error", err)
		return ErrCacheMiss
	}
	return nil
}

func (r *redisCache) Delete(ctx context.Context, keys ...Key) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	redisKeys := make([]string, len(keys))
	for i, k := range keys {
		redisKeys[i] = r.redisKey(k)
	}
	if err := r.client.Del(ctx, redisKeys...).Err(); err != nil {
		r.logger.Warn("Failed to delete cache entries", "keys", redisKeys, "error", err)
		return err
	}
	return nil
}

// DeletePattern removes every key of a namespace whose id matches a glob
// pattern. It scans, so keep it off hot paths.
func (r *redisCache) DeletePattern(ctx context.Context, ns Namespace, pattern string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	match := r.prefix + ":" + string(ns) + ":" + pattern
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			r.logger.Warn("Failed to scan cache keys", "pattern", match, "error", err)
			return err
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				r.logger.Warn("Failed to delete cache keys", "pattern", match, "error", err)
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
