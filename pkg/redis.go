package pkg

import (
	"context"
	"fmt"
	"time"

	"github.com/SAP-F-2025/inventory-import-service/internal/config"
	"github.com/redis/go-redis/v9"
)

const redisPingTimeout = 5 * time.Second

// NewRedisClient connects to REDIS_URL and pings it. Without an explicit
// pool_size the pool gets one extra connection per queue worker.
func NewRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	if opt.PoolSize == 0 {
		opt.PoolSize = 10 + cfg.Queue.Concurrency
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s unreachable: %w", opt.Addr, err)
	}
	return client, nil
}
