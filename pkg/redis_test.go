package pkg

import (
	"context"
	"testing"

	"github.com/SAP-F-2025/inventory-import-service/internal/config"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := &config.Config{RedisURL: "redis://" + mr.Addr() + "/0"}
	cfg.Queue.Concurrency = 4

	client, err := NewRedisClient(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, 14, client.Options().PoolSize)
	require.NoError(t, client.Set(context.Background(), "imports:probe", "1", 0).Err())
	assert.True(t, mr.Exists("imports:probe"))
}

func TestNewRedisClientErrors(t *testing.T) {
	_, err := NewRedisClient(context.Background(), &config.Config{RedisURL: "not-a-url"})
	assert.ErrorContains(t, err, "invalid REDIS_URL")

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err = NewRedisClient(context.Background(), &config.Config{RedisURL: "redis://" + addr})
	assert.ErrorContains(t, err, "unreachable")
}
