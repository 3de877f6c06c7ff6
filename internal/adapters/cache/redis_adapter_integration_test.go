//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/harborleaf/storelocator/internal/domain/providers"
	redisclient "github.com/harborleaf/storelocator/internal/infrastructure/clients/redis"
)

func setupTestRedis(t *testing.T) *redisclient.Client {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		redisC.Terminate(ctx)
	})

	host, err := redisC.Host(ctx)
	require.NoError(t, err)

	port, err := redisC.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redisclient.NewClientFromRedis(goredis.NewClient(&goredis.Options{
		Addr: host + ":" + port.Port(),
	}))
	require.NoError(t, client.Ping(ctx))

	t.Cleanup(func() {
		client.Close()
	})

	return client
}

func TestRedisAdapterIntegration(t *testing.T) {
	ctx := context.Background()
	client := setupTestRedis(t)
	adapter := NewRedisAdapter(client)

	_, err := adapter.Get(ctx, "static-map:missing")
	assert.ErrorIs(t, err, providers.ErrCacheMiss)

	require.NoError(t, adapter.Set(ctx, "static-map:abc", []byte{0x89, 'P', 'N', 'G'}, 60))

	got, err := adapter.Get(ctx, "static-map:abc")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, got)

	ttl, err := client.Client().TTL(ctx, KeyPrefix+"static-map:abc").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)

	require.NoError(t, adapter.Delete(ctx, "static-map:abc"))
	_, err = adapter.Get(ctx, "static-map:abc")
	assert.ErrorIs(t, err, providers.ErrCacheMiss)
}
