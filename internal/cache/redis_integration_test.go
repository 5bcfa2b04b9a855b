//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/stretchr/testify/require"
)

func TestRedisClientAgainstContainer(t *testing.T) {
	pool, err := dockertest.NewPool("")
	require.NoError(t, err)

	resource, err := pool.Run("redis", "7-alpine", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Purge(resource) })

	var client *RedisClient
	require.NoError(t, pool.Retry(func() error {
		var err error
		client, err = NewRedisClient(RedisConfig{Address: "localhost:" + resource.GetPort("6379/tcp"), Timeout: time.Second})
		return err
	}))
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	count, ttl, err := client.IncrementWithTTL(ctx, "rl:test", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Greater(t, ttl, 50*time.Second)

	count, _, err = client.IncrementWithTTL(ctx, "rl:test", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	ok, err := client.Claim(ctx, "sso:state:abc", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = client.Claim(ctx, "sso:state:abc", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, client.Ping(ctx))
}
