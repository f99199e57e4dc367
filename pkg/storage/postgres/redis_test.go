package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/atrium/pkg/config"
)

func newTestRedis(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rc := NewRedisClientFromExisting(client)
	t.Cleanup(func() { rc.Close() })
	return rc, mr
}

func TestRedisClientFromURL(t *testing.T) {
	mr := miniredis.RunT(t)

	rc, err := NewRedisClient(config.RedisConfig{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	defer rc.Close()

	assert.NoError(t, rc.HealthCheck(context.Background()))
}

func TestRedisClientRejectsBadURL(t *testing.T) {
	_, err := NewRedisClient(config.RedisConfig{URL: "not-a-url"})
	assert.Error(t, err)
}

func TestRedisGetSetDelete(t *testing.T) {
	rc, _ := newTestRedis(t)
	ctx := context.Background()

	_, found, err := rc.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, rc.Set(ctx, "k", "v", time.Minute))
	val, found, err := rc.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", val)

	require.NoError(t, rc.Delete(ctx, "k", "missing"))
	_, found, err = rc.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisSetTTL(t *testing.T) {
	rc, mr := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, "k", "v", time.Minute))
	mr.FastForward(2 * time.Minute)

	_, found, err := rc.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisHealthCheckFailsWhenDown(t *testing.T) {
	rc, mr := newTestRedis(t)
	mr.Close()
	assert.Error(t, rc.HealthCheck(context.Background()))
}
