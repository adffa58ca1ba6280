package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, group string, ttl time.Duration) (*DedupCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := NewClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = client.Close() })

	return NewDedupCache(client, group, ttl), mr
}

func TestDedupCache_RememberThenSeen(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t, "order-service", time.Hour)

	seen, err := cache.Seen(ctx, "e-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, cache.Remember(ctx, "e-1"))

	seen, err = cache.Seen(ctx, "e-1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestDedupCache_Expires(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t, "order-service", time.Minute)

	require.NoError(t, cache.Remember(ctx, "e-1"))
	mr.FastForward(2 * time.Minute)

	seen, err := cache.Seen(ctx, "e-1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestDedupCache_ScopedByGroup(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t, "order-service", time.Hour)

	require.NoError(t, cache.Remember(ctx, "e-1"))
	assert.True(t, mr.Exists("processed:order-service:e-1"))
}

func TestDedupCache_ServerDown(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t, "order-service", time.Hour)
	mr.Close()

	_, err := cache.Seen(ctx, "e-1")
	assert.Error(t, err)
}
