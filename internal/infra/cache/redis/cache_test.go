package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Count   int64   `json:"count"`
	Average float64 `json:"average"`
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	cache := NewFromClient(client)
	t.Cleanup(func() { _ = cache.Close() })
	return cache, mr
}

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	var out payload
	hit, err := cache.Get(ctx, "agg:property:p1", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, cache.Set(ctx, "agg:property:p1", payload{Count: 3, Average: 4.5}, 60))

	hit, err = cache.Get(ctx, "agg:property:p1", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, payload{Count: 3, Average: 4.5}, out)
}

func TestCacheDel(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	require.NoError(t, cache.Set(ctx, "agg:package:k1", payload{Count: 1}, 60))
	require.NoError(t, cache.Del(ctx, "agg:package:k1"))

	var out payload
	hit, err := cache.Get(ctx, "agg:package:k1", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheTTLExpiry(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	require.NoError(t, cache.Set(ctx, "agg:property:p1", payload{Count: 2}, 30))
	mr.FastForward(31 * time.Second)

	var out payload
	hit, err := cache.Get(ctx, "agg:property:p1", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}
