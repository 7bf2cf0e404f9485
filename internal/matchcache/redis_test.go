package matchcache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memClient：内存版 Client，记录写入的值与过期时间
type memClient struct {
	mu   sync.Mutex
	vals map[string]string
	ttls map[string]time.Duration
	err  error
}

func newMemClient() *memClient {
	return &memClient{vals: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (c *memClient) Get(_ context.Context, key string) *redis.StringCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return redis.NewStringResult("", c.err)
	}
	v, ok := c.vals[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (c *memClient) Set(_ context.Context, key string, value interface{}, exp time.Duration) *redis.StatusCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return redis.NewStatusResult("", c.err)
	}
	c.vals[key] = value.(string)
	c.ttls[key] = exp
	return redis.NewStatusResult("OK", nil)
}

func TestRedisRoundTrip(t *testing.T) {
	mc := newMemClient()
	r := NewRedis(mc, 30*time.Minute)

	_, ok := r.Get("k")
	assert.False(t, ok)

	r.Set("k", []int{3, 1})
	assert.Equal(t, "[3,1]", mc.vals[RedisKey("k")])
	assert.Equal(t, 30*time.Minute, mc.ttls[RedisKey("k")])
	ids, ok := r.Get("k")
	require.True(t, ok)
	assert.Equal(t, []int{3, 1}, ids)
}

func TestRedisStoresEmptyMatchAsList(t *testing.T) {
	mc := newMemClient()
	r := NewRedis(mc, time.Minute)
	r.Set("miss", nil)
	assert.Equal(t, "[]", mc.vals[RedisKey("miss")])

	ids, ok := r.Get("miss")
	require.True(t, ok)
	assert.Empty(t, ids)
}

func TestRedisTreatsBadValuesAndErrorsAsMiss(t *testing.T) {
	mc := newMemClient()
	mc.vals[RedisKey("bad")] = "not-json"
	r := NewRedis(mc, time.Minute)
	_, ok := r.Get("bad")
	assert.False(t, ok)

	mc.err = errors.New("connection refused")
	_, ok = r.Get("bad")
	assert.False(t, ok)
	r.Set("other", []int{1})
	_, stored := mc.vals[RedisKey("other")]
	assert.False(t, stored)
}

func TestTieredBackfillsLocalFromRedis(t *testing.T) {
	mc := newMemClient()
	remote := NewRedis(mc, time.Minute)
	remote.Set("shared", []int{5})

	local := NewLRU(8, 0)
	tc := New(local, remote)
	ids, ok := tc.Get("shared")
	require.True(t, ok)
	assert.Equal(t, []int{5}, ids)

	ids, ok = local.Get("shared")
	assert.True(t, ok)
	assert.Equal(t, []int{5}, ids)

	tc.Set("fresh", []int{9})
	assert.Equal(t, "[9]", mc.vals[RedisKey("fresh")])
	_, ok = local.Get("fresh")
	assert.True(t, ok)
}
