package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	keys map[string]time.Duration
	err  error
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if _, ok := f.keys[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.keys[k]; ok {
			delete(f.keys, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestCallbackDeduper_ClaimOnce(t *testing.T) {
	rdb := &fakeRedis{keys: map[string]time.Duration{}}
	d := NewCallbackDeduper(rdb, time.Hour)
	ctx := context.Background()

	first, err := d.Claim(ctx, "msg-1")
	require.NoError(t, err)
	second, err := d.Claim(ctx, "msg-1")
	require.NoError(t, err)
	other, err := d.Claim(ctx, "msg-2")
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
	assert.True(t, other)
	assert.Equal(t, time.Hour, rdb.keys["scheduler_callback:msg-1"])
}

func TestCallbackDeduper_ReleaseAllowsRetry(t *testing.T) {
	rdb := &fakeRedis{keys: map[string]time.Duration{}}
	d := NewCallbackDeduper(rdb, 0)
	ctx := context.Background()

	_, _ = d.Claim(ctx, "msg-1")
	require.NoError(t, d.Release(ctx, "msg-1"))

	again, err := d.Claim(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(t, again)
	assert.Equal(t, 24*time.Hour, rdb.keys["scheduler_callback:msg-1"])
}

func TestCallbackDeduper_PropagatesErrors(t *testing.T) {
	d := NewCallbackDeduper(&fakeRedis{err: errors.New("connection refused")}, time.Hour)
	_, err := d.Claim(context.Background(), "msg-1")
	assert.Error(t, err)
}
