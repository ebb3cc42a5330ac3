package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	P uint64 `json:"p"`
	N uint64 `json:"n"`
}

func TestMemoryCacheLRU(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxItems(2))

	require.NoError(t, mc.Set(ctx, "a", point{5, 4}, 0))
	require.NoError(t, mc.Set(ctx, "b", point{7, 11}, 0))

	var p point
	require.NoError(t, mc.Get(ctx, "a", &p))
	assert.Equal(t, point{5, 4}, p)

	require.NoError(t, mc.Set(ctx, "c", point{11, 9}, 0))
	assert.Equal(t, 2, mc.Len())
	assert.ErrorIs(t, mc.Get(ctx, "b", &p), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "c", &p))
	assert.Equal(t, point{11, 9}, p)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	mc := NewMemoryCache(WithMemoryClock(func() time.Time { return now }))

	require.NoError(t, mc.Set(ctx, "k", "v", time.Minute))
	s, err := GetTyped[string](ctx, mc, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", s)

	now = now.Add(2 * time.Minute)
	_, err = GetTyped[string](ctx, mc, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Equal(t, 0, mc.Len())
}

func TestMemoryCacheLock(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()

	ok, err := mc.TryLock(ctx, "lock", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = mc.TryLock(ctx, "lock", time.Minute)
	assert.False(t, ok)

	require.NoError(t, mc.Unlock(ctx, "lock"))
	ok, _ = mc.TryLock(ctx, "lock", time.Minute)
	assert.True(t, ok)
}

func TestLayeredCacheBackfillsL1(t *testing.T) {
	ctx := context.Background()
	l1 := NewMemoryCache()
	l2 := NewMemoryCache()
	lc := NewLayeredCache(l1, l2)

	require.NoError(t, l2.Set(ctx, "only-l2", point{13, 12}, 0))
	var p point
	require.NoError(t, lc.Get(ctx, "only-l2", &p))
	assert.Equal(t, point{13, 12}, p)
	assert.Equal(t, 1, l1.Len())

	require.NoError(t, lc.Set(ctx, "both", point{17, 22}, 0))
	assert.Equal(t, 2, l1.Len())
	assert.Equal(t, 2, l2.Len())

	require.NoError(t, lc.Delete(ctx, "both"))
	assert.ErrorIs(t, lc.Get(ctx, "both", &p), ErrCacheMiss)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "horizon:verdict:1:2", Key("horizon", "verdict", "", "1:2"))
	assert.Equal(t, "x", Key("", "x"))
}
