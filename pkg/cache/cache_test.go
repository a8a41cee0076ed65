package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalCache(t *testing.T) {
	config := LocalConfig{
		MaxSize:           2,
		DefaultExpiration: 5 * time.Minute,
	}

	cache := NewLocalCache(config)
	defer cache.Close()

	ctx := context.Background()

	t.Run("Set and Get", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, "sos:list:all", "[]", time.Minute))
		v, ok := cache.Get(ctx, "sos:list:all")
		assert.True(t, ok)
		assert.Equal(t, "[]", v)
	})

	t.Run("Evicts least recently used", func(t *testing.T) {
		require.NoError(t, cache.Clear(ctx))
		cache.Set(ctx, "a", 1, 0)
		cache.Set(ctx, "b", 2, 0)
		cache.Get(ctx, "a")
		cache.Set(ctx, "c", 3, 0)
		assert.True(t, cache.Exists(ctx, "a"))
		assert.False(t, cache.Exists(ctx, "b"))
		assert.True(t, cache.Exists(ctx, "c"))
	})

	t.Run("Expired entries miss", func(t *testing.T) {
		cache.Set(ctx, "short", "x", time.Millisecond)
		time.Sleep(5 * time.Millisecond)
		_, ok := cache.Get(ctx, "short")
		assert.False(t, ok)
	})

	t.Run("DeleteMulti", func(t *testing.T) {
		cache.Set(ctx, "a", 1, 0)
		cache.Set(ctx, "c", 3, 0)
		require.NoError(t, cache.DeleteMulti(ctx, "a", "c"))
		assert.False(t, cache.Exists(ctx, "a"))
		assert.False(t, cache.Exists(ctx, "c"))
	})
}

func TestGoCache(t *testing.T) {
	c := NewGoCache(LocalConfig{DefaultExpiration: time.Minute})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	v, ok := c.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	require.NoError(t, c.Delete(ctx, "k"))
	assert.False(t, c.Exists(ctx, "k"))
}

func TestLayeredCacheBackfillsLocal(t *testing.T) {
	ctx := context.Background()
	local := NewLocalCache(LocalConfig{MaxSize: 10})
	remote := NewGoCache(LocalConfig{})
	lc := NewLayeredCache(local, remote, nil)

	require.NoError(t, remote.Set(ctx, "k", "remote", 0))
	v, ok := lc.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "remote", v)
	assert.True(t, local.Exists(ctx, "k"))

	require.NoError(t, lc.DeleteMulti(ctx, "k"))
	assert.False(t, local.Exists(ctx, "k"))
	assert.False(t, remote.Exists(ctx, "k"))
}

func TestNewCacheRejectsUnknownType(t *testing.T) {
	_, err := NewCache(Config{Type: "memcached"})
	assert.Error(t, err)

	c, err := NewCacheWithOptions(Config{Type: "gocache"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, c)
}
