package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// goCacheWrapper go-cache包装器
type goCacheWrapper struct {
	cache *gocache.Cache
}

// NewGoCache 创建基于go-cache的本地缓存
func NewGoCache(config LocalConfig) Cache {
	// go-cache 没有容量限制，MaxSize 在这里不生效
	return &goCacheWrapper{
		cache: gocache.New(config.DefaultExpiration, config.CleanupInterval),
	}
}

// Get 获取缓存值
func (gc *goCacheWrapper) Get(ctx context.Context, key string) (interface{}, bool) {
	return gc.cache.Get(key)
}

// Set 设置缓存值
func (gc *goCacheWrapper) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if expiration <= 0 {
		expiration = gocache.DefaultExpiration
	}
	gc.cache.Set(key, value, expiration)
	return nil
}

// Delete 删除缓存
func (gc *goCacheWrapper) Delete(ctx context.Context, key string) error {
	gc.cache.Delete(key)
	return nil
}

// DeleteMulti 批量删除
func (gc *goCacheWrapper) DeleteMulti(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		gc.cache.Delete(key)
	}
	return nil
}

// Exists 检查键是否存在
func (gc *goCacheWrapper) Exists(ctx context.Context, key string) bool {
	_, found := gc.cache.Get(key)
	return found
}

// Clear 清空所有缓存
func (gc *goCacheWrapper) Clear(ctx context.Context) error {
	gc.cache.Flush()
	return nil
}

// Close go-cache不需要关闭连接
func (gc *goCacheWrapper) Close() error {
	return nil
}
