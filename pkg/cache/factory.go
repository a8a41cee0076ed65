package cache

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// NewCache 创建缓存实例
func NewCache(config Config) (Cache, error) {
	switch strings.ToLower(config.Type) {
	case "", "local":
		return NewLocalCache(config.Local), nil
	case "gocache":
		return NewGoCache(config.Local), nil
	case "redis":
		return NewRedisCache(config.Redis)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", config.Type)
	}
}

// NewCacheWithOptions 创建带选项的缓存实例
func NewCacheWithOptions(config Config, options *Options) (Cache, error) {
	if options == nil {
		options = DefaultOptions()
	}

	// 分布式缓存前面挂一层本地缓存
	if options.UseLocalCache && strings.EqualFold(config.Type, "redis") {
		distributed, err := NewRedisCache(config.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis cache: %w", err)
		}
		return NewLayeredCache(NewLocalCache(config.Local), distributed, options), nil
	}

	return NewCache(config)
}

// NewLayeredCache 组合一级与二级缓存
func NewLayeredCache(local, distributed Cache, options *Options) Cache {
	if options == nil {
		options = DefaultOptions()
	}
	return &layeredCache{local: local, distributed: distributed, options: options}
}

// layeredCache 分层缓存实现
type layeredCache struct {
	local       Cache
	distributed Cache
	options     *Options
}

// Get 从本地缓存获取，如果没有则从分布式缓存获取并回填本地缓存
func (lc *layeredCache) Get(ctx context.Context, key string) (interface{}, bool) {
	if value, exists := lc.local.Get(ctx, key); exists {
		return value, true
	}

	if value, exists := lc.distributed.Get(ctx, key); exists {
		lc.local.Set(ctx, key, value, lc.options.LocalExpiration)
		return value, true
	}

	return nil, false
}

// Set 同时设置到本地和分布式缓存
func (lc *layeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := lc.distributed.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	return lc.local.Set(ctx, key, value, lc.options.LocalExpiration)
}

// Delete 从两个缓存层删除
func (lc *layeredCache) Delete(ctx context.Context, key string) error {
	if err := lc.local.Delete(ctx, key); err != nil {
		return err
	}
	return lc.distributed.Delete(ctx, key)
}

// DeleteMulti 批量删除
func (lc *layeredCache) DeleteMulti(ctx context.Context, keys ...string) error {
	if err := lc.local.DeleteMulti(ctx, keys...); err != nil {
		return err
	}
	return lc.distributed.DeleteMulti(ctx, keys...)
}

// Exists 检查键是否存在
func (lc *layeredCache) Exists(ctx context.Context, key string) bool {
	return lc.local.Exists(ctx, key) || lc.distributed.Exists(ctx, key)
}

// Clear 清空两个缓存层
func (lc *layeredCache) Clear(ctx context.Context) error {
	if err := lc.local.Clear(ctx); err != nil {
		return err
	}
	return lc.distributed.Clear(ctx)
}

// Close 关闭缓存连接
func (lc *layeredCache) Close() error {
	if err := lc.local.Close(); err != nil {
		return err
	}
	return lc.distributed.Close()
}
