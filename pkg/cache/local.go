package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// localCache 基于 LRU 的进程内缓存，过期时间按键记录
type localCache struct {
	config LocalConfig
	items  *lru.Cache[string, cacheItem]
	mu     sync.Mutex
}

// cacheItem 缓存项
type cacheItem struct {
	value      interface{}
	expiration time.Time
}

func (it cacheItem) expired(now time.Time) bool {
	return !it.expiration.IsZero() && now.After(it.expiration)
}

// NewLocalCache 创建本地缓存
func NewLocalCache(config LocalConfig) Cache {
	if config.MaxSize <= 0 {
		config.MaxSize = 1000
	}
	// 仅在 size<=0 时返回错误，上面已兜底
	items, _ := lru.New[string, cacheItem](config.MaxSize)
	return &localCache{config: config, items: items}
}

// Get 获取缓存值，过期项顺带删除
func (lc *localCache) Get(ctx context.Context, key string) (interface{}, bool) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	item, ok := lc.items.Get(key)
	if !ok {
		return nil, false
	}
	if item.expired(time.Now()) {
		lc.items.Remove(key)
		return nil, false
	}
	return item.value, true
}

// Set 设置缓存值
func (lc *localCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if expiration <= 0 {
		expiration = lc.config.DefaultExpiration
	}
	var exp time.Time
	if expiration > 0 {
		exp = time.Now().Add(expiration)
	}

	lc.mu.Lock()
	lc.items.Add(key, cacheItem{value: value, expiration: exp})
	lc.mu.Unlock()
	return nil
}

// Delete 删除缓存
func (lc *localCache) Delete(ctx context.Context, key string) error {
	lc.mu.Lock()
	lc.items.Remove(key)
	lc.mu.Unlock()
	return nil
}

// DeleteMulti 批量删除
func (lc *localCache) DeleteMulti(ctx context.Context, keys ...string) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	for _, key := range keys {
		lc.items.Remove(key)
	}
	return nil
}

// Exists 检查键是否存在
func (lc *localCache) Exists(ctx context.Context, key string) bool {
	_, ok := lc.Get(ctx, key)
	return ok
}

// Clear 清空所有缓存
func (lc *localCache) Clear(ctx context.Context) error {
	lc.mu.Lock()
	lc.items.Purge()
	lc.mu.Unlock()
	return nil
}

// Close 本地缓存不需要关闭连接
func (lc *localCache) Close() error {
	return nil
}
