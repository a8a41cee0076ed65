package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisCache Redis缓存实现，值以 JSON 存储
type redisCache struct {
	client *redis.Client
	config RedisConfig
}

// NewRedisCache 创建Redis缓存
func NewRedisCache(config RedisConfig) (Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newRedisCacheWithClient(client, config), nil
}

func newRedisCacheWithClient(client *redis.Client, config RedisConfig) Cache {
	return &redisCache{client: client, config: config}
}

// Get 获取缓存值；字符串值原样返回
func (rc *redisCache) Get(ctx context.Context, key string) (interface{}, bool) {
	raw, err := rc.client.Get(ctx, key).Result()
	if err != nil {
		// redis.Nil 与网络错误都视为未命中
		return nil, false
	}

	var value interface{}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return raw, true
	}
	return value, true
}

// Set 设置缓存值
func (rc *redisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	if expiration < 0 {
		expiration = 0
	}
	return rc.client.Set(ctx, key, data, expiration).Err()
}

// Delete 删除缓存
func (rc *redisCache) Delete(ctx context.Context, key string) error {
	return rc.client.Del(ctx, key).Err()
}

// DeleteMulti 批量删除
func (rc *redisCache) DeleteMulti(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return rc.client.Del(ctx, keys...).Err()
}

// Exists 检查键是否存在
func (rc *redisCache) Exists(ctx context.Context, key string) bool {
	n, err := rc.client.Exists(ctx, key).Result()
	return err == nil && n > 0
}

// Clear 清空当前 DB
func (rc *redisCache) Clear(ctx context.Context) error {
	return rc.client.FlushDB(ctx).Err()
}

// Close 关闭缓存连接
func (rc *redisCache) Close() error {
	if err := rc.client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}
