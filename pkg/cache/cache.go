package cache

import (
	"context"
	"time"
)

// Cache 缓存接口
type Cache interface {
	// Get 获取缓存值
	Get(ctx context.Context, key string) (interface{}, bool)

	// Set 设置缓存值，expiration<=0 表示使用默认过期时间
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error

	// Delete 删除缓存
	Delete(ctx context.Context, key string) error

	// DeleteMulti 批量删除
	DeleteMulti(ctx context.Context, keys ...string) error

	// Exists 检查键是否存在
	Exists(ctx context.Context, key string) bool

	// Clear 清空所有缓存
	Clear(ctx context.Context) error

	// Close 关闭缓存连接
	Close() error
}

// Config 缓存配置
type Config struct {
	// 缓存类型: "local" / "gocache" / "redis"
	Type string `json:"type" yaml:"type" env:"CACHE_TYPE" default:"local"`

	Redis RedisConfig `json:"redis" yaml:"redis"`

	Local LocalConfig `json:"local" yaml:"local"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr         string        `json:"addr" yaml:"addr" env:"REDIS_ADDR" default:"localhost:6379"`
	Password     string        `json:"password" yaml:"password" env:"REDIS_PASSWORD"`
	DB           int           `json:"db" yaml:"db" env:"REDIS_DB" default:"0"`
	PoolSize     int           `json:"pool_size" yaml:"pool_size" env:"REDIS_POOL_SIZE" default:"10"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout" env:"REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout" env:"REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" env:"REDIS_WRITE_TIMEOUT" default:"3s"`
}

// LocalConfig 本地缓存配置
type LocalConfig struct {
	// 最大缓存项数
	MaxSize int `json:"max_size" yaml:"max_size" env:"LOCAL_CACHE_MAX_SIZE" default:"1000"`

	// 默认过期时间
	DefaultExpiration time.Duration `json:"default_expiration" yaml:"default_expiration" default:"5m"`

	// 清理间隔（仅 gocache 使用）
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval" default:"10m"`
}

// Options 缓存选项
type Options struct {
	// 是否使用本地缓存作为一级缓存
	UseLocalCache bool

	// 本地缓存过期时间（通常比分布式缓存短）
	LocalExpiration time.Duration
}

// DefaultOptions 默认选项
func DefaultOptions() *Options {
	return &Options{
		UseLocalCache:   true,
		LocalExpiration: 10 * time.Second,
	}
}
