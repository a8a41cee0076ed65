package config

import (
	"log"
	"os"
	"time"

	"ResQLink/pkg/cache"
	"ResQLink/pkg/logger"
	"ResQLink/pkg/util"
)

// config/config.go
type Config struct {
	Addr          string `env:"ADDR"`
	Mode          string `env:"MODE"`
	APIPrefix     string `env:"API_PREFIX"`
	MonitorPrefix string `env:"MONITOR_PREFIX"`
	DBDriver      string `env:"DB_DRIVER"`
	DSN           string `env:"DSN"`
	DBName        string `env:"DB_NAME"`
	Log           logger.LogConfig
	Cache         cache.Config
	CacheTTL      time.Duration `env:"CACHE_TTL"`
	// redis 缓存前面再挂一层本地 LRU
	CacheLayered  bool          `env:"CACHE_LAYERED"`
	Language      string        `env:"LANGUAGE"`
	RateLimit     string        `env:"RATE_LIMIT"`

	SearchEnabled bool   `env:"SEARCH_ENABLED"`
	SearchPath    string `env:"SEARCH_PATH"`

	BackupEnabled  bool   `env:"BACKUP_ENABLED"`
	BackupPath     string `env:"BACKUP_PATH"`
	BackupSchedule string `env:"BACKUP_SCHEDULE"`
	BackupKeep     int    `env:"BACKUP_KEEP"`

	PeerRefresh time.Duration `env:"PEER_REFRESH_SECONDS"`

	// 模拟平台的结果：granted / denied / unavailable / timeout / unsupported
	SimBluetooth string `env:"SIM_BLUETOOTH"`
	SimLocation  string `env:"SIM_LOCATION"`
}

var GlobalConfig *Config

func Load() (*Config, error) {
	// 1. 根据环境加载 .env 文件
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	if err := util.LoadEnv(env); err != nil {
		log.Printf("Failed to load .env file: %v", err)
	}

	// 2. 加载全局配置
	cfg := &Config{
		Addr:          util.GetEnvOr("ADDR", ":8080"),
		Mode:          util.GetEnvOr("MODE", "debug"),
		APIPrefix:     util.GetEnvOr("API_PREFIX", "/api"),
		MonitorPrefix: util.GetEnvOr("MONITOR_PREFIX", "/monitor"),
		DBDriver:      util.GetEnvOr("DB_DRIVER", util.DriverSQLite),
		DSN:           util.GetEnvOr("DSN", "resqlink.db"),
		DBName:        util.GetEnvOr("DB_NAME", "ResQLinkDB"),
		Log: logger.LogConfig{
			Level:      util.GetEnv("LOG_LEVEL"),
			Filename:   util.GetEnv("LOG_FILENAME"),
			MaxSize:    int(util.GetIntEnv("LOG_MAX_SIZE")),
			MaxAge:     int(util.GetIntEnv("LOG_MAX_AGE")),
			MaxBackups: int(util.GetIntEnv("LOG_MAX_BACKUPS")),
		},
		Cache: cache.Config{
			Type: util.GetEnvOr("CACHE_TYPE", "local"),
			Redis: cache.RedisConfig{
				Addr:     util.GetEnvOr("REDIS_ADDR", "localhost:6379"),
				Password: util.GetEnv("REDIS_PASSWORD"),
				DB:       int(util.GetIntEnv("REDIS_DB")),
				PoolSize: int(util.GetIntEnv("REDIS_POOL_SIZE")),
			},
			Local: cache.LocalConfig{
				MaxSize:           intOr(util.GetIntEnv("LOCAL_CACHE_MAX_SIZE"), 1000),
				DefaultExpiration: 5 * time.Minute,
				CleanupInterval:   10 * time.Minute,
			},
		},
		CacheTTL:       secondsOr(util.GetIntEnv("CACHE_TTL"), 30*time.Second),
		CacheLayered:   util.GetBoolEnv("CACHE_LAYERED"),
		Language:       util.GetEnvOr("LANGUAGE", "en"),
		RateLimit:      util.GetEnvOr("RATE_LIMIT", "100-M"),
		SearchEnabled:  util.GetBoolEnv("SEARCH_ENABLED"),
		SearchPath:     util.GetEnv("SEARCH_PATH"),
		BackupEnabled:  util.GetBoolEnv("BACKUP_ENABLED"),
		BackupPath:     util.GetEnvOr("BACKUP_PATH", "backups"),
		BackupSchedule: util.GetEnvOr("BACKUP_SCHEDULE", "@daily"),
		BackupKeep:     int(util.GetIntEnv("BACKUP_KEEP")),
		PeerRefresh:    secondsOr(util.GetIntEnv("PEER_REFRESH_SECONDS"), 5*time.Second),
		SimBluetooth:   util.GetEnvOr("SIM_BLUETOOTH", "granted"),
		SimLocation:    util.GetEnvOr("SIM_LOCATION", "granted"),
	}
	GlobalConfig = cfg
	return cfg, nil
}

func intOr(v int64, def int) int {
	if v <= 0 {
		return def
	}
	return int(v)
}

func secondsOr(v int64, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return time.Duration(v) * time.Second
}
