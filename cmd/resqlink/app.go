package main

import (
	"context"
	"fmt"
	"time"

	"ResQLink/internal/controller"
	"ResQLink/internal/gateway"
	handlers "ResQLink/internal/handler"
	"ResQLink/internal/listeners"
	"ResQLink/internal/store"
	"ResQLink/pkg/backup"
	"ResQLink/pkg/cache"
	"ResQLink/pkg/config"
	"ResQLink/pkg/i18n"
	"ResQLink/pkg/logger"
	"ResQLink/pkg/metrics"
	"ResQLink/pkg/middleware"
	"ResQLink/pkg/search"
	"ResQLink/pkg/sse"
	"ResQLink/pkg/storage"
	"ResQLink/pkg/util"
	"ResQLink/pkg/websocket"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"go.uber.org/zap"
)

const cacheLocalTTL = 10 * time.Second

// app 进程内所有组件
type app struct {
	cfg     *config.Config
	metrics *metrics.Metrics
	cache   cache.Cache
	store   store.RecordStore
	search  search.Engine
	hub     *sse.Hub
	wsHub   *websocket.Hub
	ctrl    *controller.Controller
	i18n    *i18n.I18nSupport
	limiter *middleware.RateLimiter
	redis   *redis.Client
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Log, cfg.Mode); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}

// openStore 打开记录库，按配置套一层缓存
func openStore(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (store.RecordStore, cache.Cache, error) {
	inner := store.New(store.Options{
		Driver:  cfg.DBDriver,
		DSN:     cfg.DSN,
		Name:    cfg.DBName,
		Debug:   cfg.Mode == gin.DebugMode,
		Metrics: m,
	})
	if err := inner.Open(ctx); err != nil {
		return nil, nil, err
	}

	c, err := cache.NewCacheWithOptions(cfg.Cache, &cache.Options{
		UseLocalCache:   cfg.CacheLayered,
		LocalExpiration: cacheLocalTTL,
	})
	if err != nil {
		logger.Warn("cache disabled", zap.String("type", cfg.Cache.Type), zap.Error(err))
		return inner, nil, nil
	}
	return store.NewCached(inner, c, cfg.Cache.Type, cfg.CacheTTL, m), c, nil
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.NewMetrics()}

	var err error
	a.store, a.cache, err = openStore(ctx, cfg, a.metrics)
	if err != nil {
		return nil, err
	}

	if cfg.SearchEnabled {
		a.search, err = search.New(search.Config{IndexPath: cfg.SearchPath}, search.BuildIndexMapping(""))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open search index: %w", err)
		}
	}

	a.i18n, err = i18n.NewI18nSupport(cfg.Language)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.hub = sse.NewHub(0)
	a.hub.OnClientsChanged = a.metrics.SetSSEClients

	a.wsHub = websocket.NewHub(websocket.LoadConfigFromEnv())
	a.wsHub.OnConnectionsChanged = a.metrics.SetWSClients

	sig := util.Sig()
	listeners.InitRecordListeners(sig, a.search, a.hub, a.wsHub)

	bt, loc := gateway.NewSimulatedPlatform(cfg.SimBluetooth, cfg.SimLocation)
	a.ctrl = controller.New(controller.Options{
		Store:       a.store,
		Bluetooth:   gateway.NewBluetoothGateway(bt, sig, a.metrics),
		Location:    gateway.NewLocationGateway(loc, sig, a.metrics),
		Search:      a.search,
		Signals:     sig,
		Metrics:     a.metrics,
		PeerRefresh: cfg.PeerRefresh,
	})

	a.limiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:       cfg.RateLimit,
		Identifier: "ip",
		SkipPaths:  []string{cfg.APIPrefix + "/events", cfg.APIPrefix + "/ws", cfg.MonitorPrefix},
		AddHeaders: true,
	}, a.limiterStore()).WithObserver(middleware.NewPrometheusObserver(a.metrics.Registry()))

	return a, nil
}

// limiterStore redis 缓存时计数放在 redis 上，否则用内存
func (a *app) limiterStore() limiter.Store {
	if a.cfg.Cache.Type != "redis" {
		return nil
	}
	a.redis = redis.NewClient(&redis.Options{
		Addr:     a.cfg.Cache.Redis.Addr,
		Password: a.cfg.Cache.Redis.Password,
		DB:       a.cfg.Cache.Redis.DB,
	})
	st, err := middleware.NewRedisStore(a.redis, "")
	if err != nil {
		logger.Warn("redis rate limit store unavailable, using memory", zap.Error(err))
		return nil
	}
	return st
}

func (a *app) engine() *gin.Engine {
	gin.SetMode(a.cfg.Mode)
	r := gin.New()
	r.Use(gin.Recovery())
	handlers.NewHandlers(handlers.Options{
		APIPrefix:     a.cfg.APIPrefix,
		MonitorPrefix: a.cfg.MonitorPrefix,
		Controller:    a.ctrl,
		Store:         a.store,
		I18n:          a.i18n,
		Hub:           a.hub,
		WSHub:         a.wsHub,
		Metrics:       a.metrics,
		Limiter:       a.limiter,
	}).Register(r)
	return r
}

// backupConfig 配置了 MINIO_ENDPOINT 时备份同时上传到对象存储
func backupConfig(cfg *config.Config) (backup.Config, error) {
	bc := backup.Config{
		Driver:   cfg.DBDriver,
		DSN:      cfg.DSN,
		Dir:      cfg.BackupPath,
		Schedule: cfg.BackupSchedule,
		Keep:     cfg.BackupKeep,
	}
	remote, err := storage.NewMinioStoreFromEnv()
	if err != nil {
		return bc, fmt.Errorf("init backup storage: %w", err)
	}
	if remote != nil {
		bc.Remote = remote
	}
	return bc, nil
}

func (a *app) Close() {
	if a.ctrl != nil {
		a.ctrl.Stop()
	}
	if a.hub != nil {
		a.hub.Close()
	}
	if a.wsHub != nil {
		a.wsHub.Close()
	}
	if a.search != nil {
		if err := a.search.Close(); err != nil {
			logger.Warn("close search index", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warn("close store", zap.Error(err))
		}
	}
	if a.cache != nil {
		a.cache.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
}
