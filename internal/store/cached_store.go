package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"ResQLink/internal/models"
	"ResQLink/pkg/cache"
	apperrors "ResQLink/pkg/errors"
	"ResQLink/pkg/logger"
	"ResQLink/pkg/metrics"

	"go.uber.org/zap"
)

const (
	keyListAll      = "sos:list:all"
	keyStatusPrefix = "sos:list:status:"
)

// cachedStore 缓存列表查询结果，写入后整体失效
type cachedStore struct {
	RecordStore
	cache     cache.Cache
	cacheType string
	ttl       time.Duration
	metrics   *metrics.Metrics

	// gen 每次失效加一；读到旧代的列表不回填缓存
	mu  sync.Mutex
	gen uint64
}

// NewCached 用缓存包装记录库。列表以 JSON 字符串存放，redis 与本地缓存通用
func NewCached(inner RecordStore, c cache.Cache, cacheType string, ttl time.Duration, m *metrics.Metrics) RecordStore {
	if c == nil {
		return inner
	}
	return &cachedStore{RecordStore: inner, cache: c, cacheType: cacheType, ttl: ttl, metrics: m}
}

func (s *cachedStore) ListAll(ctx context.Context) ([]models.SOSRecord, error) {
	return s.list(ctx, keyListAll, func() ([]models.SOSRecord, error) {
		return s.RecordStore.ListAll(ctx)
	})
}

func (s *cachedStore) ListByStatus(ctx context.Context, status models.Status) ([]models.SOSRecord, error) {
	if !status.Valid() {
		return s.RecordStore.ListByStatus(ctx, status)
	}
	return s.list(ctx, keyStatusPrefix+string(status), func() ([]models.SOSRecord, error) {
		return s.RecordStore.ListByStatus(ctx, status)
	})
}

func (s *cachedStore) list(ctx context.Context, key string, load func() ([]models.SOSRecord, error)) ([]models.SOSRecord, error) {
	if !s.Ready() {
		return nil, apperrors.ErrStoreNotInitialized
	}

	if v, ok := s.cache.Get(ctx, key); ok {
		if raw, ok := v.(string); ok {
			var records []models.SOSRecord
			if err := json.Unmarshal([]byte(raw), &records); err == nil {
				s.metrics.RecordCacheHit(s.cacheType, "list")
				return records, nil
			}
		}
	}
	s.metrics.RecordCacheMiss(s.cacheType, "list")

	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	records, err := load()
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return records, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return records, nil
	}
	if err := s.cache.Set(ctx, key, string(raw), s.ttl); err != nil {
		logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return records, nil
}

func (s *cachedStore) Insert(ctx context.Context, rec models.SOSRecord) (uint64, error) {
	id, err := s.RecordStore.Insert(ctx, rec)
	if err == nil {
		s.invalidate(ctx)
	}
	return id, err
}

func (s *cachedStore) UpdateStatus(ctx context.Context, id uint64, status models.Status) error {
	err := s.RecordStore.UpdateStatus(ctx, id, status)
	if err == nil {
		s.invalidate(ctx)
	}
	return err
}

func (s *cachedStore) CompareAndSwapStatus(ctx context.Context, id uint64, expected, next models.Status) (bool, error) {
	ok, err := s.RecordStore.CompareAndSwapStatus(ctx, id, expected, next)
	if ok {
		s.invalidate(ctx)
	}
	return ok, err
}

func (s *cachedStore) invalidate(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++

	keys := []string{
		keyListAll,
		keyStatusPrefix + string(models.StatusPending),
		keyStatusPrefix + string(models.StatusSent),
		keyStatusPrefix + string(models.StatusSynced),
	}
	if err := s.cache.DeleteMulti(ctx, keys...); err != nil {
		logger.Warn("cache invalidate failed", zap.Error(err))
	}
}
