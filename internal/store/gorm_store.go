package store

import (
	"context"
	"sync"
	"time"

	"ResQLink/internal/models"
	apperrors "ResQLink/pkg/errors"
	"ResQLink/pkg/logger"
	"ResQLink/pkg/metrics"
	"ResQLink/pkg/util"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tableName = "sos_alerts"

// Options 打开记录库所需参数
type Options struct {
	Driver  string
	DSN     string
	Name    string
	Debug   bool
	Metrics *metrics.Metrics
}

type gormStore struct {
	opts  Options
	mu    sync.RWMutex
	db    *gorm.DB
	ready bool
	err   error
}

// New 创建未打开的记录库，调用 Open 之后才可用
func New(opts Options) RecordStore {
	if opts.Name == "" {
		opts.Name = "ResQLinkDB"
	}
	return &gormStore{opts: opts}
}

func (s *gormStore) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready {
		return nil
	}
	if s.err != nil {
		return s.err
	}

	db, err := util.InitDatabase(s.opts.Driver, s.opts.DSN, s.opts.Debug)
	if err != nil {
		s.err = apperrors.WrapCode(err, apperrors.CodeUnderlyingStoreFailure, "Failed to open database")
		logger.Error("open database failed", zap.String("name", s.opts.Name), zap.Error(err))
		return s.err
	}

	if err := migrate(ctx, db, s.opts.Name); err != nil {
		s.err = apperrors.WrapCode(err, apperrors.CodeUnderlyingStoreFailure, "Failed to open database")
		logger.Error("migrate database failed", zap.String("name", s.opts.Name), zap.Error(err))
		if sqlDB, e := db.DB(); e == nil {
			sqlDB.Close()
		}
		return s.err
	}

	s.db = db
	s.ready = true
	logger.Info("record store initialized", zap.String("name", s.opts.Name), zap.Int("version", SchemaVersion))
	return nil
}

// migrate 首次创建或版本升级时建表与索引
func migrate(ctx context.Context, db *gorm.DB, name string) error {
	tx := db.WithContext(ctx)
	if err := tx.AutoMigrate(&models.SchemaMeta{}); err != nil {
		return err
	}

	var meta models.SchemaMeta
	res := tx.Where("name = ?", name).Limit(1).Find(&meta)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 && meta.Version > SchemaVersion {
		return apperrors.Errorf("database %s has version %d, newer than supported %d", name, meta.Version, SchemaVersion)
	}
	if res.RowsAffected > 0 && meta.Version == SchemaVersion && tx.Migrator().HasTable(&models.SOSRecord{}) {
		return nil
	}

	if err := tx.AutoMigrate(&models.SOSRecord{}); err != nil {
		return err
	}
	meta = models.SchemaMeta{Name: name, Version: SchemaVersion}
	if err := tx.Save(&meta).Error; err != nil {
		return err
	}
	logger.Info("record store schema created", zap.String("name", name), zap.String("table", tableName))
	return nil
}

func (s *gormStore) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

func (s *gormStore) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *gormStore) conn(ctx context.Context) (*gorm.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready || s.db == nil {
		return nil, apperrors.ErrStoreNotInitialized
	}
	return s.db.WithContext(ctx), nil
}

func (s *gormStore) Ping(ctx context.Context) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return apperrors.WrapCode(err, apperrors.CodeUnderlyingStoreFailure, "database connection failed")
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return apperrors.WrapCode(err, apperrors.CodeUnderlyingStoreFailure, "database ping failed")
	}
	return nil
}

func (s *gormStore) Insert(ctx context.Context, rec models.SOSRecord) (uint64, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	rec.ID = 0
	if rec.Status == "" {
		rec.Status = models.StatusPending
	}
	if !rec.Status.Valid() {
		return 0, apperrors.WithCodef(apperrors.CodeInvalidArgument, "invalid status %q", rec.Status)
	}
	if !rec.Severity.Valid() {
		return 0, apperrors.WithCodef(apperrors.CodeInvalidArgument, "invalid severity %q", rec.Severity)
	}

	defer s.observe("insert", "write", time.Now())
	if err := db.Create(&rec).Error; err != nil {
		logger.Error("failed to save SOS", zap.Error(err))
		return 0, apperrors.WrapCode(err, apperrors.CodeUnderlyingStoreFailure, "Failed to save SOS")
	}
	logger.Debug("SOS saved", zap.Uint64("id", rec.ID))
	return rec.ID, nil
}

func (s *gormStore) ListAll(ctx context.Context) ([]models.SOSRecord, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer s.observe("list_all", "read", time.Now())

	records := make([]models.SOSRecord, 0)
	if err := db.Order("id asc").Find(&records).Error; err != nil {
		return nil, apperrors.WrapCode(err, apperrors.CodeUnderlyingStoreFailure, "Failed to list SOS records")
	}
	return records, nil
}

func (s *gormStore) ListByStatus(ctx context.Context, status models.Status) ([]models.SOSRecord, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, apperrors.WithCodef(apperrors.CodeInvalidArgument, "invalid status %q", status)
	}
	defer s.observe("list_by_status", "read", time.Now())

	records := make([]models.SOSRecord, 0)
	if err := db.Where("status = ?", status).Order("id asc").Find(&records).Error; err != nil {
		return nil, apperrors.WrapCode(err, apperrors.CodeUnderlyingStoreFailure, "Failed to list SOS records")
	}
	return records, nil
}

func (s *gormStore) UpdateStatus(ctx context.Context, id uint64, status models.Status) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if !status.Valid() {
		return apperrors.WithCodef(apperrors.CodeInvalidArgument, "invalid status %q", status)
	}
	defer s.observe("update_status", "write", time.Now())

	res := db.Model(&models.SOSRecord{}).Where("id = ?", id).UpdateColumn("status", status)
	if res.Error != nil {
		return apperrors.WrapCode(res.Error, apperrors.CodeUnderlyingStoreFailure, "Failed to update SOS status")
	}
	if res.RowsAffected > 0 {
		return nil
	}
	// mysql 在值未变化时也返回 0 行
	exists, err := s.exists(db, id)
	if err != nil {
		return err
	}
	if !exists {
		return apperrors.ErrRecordNotFound
	}
	return nil
}

func (s *gormStore) CompareAndSwapStatus(ctx context.Context, id uint64, expected, next models.Status) (bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return false, err
	}
	if !expected.Valid() || !next.Valid() {
		return false, apperrors.WithCodef(apperrors.CodeInvalidArgument, "invalid status transition %q -> %q", expected, next)
	}
	defer s.observe("cas_status", "write", time.Now())

	res := db.Model(&models.SOSRecord{}).
		Where("id = ? AND status = ?", id, expected).
		UpdateColumn("status", next)
	if res.Error != nil {
		return false, apperrors.WrapCode(res.Error, apperrors.CodeUnderlyingStoreFailure, "Failed to update SOS status")
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	var rec models.SOSRecord
	found := db.Select("id", "status").Where("id = ?", id).Limit(1).Find(&rec)
	if found.Error != nil {
		return false, apperrors.WrapCode(found.Error, apperrors.CodeUnderlyingStoreFailure, "Failed to read SOS record")
	}
	if found.RowsAffected == 0 {
		return false, apperrors.ErrRecordNotFound
	}
	return expected == next && rec.Status == next, nil
}

func (s *gormStore) exists(db *gorm.DB, id uint64) (bool, error) {
	var n int64
	if err := db.Model(&models.SOSRecord{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, apperrors.WrapCode(err, apperrors.CodeUnderlyingStoreFailure, "Failed to read SOS record")
	}
	return n > 0, nil
}

func (s *gormStore) observe(op, kind string, start time.Time) {
	s.opts.Metrics.RecordDBQuery(op, tableName, kind, time.Since(start))
}

// Close 关闭连接，之后的操作返回未初始化错误
func (s *gormStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db := s.db
	s.ready = false
	s.db = nil
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
