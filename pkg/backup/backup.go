package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"ResQLink/pkg/logger"
	"ResQLink/pkg/metrics"
	"ResQLink/pkg/scheduler"
	"ResQLink/pkg/storage"
	"ResQLink/pkg/util"

	"go.uber.org/zap"
)

// Config 备份参数
type Config struct {
	Driver   string
	DSN      string
	Dir      string
	Schedule string
	// Keep 保留最近几份备份，0 表示全部保留
	Keep int

	// Remote 非空时备份文件另存一份到对象存储
	Remote storage.Store
}

const (
	backupPrefix = "resqlink_backup_"
	remoteDir    = "backups/"
)

// Scheduler 定时备份
type Scheduler struct {
	cfg     Config
	cron    *scheduler.Cron
	metrics *metrics.Metrics
}

// StartBackupScheduler 启动备份调度器
func StartBackupScheduler(cfg Config, m *metrics.Metrics) (*Scheduler, error) {
	s := &Scheduler{cfg: cfg, cron: scheduler.NewCron(nil), metrics: m}
	_, err := s.cron.Add(cfg.Schedule, scheduler.FuncJob(func(ctx context.Context) {
		path, err := ExecuteBackup(ctx, cfg)
		if err != nil {
			m.RecordBackup("failed")
			logger.Warn("backup failed", zap.Error(err))
			return
		}
		m.RecordBackup("ok")
		fields := []zap.Field{zap.String("path", path)}
		if cfg.Remote != nil {
			fields = append(fields, zap.String("remote", cfg.Remote.PublicURL(RemoteKey(path))))
		}
		logger.Info("backup completed", fields...)
	}))
	if err != nil {
		return nil, fmt.Errorf("invalid BACKUP_SCHEDULE %q: %w", cfg.Schedule, err)
	}
	s.cron.Start()
	if entries := s.cron.Entries(); len(entries) > 0 {
		logger.Info("backup scheduled", zap.String("schedule", cfg.Schedule), zap.Time("next", entries[0].Next))
	}
	return s, nil
}

func (s *Scheduler) Stop() { s.cron.Stop() }

// ExecuteBackup 执行一次备份，返回本地备份文件路径
func ExecuteBackup(ctx context.Context, cfg Config) (string, error) {
	switch cfg.Driver {
	case "", util.DriverSQLite:
	default:
		return "", fmt.Errorf("backup unsupported for DB_DRIVER: %s", cfg.Driver)
	}

	src := util.SQLiteFile(cfg.DSN)
	if src == "" {
		return "", fmt.Errorf("in-memory database cannot be backed up")
	}
	dst := filepath.Join(cfg.Dir, fmt.Sprintf("%s%s.db", backupPrefix, time.Now().Format("20060102_150405")))
	if err := BackupSQLiteDatabase(src, dst); err != nil {
		return "", err
	}
	if cfg.Remote != nil {
		if err := upload(ctx, cfg.Remote, dst); err != nil {
			return dst, fmt.Errorf("upload backup: %w", err)
		}
	}
	if err := prune(ctx, cfg); err != nil {
		logger.Warn("prune old backups failed", zap.Error(err))
	}
	return dst, nil
}

// prune 只保留最新的 Keep 份，本地删除的同时删掉对象存储里的副本
func prune(ctx context.Context, cfg Config) error {
	if cfg.Keep <= 0 {
		return nil
	}
	files, err := filepath.Glob(filepath.Join(cfg.Dir, backupPrefix+"*.db"))
	if err != nil {
		return err
	}
	if len(files) <= cfg.Keep {
		return nil
	}
	// 文件名里的时间戳按字典序即时间顺序
	sort.Strings(files)
	for _, f := range files[:len(files)-cfg.Keep] {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			return err
		}
		if cfg.Remote == nil {
			continue
		}
		key := RemoteKey(f)
		ok, err := cfg.Remote.Exists(ctx, key)
		if err != nil {
			return fmt.Errorf("stat %s: %w", key, err)
		}
		if !ok {
			continue
		}
		if err := cfg.Remote.Delete(ctx, key); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}
	return nil
}

func upload(ctx context.Context, remote storage.Store, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return err
	}
	return remote.Write(ctx, RemoteKey(path), f, st.Size())
}

// RemoteKey 本地备份文件在对象存储中的 key
func RemoteKey(path string) string {
	return remoteDir + filepath.Base(path)
}

// BackupSQLiteDatabase 执行 SQLite 数据库的备份
func BackupSQLiteDatabase(src string, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	sourceFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("error opening source file: %w", err)
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("error creating destination file: %w", err)
	}
	defer destFile.Close()

	if _, err = io.Copy(destFile, sourceFile); err != nil {
		return fmt.Errorf("error copying data: %w", err)
	}
	return destFile.Sync()
}
