package util

import (
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const DriverSQLite = "sqlite"

func createDatabaseInstance(cfg *gorm.Config, driver, dsn string) (*gorm.DB, error) {
	switch driver {
	case "mysql":
		return gorm.Open(mysql.Open(dsn), cfg)
	case "pg":
		return gorm.Open(postgres.Open(dsn), cfg)
	case "", DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER: %s", driver)
	}
	if dsn == "" {
		dsn = "file::memory:"
	}
	return gorm.Open(sqlite.Open(dsn), cfg)
}

// InitDatabase 打开数据库连接；sqlite 只保留一条连接，所有读写共用
func InitDatabase(driver, dsn string, debug bool) (*gorm.DB, error) {
	level := gormlogger.Warn
	if debug {
		level = gormlogger.Info
	}
	cfg := &gorm.Config{
		Logger:  gormlogger.Default.LogMode(level),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
	db, err := createDatabaseInstance(cfg, strings.ToLower(driver), dsn)
	if err != nil {
		return nil, err
	}
	if driver == "" || strings.EqualFold(driver, DriverSQLite) {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// SQLiteFile 从 DSN 中取出数据库文件路径，内存库返回空串
func SQLiteFile(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || strings.HasPrefix(path, ":memory:") {
		return ""
	}
	return path
}
