package logger

import (
	"os"
	"strings"
	"sync"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig 日志配置
type LogConfig struct {
	Level      string `env:"LOG_LEVEL"`
	Filename   string `env:"LOG_FILENAME"`
	MaxSize    int    `env:"LOG_MAX_SIZE"`
	MaxAge     int    `env:"LOG_MAX_AGE"`
	MaxBackups int    `env:"LOG_MAX_BACKUPS"`
}

var (
	mu sync.RWMutex
	lg = zap.NewNop()
)

// Init 初始化全局日志，文件名为空时只输出到标准输出
func Init(cfg LogConfig, mode string) error {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
			return err
		}
	}

	var encCfg zapcore.EncoderConfig
	if mode == "release" {
		encCfg = zap.NewProductionEncoderConfig()
	} else {
		encCfg = zap.NewDevelopmentEncoderConfig()
	}
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stdout), level),
	}
	if cfg.Filename != "" {
		w := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    orDefault(cfg.MaxSize, 100),
			MaxAge:     orDefault(cfg.MaxAge, 7),
			MaxBackups: orDefault(cfg.MaxBackups, 3),
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), w, level))
	}

	Set(zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1)))
	return nil
}

// Set 替换全局日志实例，测试里常用 zaptest/observer
func Set(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	lg = l
	mu.Unlock()
}

// L 返回当前日志实例
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return lg
}

func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { L().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { L().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }

// Sync 刷新缓冲
func Sync() error { return L().Sync() }

func orDefault(v, d int) int {
	if v <= 0 {
		return d
	}
	return v
}
