package storage

import (
	"context"
	"io"
)

// Store 备份文件的异地存储
type Store interface {
	Write(ctx context.Context, key string, r io.Reader, size int64) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
}
