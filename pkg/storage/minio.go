package storage

import (
	"context"
	"io"
	"strings"

	"ResQLink/pkg/util"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioStore struct {
	Endpoint  string `env:"MINIO_ENDPOINT"`
	AccessKey string `env:"MINIO_ACCESS_KEY"`
	SecretKey string `env:"MINIO_SECRET_KEY"`
	Bucket    string `env:"MINIO_BUCKET"`
	UseSSL    bool   `env:"MINIO_USE_SSL"`
	BaseURL   string `env:"MINIO_PUBLIC_BASE"` // 对外访问域名，可选

	cli *minio.Client
}

// NewMinioStoreFromEnv 未配置 MINIO_ENDPOINT 时返回 nil
func NewMinioStoreFromEnv() (*MinioStore, error) {
	endpoint := util.GetEnv("MINIO_ENDPOINT")
	if endpoint == "" {
		return nil, nil
	}
	return NewMinioStore(MinioStore{
		Endpoint:  endpoint,
		AccessKey: util.GetEnv("MINIO_ACCESS_KEY"),
		SecretKey: util.GetEnv("MINIO_SECRET_KEY"),
		Bucket:    util.GetEnvOr("MINIO_BUCKET", "resqlink-backups"),
		UseSSL:    util.GetBoolEnv("MINIO_USE_SSL"),
		BaseURL:   util.GetEnv("MINIO_PUBLIC_BASE"),
	})
}

// NewMinioStore 创建客户端，不发起网络请求
func NewMinioStore(cfg MinioStore) (*MinioStore, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	cfg.cli = cli
	return &cfg, nil
}

func (m *MinioStore) ensureBucket(ctx context.Context) error {
	exists, err := m.cli.BucketExists(ctx, m.Bucket)
	if err != nil {
		return err
	}
	if !exists {
		return m.cli.MakeBucket(ctx, m.Bucket, minio.MakeBucketOptions{})
	}
	return nil
}

func (m *MinioStore) Write(ctx context.Context, key string, r io.Reader, size int64) error {
	if err := m.ensureBucket(ctx); err != nil {
		return err
	}
	_, err := m.cli.PutObject(ctx, m.Bucket, key, r, size, minio.PutObjectOptions{ContentType: "application/vnd.sqlite3"})
	return err
}

func (m *MinioStore) Delete(ctx context.Context, key string) error {
	return m.cli.RemoveObject(ctx, m.Bucket, key, minio.RemoveObjectOptions{})
}

func (m *MinioStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := m.cli.StatObject(ctx, m.Bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (m *MinioStore) PublicURL(key string) string {
	if m.BaseURL != "" {
		return strings.TrimRight(m.BaseURL, "/") + "/" + key
	}
	// 回退使用 endpoint（直连需要桶的公共读策略）
	scheme := "http://"
	if m.UseSSL {
		scheme = "https://"
	}
	return scheme + m.Endpoint + "/" + m.Bucket + "/" + key
}
