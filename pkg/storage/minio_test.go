package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMinioStoreFromEnvDisabled(t *testing.T) {
	t.Setenv("MINIO_ENDPOINT", "")
	s, err := NewMinioStoreFromEnv()
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestMinioPublicURL(t *testing.T) {
	t.Setenv("MINIO_ENDPOINT", "minio.local:9000")
	t.Setenv("MINIO_BUCKET", "")
	s, err := NewMinioStoreFromEnv()
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "http://minio.local:9000/resqlink-backups/backups/a.db", s.PublicURL("backups/a.db"))

	s, err = NewMinioStore(MinioStore{Endpoint: "minio.local:9000", Bucket: "b", UseSSL: true, BaseURL: "https://cdn.example.org/"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.org/x.db", s.PublicURL("x.db"))
	assert.Equal(t, "https://minio.local:9000/b/y.db", (&MinioStore{Endpoint: "minio.local:9000", Bucket: "b", UseSSL: true}).PublicURL("y.db"))
}

var _ Store = (*MinioStore)(nil)
