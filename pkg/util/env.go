package util

import (
	"bufio"
	"os"
	"strings"

	"github.com/spf13/cast"
)

// LoadEnv 读取 .env 与 .env.<env>，已存在的环境变量优先
func LoadEnv(env string) error {
	files := []string{".env"}
	if env != "" {
		files = append(files, ".env."+env)
	}
	var firstErr error
	for _, name := range files {
		if err := loadEnvFile(name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func loadEnvFile(name string) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.Trim(strings.TrimSpace(val), `"'`)
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		os.Setenv(key, val)
	}
	return sc.Err()
}

func GetEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// GetEnvOr 取环境变量，缺省时返回 def
func GetEnvOr(key, def string) string {
	if v := GetEnv(key); v != "" {
		return v
	}
	return def
}

func GetIntEnv(key string) int64 {
	return cast.ToInt64(GetEnv(key))
}

func GetBoolEnv(key string) bool {
	return cast.ToBool(GetEnv(key))
}
