package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.CacheBackend)
	assert.Equal(t, "file", cfg.PartialBackend)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 10, cfg.BatchConcurrency)
	assert.Equal(t, 30*time.Minute, cfg.RefreshInterval)
	assert.Equal(t, 2.0, cfg.SSTMaxDistance)
	assert.Equal(t, time.Hour, cfg.SSTCacheTTL)
	assert.Equal(t, 3, cfg.CommitAttempts)
	assert.Equal(t, "8080", cfg.Port)
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CACHE_BACKEND", "sqlite")
	t.Setenv("CACHE_SQLITE_DSN", "file:cache.db")
	t.Setenv("PARTIAL_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("BATCH_SIZE", "51")
	t.Setenv("ITEM_TIMEOUT", "3s")
	t.Setenv("SST_MAX_DISTANCE", "1.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.CacheBackend)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, 51, cfg.BatchSize)
	assert.Equal(t, 3*time.Second, cfg.ItemTimeout)
	assert.Equal(t, 1.5, cfg.SSTMaxDistance)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown backend":    {"CACHE_BACKEND": "s3"},
		"sqlite without dsn": {"CACHE_BACKEND": "sqlite"},
		"gcs without bucket": {"CACHE_BACKEND": "gcs"},
		"zero batch size":    {"BATCH_SIZE": "0"},
		"bad duration":       {"ITEM_TIMEOUT": "soon"},
		"bad float":          {"SST_MAX_DISTANCE": "far"},
		"short interval":     {"REFRESH_INTERVAL": "10s"},
		"bad log level":      {"LOG_LEVEL": "TRACE"},
	}

	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
