package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrogson/walle/pkg/keystore"
	"github.com/scrogson/walle/pkg/log"
	"github.com/scrogson/walle/pkg/store"
)

// emptyConfigDir points config loading at a directory without a .env file.
func emptyConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(configDirPathEnv, dir)
	return dir
}

func TestLoadConfig_Defaults(t *testing.T) {
	emptyConfigDir(t)

	cfg, err := LoadConfig(log.NewNoopLogger())
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.ListenAddr)
	assert.Equal(t, ":4242", cfg.MetricsAddr)
	assert.False(t, cfg.AllowKeyExport)
	assert.Equal(t, int64(2), cfg.KDFConcurrency)
	assert.Equal(t, 10*time.Second, cfg.KDFQueueTimeout)
	assert.Equal(t, store.DriverSqlite, cfg.Database.Driver)
	assert.Equal(t, keystore.Params{N: 8192, R: 8, P: 1}, cfg.KeystoreParams())
}

func TestLoadConfig_Environment(t *testing.T) {
	emptyConfigDir(t)
	t.Setenv("WALLE_LISTEN_ADDR", "127.0.0.1:9000")
	t.Setenv("WALLE_ALLOW_KEY_EXPORT", "true")
	t.Setenv("WALLE_KDF_CONCURRENCY", "8")
	t.Setenv("WALLE_KDF_QUEUE_TIMEOUT", "250ms")
	t.Setenv("WALLE_SCRYPT_N", "262144")
	t.Setenv("WALLE_DATABASE_DRIVER", "postgres")

	cfg, err := LoadConfig(log.NewNoopLogger())
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr)
	assert.True(t, cfg.AllowKeyExport)
	assert.Equal(t, int64(8), cfg.KDFConcurrency)
	assert.Equal(t, 250*time.Millisecond, cfg.KDFQueueTimeout)
	assert.Equal(t, 262144, cfg.ScryptN)
	assert.Equal(t, store.DriverPostgres, cfg.Database.Driver)
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := emptyConfigDir(t)
	t.Setenv("WALLE_METRICS_ADDR", ":5000")

	dotEnv := "WALLE_LISTEN_ADDR=:7000\nWALLE_METRICS_ADDR=:6000\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(dotEnv), 0o600))
	t.Cleanup(func() { os.Unsetenv("WALLE_LISTEN_ADDR") })

	cfg, err := LoadConfig(log.NewNoopLogger())
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.ListenAddr)
	// The process environment wins over .env.
	assert.Equal(t, ":5000", cfg.MetricsAddr)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tcs := []struct {
		name  string
		key   string
		value string
	}{
		{name: "scrypt N not a power of two", key: "WALLE_SCRYPT_N", value: "3000"},
		{name: "scrypt N too small", key: "WALLE_SCRYPT_N", value: "1"},
		{name: "zero KDF concurrency", key: "WALLE_KDF_CONCURRENCY", value: "0"},
		{name: "unknown database driver", key: "WALLE_DATABASE_DRIVER", value: "mysql"},
		{name: "unparsable duration", key: "WALLE_KDF_QUEUE_TIMEOUT", value: "soon"},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			emptyConfigDir(t)
			t.Setenv(tc.key, tc.value)

			_, err := LoadConfig(log.NewNoopLogger())
			require.Error(t, err)
		})
	}
}
