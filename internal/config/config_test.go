package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "pool/pool.status", cfg.SnapshotPath)
	assert.Equal(t, "localhost", cfg.DB.Host)
	assert.Equal(t, 5432, cfg.DB.Port)
	assert.Equal(t, "pool", cfg.DB.Database)
	assert.Equal(t, "disable", cfg.DB.SSLMode)
	assert.Equal(t, 12, cfg.DB.PoolSize)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Zero(t, cfg.TopN)
	assert.Equal(t, 30*time.Second, cfg.TxTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("SNAPSHOT_PATH", "/var/lib/pool/status.json")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/pool?sslmode=require")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "5433")
	t.Setenv("DB_POOL_SIZE", "20")
	t.Setenv("BATCH_SIZE", "5")
	t.Setenv("TOP_N", "10")
	t.Setenv("TX_TIMEOUT", "90s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/pool/status.json", cfg.SnapshotPath)
	assert.Equal(t, "postgres://u:p@db:5432/pool?sslmode=require", cfg.DB.URL)
	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, 5433, cfg.DB.Port)
	assert.Equal(t, 20, cfg.DB.PoolSize)
	assert.Equal(t, 5, cfg.BatchSize)
	assert.Equal(t, 10, cfg.TopN)
	assert.Equal(t, 90*time.Second, cfg.TxTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestFromEnvInvalidValues(t *testing.T) {
	cases := map[string]struct {
		key, value string
	}{
		"bad port":      {"DB_PORT", "not-a-number"},
		"bad batch":     {"BATCH_SIZE", "ten"},
		"bad timeout":   {"TX_TIMEOUT", "soon"},
		"zero batch":    {"BATCH_SIZE", "0"},
		"negative topn": {"TOP_N", "-1"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestFromEnvPoolSmallerThanBatch(t *testing.T) {
	t.Setenv("BATCH_SIZE", "50")
	t.Setenv("DB_POOL_SIZE", "10")
	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_POOL_SIZE")
}
