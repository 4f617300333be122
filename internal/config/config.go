package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DBConfig defines the PostgreSQL connection settings. URL, when set,
// overrides the discrete fields.
type DBConfig struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	PoolSize int
}

// Config is the main configuration structure. The process is configured
// entirely through environment variables; there are no flags.
type Config struct {
	SnapshotPath string
	DB           DBConfig
	BatchSize    int
	TopN         int
	TxTimeout    time.Duration
	LogLevel     string
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		SnapshotPath: "pool/pool.status",
		DB: DBConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "",
			Database: "pool",
			SSLMode:  "disable",
			PoolSize: 12,
		},
		BatchSize: 10,
		TopN:      0,
		TxTimeout: 30 * time.Second,
		LogLevel:  "info",
	}
}

// FromEnv builds the configuration from the environment on top of the
// defaults. Any unparsable or inconsistent value is an error; nothing else
// should run on a half-read configuration.
func FromEnv() (*Config, error) {
	cfg := Default()

	cfg.SnapshotPath = envStr("SNAPSHOT_PATH", cfg.SnapshotPath)
	cfg.DB.URL = envStr("DATABASE_URL", cfg.DB.URL)
	cfg.DB.Host = envStr("DB_HOST", cfg.DB.Host)
	cfg.DB.User = envStr("DB_USER", cfg.DB.User)
	cfg.DB.Password = envStr("DB_PASSWORD", cfg.DB.Password)
	cfg.DB.Database = envStr("DB_NAME", cfg.DB.Database)
	cfg.DB.SSLMode = envStr("DB_SSLMODE", cfg.DB.SSLMode)
	cfg.LogLevel = envStr("LOG_LEVEL", cfg.LogLevel)

	var err error
	if cfg.DB.Port, err = envInt("DB_PORT", cfg.DB.Port); err != nil {
		return nil, err
	}
	if cfg.DB.PoolSize, err = envInt("DB_POOL_SIZE", cfg.DB.PoolSize); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = envInt("BATCH_SIZE", cfg.BatchSize); err != nil {
		return nil, err
	}
	if cfg.TopN, err = envInt("TOP_N", cfg.TopN); err != nil {
		return nil, err
	}
	if cfg.TxTimeout, err = envDuration("TX_TIMEOUT", cfg.TxTimeout); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.SnapshotPath == "" {
		return fmt.Errorf("SNAPSHOT_PATH must not be empty")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("BATCH_SIZE must be at least 1, got %d", c.BatchSize)
	}
	if c.TopN < 0 {
		return fmt.Errorf("TOP_N must not be negative, got %d", c.TopN)
	}
	if c.TxTimeout <= 0 {
		return fmt.Errorf("TX_TIMEOUT must be positive, got %s", c.TxTimeout)
	}
	// One open transaction per in-flight address; a pool smaller than a
	// batch would deadlock a group on connection acquisition.
	if c.DB.PoolSize < c.BatchSize {
		return fmt.Errorf("DB_POOL_SIZE (%d) must be at least BATCH_SIZE (%d)",
			c.DB.PoolSize, c.BatchSize)
	}
	return nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return d, nil
}
