package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Config holds PostgreSQL connection settings. URL, when set, overrides the
// discrete fields.
type Config struct {
	URL       string
	Host      string
	Port      int
	User      string
	Password  string
	Database  string
	SSLMode   string
	PoolSize  int32
	TxTimeout time.Duration
}

// ConnString builds the pgx connection string from the config.
func (c Config) ConnString() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// PostgresStore provides PostgreSQL-backed storage for pool data. The pool
// is the only shared resource between concurrent units of work; each unit
// holds one connection for the lifetime of its transaction.
type PostgresStore struct {
	pool      *pgxpool.Pool
	txTimeout time.Duration
	log       *zap.Logger
}

// UnitTx is the write surface available inside one transaction. Worker
// upserts return the surrogate id so the stats row inserted in the same
// transaction always references a worker written by that transaction.
type UnitTx interface {
	UpsertUser(ctx context.Context, u *User) error
	InsertUserStats(ctx context.Context, row *UserStats) error
	UpsertWorker(ctx context.Context, w *Worker) (int64, error)
	InsertWorkerStats(ctx context.Context, row *WorkerStats) error
}

// New connects to PostgreSQL, verifies the connection and bootstraps the
// schema.
func New(ctx context.Context, cfg Config, log *zap.Logger) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if cfg.PoolSize > 0 {
		poolCfg.MaxConns = cfg.PoolSize
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	txTimeout := cfg.TxTimeout
	if txTimeout <= 0 {
		txTimeout = 30 * time.Second
	}

	s := &PostgresStore{pool: pool, txTimeout: txTimeout, log: log}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Debug("storage ready",
		zap.Int32("pool_size", poolCfg.MaxConns),
		zap.Duration("tx_timeout", txTimeout))
	return s, nil
}

// migrate creates the necessary tables and indexes
func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		address TEXT PRIMARY KEY,
		authorised BIGINT NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS user_stats (
		id BIGSERIAL PRIMARY KEY,
		user_address TEXT NOT NULL REFERENCES users(address),
		hashrate_1m NUMERIC(40,0) NOT NULL DEFAULT 0,
		hashrate_5m NUMERIC(40,0) NOT NULL DEFAULT 0,
		hashrate_1hr NUMERIC(40,0) NOT NULL DEFAULT 0,
		hashrate_1d NUMERIC(40,0) NOT NULL DEFAULT 0,
		hashrate_7d NUMERIC(40,0) NOT NULL DEFAULT 0,
		shares BIGINT NOT NULL DEFAULT 0,
		best_share DOUBLE PRECISION NOT NULL DEFAULT 0,
		best_ever DOUBLE PRECISION NOT NULL DEFAULT 0,
		worker_count INTEGER NOT NULL DEFAULT 0,
		last_share TIMESTAMPTZ,
		timestamp TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_user_stats_address_timestamp ON user_stats(user_address, timestamp);

	CREATE TABLE IF NOT EXISTS workers (
		id BIGSERIAL PRIMARY KEY,
		user_address TEXT NOT NULL REFERENCES users(address),
		name TEXT NOT NULL,
		hashrate_1m NUMERIC(40,0) NOT NULL DEFAULT 0,
		hashrate_5m NUMERIC(40,0) NOT NULL DEFAULT 0,
		hashrate_1hr NUMERIC(40,0) NOT NULL DEFAULT 0,
		hashrate_1d NUMERIC(40,0) NOT NULL DEFAULT 0,
		hashrate_7d NUMERIC(40,0) NOT NULL DEFAULT 0,
		shares BIGINT NOT NULL DEFAULT 0,
		best_share DOUBLE PRECISION NOT NULL DEFAULT 0,
		best_ever DOUBLE PRECISION NOT NULL DEFAULT 0,
		last_update TIMESTAMPTZ,
		UNIQUE (user_address, name)
	);

	CREATE TABLE IF NOT EXISTS worker_stats (
		id BIGSERIAL PRIMARY KEY,
		worker_id BIGINT NOT NULL REFERENCES workers(id),
		hashrate_1m NUMERIC(40,0) NOT NULL DEFAULT 0,
		hashrate_5m NUMERIC(40,0) NOT NULL DEFAULT 0,
		hashrate_1hr NUMERIC(40,0) NOT NULL DEFAULT 0,
		hashrate_1d NUMERIC(40,0) NOT NULL DEFAULT 0,
		hashrate_7d NUMERIC(40,0) NOT NULL DEFAULT 0,
		shares BIGINT NOT NULL DEFAULT 0,
		best_share DOUBLE PRECISION NOT NULL DEFAULT 0,
		best_ever DOUBLE PRECISION NOT NULL DEFAULT 0,
		last_update TIMESTAMPTZ,
		timestamp TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_worker_stats_worker_timestamp ON worker_stats(worker_id, timestamp);

	CREATE TABLE IF NOT EXISTS pool_stats (
		id BIGSERIAL PRIMARY KEY,
		runtime BIGINT NOT NULL DEFAULT 0,
		users INTEGER NOT NULL DEFAULT 0,
		workers INTEGER NOT NULL DEFAULT 0,
		idle INTEGER NOT NULL DEFAULT 0,
		hashrate_1m NUMERIC(40,0) NOT NULL DEFAULT 0,
		hashrate_5m NUMERIC(40,0) NOT NULL DEFAULT 0,
		hashrate_15m NUMERIC(40,0) NOT NULL DEFAULT 0,
		hashrate_1hr NUMERIC(40,0) NOT NULL DEFAULT 0,
		hashrate_6hr NUMERIC(40,0) NOT NULL DEFAULT 0,
		hashrate_1d NUMERIC(40,0) NOT NULL DEFAULT 0,
		hashrate_7d NUMERIC(40,0) NOT NULL DEFAULT 0,
		difficulty DOUBLE PRECISION NOT NULL DEFAULT 0,
		accepted BIGINT NOT NULL DEFAULT 0,
		rejected BIGINT NOT NULL DEFAULT 0,
		best_share DOUBLE PRECISION NOT NULL DEFAULT 0,
		sps_1m DOUBLE PRECISION NOT NULL DEFAULT 0,
		sps_5m DOUBLE PRECISION NOT NULL DEFAULT 0,
		sps_15m DOUBLE PRECISION NOT NULL DEFAULT 0,
		sps_1h DOUBLE PRECISION NOT NULL DEFAULT 0,
		timestamp TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pool_stats_timestamp ON pool_stats(timestamp);
	`

	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the connection pool
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// InTx runs fn inside one transaction with the configured deadline. A nil
// return commits; any error rolls everything back and is returned as-is.
func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context, tx UnitTx) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// InsertPoolStats inserts one pool-wide rollup row. It runs outside the
// per-address transactions; pool history does not depend on user outcomes.
func (s *PostgresStore) InsertPoolStats(ctx context.Context, row *PoolStats) error {
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	query := `
	INSERT INTO pool_stats (
		runtime, users, workers, idle,
		hashrate_1m, hashrate_5m, hashrate_15m, hashrate_1hr, hashrate_6hr, hashrate_1d, hashrate_7d,
		difficulty, accepted, rejected, best_share,
		sps_1m, sps_5m, sps_15m, sps_1h,
		timestamp
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	RETURNING id
	`

	return s.pool.QueryRow(ctx, query,
		row.Runtime, row.Users, row.Workers, row.Idle,
		row.Hashrate1m, row.Hashrate5m, row.Hashrate15m, row.Hashrate1hr, row.Hashrate6hr, row.Hashrate1d, row.Hashrate7d,
		row.Difficulty, row.Accepted, row.Rejected, row.BestShare,
		row.SPS1m, row.SPS5m, row.SPS15m, row.SPS1h,
		row.Timestamp,
	).Scan(&row.ID)
}

// pgTx wraps a pgx transaction with the unit-of-work write primitives.
type pgTx struct {
	tx pgx.Tx
}

// UpsertUser inserts or updates a user record by address. is_active only
// ever transitions to TRUE here; clearing it belongs to the retention job.
func (t *pgTx) UpsertUser(ctx context.Context, u *User) error {
	query := `
	INSERT INTO users (address, authorised, is_active)
	VALUES ($1, $2, TRUE)
	ON CONFLICT (address) DO UPDATE SET
		authorised = EXCLUDED.authorised,
		is_active = TRUE
	`

	_, err := t.tx.Exec(ctx, query, u.Address, u.Authorised)
	return err
}

// InsertUserStats inserts a new user history sample
func (t *pgTx) InsertUserStats(ctx context.Context, row *UserStats) error {
	query := `
	INSERT INTO user_stats (
		user_address,
		hashrate_1m, hashrate_5m, hashrate_1hr, hashrate_1d, hashrate_7d,
		shares, best_share, best_ever, worker_count, last_share, timestamp
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	RETURNING id
	`

	return t.tx.QueryRow(ctx, query,
		row.UserAddress,
		row.Hashrate1m, row.Hashrate5m, row.Hashrate1hr, row.Hashrate1d, row.Hashrate7d,
		row.Shares, row.BestShare, row.BestEver, row.WorkerCount, nullTime(row.LastShare), row.Timestamp,
	).Scan(&row.ID)
}

// UpsertWorker inserts or updates a worker by (address, name) in a single
// atomic statement and returns the surrogate id. No separate existence
// check; a find-then-create pair would reopen a read-modify-write race.
func (t *pgTx) UpsertWorker(ctx context.Context, w *Worker) (int64, error) {
	query := `
	INSERT INTO workers (
		user_address, name,
		hashrate_1m, hashrate_5m, hashrate_1hr, hashrate_1d, hashrate_7d,
		shares, best_share, best_ever, last_update
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (user_address, name) DO UPDATE SET
		hashrate_1m = EXCLUDED.hashrate_1m,
		hashrate_5m = EXCLUDED.hashrate_5m,
		hashrate_1hr = EXCLUDED.hashrate_1hr,
		hashrate_1d = EXCLUDED.hashrate_1d,
		hashrate_7d = EXCLUDED.hashrate_7d,
		shares = EXCLUDED.shares,
		best_share = EXCLUDED.best_share,
		best_ever = EXCLUDED.best_ever,
		last_update = EXCLUDED.last_update
	RETURNING id
	`

	err := t.tx.QueryRow(ctx, query,
		w.UserAddress, w.Name,
		w.Hashrate1m, w.Hashrate5m, w.Hashrate1hr, w.Hashrate1d, w.Hashrate7d,
		w.Shares, w.BestShare, w.BestEver, nullTime(w.LastUpdate),
	).Scan(&w.ID)
	if err != nil {
		return 0, err
	}
	return w.ID, nil
}

// InsertWorkerStats inserts a new worker history sample
func (t *pgTx) InsertWorkerStats(ctx context.Context, row *WorkerStats) error {
	query := `
	INSERT INTO worker_stats (
		worker_id,
		hashrate_1m, hashrate_5m, hashrate_1hr, hashrate_1d, hashrate_7d,
		shares, best_share, best_ever, last_update, timestamp
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	RETURNING id
	`

	return t.tx.QueryRow(ctx, query,
		row.WorkerID,
		row.Hashrate1m, row.Hashrate5m, row.Hashrate1hr, row.Hashrate1d, row.Hashrate7d,
		row.Shares, row.BestShare, row.BestEver, nullTime(row.LastUpdate), row.Timestamp,
	).Scan(&row.ID)
}

// nullTime maps the zero time to NULL; the pool reports zero for workers
// that have never submitted a share.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
