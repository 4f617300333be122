package storage

import "time"

// Hashrate columns hold the canonical scaled integers as base-10 strings;
// they exceed int64 range at high hashrates and are bound to NUMERIC columns.

// User is a pool participant address. Current-state row, updated in place.
type User struct {
	Address    string `json:"address"`
	Authorised int64  `json:"authorised"`
	IsActive   bool   `json:"isActive"`
}

// UserStats is one historical sample of a user's aggregate metrics.
// Append-only, immutable once written.
type UserStats struct {
	ID          int64     `json:"id"`
	UserAddress string    `json:"userAddress"`
	Hashrate1m  string    `json:"hashrate1m"`
	Hashrate5m  string    `json:"hashrate5m"`
	Hashrate1hr string    `json:"hashrate1hr"`
	Hashrate1d  string    `json:"hashrate1d"`
	Hashrate7d  string    `json:"hashrate7d"`
	Shares      int64     `json:"shares"`
	BestShare   float64   `json:"bestShare"`
	BestEver    float64   `json:"bestEver"`
	WorkerCount int       `json:"workerCount"`
	LastShare   time.Time `json:"lastShare"`
	Timestamp   time.Time `json:"timestamp"`
}

// Worker is a named mining device under a user, keyed by (address, name).
// Current-state row, updated in place.
type Worker struct {
	ID          int64     `json:"id"`
	UserAddress string    `json:"userAddress"`
	Name        string    `json:"name"`
	Hashrate1m  string    `json:"hashrate1m"`
	Hashrate5m  string    `json:"hashrate5m"`
	Hashrate1hr string    `json:"hashrate1hr"`
	Hashrate1d  string    `json:"hashrate1d"`
	Hashrate7d  string    `json:"hashrate7d"`
	Shares      int64     `json:"shares"`
	BestShare   float64   `json:"bestShare"`
	BestEver    float64   `json:"bestEver"`
	LastUpdate  time.Time `json:"lastUpdate"`
}

// WorkerStats is one historical sample of a worker's metrics. Append-only.
type WorkerStats struct {
	ID          int64     `json:"id"`
	WorkerID    int64     `json:"workerId"`
	Hashrate1m  string    `json:"hashrate1m"`
	Hashrate5m  string    `json:"hashrate5m"`
	Hashrate1hr string    `json:"hashrate1hr"`
	Hashrate1d  string    `json:"hashrate1d"`
	Hashrate7d  string    `json:"hashrate7d"`
	Shares      int64     `json:"shares"`
	BestShare   float64   `json:"bestShare"`
	BestEver    float64   `json:"bestEver"`
	LastUpdate  time.Time `json:"lastUpdate"`
	Timestamp   time.Time `json:"timestamp"`
}

// PoolStats is one rollup of pool-wide state at a point in time.
// Written once per invocation, never updated or deleted here.
type PoolStats struct {
	ID          int64     `json:"id"`
	Runtime     int64     `json:"runtime"`
	Users       int64     `json:"users"`
	Workers     int64     `json:"workers"`
	Idle        int64     `json:"idle"`
	Hashrate1m  string    `json:"hashrate1m"`
	Hashrate5m  string    `json:"hashrate5m"`
	Hashrate15m string    `json:"hashrate15m"`
	Hashrate1hr string    `json:"hashrate1hr"`
	Hashrate6hr string    `json:"hashrate6hr"`
	Hashrate1d  string    `json:"hashrate1d"`
	Hashrate7d  string    `json:"hashrate7d"`
	Difficulty  float64   `json:"difficulty"`
	Accepted    int64     `json:"accepted"`
	Rejected    int64     `json:"rejected"`
	BestShare   float64   `json:"bestShare"`
	SPS1m       float64   `json:"sps1m"`
	SPS5m       float64   `json:"sps5m"`
	SPS15m      float64   `json:"sps15m"`
	SPS1h       float64   `json:"sps1h"`
	Timestamp   time.Time `json:"timestamp"`
}
