package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

var (
	// ErrUnavailable means the snapshot file could not be read at all.
	ErrUnavailable = errors.New("snapshot unavailable")
	// ErrMalformed means the file was read but is not a valid snapshot document.
	ErrMalformed = errors.New("snapshot malformed")
)

// Rates holds the pool-reported hashrate averages in hashes per second,
// one per reporting window. All fields are optional in the document.
type Rates struct {
	Hashrate1m  float64 `json:"hashrate_1m"`
	Hashrate5m  float64 `json:"hashrate_5m"`
	Hashrate15m float64 `json:"hashrate_15m"`
	Hashrate1hr float64 `json:"hashrate_1hr"`
	Hashrate6hr float64 `json:"hashrate_6hr"`
	Hashrate1d  float64 `json:"hashrate_1d"`
	Hashrate7d  float64 `json:"hashrate_7d"`
}

// ShareRates holds the pool-wide share submission rates.
type ShareRates struct {
	SPS1m  float64 `json:"shares_per_second_1m"`
	SPS5m  float64 `json:"shares_per_second_5m"`
	SPS15m float64 `json:"shares_per_second_15m"`
	SPS1h  float64 `json:"shares_per_second_1h"`
}

// Worker is one named mining device under a user.
type Worker struct {
	Name      string  `json:"-"`
	Shares    int64   `json:"shares"`
	BestShare float64 `json:"bestshare"`
	BestEver  float64 `json:"bestever"`
	LastShare int64   `json:"lastshare"`
	Rates     *Rates  `json:"computed_hash_rate"`
}

// User is one pool participant address with its workers.
type User struct {
	Address    string     `json:"-"`
	Authorised int64      `json:"authorised"`
	Shares     int64      `json:"shares"`
	BestShare  float64    `json:"bestshare"`
	BestEver   float64    `json:"bestever"`
	Rates      *Rates     `json:"computed_hash_rate"`
	Workers    WorkerList `json:"workers"`
}

// Snapshot is one point-in-time document of pool, user and worker state.
type Snapshot struct {
	StartTime  int64       `json:"start_time"`
	LastUpdate int64       `json:"lastupdate"`
	NumUsers   int64       `json:"num_users"`
	NumWorkers int64       `json:"num_workers"`
	NumIdle    int64       `json:"num_idle_users"`
	Accepted   int64       `json:"accepted"`
	Rejected   int64       `json:"rejected"`
	BestShare  float64     `json:"bestshare"`
	Difficulty float64     `json:"difficulty"`
	Rates      *Rates      `json:"computed_hashrate"`
	ShareRates *ShareRates `json:"computed_share_rate"`
	Users      UserList    `json:"users"`
}

// UserList decodes the "users" object while keeping document order.
// Batching and top-N tie-breaks depend on snapshot iteration order, which
// a plain map would lose.
type UserList []User

func (ul *UserList) UnmarshalJSON(data []byte) error {
	keys, values, err := orderedObject(data, "users")
	if err != nil {
		return err
	}
	out := make([]User, 0, len(keys))
	for i, key := range keys {
		var u User
		if err := json.Unmarshal(values[i], &u); err != nil {
			return fmt.Errorf("user %q: %w", key, err)
		}
		u.Address = key
		out = append(out, u)
	}
	*ul = out
	return nil
}

// WorkerList decodes the "workers" object while keeping document order.
type WorkerList []Worker

func (wl *WorkerList) UnmarshalJSON(data []byte) error {
	keys, values, err := orderedObject(data, "workers")
	if err != nil {
		return err
	}
	out := make([]Worker, 0, len(keys))
	for i, key := range keys {
		var w Worker
		if err := json.Unmarshal(values[i], &w); err != nil {
			return fmt.Errorf("worker %q: %w", key, err)
		}
		w.Name = key
		out = append(out, w)
	}
	*wl = out
	return nil
}

// orderedObject splits a JSON object into its keys and raw values,
// preserving document order. A JSON null yields an empty object.
func orderedObject(data []byte, what string) ([]string, []json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", what, err)
	}
	if tok == nil {
		return nil, nil, nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("%s: expected object, got %v", what, tok)
	}
	var (
		keys   []string
		values []json.RawMessage
	)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", what, err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("%s: expected string key, got %v", what, keyTok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, fmt.Errorf("%s[%s]: %w", what, key, err)
		}
		keys = append(keys, key)
		values = append(values, raw)
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", what, err)
	}
	return keys, values, nil
}

// Load reads and parses the snapshot file at path. The entire document is
// held in memory; later stages need the full user set to batch and rank it.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &snap, nil
}
