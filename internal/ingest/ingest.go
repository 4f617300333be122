package ingest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/camarigor/pool-archiver/internal/hashrate"
	"github.com/camarigor/pool-archiver/internal/snapshot"
	"github.com/camarigor/pool-archiver/internal/storage"
)

// DefaultBatchSize is the number of addresses written concurrently; it also
// bounds the number of simultaneously open transactions.
const DefaultBatchSize = 10

// Store is the slice of the storage backend the ingestor writes through.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx storage.UnitTx) error) error
	InsertPoolStats(ctx context.Context, row *storage.PoolStats) error
}

// Config tunes one ingestion run.
type Config struct {
	// BatchSize is the per-group concurrency. Defaults to DefaultBatchSize.
	BatchSize int
	// TopN, when positive, restricts the run to the N users with the
	// highest 1-day hashrate instead of the full user set.
	TopN int
}

// AddressFailure records one address whose transaction rolled back.
type AddressFailure struct {
	Address string
	Err     error
}

// Summary reports the outcome of one run. Per-address failures are isolated:
// they never undo committed work and never stop the remaining batches.
type Summary struct {
	Users        int
	Failures     []AddressFailure
	PoolStatsErr error
}

// Ingestor drives the end-to-end write of one snapshot.
type Ingestor struct {
	store Store
	cfg   Config
	log   *zap.Logger
	pool  pond.Pool
}

// New creates an Ingestor. The worker pool is sized one above the batch so
// the pool-stats rollup can run alongside a full user group.
func New(store Store, cfg Config, log *zap.Logger) *Ingestor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Ingestor{
		store: store,
		cfg:   cfg,
		log:   log,
		pool:  pond.NewPool(cfg.BatchSize + 1),
	}
}

// Run materializes the snapshot: one pool-wide rollup row, plus one unit of
// work per selected address. Groups of BatchSize run sequentially; addresses
// within a group run concurrently, each inside its own transaction. Every
// stats row written by the run carries the same ingestion timestamp.
func (i *Ingestor) Run(ctx context.Context, snap *snapshot.Snapshot) *Summary {
	now := time.Now().UTC()
	users := selectUsers(snap, i.cfg.TopN)
	sum := &Summary{Users: len(users)}

	poolTask := i.pool.SubmitErr(func() error {
		return i.store.InsertPoolStats(ctx, poolStatsRow(snap, now))
	})

	for start := 0; start < len(users); start += i.cfg.BatchSize {
		end := start + i.cfg.BatchSize
		if end > len(users) {
			end = len(users)
		}
		batch := users[start:end]

		// Every member settles before the next group starts; a failed
		// member must not cancel siblings already in flight.
		errs := make([]error, len(batch))
		group := i.pool.NewGroupContext(ctx)
		for idx := range batch {
			idx := idx
			group.Submit(func() {
				errs[idx] = i.ingestUser(ctx, &batch[idx], now)
			})
		}
		if err := group.Wait(); err != nil {
			i.log.Warn("batch interrupted", zap.Error(err))
		}

		for idx, err := range errs {
			if err != nil {
				i.log.Warn("user ingest failed",
					zap.String("address", batch[idx].Address),
					zap.Error(err))
				sum.Failures = append(sum.Failures, AddressFailure{
					Address: batch[idx].Address,
					Err:     err,
				})
			}
		}
	}

	if err := poolTask.Wait(); err != nil {
		i.log.Warn("pool stats insert failed", zap.Error(err))
		sum.PoolStatsErr = err
	}
	return sum
}

// ingestUser commits one address's full unit of work: user upsert, user
// stats insert, then each worker upsert followed by its stats insert. All
// of it commits or none of it does.
func (i *Ingestor) ingestUser(ctx context.Context, u *snapshot.User, now time.Time) error {
	return i.store.InTx(ctx, func(ctx context.Context, tx storage.UnitTx) error {
		if err := tx.UpsertUser(ctx, &storage.User{
			Address:    u.Address,
			Authorised: u.Authorised,
			IsActive:   true,
		}); err != nil {
			return fmt.Errorf("upsert user: %w", err)
		}

		rates := hashrate.NormalizeRates(u.Rates)
		if err := tx.InsertUserStats(ctx, &storage.UserStats{
			UserAddress: u.Address,
			Hashrate1m:  rates.Hashrate1m.String(),
			Hashrate5m:  rates.Hashrate5m.String(),
			Hashrate1hr: rates.Hashrate1hr.String(),
			Hashrate1d:  rates.Hashrate1d.String(),
			Hashrate7d:  rates.Hashrate7d.String(),
			Shares:      u.Shares,
			BestShare:   u.BestShare,
			BestEver:    u.BestEver,
			WorkerCount: len(u.Workers),
			LastShare:   lastShare(u),
			Timestamp:   now,
		}); err != nil {
			return fmt.Errorf("insert user stats: %w", err)
		}

		for _, w := range u.Workers {
			wr := hashrate.NormalizeRates(w.Rates)
			worker := &storage.Worker{
				UserAddress: u.Address,
				Name:        w.Name,
				Hashrate1m:  wr.Hashrate1m.String(),
				Hashrate5m:  wr.Hashrate5m.String(),
				Hashrate1hr: wr.Hashrate1hr.String(),
				Hashrate1d:  wr.Hashrate1d.String(),
				Hashrate7d:  wr.Hashrate7d.String(),
				Shares:      w.Shares,
				BestShare:   w.BestShare,
				BestEver:    w.BestEver,
				LastUpdate:  unixTime(w.LastShare),
			}
			id, err := tx.UpsertWorker(ctx, worker)
			if err != nil {
				return fmt.Errorf("upsert worker %s: %w", w.Name, err)
			}
			if err := tx.InsertWorkerStats(ctx, &storage.WorkerStats{
				WorkerID:    id,
				Hashrate1m:  worker.Hashrate1m,
				Hashrate5m:  worker.Hashrate5m,
				Hashrate1hr: worker.Hashrate1hr,
				Hashrate1d:  worker.Hashrate1d,
				Hashrate7d:  worker.Hashrate7d,
				Shares:      w.Shares,
				BestShare:   w.BestShare,
				BestEver:    w.BestEver,
				LastUpdate:  worker.LastUpdate,
				Timestamp:   now,
			}); err != nil {
				return fmt.Errorf("insert worker stats %s: %w", w.Name, err)
			}
		}
		return nil
	})
}

// selectUsers returns the addresses to process in processing order. Full
// runs keep snapshot order; top-N runs rank by 1-day hashrate descending,
// ties broken by snapshot order.
func selectUsers(snap *snapshot.Snapshot, topN int) []snapshot.User {
	if topN <= 0 {
		return snap.Users
	}
	ranked := make([]snapshot.User, len(snap.Users))
	copy(ranked, snap.Users)
	sort.SliceStable(ranked, func(a, b int) bool {
		return rate1d(&ranked[a]) > rate1d(&ranked[b])
	})
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}

func rate1d(u *snapshot.User) float64 {
	if u.Rates != nil {
		return u.Rates.Hashrate1d
	}
	return 0
}

// poolStatsRow computes the pool-wide rollup from the snapshot, with the
// hashrate fallback chain filling in a missing top-level aggregate.
func poolStatsRow(snap *snapshot.Snapshot, now time.Time) *storage.PoolStats {
	rates := hashrate.NormalizeRates(hashrate.ResolvePoolRates(snap))
	sr := snap.ShareRates
	if sr == nil {
		sr = &snapshot.ShareRates{}
	}
	runtime := snap.LastUpdate - snap.StartTime
	if runtime < 0 {
		runtime = 0
	}
	return &storage.PoolStats{
		Runtime:     runtime,
		Users:       snap.NumUsers,
		Workers:     snap.NumWorkers,
		Idle:        snap.NumIdle,
		Hashrate1m:  rates.Hashrate1m.String(),
		Hashrate5m:  rates.Hashrate5m.String(),
		Hashrate15m: rates.Hashrate15m.String(),
		Hashrate1hr: rates.Hashrate1hr.String(),
		Hashrate6hr: rates.Hashrate6hr.String(),
		Hashrate1d:  rates.Hashrate1d.String(),
		Hashrate7d:  rates.Hashrate7d.String(),
		Difficulty:  snap.Difficulty,
		Accepted:    snap.Accepted,
		Rejected:    snap.Rejected,
		BestShare:   snap.BestShare,
		SPS1m:       sr.SPS1m,
		SPS5m:       sr.SPS5m,
		SPS15m:      sr.SPS15m,
		SPS1h:       sr.SPS1h,
		Timestamp:   now,
	}
}

// lastShare is the most recent share time across the user's workers; the
// document only reports lastshare per worker.
func lastShare(u *snapshot.User) time.Time {
	var latest int64
	for _, w := range u.Workers {
		if w.LastShare > latest {
			latest = w.LastShare
		}
	}
	return unixTime(latest)
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
