// Package sqlite keeps flushed batches of the spool in a SQLite database until they are processed.
package sqlite

import (
	"cmp"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cutoff-dev/common/fsutil"
	"github.com/cutoff-dev/common/internal"
)

var (
	// ErrClosed is returned by Storage methods when the storage has been closed.
	ErrClosed = errors.New("storage is closed")
)

// Storage is a persistent batch storage backed by SQLite.
//
// A batch is leased by [Storage.Claim] and stays invisible to other claims until it is either
// deleted or released.
type Storage struct {
	cfg *Config
	db  *sql.DB
}

// New creates a new Storage with the provided configuration functions.
//
// Default configuration:
//   - File: [Memory]
//   - Durable: false
//   - Workers: 1
//   - Batches: 1
//   - Cooldown: 0
//
// The parent directory of a file is created when missing. Leases left by a previous process are
// dropped, so every stored batch can be claimed again.
func New(configFuncs ...func(*Config)) (*Storage, error) {
	cfg := &Config{}
	cfg.File(Memory)
	cfg.Workers(1)
	cfg.Batches(1)
	for _, cf := range configFuncs {
		cf(cfg)
	}

	if cfg.file != Memory {
		if err := fsutil.CreateDirAllFor(cfg.file); err != nil {
			return nil, err
		}
	}

	db, err := open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	if err := setup(db); err != nil {
		return nil, errors.Join(fmt.Errorf("setup: %w", err), db.Close())
	}

	return &Storage{cfg: cfg, db: db}, nil
}

// Push inserts a new batch of encoded data holding size items and returns its ID.
//
// Returns [ErrClosed] if the storage has been closed.
func (s *Storage) Push(ctx context.Context, data []byte, size int) (BatchID, error) {
	now := time.Now()
	id := internal.NewID(now)
	_, err := s.db.ExecContext(
		ctx,
		`
		insert into batch (id, data, size, pushed_at, leased, attempts, not_before)
		values (:id, :data, :size, :pushed_at, 0, 0, 0)
		`,
		sql.Named("id", id),
		sql.Named("data", data),
		sql.Named("size", size),
		sql.Named("pushed_at", toTimestamp(now)),
	)
	if err != nil {
		return "", closedOr(err)
	}

	return id, nil
}

// Claim leases up to [Config.Batches] batches that are neither leased nor cooling down, oldest
// first. Returns an empty slice if no batches are available.
func (s *Storage) Claim(ctx context.Context) ([]Batch, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`
		update batch
		set
			leased = 1,
			attempts = attempts + 1
		where
			id in (
				select id from batch
				where
					leased = 0 and
					not_before <= :now
				order by
					pushed_at asc, rowid asc
				limit :limit
			)
		returning rowid, id, data, size, pushed_at, attempts, not_before
		`,
		sql.Named("now", toTimestamp(time.Now())),
		sql.Named("limit", s.cfg.batches),
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", closedOr(err))
	}
	defer rows.Close()

	batches := make([]Batch, 0, s.cfg.batches)
	for rows.Next() {
		var (
			b                   Batch
			pushedAt, notBefore int64
		)
		if err := rows.Scan(&b.seq, &b.ID, &b.Data, &b.Size, &pushedAt, &b.Attempts, &notBefore); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		b.PushedAt = fromTimestamp(pushedAt)
		b.NotBefore = fromTimestamp(notBefore)
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	// RETURNING gives no order guarantee.
	slices.SortFunc(batches, func(a, b Batch) int {
		return cmp.Compare(a.seq, b.seq)
	})

	return batches, nil
}

// Release drops the lease of the batches. With [Config.Cooldown] set they can't be claimed again
// until the cooldown has passed.
func (s *Storage) Release(ctx context.Context, ids ...BatchID) error {
	var notBefore time.Time
	if s.cfg.cooldown != 0 {
		notBefore = time.Now().Add(s.cfg.cooldown)
	}

	_, err := s.db.ExecContext(
		ctx,
		`
		update batch
		set
			leased = 0,
			not_before = :not_before
		where
			id in (select value from json_each(:ids))
		`,
		sql.Named("ids", jsonIDs(ids)),
		sql.Named("not_before", toTimestamp(notBefore)),
	)
	return closedOr(err)
}

// Delete permanently removes the batches.
func (s *Storage) Delete(ctx context.Context, ids ...BatchID) error {
	_, err := s.db.ExecContext(
		ctx,
		`delete from batch where id in (select value from json_each(:ids))`,
		sql.Named("ids", jsonIDs(ids)),
	)
	return closedOr(err)
}

// Stats returns current storage statistics.
func (s *Storage) Stats(ctx context.Context) (*Stats, error) {
	var (
		stats     Stats
		notBefore int64
	)
	err := s.db.QueryRowContext(
		ctx,
		`
		select
			count(*),
			coalesce(sum(size), 0),
			coalesce(min(not_before) filter (where leased = 0), 0)
		from
			batch
		`,
	).Scan(&stats.Batches, &stats.Items, &notBefore)
	if err != nil {
		return nil, closedOr(err)
	}
	stats.NextClaim = fromTimestamp(notBefore)

	return &stats, nil
}

// Close closes the underlying SQLite database. After closing, all methods return [ErrClosed].
func (s *Storage) Close() error {
	return s.db.Close()
}

// Batch is a stored batch of encoded items.
type Batch struct {
	ID BatchID
	// Data is the encoded batch content.
	Data []byte
	// Size is the number of items in the batch.
	Size     int
	PushedAt time.Time
	// Attempts counts the claims of this batch, including the current one.
	Attempts int
	// NotBefore is the end of the last cooldown. Zero time if the batch was never released with
	// one.
	NotBefore time.Time

	seq int64
}

type BatchID = string

// Stats represents statistics about the storage.
type Stats struct {
	// Batches is the total number of batches, leased ones included.
	Batches int
	// Items is the total number of items across all batches.
	Items int
	// NextClaim is the earliest time when a batch that isn't leased becomes claimable.
	NextClaim time.Time
}

func open(cfg *Config) (*sql.DB, error) {
	params := url.Values{}
	params.Add("_txlock", "immediate")
	params.Add("_timeout", "5000")
	name := cfg.file
	if name == Memory {
		// Every in-memory storage gets its own database shared by all of its connections.
		name = internal.NewID(time.Now())
		params.Add("mode", "memory")
		params.Add("cache", "shared")
	} else {
		params.Add("_journal", "wal")
		params.Add("_cache_size", "-20000")
		if cfg.durable {
			params.Add("_sync", "full")
		} else {
			params.Add("_sync", "normal")
		}
	}

	db, err := sql.Open("sqlite3", "file:"+name+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	db.SetConnMaxIdleTime(0)
	db.SetConnMaxLifetime(0)
	if cfg.file == Memory {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(cfg.workers)
		db.SetMaxIdleConns(cfg.workers)
	}

	return db, nil
}

func setup(db *sql.DB) error {
	if _, err := db.Exec(
		`
		create table if not exists batch (
			id         text primary key,
			data       blob not null,
			size       int not null,
			pushed_at  int not null,
			leased     int not null,
			attempts   int not null,
			not_before int not null
		) strict
		`,
	); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(
		`
		create index if not exists idx_batch_claimable
		on batch (pushed_at, not_before)
		where leased = 0
		`,
	); err != nil {
		return fmt.Errorf("create index: %w", err)
	}

	if _, err := db.Exec("update batch set leased = 0"); err != nil {
		return fmt.Errorf("drop leases: %w", err)
	}

	return nil
}

func closedOr(err error) error {
	// database/sql doesn't export the error it returns after Close.
	if err != nil && err.Error() == "sql: database is closed" {
		return ErrClosed
	}
	return err
}

func jsonIDs(ids []BatchID) string {
	b, _ := json.Marshal(ids)
	return string(b)
}

func toTimestamp(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromTimestamp(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(0, ts)
}
