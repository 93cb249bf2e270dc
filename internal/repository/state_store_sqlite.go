package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/domain"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	// sqliteLogRetention is how many past writes queue_state_log keeps for
	// pollers that fall behind.
	sqliteLogRetention = 256
)

// sqliteStateStore keeps the snapshot in a single-row table. SQLite has no
// push notification, so every write is also appended to queue_state_log and
// subscribers poll it for versions they have not seen.
type sqliteStateStore struct {
	db       *sql.DB
	origin   string
	interval time.Duration
	codec    snapshotCodec
}

// NewSQLiteStateStore creates the state table if needed and returns a
// handle with its own origin.
func NewSQLiteStateStore(ctx context.Context, db *sql.DB, opts StateStoreOptions) (StateStore, error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS queue_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		version INTEGER NOT NULL DEFAULT 0,
		origin TEXT NOT NULL DEFAULT '',
		payload BLOB,
		updated_at TEXT NOT NULL DEFAULT ''
	)`); err != nil {
		return nil, fmt.Errorf("create queue_state table: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS queue_state_log (
		version INTEGER PRIMARY KEY,
		origin TEXT NOT NULL,
		payload BLOB
	)`); err != nil {
		return nil, fmt.Errorf("create queue_state_log table: %w", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO queue_state (id, version, origin) VALUES (1, 0, '')`); err != nil {
		return nil, fmt.Errorf("seed queue_state: %w", err)
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &sqliteStateStore{
		db:       db,
		origin:   uuid.NewString(),
		interval: interval,
		codec:    newSnapshotCodec(opts),
	}, nil
}

func (s *sqliteStateStore) Origin() string { return s.origin }

func (s *sqliteStateStore) row(ctx context.Context) (version int64, origin string, payload []byte, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT version, origin, payload FROM queue_state WHERE id = 1`).Scan(&version, &origin, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", nil, nil
	}
	return version, origin, payload, err
}

func (s *sqliteStateStore) Read(ctx context.Context) (*domain.SystemState, error) {
	version, _, payload, err := s.row(ctx)
	if err != nil {
		return nil, fmt.Errorf("select queue_state: %w", err)
	}
	return s.codec.decode(payload, version), nil
}

func (s *sqliteStateStore) Write(ctx context.Context, st *domain.SystemState) (retErr error) {
	next, payload, err := s.codec.encode(st)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin queue_state write: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE queue_state SET version = ?, origin = ?, payload = ?, updated_at = ? WHERE id = 1 AND version = ?`,
		next.Version, s.origin, payload, next.LastUpdated.Format(time.RFC3339Nano), st.Version)
	if err != nil {
		return fmt.Errorf("update queue_state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVersionConflict
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO queue_state_log (version, origin, payload) VALUES (?, ?, ?)`,
		next.Version, s.origin, payload); err != nil {
		return fmt.Errorf("append queue_state_log: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM queue_state_log WHERE version <= ?`, next.Version-sqliteLogRetention); err != nil {
		return fmt.Errorf("trim queue_state_log: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit queue_state write: %w", err)
	}
	commit(st, next)
	return nil
}

type sqliteLogEntry struct {
	version int64
	origin  string
	payload []byte
}

// changesSince returns logged writes newer than version, oldest first.
func (s *sqliteStateStore) changesSince(ctx context.Context, version int64) ([]sqliteLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version, origin, payload FROM queue_state_log WHERE version > ? ORDER BY version`, version)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []sqliteLogEntry
	for rows.Next() {
		var e sqliteLogEntry
		if err := rows.Scan(&e.version, &e.origin, &e.payload); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *sqliteStateStore) Subscribe(ctx context.Context, fn func(*domain.SystemState)) error {
	last, _, _, err := s.row(ctx)
	if err != nil {
		return fmt.Errorf("select queue_state: %w", err)
	}

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			entries, err := s.changesSince(ctx, last)
			if err != nil {
				if ctx.Err() == nil {
					s.codec.logger.Warn("poll queue_state_log failed", zap.Error(err))
				}
				continue
			}
			for _, e := range entries {
				last = e.version
				if e.origin == s.origin {
					continue
				}
				fn(s.codec.decode(e.payload, e.version))
			}
		}
	}()
	return nil
}

func (s *sqliteStateStore) Reset(ctx context.Context) error {
	return resetState(ctx, s)
}
