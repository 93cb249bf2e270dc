package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/domain"
)

var (
	// ErrVersionConflict is returned by Write when the stored snapshot moved
	// past the version the caller read.
	ErrVersionConflict = errors.New("state version conflict")
	// ErrUnknownBackend is returned by NewStateStore for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown state store backend")
)

// StateStore persists the whole SystemState as one versioned snapshot and
// tells each handle about writes made through other handles.
type StateStore interface {
	// Read returns the current snapshot. Missing or corrupt payloads yield a
	// default snapshot; only transport failures are errors.
	Read(ctx context.Context) (*domain.SystemState, error)
	// Write stores s if the stored version still equals s.Version. On success
	// s carries the new version and lastUpdated stamp.
	Write(ctx context.Context, s *domain.SystemState) error
	// Subscribe calls fn with the new snapshot after every write made by a
	// different origin. Delivery runs in the background until ctx ends.
	Subscribe(ctx context.Context, fn func(*domain.SystemState)) error
	// Reset restores defaults while keeping each module's active flag.
	Reset(ctx context.Context) error
	// Origin identifies this handle as a writer.
	Origin() string
}

// StateStoreOptions configures NewStateStore. Only the handle matching
// Backend needs to be set.
type StateStoreOptions struct {
	Backend     string
	ModuleCount int
	Logger      *zap.Logger
	Clock       func() time.Time

	MemoryHub *MemoryHub

	Redis        *redis.Client
	RedisKey     string
	RedisChannel string

	Postgres        *pgxpool.Pool
	PostgresChannel string

	SQLite       *sql.DB
	PollInterval time.Duration
}

// NewStateStore builds the backend named by opts.Backend.
func NewStateStore(ctx context.Context, opts StateStoreOptions) (StateStore, error) {
	switch opts.Backend {
	case "", "memory":
		hub := opts.MemoryHub
		if hub == nil {
			hub = NewMemoryHub()
		}
		return NewMemoryStateStore(hub, opts), nil
	case "redis":
		if opts.Redis == nil {
			return nil, errors.New("redis backend requires a redis client")
		}
		return NewRedisStateStore(opts.Redis, opts), nil
	case "postgres":
		if opts.Postgres == nil {
			return nil, errors.New("postgres backend requires POSTGRES_DSN")
		}
		return NewPostgresStateStore(ctx, opts.Postgres, opts)
	case "sqlite":
		if opts.SQLite == nil {
			return nil, errors.New("sqlite backend requires a database handle")
		}
		return NewSQLiteStateStore(ctx, opts.SQLite, opts)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
}

// snapshotCodec turns stored payloads into normalised snapshots and back.
type snapshotCodec struct {
	moduleCount int
	logger      *zap.Logger
	now         func() time.Time
}

func newSnapshotCodec(opts StateStoreOptions) snapshotCodec {
	c := snapshotCodec{moduleCount: opts.ModuleCount, logger: opts.Logger, now: opts.Clock}
	if c.moduleCount <= 0 {
		c.moduleCount = domain.DefaultModuleCount
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// decode never fails. The returned snapshot always carries the stored
// version so a later write can replace a damaged payload.
func (c snapshotCodec) decode(payload []byte, version int64) *domain.SystemState {
	if len(payload) == 0 {
		s := domain.NewSystemState(c.moduleCount)
		s.Version = version
		return s
	}
	var s domain.SystemState
	if err := json.Unmarshal(payload, &s); err != nil {
		c.logger.Warn("stored snapshot unreadable; using defaults", zap.Int64("version", version), zap.Error(err))
		fresh := domain.NewSystemState(c.moduleCount)
		fresh.Version = version
		return fresh
	}
	if backfilled := s.Normalize(c.moduleCount); len(backfilled) > 0 {
		c.logger.Warn("backfilled missing module records", zap.Ints("modules", backfilled), zap.Int64("version", version))
	}
	s.Version = version
	return &s
}

// encode stamps the next version and lastUpdated on a copy of s.
func (c snapshotCodec) encode(s *domain.SystemState) (*domain.SystemState, []byte, error) {
	next := s.Clone()
	next.Version = s.Version + 1
	next.LastUpdated = c.now().UTC()
	payload, err := json.Marshal(next)
	if err != nil {
		return nil, nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return next, payload, nil
}

// commit copies the stamps of a stored snapshot back onto the caller's value.
func commit(s, stored *domain.SystemState) {
	s.Version = stored.Version
	s.LastUpdated = stored.LastUpdated
}

// stateNotice is published after every write.
type stateNotice struct {
	Origin  string `json:"origin"`
	Version int64  `json:"version"`
}

func (n stateNotice) encode() string {
	raw, _ := json.Marshal(n)
	return string(raw)
}

func decodeNotice(payload string) (stateNotice, error) {
	var n stateNotice
	err := json.Unmarshal([]byte(payload), &n)
	return n, err
}

const resetAttempts = 5

// resetState applies SystemState.Reset through the store's compare-and-swap
// write, retrying on conflicts.
func resetState(ctx context.Context, store StateStore) error {
	for attempt := 0; attempt < resetAttempts; attempt++ {
		s, err := store.Read(ctx)
		if err != nil {
			return err
		}
		s.Reset()
		err = store.Write(ctx, s)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return err
		}
	}
	return ErrVersionConflict
}
