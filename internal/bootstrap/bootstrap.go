// Package bootstrap opens the backends both binaries share.
package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/config"
	"github.com/spec-kit/queue-service/internal/persistence"
	"github.com/spec-kit/queue-service/internal/repository"
)

// Backends holds the connections opened for the configured store.
type Backends struct {
	cfg    *config.Config
	logger *zap.Logger

	Postgres *persistence.Postgres
	Redis    *persistence.Redis
	SQLite   *persistence.SQLite
	hub      *repository.MemoryHub
}

// Open connects what cfg asks for. Postgres is opened whenever a DSN is set
// since operators live there too.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backends, error) {
	b := &Backends{cfg: cfg, logger: logger, hub: repository.NewMemoryHub()}

	if cfg.Postgres.DSN != "" {
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.Postgres = pg
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
				b.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
	}

	switch cfg.Store.Backend {
	case "redis":
		b.Redis = persistence.NewRedis(ctx, cfg.Redis, logger)
	case "sqlite":
		db, err := persistence.NewSQLite(ctx, cfg.SQLite, logger)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.SQLite = db
	}
	return b, nil
}

// NewStateStore returns a fresh handle with its own origin on the configured
// backend. Handles from the same Backends see each other's writes.
func (b *Backends) NewStateStore(ctx context.Context) (repository.StateStore, error) {
	opts := repository.StateStoreOptions{
		Backend:         b.cfg.Store.Backend,
		ModuleCount:     b.cfg.Queue.ModuleCount,
		Logger:          b.logger,
		MemoryHub:       b.hub,
		RedisKey:        b.cfg.Store.RedisKey,
		RedisChannel:    b.cfg.Store.RedisChannel,
		PostgresChannel: b.cfg.Store.PostgresNotify,
		PollInterval:    b.cfg.Store.PollInterval(),
	}
	if b.Postgres != nil {
		opts.Postgres = b.Postgres.PoolHandle()
	}
	if b.Redis != nil {
		opts.Redis = b.Redis.Client
	}
	if b.SQLite != nil {
		opts.SQLite = b.SQLite.DB
	}
	return repository.NewStateStore(ctx, opts)
}

// OperatorRepository prefers postgres and falls back to process memory.
func (b *Backends) OperatorRepository() repository.OperatorRepository {
	if b.Postgres != nil && b.Postgres.PoolHandle() != nil {
		return repository.NewOperatorRepository(b.Postgres.PoolHandle())
	}
	b.logger.Warn("no postgres configured; operators kept in memory")
	return repository.NewMemoryOperatorRepository()
}

// Close releases every connection.
func (b *Backends) Close() {
	if b.Postgres != nil {
		b.Postgres.Close()
	}
	b.Redis.Close()
	b.SQLite.Close()
}
