package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/domain"
)

const defaultPostgresChannel = "queue_state_changed"

// postgresStateStore keeps the snapshot in the single queue_state row and
// announces writes with pg_notify.
type postgresStateStore struct {
	pool    *pgxpool.Pool
	channel string
	origin  string
	codec   snapshotCodec
}

// NewPostgresStateStore returns a handle on pool with its own origin. The
// queue_state row is created if migrations have not run.
func NewPostgresStateStore(ctx context.Context, pool *pgxpool.Pool, opts StateStoreOptions) (StateStore, error) {
	channel := opts.PostgresChannel
	if channel == "" {
		channel = defaultPostgresChannel
	}
	const seed = `
        INSERT INTO queue_state (id, version, origin, payload)
        VALUES (1, 0, '', NULL)
        ON CONFLICT (id) DO NOTHING`
	if _, err := pool.Exec(ctx, seed); err != nil {
		return nil, fmt.Errorf("seed queue_state: %w", err)
	}
	return &postgresStateStore{
		pool:    pool,
		channel: channel,
		origin:  uuid.NewString(),
		codec:   newSnapshotCodec(opts),
	}, nil
}

func (p *postgresStateStore) Origin() string { return p.origin }

func (p *postgresStateStore) Read(ctx context.Context) (*domain.SystemState, error) {
	const query = `SELECT version, payload FROM queue_state WHERE id=1`

	var (
		version int64
		payload []byte
	)
	if err := p.pool.QueryRow(ctx, query).Scan(&version, &payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return p.codec.decode(nil, 0), nil
		}
		return nil, err
	}
	return p.codec.decode(payload, version), nil
}

func (p *postgresStateStore) Write(ctx context.Context, s *domain.SystemState) (retErr error) {
	next, payload, err := p.codec.encode(s)
	if err != nil {
		return err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	const update = `
        UPDATE queue_state
        SET version=$1, origin=$2, payload=$3, updated_at=NOW()
        WHERE id=1 AND version=$4`
	cmd, err := tx.Exec(ctx, update, next.Version, p.origin, string(payload), s.Version)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	notice := stateNotice{Origin: p.origin, Version: next.Version}.encode()
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, p.channel, notice); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	commit(s, next)
	return nil
}

func (p *postgresStateStore) Subscribe(ctx context.Context, fn func(*domain.SystemState)) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{p.channel}.Sanitize()); err != nil {
		conn.Release()
		return err
	}

	go func() {
		defer func() {
			_, _ = conn.Exec(context.Background(), "UNLISTEN *")
			conn.Release()
		}()
		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					p.codec.logger.Warn("postgres listen stopped", zap.String("channel", p.channel), zap.Error(err))
				}
				return
			}
			notice, err := decodeNotice(n.Payload)
			if err != nil {
				p.codec.logger.Warn("ignoring malformed state notice", zap.String("channel", p.channel), zap.Error(err))
				continue
			}
			if notice.Origin == p.origin {
				continue
			}
			state, err := p.Read(ctx)
			if err != nil {
				p.codec.logger.Warn("re-read after state notice failed", zap.String("channel", p.channel), zap.Error(err))
				continue
			}
			fn(state)
		}
	}()
	return nil
}

func (p *postgresStateStore) Reset(ctx context.Context) error {
	return resetState(ctx, p)
}
