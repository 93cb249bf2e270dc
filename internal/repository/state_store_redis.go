package repository

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/domain"
)

const (
	defaultRedisKey     = "queue:state"
	defaultRedisChannel = "queue:state:changed"
)

// redisStateStore keeps the snapshot in one hash (version, origin, payload)
// and announces writes on a pub/sub channel.
type redisStateStore struct {
	client  *redis.Client
	key     string
	channel string
	origin  string
	codec   snapshotCodec
}

// NewRedisStateStore returns a handle on client with its own origin.
func NewRedisStateStore(client *redis.Client, opts StateStoreOptions) StateStore {
	key, channel := opts.RedisKey, opts.RedisChannel
	if key == "" {
		key = defaultRedisKey
	}
	if channel == "" {
		channel = defaultRedisChannel
	}
	return &redisStateStore{
		client:  client,
		key:     key,
		channel: channel,
		origin:  uuid.NewString(),
		codec:   newSnapshotCodec(opts),
	}
}

func (r *redisStateStore) Origin() string { return r.origin }

func (r *redisStateStore) Read(ctx context.Context) (*domain.SystemState, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, err
	}
	version, ok := parseRedisVersion(fields["version"])
	if !ok {
		r.codec.logger.Warn("stored version unreadable; treating as 0", zap.String("key", r.key), zap.String("version", fields["version"]))
	}
	return r.codec.decode([]byte(fields["payload"]), version), nil
}

// parseRedisVersion reads the version field. A missing field is version 0;
// an unreadable one is also treated as 0 so the next write replaces it.
func parseRedisVersion(raw string) (int64, bool) {
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

func (r *redisStateStore) Write(ctx context.Context, s *domain.SystemState) error {
	next, payload, err := r.codec.encode(s)
	if err != nil {
		return err
	}
	notice := stateNotice{Origin: r.origin, Version: next.Version}.encode()

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, r.key, "version").Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		current, _ := parseRedisVersion(raw)
		if current != s.Version {
			return ErrVersionConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, r.key, "version", next.Version, "origin", r.origin, "payload", payload)
			pipe.Publish(ctx, r.channel, notice)
			return nil
		})
		return err
	}, r.key)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrVersionConflict
	}
	if err != nil {
		return err
	}
	commit(s, next)
	return nil
}

func (r *redisStateStore) Subscribe(ctx context.Context, fn func(*domain.SystemState)) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				notice, err := decodeNotice(msg.Payload)
				if err != nil {
					r.codec.logger.Warn("ignoring malformed state notice", zap.String("channel", r.channel), zap.Error(err))
					continue
				}
				if notice.Origin == r.origin {
					continue
				}
				state, err := r.Read(ctx)
				if err != nil {
					r.codec.logger.Warn("re-read after state notice failed", zap.String("channel", r.channel), zap.Error(err))
					continue
				}
				fn(state)
			}
		}
	}()
	return nil
}

func (r *redisStateStore) Reset(ctx context.Context) error {
	return resetState(ctx, r)
}
