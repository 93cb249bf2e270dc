package repository

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/spec-kit/queue-service/internal/domain"
)

// MemoryHub is the shared backing of in-process stores. Every handle built
// on the same hub behaves like a separate actor on one storage key.
type MemoryHub struct {
	mu      sync.Mutex
	payload []byte
	version int64
	subs    map[int]*memorySub
	nextSub int
}

// memorySub queues frames from other origins in write order. wake is
// signalled whenever the queue grows.
type memorySub struct {
	origin string
	mu     sync.Mutex
	queue  []memoryFrame
	wake   chan struct{}
}

func (s *memorySub) push(f memoryFrame) {
	s.mu.Lock()
	s.queue = append(s.queue, f)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *memorySub) drain() []memoryFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	frames := s.queue
	s.queue = nil
	return frames
}

type memoryFrame struct {
	origin  string
	version int64
	payload []byte
}

// NewMemoryHub returns an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{subs: make(map[int]*memorySub)}
}

// Corrupt overwrites the stored payload without advancing the version.
// Tests use it to simulate a damaged blob.
func (h *MemoryHub) Corrupt(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.payload = append([]byte(nil), payload...)
}

// publish queues f for every subscriber of a different origin. Callers
// hold h.mu, so queues see writes in version order.
func (h *MemoryHub) publish(f memoryFrame) {
	for _, sub := range h.subs {
		if sub.origin == f.origin {
			continue
		}
		sub.push(f)
	}
}

type memoryStateStore struct {
	hub    *MemoryHub
	origin string
	codec  snapshotCodec
}

// NewMemoryStateStore returns a handle on hub with its own origin.
func NewMemoryStateStore(hub *MemoryHub, opts StateStoreOptions) StateStore {
	return &memoryStateStore{hub: hub, origin: uuid.NewString(), codec: newSnapshotCodec(opts)}
}

func (m *memoryStateStore) Origin() string { return m.origin }

func (m *memoryStateStore) Read(ctx context.Context) (*domain.SystemState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.hub.mu.Lock()
	payload, version := m.hub.payload, m.hub.version
	m.hub.mu.Unlock()
	return m.codec.decode(payload, version), nil
}

func (m *memoryStateStore) Write(ctx context.Context, s *domain.SystemState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	next, payload, err := m.codec.encode(s)
	if err != nil {
		return err
	}
	m.hub.mu.Lock()
	defer m.hub.mu.Unlock()
	if m.hub.version != s.Version {
		return ErrVersionConflict
	}
	m.hub.payload = payload
	m.hub.version = next.Version
	m.hub.publish(memoryFrame{origin: m.origin, version: next.Version, payload: payload})
	commit(s, next)
	return nil
}

func (m *memoryStateStore) Subscribe(ctx context.Context, fn func(*domain.SystemState)) error {
	sub := &memorySub{origin: m.origin, wake: make(chan struct{}, 1)}
	m.hub.mu.Lock()
	id := m.hub.nextSub
	m.hub.nextSub++
	m.hub.subs[id] = sub
	m.hub.mu.Unlock()

	go func() {
		defer func() {
			m.hub.mu.Lock()
			delete(m.hub.subs, id)
			m.hub.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.wake:
				for _, f := range sub.drain() {
					if ctx.Err() != nil {
						return
					}
					fn(m.codec.decode(f.payload, f.version))
				}
			}
		}
	}()
	return nil
}

func (m *memoryStateStore) Reset(ctx context.Context) error {
	return resetState(ctx, m)
}
