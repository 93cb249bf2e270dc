package repository

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"github.com/spec-kit/queue-service/internal/domain"
)

// storeFactory returns two handles on the same backing storage.
type storeFactory func(t *testing.T) (StateStore, StateStore)

func memoryFactory(t *testing.T) (StateStore, StateStore) {
	hub := NewMemoryHub()
	opts := StateStoreOptions{ModuleCount: 3}
	return NewMemoryStateStore(hub, opts), NewMemoryStateStore(hub, opts)
}

func sqliteFactory(t *testing.T) (StateStore, StateStore) {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	opts := StateStoreOptions{ModuleCount: 3, PollInterval: 10 * time.Millisecond}
	a, err := NewSQLiteStateStore(context.Background(), db, opts)
	if err != nil {
		t.Fatalf("store a: %v", err)
	}
	b, err := NewSQLiteStateStore(context.Background(), db, opts)
	if err != nil {
		t.Fatalf("store b: %v", err)
	}
	return a, b
}

func redisFactory(t *testing.T) (StateStore, StateStore) {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	key := "test:queue:" + t.Name()
	client.Del(context.Background(), key)
	opts := StateStoreOptions{ModuleCount: 3, RedisKey: key, RedisChannel: key + ":changed"}
	return NewRedisStateStore(client, opts), NewRedisStateStore(client, opts)
}

func postgresFactory(t *testing.T) (StateStore, StateStore) {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS queue_state; CREATE TABLE queue_state (
		id SMALLINT PRIMARY KEY, version BIGINT NOT NULL DEFAULT 0, origin TEXT NOT NULL DEFAULT '',
		payload JSONB, updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW())`); err != nil {
		t.Fatalf("prepare table: %v", err)
	}
	opts := StateStoreOptions{ModuleCount: 3}
	a, err := NewPostgresStateStore(ctx, pool, opts)
	if err != nil {
		t.Fatalf("store a: %v", err)
	}
	b, err := NewPostgresStateStore(ctx, pool, opts)
	if err != nil {
		t.Fatalf("store b: %v", err)
	}
	return a, b
}

var backends = []struct {
	name    string
	factory storeFactory
}{
	{"memory", memoryFactory},
	{"sqlite", sqliteFactory},
	{"redis", redisFactory},
	{"postgres", postgresFactory},
}

func TestStateStoreReadDefaults(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			a, _ := b.factory(t)
			s, err := a.Read(context.Background())
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if len(s.Modules) != 3 || s.TicketCounter.Peek() != "A01" || s.Version != 0 {
				t.Fatalf("expected default snapshot, got %+v", s)
			}
		})
	}
}

func TestStateStoreWriteAdvancesVersion(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			a, other := b.factory(t)
			s, _ := a.Read(ctx)
			s.Queue = append(s.Queue, domain.Ticket{Code: "A01", SubjectID: "1234", Priority: domain.PriorityNormal})
			s.TicketCounter.Next()
			if err := a.Write(ctx, s); err != nil {
				t.Fatalf("write: %v", err)
			}
			if s.Version != 1 || s.LastUpdated.IsZero() {
				t.Fatalf("write should stamp version and lastUpdated, got %d %v", s.Version, s.LastUpdated)
			}
			got, err := other.Read(ctx)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if got.Version != 1 || len(got.Queue) != 1 || got.Queue[0].Code != "A01" || got.TicketCounter.Peek() != "A02" {
				t.Fatalf("second handle sees %+v", got)
			}
		})
	}
}

func TestStateStoreConcurrentWritersHaveDeterministicWinner(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			a, other := b.factory(t)
			first, _ := a.Read(ctx)
			second, _ := other.Read(ctx)

			first.Queue = append(first.Queue, domain.Ticket{Code: "A01"})
			second.HighQueue = append(second.HighQueue, domain.Ticket{Code: "A01"})

			if err := a.Write(ctx, first); err != nil {
				t.Fatalf("first write: %v", err)
			}
			if err := other.Write(ctx, second); !errors.Is(err, ErrVersionConflict) {
				t.Fatalf("expected version conflict, got %v", err)
			}
			got, _ := other.Read(ctx)
			if len(got.Queue) != 1 || len(got.HighQueue) != 0 {
				t.Fatalf("losing write leaked into storage: %+v", got)
			}
		})
	}
}

func TestStateStoreSubscribeSeesOnlyExternalWrites(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			a, other := b.factory(t)

			var mu sync.Mutex
			var seen []int64
			got := make(chan struct{}, 4)
			if err := a.Subscribe(ctx, func(s *domain.SystemState) {
				mu.Lock()
				seen = append(seen, s.Version)
				mu.Unlock()
				got <- struct{}{}
			}); err != nil {
				t.Fatalf("subscribe: %v", err)
			}

			own, _ := a.Read(ctx)
			if err := a.Write(ctx, own); err != nil {
				t.Fatalf("own write: %v", err)
			}
			ext, _ := other.Read(ctx)
			ext.Queue = append(ext.Queue, domain.Ticket{Code: "A01"})
			if err := other.Write(ctx, ext); err != nil {
				t.Fatalf("external write: %v", err)
			}

			select {
			case <-got:
			case <-time.After(2 * time.Second):
				t.Fatalf("no notification for external write")
			}
			time.Sleep(50 * time.Millisecond)
			mu.Lock()
			defer mu.Unlock()
			if len(seen) != 1 || seen[0] != 2 {
				t.Fatalf("expected exactly the external version 2, got %v", seen)
			}
		})
	}
}

func TestStateStoreResetKeepsActiveFlags(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			a, _ := b.factory(t)
			s, _ := a.Read(ctx)
			s.Modules[2].Availability = domain.AvailabilityInactive
			s.Modules[1].Current = &domain.Assignment{Code: "A01", Stage: domain.StageAssigned}
			s.TicketCounter = domain.TicketCounter{Letter: "C", Sequence: 3}
			if err := a.Write(ctx, s); err != nil {
				t.Fatalf("write: %v", err)
			}
			if err := a.Reset(ctx); err != nil {
				t.Fatalf("reset: %v", err)
			}
			got, _ := a.Read(ctx)
			if got.Modules[2].Active() || !got.Modules[1].Idle() || got.TicketCounter.Peek() != "A01" {
				t.Fatalf("unexpected state after reset %+v", got)
			}
		})
	}
}

func TestMemoryStoreReadIsFailSoft(t *testing.T) {
	ctx := context.Background()
	hub := NewMemoryHub()
	store := NewMemoryStateStore(hub, StateStoreOptions{ModuleCount: 2})
	s, _ := store.Read(ctx)
	if err := store.Write(ctx, s); err != nil {
		t.Fatalf("write: %v", err)
	}

	hub.Corrupt([]byte("{not json"))
	got, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("corrupt payload must not surface an error: %v", err)
	}
	if len(got.Modules) != 2 || got.Version != 1 {
		t.Fatalf("expected default snapshot at stored version, got %+v", got)
	}
	if err := store.Write(ctx, got); err != nil {
		t.Fatalf("default snapshot should replace the corrupt blob: %v", err)
	}

	hub.Corrupt([]byte(`{"queue":[],"modules":{"1":{"active":false}}}`))
	got, _ = store.Read(ctx)
	if len(got.Modules) != 2 || got.Modules[1].Active() || !got.Modules[2].Active() {
		t.Fatalf("expected module 2 backfilled next to stored module 1, got %+v", got.Modules)
	}
}

func TestNewStateStoreRejectsUnknownBackend(t *testing.T) {
	if _, err := NewStateStore(context.Background(), StateStoreOptions{Backend: "etcd"}); !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend, got %v", err)
	}
	if _, err := NewStateStore(context.Background(), StateStoreOptions{Backend: "redis"}); err == nil {
		t.Fatalf("expected error for redis without client")
	}
}

func TestStateStoreSubscribeDeliversEveryExternalWrite(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			a, other := b.factory(t)

			gate := make(chan struct{})
			var mu sync.Mutex
			var seen []int64
			if err := a.Subscribe(ctx, func(s *domain.SystemState) {
				mu.Lock()
				first := len(seen) == 0
				seen = append(seen, s.Version)
				mu.Unlock()
				if first {
					<-gate
				}
			}); err != nil {
				t.Fatalf("subscribe: %v", err)
			}

			for i := 0; i < 3; i++ {
				s, _ := other.Read(ctx)
				s.Queue = append(s.Queue, domain.Ticket{Code: "A01"})
				if err := other.Write(ctx, s); err != nil {
					t.Fatalf("external write %d: %v", i, err)
				}
			}
			own, _ := a.Read(ctx)
			if err := a.Write(ctx, own); err != nil {
				t.Fatalf("own write: %v", err)
			}
			close(gate)

			deadline := time.Now().Add(2 * time.Second)
			for {
				mu.Lock()
				n := len(seen)
				mu.Unlock()
				if n >= 3 || time.Now().After(deadline) {
					break
				}
				time.Sleep(10 * time.Millisecond)
			}
			time.Sleep(50 * time.Millisecond)
			mu.Lock()
			defer mu.Unlock()
			if len(seen) != 3 {
				t.Fatalf("expected one callback per external write, got versions %v", seen)
			}
		})
	}
}

func TestOrderedBackendsDeliverVersionsInOrder(t *testing.T) {
	for _, b := range backends[:2] {
		t.Run(b.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			a, other := b.factory(t)

			got := make(chan int64, 8)
			if err := a.Subscribe(ctx, func(s *domain.SystemState) { got <- s.Version }); err != nil {
				t.Fatalf("subscribe: %v", err)
			}
			for i := 0; i < 2; i++ {
				s, _ := other.Read(ctx)
				s.Queue = append(s.Queue, domain.Ticket{Code: "A01"})
				if err := other.Write(ctx, s); err != nil {
					t.Fatalf("external write: %v", err)
				}
			}
			own, _ := a.Read(ctx)
			if err := a.Write(ctx, own); err != nil {
				t.Fatalf("own write: %v", err)
			}
			for _, want := range []int64{1, 2} {
				select {
				case v := <-got:
					if v != want {
						t.Fatalf("expected version %d, got %d", want, v)
					}
				case <-time.After(2 * time.Second):
					t.Fatalf("version %d never delivered", want)
				}
			}
			select {
			case v := <-got:
				t.Fatalf("own write delivered as version %d", v)
			case <-time.After(50 * time.Millisecond):
			}
		})
	}
}

func TestParseRedisVersion(t *testing.T) {
	cases := []struct {
		raw  string
		want int64
		ok   bool
	}{
		{"", 0, true},
		{"7", 7, true},
		{"seven", 0, false},
		{"-3", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseRedisVersion(tc.raw)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("%q: expected %d %v, got %d %v", tc.raw, tc.want, tc.ok, got, ok)
		}
	}
}

func TestRedisStoreRecoversFromUnreadableVersion(t *testing.T) {
	a, _ := redisFactory(t)
	ctx := context.Background()
	store := a.(*redisStateStore)
	if err := store.client.HSet(ctx, store.key, "version", "garbage", "payload", `{"queue":[{"code":"Z99"}]}`).Err(); err != nil {
		t.Fatalf("seed: %v", err)
	}

	s, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if s.Version != 0 || len(s.Queue) != 1 || s.Queue[0].Code != "Z99" {
		t.Fatalf("expected stored payload at version 0, got %+v", s)
	}
	if err := store.Write(ctx, s); err != nil {
		t.Fatalf("write over unreadable version: %v", err)
	}
	got, _ := store.Read(ctx)
	if got.Version != 1 || len(got.Queue) != 1 {
		t.Fatalf("expected version 1 with the queue kept, got %+v", got)
	}
}

func TestMemoryStoreReadsZeroAssignedAtLayout(t *testing.T) {
	ctx := context.Background()
	hub := NewMemoryHub()
	store := NewMemoryStateStore(hub, StateStoreOptions{ModuleCount: 2})
	idle := `"currentTicket":null,"currentSubjectId":null,"calledAt":null,"isAttending":false,"assignedAt":0,"callLogs":[],"finishedTickets":[]`
	hub.Corrupt([]byte(`{"queue":[{"code":"A01","subjectId":"1234","priority":"normal","createdAt":1767261600000}],"highQueue":[],` +
		`"modules":{"1":{"active":false,"paused":false,` + idle + `},"2":{"active":true,"paused":false,` + idle + `}},` +
		`"ticketCounter":{"letter":"A","sequence":2},"recentCallHistory":[],"lastUpdated":0}`))

	got, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got.Queue) != 1 || got.TicketCounter.Peek() != "A02" || got.Modules[1].Active() {
		t.Fatalf("stored snapshot discarded: queue=%d counter=%s module1.active=%v", len(got.Queue), got.TicketCounter.Peek(), got.Modules[1].Active())
	}
}
