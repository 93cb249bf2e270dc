package persistence

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/config"
	"github.com/spec-kit/queue-service/internal/persistence/migrations"
)

func TestEmbeddedMigrationsAreOrdered(t *testing.T) {
	files, err := migrationFiles(migrations.Files)
	if err != nil {
		t.Fatalf("list migrations: %v", err)
	}
	if len(files) != 2 || files[0] != "0001_queue_state.sql" || files[1] != "0002_operators.sql" {
		t.Fatalf("unexpected migrations %v", files)
	}
}

func TestNewSQLiteCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "queue.db")
	db, err := NewSQLite(context.Background(), config.SQLiteConfig{Path: path}, zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestUnconfiguredHandlesFailPing(t *testing.T) {
	ctx := context.Background()
	var pg *Postgres
	if err := pg.Ping(ctx); err == nil {
		t.Fatalf("expected error from nil postgres")
	}
	var rd *Redis
	if err := rd.Ping(ctx); err == nil {
		t.Fatalf("expected error from nil redis")
	}
}
