package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

// FS writes snapshots as JSON files under a directory.
type FS struct {
	dir string
	now func() time.Time
}

// NewFS returns a filesystem archiver rooted at dir.
func NewFS(dir string) *FS {
	if dir == "" {
		dir = "archive"
	}
	return &FS{dir: dir, now: time.Now}
}

func (f *FS) Driver() string { return "fs" }

func (f *FS) Archive(ctx context.Context, s *domain.SystemState) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := encode(s)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.MkdirAll(f.dir, 0o750); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}
	key := Key("", f.now(), s.Version)
	path := filepath.Join(f.dir, key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("rename snapshot: %w", err)
	}
	return key, nil
}

func (f *FS) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(f.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			keys = append(keys, e.Name())
		}
	}
	sort.Strings(keys)
	return keys, nil
}
