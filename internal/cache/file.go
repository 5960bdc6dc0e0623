package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// File stores one JSON envelope per key as <dir>/<key>.json.
type File struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

// NewFile creates a file cache rooted at dir. The directory is created on
// first write.
func NewFile(dir string, ttl time.Duration) *File {
	return &File{dir: dir, ttl: ttl, now: time.Now}
}

func (f *File) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("cache: invalid key %q", key)
	}
	return filepath.Join(f.dir, key+".json"), nil
}

func (f *File) Get(_ context.Context, key string) ([]byte, bool, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: read %s: %w", p, err)
	}
	e, err := DecodeEntry(b)
	if err != nil {
		return nil, false, err
	}
	if !e.Fresh(f.now(), f.ttl) {
		return nil, false, nil
	}
	return e.Data, true, nil
}

func (f *File) Set(_ context.Context, key string, data []byte) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("cache: mkdir %s: %w", f.dir, err)
	}
	b, err := NewEntry(f.now(), data).Encode()
	if err != nil {
		return err
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("cache: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("cache: rename %s: %w", p, err)
	}
	return nil
}

func (f *File) Close() error { return nil }
