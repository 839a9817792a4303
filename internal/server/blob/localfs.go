package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dropvault/dropvault/internal/filex"
)

// LocalFS stores blobs as files under a root directory, sharded by the
// first hash bytes to keep directory fan-out bounded.
type LocalFS struct {
	root string
}

// NewLocalFS creates the root directory if needed and returns the store.
func NewLocalFS(root string) (*LocalFS, error) {
	dir, err := filex.EnsureDir(root)
	if err != nil {
		return nil, err
	}
	return &LocalFS{root: dir}, nil
}

func (s *LocalFS) path(key string) string {
	if len(key) < 4 {
		return filepath.Join(s.root, key)
	}
	return filepath.Join(s.root, key[:2], key[2:4], key)
}

// Put writes to a temp file in the destination directory and renames it
// into place, so a crash mid-write never leaves a readable partial blob
// under the final key.
func (s *LocalFS) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	dst := s.path(key)
	if _, err := filex.EnsureDir(filepath.Dir(dst)); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".put-*")
	if err != nil {
		return fmt.Errorf("create temp blob: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close blob: %w", err)
	}

	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("promote blob: %w", err)
	}
	return nil
}

func (s *LocalFS) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(key))
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

func (s *LocalFS) GetRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	f, err := os.Open(s.path(key))
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("seek blob: %w", err)
	}
	return &windowReader{r: io.LimitReader(f, length), c: f}, nil
}

func (s *LocalFS) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(s.path(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat blob: %w", err)
}

func (s *LocalFS) Remove(ctx context.Context, key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

// windowReader bounds reads to a range while closing the underlying file.
type windowReader struct {
	r io.Reader
	c io.Closer
}

func (w *windowReader) Read(p []byte) (int, error) { return w.r.Read(p) }
func (w *windowReader) Close() error               { return w.c.Close() }
