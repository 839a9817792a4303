// Package upload implements chunked, resumable upload sessions and the
// bounded-concurrency coordinator for multi-file uploads.
package upload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dropvault/dropvault/internal/filex"
)

// ChunkStore holds in-flight chunk blobs for upload sessions, one
// directory per session under its root.
type ChunkStore struct {
	root string
}

// NewChunkStore creates the root directory if needed.
func NewChunkStore(root string) (*ChunkStore, error) {
	dir, err := filex.EnsureDir(root)
	if err != nil {
		return nil, err
	}
	return &ChunkStore{root: dir}, nil
}

func (c *ChunkStore) chunkPath(sessionID string, index int) string {
	return filepath.Join(c.root, sessionID, fmt.Sprintf("chunk_%d", index))
}

// Save writes one chunk, replacing any previous upload of the same
// index. The write goes to a temp file and is renamed into place, so a
// concurrent re-upload of the index yields one intact version, never a
// torn mix (last write wins).
func (c *ChunkStore) Save(sessionID string, index int, r io.Reader) (int64, error) {
	dir, err := filex.EnsureSubDir(c.root, sessionID)
	if err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(dir, fmt.Sprintf(".chunk_%d-*", index))
	if err != nil {
		return 0, fmt.Errorf("create chunk temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("write chunk: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close chunk: %w", err)
	}

	if err := os.Rename(tmp.Name(), c.chunkPath(sessionID, index)); err != nil {
		return 0, fmt.Errorf("promote chunk: %w", err)
	}
	return n, nil
}

// Open opens one stored chunk.
func (c *ChunkStore) Open(sessionID string, index int) (io.ReadCloser, error) {
	f, err := os.Open(c.chunkPath(sessionID, index))
	if err != nil {
		return nil, fmt.Errorf("open chunk %d: %w", index, err)
	}
	return f, nil
}

// Remove deletes all chunk blobs of a session.
func (c *ChunkStore) Remove(sessionID string) error {
	if err := os.RemoveAll(filepath.Join(c.root, sessionID)); err != nil {
		return fmt.Errorf("remove session chunks: %w", err)
	}
	return nil
}
