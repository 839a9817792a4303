// Package blob stores physical file content addressed by content hash.
// Backends share one Store interface so the content layer does not care
// whether bytes live on the local filesystem or in an S3 bucket.
package blob

import (
	"context"
	"io"
)

// Store is a key-addressed byte store. Keys are content hashes, so a Put
// to an existing key writes the same bytes and is safe to repeat.
type Store interface {
	// Put durably writes the content under key. Overwrites are allowed
	// and must leave either the old or the new (identical) bytes, never
	// a torn mix.
	Put(ctx context.Context, key string, r io.Reader, size int64) error

	// Get opens the full content.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// GetRange opens a window of length bytes starting at offset. The
	// caller has already validated the window against the content size.
	GetRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error)

	// Exists reports whether key holds content.
	Exists(ctx context.Context, key string) (bool, error)

	// Remove deletes the content. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}
