// Package stream serves full or partial byte ranges of stored content
// with partial-content semantics.
package stream

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/dropvault/dropvault/internal/common"
	"github.com/dropvault/dropvault/internal/server/blob"
	"github.com/dropvault/dropvault/internal/server/models"
	"github.com/dropvault/dropvault/internal/server/repositories/repomanager"
)

// ByteRange is a single requested range. End < 0 means "to the end of
// the content" (an omitted range end).
type ByteRange struct {
	Start int64
	End   int64
}

// Status tells the transport whether the body is the whole content or a
// window of it.
type Status int

const (
	StatusFull Status = iota
	StatusPartial
)

// Result is a ready-to-serve byte stream plus the numbers the transport
// needs for Content-Length and Content-Range.
type Result struct {
	Body   io.ReadCloser
	Status Status

	// Start and End are the inclusive bounds of the served window.
	Start int64
	End   int64
	// Size is the total content length.
	Size int64

	Name string
}

// Length is the number of bytes in the served window.
func (r *Result) Length() int64 { return r.End - r.Start + 1 }

// ContentRange renders the "start-end/size" descriptor of the window.
func (r *Result) ContentRange() string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, r.Size)
}

// Service resolves owner files to byte streams.
type Service struct {
	db    *sql.DB
	repos repomanager.RepositoryManager
	store blob.Store
}

// NewService constructs the streamer.
func NewService(db *sql.DB, repos repomanager.RepositoryManager, store blob.Store) *Service {
	return &Service{db: db, repos: repos, store: store}
}

// Stream opens the owner's file, optionally limited to rng.
func (s *Service) Stream(ctx context.Context, ownerID, fileID string, rng *ByteRange) (*Result, error) {
	rec, err := s.repos.Files(s.db).GetByID(ctx, ownerID, fileID)
	if err != nil {
		return nil, err
	}
	return s.StreamRecord(ctx, rec, rng)
}

// StreamRecord opens an already-authorized record, optionally limited to
// rng. Share resolution uses this directly: there the capability token,
// not ownership, grants access.
//
// The body is a bounded window over the blob store (seek plus limit, or
// a ranged object read), never a full in-memory copy.
func (s *Service) StreamRecord(ctx context.Context, rec *models.FileRecord, rng *ByteRange) (*Result, error) {
	if rec.IsFolder() {
		return nil, fmt.Errorf("%w: cannot stream a folder", common.ErrValidation)
	}
	size := rec.Size()

	if rng == nil {
		body, err := s.store.Get(ctx, rec.Blob.ContentHash)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrStorage, err)
		}
		return &Result{Body: body, Status: StatusFull, Start: 0, End: size - 1, Size: size, Name: rec.Name}, nil
	}

	start, end := rng.Start, rng.End
	if end < 0 || end >= size {
		end = size - 1
	}
	if start < 0 || start >= size || start > end {
		return nil, fmt.Errorf("%w: bytes %d-%d of %d", common.ErrRangeNotSatisfiable, rng.Start, rng.End, size)
	}

	body, err := s.store.GetRange(ctx, rec.Blob.ContentHash, start, end-start+1)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return &Result{Body: body, Status: StatusPartial, Start: start, End: end, Size: size, Name: rec.Name}, nil
}
