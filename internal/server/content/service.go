// Package content implements the content-addressable store: physical
// bytes are written once per unique hash, logical FileRecords reference
// them, and deletion is reference counted.
package content

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dropvault/dropvault/internal/common"
	"github.com/dropvault/dropvault/internal/dbx"
	"github.com/dropvault/dropvault/internal/logging"
	"github.com/dropvault/dropvault/internal/server/blob"
	"github.com/dropvault/dropvault/internal/server/models"
	"github.com/dropvault/dropvault/internal/server/repositories/repomanager"
)

// Service owns the file catalog and the physical blob store behind it.
type Service struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	store  blob.Store
	tmpDir string
	logger logging.Logger

	// blobLocks serializes physical blob writes and removals per
	// content hash. Refcount rows order the catalog side of a
	// concurrent Put and Delete, but the byte-store operations happen
	// outside those transactions; without this lock a Delete could
	// remove bytes after a racing Put observed them present.
	blobLocks [64]sync.Mutex
}

func (s *Service) blobLock(contentHash string) *sync.Mutex {
	if contentHash == "" {
		return &s.blobLocks[0]
	}
	return &s.blobLocks[contentHash[0]%64]
}

// beforeRegister runs between blob promotion and the catalog
// transaction. Swapped in tests to interleave a concurrent delete.
var beforeRegister = func() {}

// NewService constructs the content store. tmpDir holds upload spool
// files and should live on the same filesystem as a LocalFS store root.
func NewService(db *sql.DB, repos repomanager.RepositoryManager, store blob.Store, tmpDir string, logger logging.Logger) *Service {
	return &Service{
		db:     db,
		repos:  repos,
		store:  store,
		tmpDir: tmpDir,
		logger: logger.With("module", "content"),
	}
}

// Put stores the stream as a new FileRecord owned by ownerID, returning
// the record and whether the content deduplicated against one of the
// owner's existing files.
//
// The stream is spooled to a temp file through a SHA-256 hasher, so the
// hash always covers the final assembled bytes and memory use stays
// bounded. Physical bytes are durable in the blob store before the
// record is registered: a crash mid-write leaves at worst an orphan
// blob, never a record pointing at incomplete bytes.
func (s *Service) Put(ctx context.Context, ownerID, name string, parentID *string, r io.Reader) (*models.FileRecord, bool, error) {
	if name == "" {
		return nil, false, fmt.Errorf("%w: empty file name", common.ErrValidation)
	}

	tmp, err := os.CreateTemp(s.tmpDir, "spool-*")
	if err != nil {
		return nil, false, fmt.Errorf("%w: create spool file: %v", common.ErrStorage, err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	hasher := sha256.New()
	size, err := io.Copy(tmp, io.TeeReader(r, hasher))
	if err != nil {
		return nil, false, fmt.Errorf("%w: spool upload: %v", common.ErrStorage, err)
	}
	contentHash := hex.EncodeToString(hasher.Sum(nil))

	deduped := true
	if _, err := s.repos.Files(s.db).FindByOwnerAndHash(ctx, ownerID, contentHash); err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			return nil, false, err
		}
		deduped = false
	}

	if err := s.promoteIfAbsent(ctx, contentHash, tmp, size); err != nil {
		return nil, false, err
	}

	beforeRegister()

	now := time.Now()
	rec := &models.FileRecord{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Name:      name,
		ParentID:  parentID,
		Kind:      models.KindFile,
		Blob:      &models.BlobRef{ContentHash: contentHash, Size: size},
		CreatedAt: now,
		UpdatedAt: now,
	}

	var refs int64
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Files(tx)
		refs, err = repo.IncrementBlobRef(ctx, contentHash, size)
		if err != nil {
			return err
		}
		return repo.Create(ctx, rec)
	})
	if err != nil {
		return nil, false, fmt.Errorf("%w: register file: %v", common.ErrStorage, err)
	}

	// A delete of the last previous reference may have removed the bytes
	// between our promotion check and the commit. If we now hold the only
	// reference, re-promote the spool; the record is already committed,
	// so a failure here must unregister it again (the caller was told the
	// put failed and no record may survive pointing at missing bytes).
	if refs == 1 {
		if err := s.promoteIfAbsent(ctx, contentHash, tmp, size); err != nil {
			s.unregister(ctx, rec)
			return nil, false, err
		}
	}

	s.logger.Debug(ctx, "stored file", "file_id", rec.ID, "hash", contentHash, "size", size, "deduped", deduped)
	return rec, deduped, nil
}

// promoteIfAbsent writes the spool into the blob store unless the bytes
// are already there. The per-hash lock orders the check against a
// concurrent removal of the same content.
func (s *Service) promoteIfAbsent(ctx context.Context, contentHash string, tmp *os.File, size int64) error {
	mu := s.blobLock(contentHash)
	mu.Lock()
	defer mu.Unlock()

	exists, err := s.store.Exists(ctx, contentHash)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	if exists {
		return nil
	}
	return s.putFromSpool(ctx, contentHash, tmp, size)
}

// unregister backs a committed FileRecord out of the catalog after its
// bytes could not be stored. Best effort: on failure the record stays,
// and the error it points at is already being reported to the caller.
func (s *Service) unregister(ctx context.Context, rec *models.FileRecord) {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Files(tx)
		if err := repo.Delete(ctx, rec.OwnerID, rec.ID); err != nil {
			return err
		}
		_, err := repo.DecrementBlobRef(ctx, rec.Blob.ContentHash)
		return err
	})
	if err != nil {
		s.logger.Error(ctx, "failed to unregister file after blob write failure",
			"file_id", rec.ID, "hash", rec.Blob.ContentHash, "error", err)
	}
}

func (s *Service) putFromSpool(ctx context.Context, contentHash string, tmp *os.File, size int64) error {
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: rewind spool: %v", common.ErrStorage, err)
	}
	if err := s.store.Put(ctx, contentHash, tmp, size); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return nil
}

// Delete removes the logical record and returns how many other records
// still reference the same content. Physical bytes are removed only when
// no reference remains. Folders must be empty.
func (s *Service) Delete(ctx context.Context, ownerID, fileID string) (int64, error) {
	var (
		remaining int64
		hash      string
	)
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Files(tx)

		rec, err := repo.GetByID(ctx, ownerID, fileID)
		if err != nil {
			return err
		}
		if rec.IsFolder() {
			hasChildren, err := repo.HasChildren(ctx, rec.ID)
			if err != nil {
				return err
			}
			if hasChildren {
				return fmt.Errorf("%w: folder is not empty", common.ErrValidation)
			}
		}

		if err := repo.Delete(ctx, ownerID, fileID); err != nil {
			return err
		}

		if rec.Kind == models.KindFile {
			hash = rec.Blob.ContentHash
			remaining, err = repo.DecrementBlobRef(ctx, hash)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if hash != "" && remaining == 0 {
		s.removeIfUnreferenced(ctx, hash)
	}
	return remaining, nil
}

// removeIfUnreferenced deletes the physical bytes for hash unless a
// concurrent Put has re-registered the content since our refcount hit
// zero. The re-check and the removal run under the per-hash lock, so a
// racing Put either sees the bytes gone and re-promotes its spool, or
// re-inserts the blob row first and the removal is skipped here.
func (s *Service) removeIfUnreferenced(ctx context.Context, hash string) {
	mu := s.blobLock(hash)
	mu.Lock()
	defer mu.Unlock()

	refs, err := s.repos.Files(s.db).BlobRefCount(ctx, hash)
	if err != nil {
		// Leave the bytes in place: an orphan blob is harmless, removing
		// live content is not.
		s.logger.Warn(ctx, "failed to re-check blob refs, keeping bytes", "hash", hash, "error", err)
		return
	}
	if refs > 0 {
		return
	}
	if err := s.store.Remove(ctx, hash); err != nil {
		// The catalog row is gone; the orphan blob is unreachable
		// and harmless, so report but do not fail the delete.
		s.logger.Warn(ctx, "failed to remove orphan blob", "hash", hash, "error", err)
	}
}

// Get returns the owner's record for fileID.
func (s *Service) Get(ctx context.Context, ownerID, fileID string) (*models.FileRecord, error) {
	return s.repos.Files(s.db).GetByID(ctx, ownerID, fileID)
}

// List returns the owner's records under parentID (nil for the root),
// newest first.
func (s *Service) List(ctx context.Context, ownerID string, parentID *string) ([]*models.FileRecord, error) {
	return s.repos.Files(s.db).ListByParent(ctx, ownerID, parentID)
}

// CreateFolder registers a folder record. Folders carry no content hash.
func (s *Service) CreateFolder(ctx context.Context, ownerID, name string, parentID *string) (*models.FileRecord, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty folder name", common.ErrValidation)
	}
	now := time.Now()
	rec := &models.FileRecord{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Name:      name,
		ParentID:  parentID,
		Kind:      models.KindFolder,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repos.Files(s.db).Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: register folder: %v", common.ErrStorage, err)
	}
	return rec, nil
}
