// Package files persists FileRecords and physical blob reference counts.
package files

import (
	"context"

	"github.com/dropvault/dropvault/internal/server/models"
)

// Repository is the catalog of logical file records plus the physical
// blob entries they reference. All methods that take an owner are
// owner-scoped: a record owned by someone else behaves as absent.
type Repository interface {
	Create(ctx context.Context, rec *models.FileRecord) error
	GetByID(ctx context.Context, ownerID, id string) (*models.FileRecord, error)
	// GetAny fetches a record regardless of owner. Used by share
	// resolution, where access is granted by capability token instead.
	GetAny(ctx context.Context, id string) (*models.FileRecord, error)
	ListByParent(ctx context.Context, ownerID string, parentID *string) ([]*models.FileRecord, error)
	// ListFolder lists a folder's children without owner scoping,
	// folders first then by name, for shared-folder listings.
	ListFolder(ctx context.Context, folderID string) ([]*models.FileRecord, error)
	HasChildren(ctx context.Context, id string) (bool, error)
	FindByOwnerAndHash(ctx context.Context, ownerID, contentHash string) (*models.FileRecord, error)
	Delete(ctx context.Context, ownerID, id string) error
	SetShared(ctx context.Context, id string, shared bool) error

	// IncrementBlobRef registers one more logical reference to the blob
	// with the given hash, creating the physical entry when absent, and
	// returns the resulting reference count.
	IncrementBlobRef(ctx context.Context, contentHash string, size int64) (int64, error)
	// DecrementBlobRef releases one reference and returns how many
	// remain. The physical entry row is removed when the count hits zero.
	DecrementBlobRef(ctx context.Context, contentHash string) (int64, error)
	// BlobRefCount returns the current reference count for the blob,
	// 0 when no entry exists.
	BlobRefCount(ctx context.Context, contentHash string) (int64, error)
}
