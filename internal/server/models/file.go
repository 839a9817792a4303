// Package models defines server-side data models persisted in the catalog
// database.
package models

import "time"

// FileKind distinguishes regular files from folders. Modelling this as a
// tagged variant keeps invalid states (a folder carrying a content hash)
// out of the type: Blob is only meaningful when Kind == KindFile.
type FileKind string

const (
	KindFile   FileKind = "file"
	KindFolder FileKind = "folder"
)

// BlobRef describes the physical content behind a regular file. Many
// FileRecords may reference one blob (deduplication).
type BlobRef struct {
	// ContentHash is the SHA-256 digest of the exact file bytes, and the
	// key of the physical blob. Immutable once set.
	ContentHash string
	// Size is the byte length of the content.
	Size int64
}

// FileRecord is a logical file or folder in an owner's catalog.
type FileRecord struct {
	ID      string
	OwnerID string
	Name    string
	// ParentID is the containing folder, nil for the root.
	ParentID *string

	Kind FileKind
	// Blob is set for KindFile only.
	Blob *BlobRef

	// Shared is true while at least one share capability references
	// this record.
	Shared bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsFolder reports whether the record is a folder.
func (f *FileRecord) IsFolder() bool { return f.Kind == KindFolder }

// Size returns the content size, 0 for folders.
func (f *FileRecord) Size() int64 {
	if f.Blob == nil {
		return 0
	}
	return f.Blob.Size
}

// Hash returns the content hash, "" for folders.
func (f *FileRecord) Hash() string {
	if f.Blob == nil {
		return ""
	}
	return f.Blob.ContentHash
}
