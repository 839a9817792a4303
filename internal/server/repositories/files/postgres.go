package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dropvault/dropvault/internal/common"
	"github.com/dropvault/dropvault/internal/dbx"
	"github.com/dropvault/dropvault/internal/server/models"
)

// PostgresRepository implements the file catalog over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const recordColumns = `id, owner_id, name, parent_id, is_folder, content_hash, size, is_shared, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.FileRecord, error) {
	var (
		rec      models.FileRecord
		isFolder bool
		hash     sql.NullString
		size     int64
	)
	err := row.Scan(&rec.ID, &rec.OwnerID, &rec.Name, &rec.ParentID,
		&isFolder, &hash, &size, &rec.Shared, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if isFolder {
		rec.Kind = models.KindFolder
	} else {
		rec.Kind = models.KindFile
		rec.Blob = &models.BlobRef{ContentHash: hash.String, Size: size}
	}
	return &rec, nil
}

func (r *PostgresRepository) Create(ctx context.Context, rec *models.FileRecord) error {
	query := `
		INSERT INTO files (id, owner_id, name, parent_id, is_folder, content_hash, size, is_shared, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	var hash *string
	var size int64
	if rec.Blob != nil {
		hash = &rec.Blob.ContentHash
		size = rec.Blob.Size
	}
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.OwnerID, rec.Name, rec.ParentID, rec.IsFolder(),
		hash, size, rec.Shared, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, ownerID, id string) (*models.FileRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM files WHERE id=$1 AND owner_id=$2`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, id, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select file: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) GetAny(ctx context.Context, id string) (*models.FileRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM files WHERE id=$1`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select file: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) FindByOwnerAndHash(ctx context.Context, ownerID, contentHash string) (*models.FileRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM files WHERE owner_id=$1 AND content_hash=$2 LIMIT 1`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, ownerID, contentHash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select file by hash: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) ListByParent(ctx context.Context, ownerID string, parentID *string) ([]*models.FileRecord, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if parentID == nil {
		query := `SELECT ` + recordColumns + ` FROM files WHERE owner_id=$1 AND parent_id IS NULL ORDER BY created_at DESC`
		rows, err = r.db.QueryContext(ctx, query, ownerID)
	} else {
		query := `SELECT ` + recordColumns + ` FROM files WHERE owner_id=$1 AND parent_id=$2 ORDER BY created_at DESC`
		rows, err = r.db.QueryContext(ctx, query, ownerID, *parentID)
	}
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return collectRecords(rows)
}

func (r *PostgresRepository) ListFolder(ctx context.Context, folderID string) ([]*models.FileRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM files WHERE parent_id=$1 ORDER BY is_folder DESC, name ASC`
	rows, err := r.db.QueryContext(ctx, query, folderID)
	if err != nil {
		return nil, fmt.Errorf("list folder: %w", err)
	}
	return collectRecords(rows)
}

func collectRecords(rows *sql.Rows) ([]*models.FileRecord, error) {
	defer rows.Close()

	var result []*models.FileRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) HasChildren(ctx context.Context, id string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM files WHERE parent_id=$1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check children: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, ownerID, id string) error {
	query := `DELETE FROM files WHERE id=$1 AND owner_id=$2`
	result, err := r.db.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) SetShared(ctx context.Context, id string, shared bool) error {
	query := `UPDATE files SET is_shared=$1, updated_at=NOW() WHERE id=$2`
	if _, err := r.db.ExecContext(ctx, query, shared, id); err != nil {
		return fmt.Errorf("set shared: %w", err)
	}
	return nil
}

// IncrementBlobRef upserts the physical entry for contentHash and bumps
// its reference count. The row-level lock taken by the upsert is what
// serializes a Put registering a new reference against a concurrent
// Delete releasing the last one.
func (r *PostgresRepository) IncrementBlobRef(ctx context.Context, contentHash string, size int64) (int64, error) {
	query := `
		INSERT INTO blobs (content_hash, size, ref_count)
		VALUES ($1, $2, 1)
		ON CONFLICT (content_hash)
		DO UPDATE SET ref_count = blobs.ref_count + 1
		RETURNING ref_count
	`
	var refs int64
	if err := r.db.QueryRowContext(ctx, query, contentHash, size).Scan(&refs); err != nil {
		return 0, fmt.Errorf("increment blob ref: %w", err)
	}
	return refs, nil
}

func (r *PostgresRepository) DecrementBlobRef(ctx context.Context, contentHash string) (int64, error) {
	query := `
		UPDATE blobs SET ref_count = ref_count - 1
		WHERE content_hash=$1
		RETURNING ref_count
	`
	var refs int64
	err := r.db.QueryRowContext(ctx, query, contentHash).Scan(&refs)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, common.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("decrement blob ref: %w", err)
	}
	if refs <= 0 {
		if _, err := r.db.ExecContext(ctx, `DELETE FROM blobs WHERE content_hash=$1`, contentHash); err != nil {
			return 0, fmt.Errorf("remove blob entry: %w", err)
		}
	}
	return refs, nil
}

func (r *PostgresRepository) BlobRefCount(ctx context.Context, contentHash string) (int64, error) {
	var refs int64
	err := r.db.QueryRowContext(ctx, `SELECT ref_count FROM blobs WHERE content_hash=$1`, contentHash).Scan(&refs)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("select blob ref count: %w", err)
	}
	return refs, nil
}
