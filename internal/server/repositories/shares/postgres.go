package shares

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dropvault/dropvault/internal/common"
	"github.com/dropvault/dropvault/internal/dbx"
	"github.com/dropvault/dropvault/internal/server/models"
)

// PostgresRepository implements share storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const shareColumns = `id, file_id, owner_id, token, password_hash, expires_at, created_at`

func scanShare(row interface{ Scan(dest ...any) error }) (*models.ShareCapability, error) {
	var s models.ShareCapability
	err := row.Scan(&s.ID, &s.FileID, &s.OwnerID, &s.Token, &s.PasswordHash, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *PostgresRepository) Create(ctx context.Context, s *models.ShareCapability) error {
	query := `
		INSERT INTO shares (id, file_id, owner_id, token, password_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.FileID, s.OwnerID, s.Token, s.PasswordHash, s.ExpiresAt, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert share: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByToken(ctx context.Context, token string) (*models.ShareCapability, error) {
	query := `SELECT ` + shareColumns + ` FROM shares WHERE token=$1`
	s, err := scanShare(r.db.QueryRowContext(ctx, query, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select share: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, ownerID, id string) (*models.ShareCapability, error) {
	query := `SELECT ` + shareColumns + ` FROM shares WHERE id=$1 AND owner_id=$2`
	s, err := scanShare(r.db.QueryRowContext(ctx, query, id, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select share: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.ShareCapability, error) {
	query := `SELECT ` + shareColumns + ` FROM shares WHERE owner_id=$1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}
	defer rows.Close()

	var result []*models.ShareCapability
	for rows.Next() {
		s, err := scanShare(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) CountForFile(ctx context.Context, fileID string) (int64, error) {
	query := `SELECT COUNT(*) FROM shares WHERE file_id=$1`
	var n int64
	if err := r.db.QueryRowContext(ctx, query, fileID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count shares: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) UpdateExpiry(ctx context.Context, id string, expiresAt *time.Time) error {
	query := `UPDATE shares SET expires_at=$1 WHERE id=$2`
	return r.exec(ctx, query, expiresAt, id)
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, id string, passwordHash *string) error {
	query := `UPDATE shares SET password_hash=$1 WHERE id=$2`
	return r.exec(ctx, query, passwordHash, id)
}

func (r *PostgresRepository) Delete(ctx context.Context, ownerID, id string) error {
	query := `DELETE FROM shares WHERE id=$1 AND owner_id=$2`
	return r.exec(ctx, query, id, ownerID)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
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
