package sessions

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

// PostgresRepository implements session storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, s *models.UploadSession) error {
	query := `
		INSERT INTO upload_sessions (id, owner_id, file_name, declared_size, chunk_count, chunk_size, parent_id, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.OwnerID, s.FileName, s.DeclaredSize, s.ChunkCount, s.ChunkSize,
		s.ParentID, string(s.Status), s.CreatedAt, s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, ownerID, id string) (*models.UploadSession, error) {
	query := `
		SELECT id, owner_id, file_name, declared_size, chunk_count, chunk_size, parent_id, status, created_at, expires_at
		FROM upload_sessions WHERE id=$1 AND owner_id=$2
	`
	var (
		s      models.UploadSession
		status string
	)
	err := r.db.QueryRowContext(ctx, query, id, ownerID).Scan(
		&s.ID, &s.OwnerID, &s.FileName, &s.DeclaredSize, &s.ChunkCount, &s.ChunkSize,
		&s.ParentID, &status, &s.CreatedAt, &s.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}
	s.Status = models.SessionStatus(status)
	return &s, nil
}

func (r *PostgresRepository) Transition(ctx context.Context, id string, from, to models.SessionStatus) (bool, error) {
	query := `UPDATE upload_sessions SET status=$1 WHERE id=$2 AND status=$3`
	result, err := r.db.ExecContext(ctx, query, string(to), id, string(from))
	if err != nil {
		return false, fmt.Errorf("transition session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) SetStatus(ctx context.Context, id string, status models.SessionStatus) error {
	query := `UPDATE upload_sessions SET status=$1 WHERE id=$2`
	result, err := r.db.ExecContext(ctx, query, string(status), id)
	if err != nil {
		return fmt.Errorf("set session status: %w", err)
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

func (r *PostgresRepository) AddChunk(ctx context.Context, sessionID string, index int) error {
	query := `
		INSERT INTO session_chunks (session_id, chunk_index, received_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id, chunk_index) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, sessionID, index, time.Now()); err != nil {
		return fmt.Errorf("record chunk: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ReceivedCount(ctx context.Context, sessionID string) (int, error) {
	query := `SELECT COUNT(*) FROM session_chunks WHERE session_id=$1`
	var n int
	if err := r.db.QueryRowContext(ctx, query, sessionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}
