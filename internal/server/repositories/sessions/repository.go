// Package sessions persists chunked-upload sessions and their
// received-chunk presence rows.
package sessions

import (
	"context"

	"github.com/dropvault/dropvault/internal/server/models"
)

// Repository stores upload sessions. Chunk receipt is tracked as one row
// per (session, index) with a primary-key constraint, so recording a
// chunk is an atomic set insert rather than an array append.
type Repository interface {
	Create(ctx context.Context, s *models.UploadSession) error
	// Get is owner-scoped; sessions of other owners behave as absent.
	Get(ctx context.Context, ownerID, id string) (*models.UploadSession, error)

	// Transition flips status from->to and reports whether this call won
	// the flip. Guarded transitions serialize concurrent Complete calls.
	Transition(ctx context.Context, id string, from, to models.SessionStatus) (bool, error)
	SetStatus(ctx context.Context, id string, status models.SessionStatus) error

	// AddChunk records receipt of one chunk index, idempotently.
	AddChunk(ctx context.Context, sessionID string, index int) error
	ReceivedCount(ctx context.Context, sessionID string) (int, error)
}
