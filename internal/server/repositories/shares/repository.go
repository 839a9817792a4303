// Package shares persists share capabilities.
package shares

import (
	"context"
	"time"

	"github.com/dropvault/dropvault/internal/server/models"
)

// Repository stores share capabilities. Owner-keyed methods treat
// capabilities of other owners as absent.
type Repository interface {
	Create(ctx context.Context, s *models.ShareCapability) error
	GetByToken(ctx context.Context, token string) (*models.ShareCapability, error)
	GetByID(ctx context.Context, ownerID, id string) (*models.ShareCapability, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.ShareCapability, error)
	// CountForFile reports how many capabilities still reference a file.
	CountForFile(ctx context.Context, fileID string) (int64, error)
	UpdateExpiry(ctx context.Context, id string, expiresAt *time.Time) error
	UpdatePassword(ctx context.Context, id string, passwordHash *string) error
	Delete(ctx context.Context, ownerID, id string) error
}
