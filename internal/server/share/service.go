// Package share mints and resolves capability tokens granting public,
// optionally password-gated, optionally expiring read access to one
// file or folder.
package share

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dropvault/dropvault/internal/common"
	"github.com/dropvault/dropvault/internal/dbx"
	"github.com/dropvault/dropvault/internal/logging"
	"github.com/dropvault/dropvault/internal/server/models"
	"github.com/dropvault/dropvault/internal/server/repositories/repomanager"
	"github.com/dropvault/dropvault/internal/server/stream"
)

// Info is the public metadata of a share capability.
type Info struct {
	ShareID           string
	Token             string
	FileID            string
	FileName          string
	Size              int64
	IsFolder          bool
	ExpiresAt         *time.Time
	PasswordProtected bool
	CreatedAt         time.Time
	URL               string
}

// Resolved is the outcome of a successful public resolution: a content
// stream for files, a listing for folders.
type Resolved struct {
	File    *models.FileRecord
	Content *stream.Result
	Listing []*models.FileRecord
}

// Update mutates a capability. Nil fields mean "leave unchanged"; an
// explicit empty Password clears the gate, ExpiresInHours <= 0 clears
// the expiry.
type Update struct {
	ExpiresInHours *int
	Password       *string
}

// Service manages share capabilities.
type Service struct {
	db       *sql.DB
	repos    repomanager.RepositoryManager
	streamer *stream.Service
	baseURL  string
	logger   logging.Logger
}

// NewService constructs the share manager. baseURL is used to render
// public share links.
func NewService(db *sql.DB, repos repomanager.RepositoryManager, streamer *stream.Service, baseURL string, logger logging.Logger) *Service {
	return &Service{
		db:       db,
		repos:    repos,
		streamer: streamer,
		baseURL:  baseURL,
		logger:   logger.With("module", "share"),
	}
}

func (s *Service) shareURL(token string) string {
	return fmt.Sprintf("%s/share/%s", s.baseURL, token)
}

// Create mints a capability for the owner's file. The token carries 256
// bits from a cryptographically secure source; only a bcrypt hash of the
// password is stored.
func (s *Service) Create(ctx context.Context, ownerID, fileID string, expiresInHours *int, password *string) (*Info, error) {
	rec, err := s.repos.Files(s.db).GetByID(ctx, ownerID, fileID)
	if err != nil {
		return nil, err
	}

	token, err := common.MakeRandToken(common.ShareTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: generate token: %v", common.ErrStorage, err)
	}

	var expiresAt *time.Time
	if expiresInHours != nil && *expiresInHours > 0 {
		t := time.Now().Add(time.Duration(*expiresInHours) * time.Hour)
		expiresAt = &t
	}

	passwordHash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	cap := &models.ShareCapability{
		ID:           uuid.New().String(),
		FileID:       rec.ID,
		OwnerID:      ownerID,
		Token:        token,
		PasswordHash: passwordHash,
		ExpiresAt:    expiresAt,
		CreatedAt:    time.Now(),
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repos.Shares(tx).Create(ctx, cap); err != nil {
			return err
		}
		return s.repos.Files(tx).SetShared(ctx, rec.ID, true)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create share: %v", common.ErrStorage, err)
	}

	s.logger.Info(ctx, "share created", "share_id", cap.ID, "file_id", rec.ID,
		"expires", expiresAt != nil, "password", passwordHash != nil)
	return s.info(cap, rec), nil
}

func hashPassword(password *string) (*string, error) {
	if password == nil || *password == "" {
		return nil, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	h := string(hash)
	return &h, nil
}

// authorize runs the three independent gates in order: the token must
// exist, must not be expired, and any password gate must pass. Each gate
// fails with its own error kind so callers can tell "bad link" from
// "link died" from "need a password".
func (s *Service) authorize(ctx context.Context, token, password string) (*models.ShareCapability, error) {
	cap, err := s.repos.Shares(s.db).GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if cap.ExpiredAt(time.Now()) {
		return nil, common.ErrExpired
	}
	if cap.PasswordHash != nil {
		if password == "" {
			return nil, common.ErrPasswordRequired
		}
		if bcrypt.CompareHashAndPassword([]byte(*cap.PasswordHash), []byte(password)) != nil {
			return nil, common.ErrUnauthorized
		}
	}
	return cap, nil
}

// Resolve grants public access through a token: folder tokens yield a
// listing, file tokens a (optionally ranged) content stream.
func (s *Service) Resolve(ctx context.Context, token, password string, rng *stream.ByteRange) (*Resolved, error) {
	cap, err := s.authorize(ctx, token, password)
	if err != nil {
		return nil, err
	}

	rec, err := s.repos.Files(s.db).GetAny(ctx, cap.FileID)
	if err != nil {
		return nil, err
	}

	if rec.IsFolder() {
		listing, err := s.repos.Files(s.db).ListFolder(ctx, rec.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: list folder: %v", common.ErrStorage, err)
		}
		return &Resolved{File: rec, Listing: listing}, nil
	}

	result, err := s.streamer.StreamRecord(ctx, rec, rng)
	if err != nil {
		return nil, err
	}
	return &Resolved{File: rec, Content: result}, nil
}

// ResolveInfo returns share metadata without requiring the password.
// Expiry is still honored: a dead link stays dead even for metadata.
func (s *Service) ResolveInfo(ctx context.Context, token string) (*Info, error) {
	cap, err := s.repos.Shares(s.db).GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if cap.ExpiredAt(time.Now()) {
		return nil, common.ErrExpired
	}
	rec, err := s.repos.Files(s.db).GetAny(ctx, cap.FileID)
	if err != nil {
		return nil, err
	}
	return s.info(cap, rec), nil
}

// List returns the owner's capabilities with their target metadata.
func (s *Service) List(ctx context.Context, ownerID string) ([]*Info, error) {
	caps, err := s.repos.Shares(s.db).ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: list shares: %v", common.ErrStorage, err)
	}

	infos := make([]*Info, 0, len(caps))
	for _, cap := range caps {
		rec, err := s.repos.Files(s.db).GetAny(ctx, cap.FileID)
		if err != nil {
			return nil, err
		}
		infos = append(infos, s.info(cap, rec))
	}
	return infos, nil
}

// Apply updates an owner's capability per the Update semantics.
func (s *Service) Apply(ctx context.Context, ownerID, shareID string, upd Update) error {
	cap, err := s.repos.Shares(s.db).GetByID(ctx, ownerID, shareID)
	if err != nil {
		return err
	}

	if upd.ExpiresInHours != nil {
		var expiresAt *time.Time
		if *upd.ExpiresInHours > 0 {
			t := time.Now().Add(time.Duration(*upd.ExpiresInHours) * time.Hour)
			expiresAt = &t
		}
		if err := s.repos.Shares(s.db).UpdateExpiry(ctx, cap.ID, expiresAt); err != nil {
			return fmt.Errorf("%w: update expiry: %v", common.ErrStorage, err)
		}
	}

	if upd.Password != nil {
		passwordHash, err := hashPassword(upd.Password)
		if err != nil {
			return err
		}
		if err := s.repos.Shares(s.db).UpdatePassword(ctx, cap.ID, passwordHash); err != nil {
			return fmt.Errorf("%w: update password: %v", common.ErrStorage, err)
		}
	}
	return nil
}

// Delete revokes a capability. When it was the file's last capability,
// the file's shared flag is cleared in the same transaction.
func (s *Service) Delete(ctx context.Context, ownerID, shareID string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		cap, err := s.repos.Shares(tx).GetByID(ctx, ownerID, shareID)
		if err != nil {
			return err
		}
		if err := s.repos.Shares(tx).Delete(ctx, ownerID, cap.ID); err != nil {
			return err
		}
		remaining, err := s.repos.Shares(tx).CountForFile(ctx, cap.FileID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			return s.repos.Files(tx).SetShared(ctx, cap.FileID, false)
		}
		return nil
	})
}

func (s *Service) info(cap *models.ShareCapability, rec *models.FileRecord) *Info {
	return &Info{
		ShareID:           cap.ID,
		Token:             cap.Token,
		FileID:            rec.ID,
		FileName:          rec.Name,
		Size:              rec.Size(),
		IsFolder:          rec.IsFolder(),
		ExpiresAt:         cap.ExpiresAt,
		PasswordProtected: cap.PasswordProtected(),
		CreatedAt:         cap.CreatedAt,
		URL:               s.shareURL(cap.Token),
	}
}
