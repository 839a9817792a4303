package upload

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/dropvault/dropvault/internal/common"
	"github.com/dropvault/dropvault/internal/logging"
	"github.com/dropvault/dropvault/internal/server/content"
	"github.com/dropvault/dropvault/internal/server/models"
	"github.com/dropvault/dropvault/internal/server/repositories/repomanager"
)

// SessionService owns the chunked-upload session lifecycle: init, chunk
// receipt, completion, and lazy expiry.
type SessionService struct {
	db      *sql.DB
	repos   repomanager.RepositoryManager
	chunks  *ChunkStore
	content *content.Service

	ttl       time.Duration
	chunkSize int64
	logger    logging.Logger
}

// NewSessionService constructs the session manager. ttl bounds session
// lifetime from Init; chunkSize is only a hint reported to clients.
func NewSessionService(db *sql.DB, repos repomanager.RepositoryManager, chunks *ChunkStore,
	cs *content.Service, ttl time.Duration, chunkSize int64, logger logging.Logger) *SessionService {
	return &SessionService{
		db:        db,
		repos:     repos,
		chunks:    chunks,
		content:   cs,
		ttl:       ttl,
		chunkSize: chunkSize,
		logger:    logger.With("module", "upload_sessions"),
	}
}

// ChunkSizeHint is the chunk size reported to clients on Init.
func (s *SessionService) ChunkSizeHint() int64 { return s.chunkSize }

// Init creates a pending session with an empty received set.
func (s *SessionService) Init(ctx context.Context, ownerID, name string, declaredSize int64, chunkCount int, parentID *string) (*models.UploadSession, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty file name", common.ErrValidation)
	}
	if declaredSize <= 0 {
		return nil, fmt.Errorf("%w: declared size must be positive", common.ErrValidation)
	}
	if chunkCount <= 0 {
		return nil, fmt.Errorf("%w: chunk count must be positive", common.ErrValidation)
	}

	now := time.Now()
	sess := &models.UploadSession{
		ID:           uuid.New().String(),
		OwnerID:      ownerID,
		FileName:     name,
		DeclaredSize: declaredSize,
		ChunkCount:   chunkCount,
		ChunkSize:    s.chunkSize,
		ParentID:     parentID,
		Status:       models.SessionPending,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	}
	if err := s.repos.Sessions(s.db).Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("%w: create session: %v", common.ErrStorage, err)
	}
	s.logger.Info(ctx, "session initialized", "session_id", sess.ID, "chunks", chunkCount)
	return sess, nil
}

// load fetches an owner's session, applying the lazy expiry check:
// sessions past their expiry are marked expired and rejected here, so
// no background sweeper is needed to stop writes to them.
func (s *SessionService) load(ctx context.Context, ownerID, sessionID string) (*models.UploadSession, error) {
	sess, err := s.repos.Sessions(s.db).Get(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status == models.SessionExpired {
		return nil, common.ErrExpired
	}
	if sess.Status != models.SessionCompleted && sess.ExpiredAt(time.Now()) {
		if _, err := s.repos.Sessions(s.db).Transition(ctx, sess.ID, sess.Status, models.SessionExpired); err != nil {
			s.logger.Warn(ctx, "failed to mark session expired", "session_id", sess.ID, "error", err)
		}
		// Chunk blobs are reclaimed here rather than by a sweeper;
		// rejecting the request does not depend on cleanup succeeding.
		if err := s.chunks.Remove(sess.ID); err != nil {
			s.logger.Warn(ctx, "failed to remove expired chunks", "session_id", sess.ID, "error", err)
		}
		return nil, common.ErrExpired
	}
	return sess, nil
}

// RecordChunk stores one chunk. Repeating an index overwrites the
// previous bytes and leaves the received set unchanged, so chunk upload
// is safely retryable.
func (s *SessionService) RecordChunk(ctx context.Context, ownerID, sessionID string, index int, r io.Reader) error {
	sess, err := s.load(ctx, ownerID, sessionID)
	if err != nil {
		return err
	}
	if sess.Status == models.SessionCompleted {
		return common.ErrNotFound
	}
	if index < 0 || index >= sess.ChunkCount {
		return fmt.Errorf("%w: chunk index %d outside [0, %d)", common.ErrValidation, index, sess.ChunkCount)
	}

	if _, err := s.chunks.Save(sess.ID, index, r); err != nil {
		return fmt.Errorf("%w: save chunk: %v", common.ErrStorage, err)
	}
	if err := s.repos.Sessions(s.db).AddChunk(ctx, sess.ID, index); err != nil {
		return fmt.Errorf("%w: record chunk: %v", common.ErrStorage, err)
	}

	if sess.Status == models.SessionPending {
		if _, err := s.repos.Sessions(s.db).Transition(ctx, sess.ID, models.SessionPending, models.SessionReceiving); err != nil {
			return fmt.Errorf("%w: update session: %v", common.ErrStorage, err)
		}
	}
	return nil
}

// Complete assembles the session into a FileRecord. It succeeds only
// when every chunk index has been received, and only one concurrent
// caller may assemble: the guarded receiving->completed transition picks
// the winner, and a failed assembly reverts to receiving so the caller
// can retry. Chunk blobs are deleted only after the content is durably
// stored and hashed.
func (s *SessionService) Complete(ctx context.Context, ownerID, sessionID string) (*models.FileRecord, error) {
	sess, err := s.load(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status == models.SessionCompleted {
		return nil, fmt.Errorf("%w: session already completed", common.ErrValidation)
	}

	received, err := s.repos.Sessions(s.db).ReceivedCount(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: count chunks: %v", common.ErrStorage, err)
	}
	if received != sess.ChunkCount {
		return nil, fmt.Errorf("%w: received %d of %d chunks", common.ErrIncomplete, received, sess.ChunkCount)
	}

	won, err := s.repos.Sessions(s.db).Transition(ctx, sess.ID, models.SessionReceiving, models.SessionCompleted)
	if err != nil {
		return nil, fmt.Errorf("%w: transition session: %v", common.ErrStorage, err)
	}
	if !won {
		return nil, fmt.Errorf("%w: completion already in progress", common.ErrValidation)
	}

	src := newAssembly(s.chunks, sess.ID, sess.ChunkCount)
	defer src.Close()

	rec, _, err := s.content.Put(ctx, ownerID, sess.FileName, sess.ParentID, src)
	if err != nil {
		// Assembly failed: put the session back so the client can retry
		// Complete (or re-send chunks). Chunks are intentionally kept.
		if serr := s.repos.Sessions(s.db).SetStatus(ctx, sess.ID, models.SessionReceiving); serr != nil {
			s.logger.Error(ctx, "failed to revert session after assembly error", "session_id", sess.ID, "error", serr)
		}
		return nil, err
	}

	if err := s.chunks.Remove(sess.ID); err != nil {
		s.logger.Warn(ctx, "failed to remove assembled chunks", "session_id", sess.ID, "error", err)
	}
	s.logger.Info(ctx, "session completed", "session_id", sess.ID, "file_id", rec.ID, "size", rec.Size())
	return rec, nil
}
