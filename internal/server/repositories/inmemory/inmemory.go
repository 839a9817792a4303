// Package inmemory provides a map-backed RepositoryManager for service
// tests. It ignores the DBTX handed to the factories, so it does not
// model transaction rollback; tests that need real transactional
// behavior use the Postgres repositories against sqlmock instead.
package inmemory

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/dropvault/dropvault/internal/common"
	"github.com/dropvault/dropvault/internal/dbx"
	"github.com/dropvault/dropvault/internal/server/models"
	"github.com/dropvault/dropvault/internal/server/repositories/files"
	"github.com/dropvault/dropvault/internal/server/repositories/repomanager"
	"github.com/dropvault/dropvault/internal/server/repositories/sessions"
	"github.com/dropvault/dropvault/internal/server/repositories/shares"
)

type blobEntry struct {
	size int64
	refs int64
}

// Manager keeps the whole catalog in process memory.
type Manager struct {
	mu sync.Mutex

	files    map[string]*models.FileRecord
	blobs    map[string]*blobEntry
	sessions map[string]*models.UploadSession
	chunks   map[string]map[int]bool
	shares   map[string]*models.ShareCapability
}

// NewManager returns an empty in-memory repository manager.
func NewManager() *Manager {
	return &Manager{
		files:    make(map[string]*models.FileRecord),
		blobs:    make(map[string]*blobEntry),
		sessions: make(map[string]*models.UploadSession),
		chunks:   make(map[string]map[int]bool),
		shares:   make(map[string]*models.ShareCapability),
	}
}

var _ repomanager.RepositoryManager = (*Manager)(nil)

func (m *Manager) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }

func (m *Manager) Files(db dbx.DBTX) files.Repository       { return &filesRepo{m} }
func (m *Manager) Sessions(db dbx.DBTX) sessions.Repository { return &sessionsRepo{m} }
func (m *Manager) Shares(db dbx.DBTX) shares.Repository     { return &sharesRepo{m} }

// BlobRefs reports the current reference count for a hash, for test
// assertions.
func (m *Manager) BlobRefs(contentHash string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.blobs[contentHash]; ok {
		return e.refs
	}
	return 0
}

type filesRepo struct{ m *Manager }

func copyRecord(rec *models.FileRecord) *models.FileRecord {
	cp := *rec
	if rec.Blob != nil {
		b := *rec.Blob
		cp.Blob = &b
	}
	return &cp
}

func (r *filesRepo) Create(ctx context.Context, rec *models.FileRecord) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.files[rec.ID] = copyRecord(rec)
	return nil
}

func (r *filesRepo) GetByID(ctx context.Context, ownerID, id string) (*models.FileRecord, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	rec, ok := r.m.files[id]
	if !ok || rec.OwnerID != ownerID {
		return nil, common.ErrNotFound
	}
	return copyRecord(rec), nil
}

func (r *filesRepo) GetAny(ctx context.Context, id string) (*models.FileRecord, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	rec, ok := r.m.files[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return copyRecord(rec), nil
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (r *filesRepo) ListByParent(ctx context.Context, ownerID string, parentID *string) ([]*models.FileRecord, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.FileRecord
	for _, rec := range r.m.files {
		if rec.OwnerID == ownerID && sameParent(rec.ParentID, parentID) {
			out = append(out, copyRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *filesRepo) ListFolder(ctx context.Context, folderID string) ([]*models.FileRecord, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.FileRecord
	for _, rec := range r.m.files {
		if rec.ParentID != nil && *rec.ParentID == folderID {
			out = append(out, copyRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsFolder() != out[j].IsFolder() {
			return out[i].IsFolder()
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r *filesRepo) HasChildren(ctx context.Context, id string) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, rec := range r.m.files {
		if rec.ParentID != nil && *rec.ParentID == id {
			return true, nil
		}
	}
	return false, nil
}

func (r *filesRepo) FindByOwnerAndHash(ctx context.Context, ownerID, contentHash string) (*models.FileRecord, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, rec := range r.m.files {
		if rec.OwnerID == ownerID && rec.Blob != nil && rec.Blob.ContentHash == contentHash {
			return copyRecord(rec), nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *filesRepo) Delete(ctx context.Context, ownerID, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	rec, ok := r.m.files[id]
	if !ok || rec.OwnerID != ownerID {
		return common.ErrNotFound
	}
	delete(r.m.files, id)
	return nil
}

func (r *filesRepo) SetShared(ctx context.Context, id string, shared bool) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	rec, ok := r.m.files[id]
	if !ok {
		return common.ErrNotFound
	}
	rec.Shared = shared
	return nil
}

func (r *filesRepo) IncrementBlobRef(ctx context.Context, contentHash string, size int64) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	e, ok := r.m.blobs[contentHash]
	if !ok {
		e = &blobEntry{size: size}
		r.m.blobs[contentHash] = e
	}
	e.refs++
	return e.refs, nil
}

func (r *filesRepo) DecrementBlobRef(ctx context.Context, contentHash string) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	e, ok := r.m.blobs[contentHash]
	if !ok {
		return 0, common.ErrNotFound
	}
	e.refs--
	refs := e.refs
	if refs <= 0 {
		delete(r.m.blobs, contentHash)
	}
	return refs, nil
}

func (r *filesRepo) BlobRefCount(ctx context.Context, contentHash string) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if e, ok := r.m.blobs[contentHash]; ok {
		return e.refs, nil
	}
	return 0, nil
}

type sessionsRepo struct{ m *Manager }

func copySession(s *models.UploadSession) *models.UploadSession {
	cp := *s
	return &cp
}

func (r *sessionsRepo) Create(ctx context.Context, s *models.UploadSession) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.sessions[s.ID] = copySession(s)
	r.m.chunks[s.ID] = make(map[int]bool)
	return nil
}

func (r *sessionsRepo) Get(ctx context.Context, ownerID, id string) (*models.UploadSession, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.sessions[id]
	if !ok || s.OwnerID != ownerID {
		return nil, common.ErrNotFound
	}
	return copySession(s), nil
}

func (r *sessionsRepo) Transition(ctx context.Context, id string, from, to models.SessionStatus) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.sessions[id]
	if !ok || s.Status != from {
		return false, nil
	}
	s.Status = to
	return true, nil
}

func (r *sessionsRepo) SetStatus(ctx context.Context, id string, status models.SessionStatus) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.sessions[id]
	if !ok {
		return common.ErrNotFound
	}
	s.Status = status
	return nil
}

func (r *sessionsRepo) AddChunk(ctx context.Context, sessionID string, index int) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	set, ok := r.m.chunks[sessionID]
	if !ok {
		set = make(map[int]bool)
		r.m.chunks[sessionID] = set
	}
	set[index] = true
	return nil
}

func (r *sessionsRepo) ReceivedCount(ctx context.Context, sessionID string) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return len(r.m.chunks[sessionID]), nil
}

type sharesRepo struct{ m *Manager }

func copyShare(s *models.ShareCapability) *models.ShareCapability {
	cp := *s
	if s.PasswordHash != nil {
		h := *s.PasswordHash
		cp.PasswordHash = &h
	}
	if s.ExpiresAt != nil {
		t := *s.ExpiresAt
		cp.ExpiresAt = &t
	}
	return &cp
}

func (r *sharesRepo) Create(ctx context.Context, s *models.ShareCapability) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.shares[s.ID] = copyShare(s)
	return nil
}

func (r *sharesRepo) GetByToken(ctx context.Context, token string) (*models.ShareCapability, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, s := range r.m.shares {
		if s.Token == token {
			return copyShare(s), nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *sharesRepo) GetByID(ctx context.Context, ownerID, id string) (*models.ShareCapability, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.shares[id]
	if !ok || s.OwnerID != ownerID {
		return nil, common.ErrNotFound
	}
	return copyShare(s), nil
}

func (r *sharesRepo) ListByOwner(ctx context.Context, ownerID string) ([]*models.ShareCapability, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.ShareCapability
	for _, s := range r.m.shares {
		if s.OwnerID == ownerID {
			out = append(out, copyShare(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *sharesRepo) CountForFile(ctx context.Context, fileID string) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var n int64
	for _, s := range r.m.shares {
		if s.FileID == fileID {
			n++
		}
	}
	return n, nil
}

func (r *sharesRepo) UpdateExpiry(ctx context.Context, id string, expiresAt *time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.shares[id]
	if !ok {
		return common.ErrNotFound
	}
	s.ExpiresAt = expiresAt
	return nil
}

func (r *sharesRepo) UpdatePassword(ctx context.Context, id string, passwordHash *string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.shares[id]
	if !ok {
		return common.ErrNotFound
	}
	s.PasswordHash = passwordHash
	return nil
}

func (r *sharesRepo) Delete(ctx context.Context, ownerID, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.shares[id]
	if !ok || s.OwnerID != ownerID {
		return common.ErrNotFound
	}
	delete(r.m.shares, id)
	return nil
}
