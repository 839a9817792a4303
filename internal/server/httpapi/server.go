// Package httpapi exposes the storage core over HTTP: authenticated
// upload/download/share management plus the public share resolution
// routes.
package httpapi

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/dropvault/dropvault/internal/logging"
	"github.com/dropvault/dropvault/internal/server/models"
	"github.com/dropvault/dropvault/internal/server/share"
	"github.com/dropvault/dropvault/internal/server/stream"
	"github.com/dropvault/dropvault/internal/server/upload"
)

// ContentAPI is the slice of the content service the handlers consume.
type ContentAPI interface {
	Put(ctx context.Context, ownerID, name string, parentID *string, r io.Reader) (*models.FileRecord, bool, error)
	Delete(ctx context.Context, ownerID, fileID string) (int64, error)
	List(ctx context.Context, ownerID string, parentID *string) ([]*models.FileRecord, error)
	CreateFolder(ctx context.Context, ownerID, name string, parentID *string) (*models.FileRecord, error)
}

// UploadAPI drives chunked upload sessions.
type UploadAPI interface {
	ChunkSizeHint() int64
	Init(ctx context.Context, ownerID, name string, declaredSize int64, chunkCount int, parentID *string) (*models.UploadSession, error)
	RecordChunk(ctx context.Context, ownerID, sessionID string, index int, r io.Reader) error
	Complete(ctx context.Context, ownerID, sessionID string) (*models.FileRecord, error)
}

// BatchAPI runs bounded-concurrency batch uploads.
type BatchAPI interface {
	UploadAll(ctx context.Context, ownerID string, items []upload.Item) []upload.Result
}

// StreamAPI opens owner files as byte streams.
type StreamAPI interface {
	Stream(ctx context.Context, ownerID, fileID string, rng *stream.ByteRange) (*stream.Result, error)
}

// ShareAPI manages and resolves share capabilities.
type ShareAPI interface {
	Create(ctx context.Context, ownerID, fileID string, expiresInHours *int, password *string) (*share.Info, error)
	Resolve(ctx context.Context, token, password string, rng *stream.ByteRange) (*share.Resolved, error)
	ResolveInfo(ctx context.Context, token string) (*share.Info, error)
	List(ctx context.Context, ownerID string) ([]*share.Info, error)
	Apply(ctx context.Context, ownerID, shareID string, upd share.Update) error
	Delete(ctx context.Context, ownerID, shareID string) error
}

// Server routes HTTP requests to the storage services.
type Server struct {
	address   string
	mux       *http.ServeMux
	content   ContentAPI
	uploads   UploadAPI
	batch     BatchAPI
	streams   StreamAPI
	shares    ShareAPI
	logger    logging.Logger
	jwtSecret []byte
}

// NewServer wires the services into a routed server.
func NewServer(address string, logger logging.Logger, content ContentAPI, uploads UploadAPI,
	batch BatchAPI, streams StreamAPI, shares ShareAPI, secretKey string) *Server {
	s := &Server{
		address:   address,
		mux:       http.NewServeMux(),
		content:   content,
		uploads:   uploads,
		batch:     batch,
		streams:   streams,
		shares:    shares,
		logger:    logger.With("module", "http_server"),
		jwtSecret: []byte(secretKey),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	// chunked upload lifecycle
	s.mux.HandleFunc("POST /api/v1/uploads", s.withAuth(s.handleInitSession))
	s.mux.HandleFunc("PUT /api/v1/uploads/{sessionID}/chunks/{index}", s.withAuth(s.handlePutChunk))
	s.mux.HandleFunc("POST /api/v1/uploads/{sessionID}/complete", s.withAuth(s.handleComplete))

	// whole-file and batch upload
	s.mux.HandleFunc("POST /api/v1/files", s.withAuth(s.handleUploadFile))
	s.mux.HandleFunc("POST /api/v1/files/batch", s.withAuth(s.handleUploadBatch))

	// catalog
	s.mux.HandleFunc("GET /api/v1/files", s.withAuth(s.handleList))
	s.mux.HandleFunc("DELETE /api/v1/files/{fileID}", s.withAuth(s.handleDelete))
	s.mux.HandleFunc("POST /api/v1/folders", s.withAuth(s.handleCreateFolder))
	s.mux.HandleFunc("GET /api/v1/files/{fileID}/download", s.withAuth(s.handleDownload))

	// share management (owner-only)
	s.mux.HandleFunc("POST /api/v1/shares", s.withAuth(s.handleCreateShare))
	s.mux.HandleFunc("GET /api/v1/shares", s.withAuth(s.handleListShares))
	s.mux.HandleFunc("PATCH /api/v1/shares/{shareID}", s.withAuth(s.handleUpdateShare))
	s.mux.HandleFunc("DELETE /api/v1/shares/{shareID}", s.withAuth(s.handleDeleteShare))

	// public share resolution, no auth
	s.mux.HandleFunc("GET /share/{token}", s.handleResolveShare)
	s.mux.HandleFunc("GET /share/{token}/info", s.handleShareInfo)
}

// Handler exposes the routed mux, mainly for tests.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "shutdown", "error", err.Error())
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
