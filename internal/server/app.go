// Package server initializes and runs the storage server: configuration,
// database and blob backends, the storage services, and the HTTP API,
// with graceful shutdown on OS signals.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/dropvault/dropvault/internal/filex"
	"github.com/dropvault/dropvault/internal/logging"
	"github.com/dropvault/dropvault/internal/server/blob"
	"github.com/dropvault/dropvault/internal/server/config"
	"github.com/dropvault/dropvault/internal/server/content"
	"github.com/dropvault/dropvault/internal/server/httpapi"
	"github.com/dropvault/dropvault/internal/server/repositories/repomanager"
	"github.com/dropvault/dropvault/internal/server/share"
	"github.com/dropvault/dropvault/internal/server/stream"
	"github.com/dropvault/dropvault/internal/server/upload"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	http   *httpapi.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	repos := repomanager.NewPostgresRepositoryManager()
	if err := repos.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	store, err := newBlobStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("blob store init error: %w", err)
	}

	tmpDir, err := filex.EnsureDir(filepath.Join(cfg.DataDir, "tmp"))
	if err != nil {
		return nil, fmt.Errorf("data dir init error: %w", err)
	}

	chunks, err := upload.NewChunkStore(filepath.Join(cfg.DataDir, "chunks"))
	if err != nil {
		return nil, fmt.Errorf("chunk store init error: %w", err)
	}

	contentSvc := content.NewService(db, repos, store, tmpDir, logger)
	sessions := upload.NewSessionService(db, repos, chunks, contentSvc, cfg.SessionTTL, cfg.ChunkSizeHint, logger)
	parallel := upload.NewParallel(contentSvc, cfg.UploadWorkers, logger)
	streamer := stream.NewService(db, repos, store)
	shares := share.NewService(db, repos, streamer, cfg.ShareBaseURL, logger)

	httpServer := httpapi.NewServer(cfg.EndpointAddrHTTP, logger,
		contentSvc, sessions, parallel, streamer, shares, cfg.SecretKey)

	return &App{config: cfg, logger: logger, db: db, http: httpServer}, nil
}

func newBlobStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	switch cfg.BlobBackend {
	case "s3":
		return blob.NewS3Store(ctx, blob.S3Options{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
			RootUser:     cfg.S3RootUser,
			RootPassword: cfg.S3RootPassword,
		})
	case "local", "":
		return blob.NewLocalFS(filepath.Join(cfg.DataDir, "blobs"))
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.http.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close", "error", err.Error())
	}
}
