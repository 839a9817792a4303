package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropvault/dropvault/internal/common"
	"github.com/dropvault/dropvault/internal/logging"
	"github.com/dropvault/dropvault/internal/server/auth"
	"github.com/dropvault/dropvault/internal/server/models"
	"github.com/dropvault/dropvault/internal/server/share"
	"github.com/dropvault/dropvault/internal/server/stream"
	"github.com/dropvault/dropvault/internal/server/upload"
)

const testSecret = "test-secret"

// fakes embed the interface and override only what a test touches.

type fakeContent struct {
	ContentAPI
	putFn    func(ctx context.Context, ownerID, name string, parentID *string, r io.Reader) (*models.FileRecord, bool, error)
	listFn   func(ctx context.Context, ownerID string, parentID *string) ([]*models.FileRecord, error)
	deleteFn func(ctx context.Context, ownerID, fileID string) (int64, error)
}

func (f *fakeContent) Put(ctx context.Context, ownerID, name string, parentID *string, r io.Reader) (*models.FileRecord, bool, error) {
	return f.putFn(ctx, ownerID, name, parentID, r)
}

func (f *fakeContent) List(ctx context.Context, ownerID string, parentID *string) ([]*models.FileRecord, error) {
	return f.listFn(ctx, ownerID, parentID)
}

func (f *fakeContent) Delete(ctx context.Context, ownerID, fileID string) (int64, error) {
	return f.deleteFn(ctx, ownerID, fileID)
}

type fakeUploads struct {
	UploadAPI
	initFn     func(ctx context.Context, ownerID, name string, declaredSize int64, chunkCount int, parentID *string) (*models.UploadSession, error)
	recordFn   func(ctx context.Context, ownerID, sessionID string, index int, r io.Reader) error
	completeFn func(ctx context.Context, ownerID, sessionID string) (*models.FileRecord, error)
}

func (f *fakeUploads) ChunkSizeHint() int64 { return 5 * 1024 * 1024 }

func (f *fakeUploads) Init(ctx context.Context, ownerID, name string, declaredSize int64, chunkCount int, parentID *string) (*models.UploadSession, error) {
	return f.initFn(ctx, ownerID, name, declaredSize, chunkCount, parentID)
}

func (f *fakeUploads) RecordChunk(ctx context.Context, ownerID, sessionID string, index int, r io.Reader) error {
	return f.recordFn(ctx, ownerID, sessionID, index, r)
}

func (f *fakeUploads) Complete(ctx context.Context, ownerID, sessionID string) (*models.FileRecord, error) {
	return f.completeFn(ctx, ownerID, sessionID)
}

type fakeBatch struct {
	BatchAPI
	uploadAllFn func(ctx context.Context, ownerID string, items []upload.Item) []upload.Result
}

func (f *fakeBatch) UploadAll(ctx context.Context, ownerID string, items []upload.Item) []upload.Result {
	return f.uploadAllFn(ctx, ownerID, items)
}

type fakeStreams struct {
	StreamAPI
	streamFn func(ctx context.Context, ownerID, fileID string, rng *stream.ByteRange) (*stream.Result, error)
}

func (f *fakeStreams) Stream(ctx context.Context, ownerID, fileID string, rng *stream.ByteRange) (*stream.Result, error) {
	return f.streamFn(ctx, ownerID, fileID, rng)
}

type fakeShares struct {
	ShareAPI
	resolveFn     func(ctx context.Context, token, password string, rng *stream.ByteRange) (*share.Resolved, error)
	resolveInfoFn func(ctx context.Context, token string) (*share.Info, error)
}

func (f *fakeShares) Resolve(ctx context.Context, token, password string, rng *stream.ByteRange) (*share.Resolved, error) {
	return f.resolveFn(ctx, token, password, rng)
}

func (f *fakeShares) ResolveInfo(ctx context.Context, token string) (*share.Info, error) {
	return f.resolveInfoFn(ctx, token)
}

type serverFakes struct {
	content *fakeContent
	uploads *fakeUploads
	batch   *fakeBatch
	streams *fakeStreams
	shares  *fakeShares
}

func newTestServer(t *testing.T) (*Server, *serverFakes) {
	t.Helper()
	f := &serverFakes{
		content: &fakeContent{},
		uploads: &fakeUploads{},
		batch:   &fakeBatch{},
		streams: &fakeStreams{},
		shares:  &fakeShares{},
	}
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := NewServer(":0", logger, f.content, f.uploads, f.batch, f.streams, f.shares, testSecret)
	return srv, f
}

func authHeader(t *testing.T, ownerID string) string {
	t.Helper()
	tok, err := auth.GenerateToken(ownerID, []byte(testSecret), time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func doRequest(t *testing.T, srv *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func newMultipart(t *testing.T, buf *bytes.Buffer, files map[string]string) string {
	t.Helper()
	w := multipart.NewWriter(buf)
	for name, content := range files {
		fw, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return w.FormDataContentType()
}

func TestAuth_MissingToken(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/files", nil)
	rec := doRequest(t, srv, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_BadToken(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/files", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	rec := doRequest(t, srv, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_AccessTokenHeaderFallback(t *testing.T) {
	srv, f := newTestServer(t)
	f.content.listFn = func(ctx context.Context, ownerID string, parentID *string) ([]*models.FileRecord, error) {
		assert.Equal(t, "owner-1", ownerID)
		return nil, nil
	}

	tok, err := auth.GenerateToken("owner-1", []byte(testSecret), time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/files", nil)
	req.Header.Set(common.AccessTokenHeaderName, tok)
	rec := doRequest(t, srv, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInitSession(t *testing.T) {
	srv, f := newTestServer(t)
	expires := time.Now().Add(24 * time.Hour).UTC()
	f.uploads.initFn = func(ctx context.Context, ownerID, name string, declaredSize int64, chunkCount int, parentID *string) (*models.UploadSession, error) {
		assert.Equal(t, "owner-1", ownerID)
		assert.Equal(t, "report.pdf", name)
		assert.Equal(t, int64(1000), declaredSize)
		assert.Equal(t, 3, chunkCount)
		return &models.UploadSession{ID: "sess-1", ChunkCount: 3, ExpiresAt: expires}, nil
	}

	body := `{"name":"report.pdf","total_size":1000,"total_chunks":3}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", strings.NewReader(body))
	req.Header.Set("Authorization", authHeader(t, "owner-1"))
	rec := doRequest(t, srv, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp initSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "sess-1", resp.SessionID)
	assert.Equal(t, int64(5*1024*1024), resp.ChunkSizeHint)
	assert.Equal(t, 3, resp.TotalChunks)
}

func TestInitSession_ValidationError(t *testing.T) {
	srv, f := newTestServer(t)
	f.uploads.initFn = func(ctx context.Context, ownerID, name string, declaredSize int64, chunkCount int, parentID *string) (*models.UploadSession, error) {
		return nil, fmt.Errorf("%w: chunk count must be positive", common.ErrValidation)
	}

	body := `{"name":"x","total_size":10,"total_chunks":0}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", strings.NewReader(body))
	req.Header.Set("Authorization", authHeader(t, "owner-1"))
	rec := doRequest(t, srv, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPutChunk(t *testing.T) {
	srv, f := newTestServer(t)
	var got []byte
	f.uploads.recordFn = func(ctx context.Context, ownerID, sessionID string, index int, r io.Reader) error {
		assert.Equal(t, "sess-1", sessionID)
		assert.Equal(t, 2, index)
		var err error
		got, err = io.ReadAll(r)
		return err
	}

	req := httptest.NewRequest(http.MethodPut, "/api/v1/uploads/sess-1/chunks/2", bytes.NewReader([]byte("chunk-bytes")))
	req.Header.Set("Authorization", authHeader(t, "owner-1"))
	rec := doRequest(t, srv, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []byte("chunk-bytes"), got)
}

func TestPutChunk_ExpiredSession(t *testing.T) {
	srv, f := newTestServer(t)
	f.uploads.recordFn = func(ctx context.Context, ownerID, sessionID string, index int, r io.Reader) error {
		return common.ErrExpired
	}

	req := httptest.NewRequest(http.MethodPut, "/api/v1/uploads/sess-1/chunks/0", bytes.NewReader([]byte("x")))
	req.Header.Set("Authorization", authHeader(t, "owner-1"))
	rec := doRequest(t, srv, req)

	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestComplete_Incomplete(t *testing.T) {
	srv, f := newTestServer(t)
	f.uploads.completeFn = func(ctx context.Context, ownerID, sessionID string) (*models.FileRecord, error) {
		return nil, fmt.Errorf("%w: received 2 of 3 chunks", common.ErrIncomplete)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads/sess-1/complete", nil)
	req.Header.Set("Authorization", authHeader(t, "owner-1"))
	rec := doRequest(t, srv, req)

	assert.Equal(t, http.StatusConflict, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "incomplete", resp.Code)
}

func TestComplete_Success(t *testing.T) {
	srv, f := newTestServer(t)
	f.uploads.completeFn = func(ctx context.Context, ownerID, sessionID string) (*models.FileRecord, error) {
		return &models.FileRecord{
			ID:   "file-1",
			Name: "report.pdf",
			Kind: models.KindFile,
			Blob: &models.BlobRef{ContentHash: "abc123", Size: 1000},
		}, nil
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads/sess-1/complete", nil)
	req.Header.Set("Authorization", authHeader(t, "owner-1"))
	rec := doRequest(t, srv, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp fileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "file-1", resp.FileID)
	assert.Equal(t, int64(1000), resp.FileSize)
	assert.Equal(t, "abc123", resp.ContentHash)
}

func TestDownload_FullContent(t *testing.T) {
	srv, f := newTestServer(t)
	f.streams.streamFn = func(ctx context.Context, ownerID, fileID string, rng *stream.ByteRange) (*stream.Result, error) {
		assert.Nil(t, rng)
		return &stream.Result{
			Body:   io.NopCloser(strings.NewReader("hello world")),
			Status: stream.StatusFull,
			Start:  0, End: 10, Size: 11,
			Name: "hello.txt",
		}, nil
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/files/file-1/download", nil)
	req.Header.Set("Authorization", authHeader(t, "owner-1"))
	rec := doRequest(t, srv, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello world", rec.Body.String())
	assert.Equal(t, "11", rec.Header().Get("Content-Length"))
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "hello.txt")
}

func TestDownload_PartialContent(t *testing.T) {
	srv, f := newTestServer(t)
	f.streams.streamFn = func(ctx context.Context, ownerID, fileID string, rng *stream.ByteRange) (*stream.Result, error) {
		require.NotNil(t, rng)
		assert.Equal(t, int64(0), rng.Start)
		assert.Equal(t, int64(99), rng.End)
		return &stream.Result{
			Body:   io.NopCloser(strings.NewReader(strings.Repeat("a", 100))),
			Status: stream.StatusPartial,
			Start:  0, End: 99, Size: 1000,
			Name: "big.bin",
		}, nil
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/files/file-1/download", nil)
	req.Header.Set("Authorization", authHeader(t, "owner-1"))
	req.Header.Set("Range", "bytes=0-99")
	rec := doRequest(t, srv, req)

	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, 100, rec.Body.Len())
	assert.Equal(t, "bytes 0-99/1000", rec.Header().Get("Content-Range"))
	assert.Equal(t, "100", rec.Header().Get("Content-Length"))
}

func TestDownload_MalformedRange(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/files/file-1/download", nil)
	req.Header.Set("Authorization", authHeader(t, "owner-1"))
	req.Header.Set("Range", "bytes=50-10")
	rec := doRequest(t, srv, req)

	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)
}

func TestUploadBatch_PartialFailure(t *testing.T) {
	srv, f := newTestServer(t)
	f.batch.uploadAllFn = func(ctx context.Context, ownerID string, items []upload.Item) []upload.Result {
		require.Len(t, items, 2)
		return []upload.Result{
			{FileID: "f1", Name: items[0].Name},
			{Name: items[1].Name, Err: errors.New("unreadable")},
		}
	}

	var body bytes.Buffer
	mw := newMultipart(t, &body, map[string]string{"one.txt": "aaa", "two.txt": "bbb"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/files/batch", &body)
	req.Header.Set("Authorization", authHeader(t, "owner-1"))
	req.Header.Set("Content-Type", mw)
	rec := doRequest(t, srv, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp batchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "f1", resp.Results[0].FileID)
	assert.Empty(t, resp.Results[0].Error)
	assert.Equal(t, "unreadable", resp.Results[1].Error)
}

func TestResolveShare_PasswordGates(t *testing.T) {
	srv, f := newTestServer(t)
	f.shares.resolveFn = func(ctx context.Context, token, password string, rng *stream.ByteRange) (*share.Resolved, error) {
		switch password {
		case "":
			return nil, common.ErrPasswordRequired
		case "right":
			return &share.Resolved{
				File: &models.FileRecord{ID: "f1", Name: "doc.txt", Kind: models.KindFile},
				Content: &stream.Result{
					Body:   io.NopCloser(strings.NewReader("secret")),
					Status: stream.StatusFull,
					Start:  0, End: 5, Size: 6,
					Name: "doc.txt",
				},
			}, nil
		default:
			return nil, common.ErrUnauthorized
		}
	}

	t.Run("no password → distinct signal", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/share/tok-1", nil)
		rec := doRequest(t, srv, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		var resp errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "password_required", resp.Code)
	})

	t.Run("wrong password", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/share/tok-1?password=wrong", nil)
		rec := doRequest(t, srv, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		var resp errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "unauthorized", resp.Code)
	})

	t.Run("correct password via header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/share/tok-1", nil)
		req.Header.Set("X-Share-Password", "right")
		rec := doRequest(t, srv, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "secret", rec.Body.String())
	})
}

func TestResolveShare_Expired(t *testing.T) {
	srv, f := newTestServer(t)
	f.shares.resolveFn = func(ctx context.Context, token, password string, rng *stream.ByteRange) (*share.Resolved, error) {
		return nil, common.ErrExpired
	}

	req := httptest.NewRequest(http.MethodGet, "/share/tok-dead", nil)
	rec := doRequest(t, srv, req)

	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestResolveShare_FolderListing(t *testing.T) {
	srv, f := newTestServer(t)
	f.shares.resolveFn = func(ctx context.Context, token, password string, rng *stream.ByteRange) (*share.Resolved, error) {
		return &share.Resolved{
			File: &models.FileRecord{ID: "d1", Name: "photos", Kind: models.KindFolder},
			Listing: []*models.FileRecord{
				{ID: "d2", Name: "albums", Kind: models.KindFolder},
				{ID: "f1", Name: "cat.jpg", Kind: models.KindFile, Blob: &models.BlobRef{ContentHash: "h", Size: 42}},
			},
		}, nil
	}

	req := httptest.NewRequest(http.MethodGet, "/share/tok-folder", nil)
	rec := doRequest(t, srv, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Folder string     `json:"folder"`
		Files  []fileItem `json:"files"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "photos", resp.Folder)
	require.Len(t, resp.Files, 2)
	assert.True(t, resp.Files[0].IsFolder)
	assert.Equal(t, int64(42), resp.Files[1].Size)
}

func TestShareInfo_NoPasswordNeeded(t *testing.T) {
	srv, f := newTestServer(t)
	f.shares.resolveInfoFn = func(ctx context.Context, token string) (*share.Info, error) {
		return &share.Info{FileName: "doc.txt", Size: 6, PasswordProtected: true}, nil
	}

	req := httptest.NewRequest(http.MethodGet, "/share/tok-1/info", nil)
	rec := doRequest(t, srv, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp shareInfoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "doc.txt", resp.Name)
	assert.True(t, resp.PasswordProtected)
}

func TestDelete_NotFound(t *testing.T) {
	srv, f := newTestServer(t)
	f.content.deleteFn = func(ctx context.Context, ownerID, fileID string) (int64, error) {
		return 0, common.ErrNotFound
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/files/nope", nil)
	req.Header.Set("Authorization", authHeader(t, "owner-1"))
	rec := doRequest(t, srv, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
