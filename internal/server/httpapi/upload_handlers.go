package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dropvault/dropvault/internal/common"
	"github.com/dropvault/dropvault/internal/server/upload"
)

type initSessionRequest struct {
	Name           string  `json:"name"`
	TotalSize      int64   `json:"total_size"`
	TotalChunks    int     `json:"total_chunks"`
	ParentFolderID *string `json:"parent_folder_id,omitempty"`
}

type initSessionResponse struct {
	SessionID     string    `json:"session_id"`
	ChunkSizeHint int64     `json:"chunk_size_hint"`
	TotalChunks   int       `json:"total_chunks"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func (s *Server) handleInitSession(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req initSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(r, w, fmt.Errorf("%w: invalid JSON body", common.ErrValidation))
		return
	}

	sess, err := s.uploads.Init(r.Context(), ownerID, req.Name, req.TotalSize, req.TotalChunks, req.ParentFolderID)
	if err != nil {
		s.writeError(r, w, err)
		return
	}

	writeJSON(w, http.StatusCreated, initSessionResponse{
		SessionID:     sess.ID,
		ChunkSizeHint: s.uploads.ChunkSizeHint(),
		TotalChunks:   sess.ChunkCount,
		ExpiresAt:     sess.ExpiresAt,
	})
}

type putChunkResponse struct {
	ChunkIndex int  `json:"chunk_index"`
	Accepted   bool `json:"accepted"`
}

func (s *Server) handlePutChunk(w http.ResponseWriter, r *http.Request, ownerID string) {
	sessionID := r.PathValue("sessionID")
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		s.writeError(r, w, fmt.Errorf("%w: chunk index must be an integer", common.ErrValidation))
		return
	}

	if err := s.uploads.RecordChunk(r.Context(), ownerID, sessionID, index, r.Body); err != nil {
		s.writeError(r, w, err)
		return
	}

	writeJSON(w, http.StatusOK, putChunkResponse{ChunkIndex: index, Accepted: true})
}

type fileResponse struct {
	FileID      string `json:"file_id"`
	FileName    string `json:"file_name"`
	FileSize    int64  `json:"file_size"`
	ContentHash string `json:"content_hash,omitempty"`
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request, ownerID string) {
	rec, err := s.uploads.Complete(r.Context(), ownerID, r.PathValue("sessionID"))
	if err != nil {
		s.writeError(r, w, err)
		return
	}

	writeJSON(w, http.StatusOK, fileResponse{
		FileID:      rec.ID,
		FileName:    rec.Name,
		FileSize:    rec.Size(),
		ContentHash: rec.Hash(),
	})
}

// handleUploadFile accepts one whole file as a multipart form with a
// single "file" part. An optional parent_id form value selects the
// destination folder.
func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request, ownerID string) {
	f, hdr, err := r.FormFile("file")
	if err != nil {
		s.writeError(r, w, fmt.Errorf("%w: missing file part", common.ErrValidation))
		return
	}
	defer f.Close()

	rec, _, err := s.content.Put(r.Context(), ownerID, hdr.Filename, formParentID(r), f)
	if err != nil {
		s.writeError(r, w, err)
		return
	}

	writeJSON(w, http.StatusCreated, fileResponse{
		FileID:      rec.ID,
		FileName:    rec.Name,
		FileSize:    rec.Size(),
		ContentHash: rec.Hash(),
	})
}

type batchResult struct {
	FileID   string `json:"file_id,omitempty"`
	FileName string `json:"file_name"`
	Error    string `json:"error,omitempty"`
}

type batchResponse struct {
	Results []batchResult `json:"results"`
}

// handleUploadBatch accepts N independent files as repeated "files"
// multipart parts and uploads them through the bounded worker pool. One
// result is returned per part; a failed part never fails the batch.
func (s *Server) handleUploadBatch(w http.ResponseWriter, r *http.Request, ownerID string) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(r, w, fmt.Errorf("%w: invalid multipart body", common.ErrValidation))
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		s.writeError(r, w, fmt.Errorf("%w: no files provided", common.ErrValidation))
		return
	}

	parentID := formParentID(r)
	items := make([]upload.Item, 0, len(headers))
	for _, hdr := range headers {
		items = append(items, upload.Item{
			Name:     hdr.Filename,
			ParentID: parentID,
			Open:     func() (io.ReadCloser, error) { return hdr.Open() },
		})
	}

	results := s.batch.UploadAll(r.Context(), ownerID, items)

	resp := batchResponse{Results: make([]batchResult, 0, len(results))}
	for _, res := range results {
		out := batchResult{FileID: res.FileID, FileName: res.Name}
		if res.Err != nil {
			out.Error = res.Err.Error()
		}
		resp.Results = append(resp.Results, out)
	}
	writeJSON(w, http.StatusOK, resp)
}

func formParentID(r *http.Request) *string {
	if v := r.FormValue("parent_id"); v != "" {
		return &v
	}
	return nil
}
