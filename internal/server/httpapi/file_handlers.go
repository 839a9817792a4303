package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dropvault/dropvault/internal/common"
	"github.com/dropvault/dropvault/internal/server/models"
	"github.com/dropvault/dropvault/internal/server/stream"
)

type fileItem struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	IsFolder  bool      `json:"is_folder"`
	Shared    bool      `json:"shared"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toFileItem(rec *models.FileRecord) fileItem {
	return fileItem{
		ID:        rec.ID,
		Name:      rec.Name,
		Size:      rec.Size(),
		IsFolder:  rec.IsFolder(),
		Shared:    rec.Shared,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func toFileItems(recs []*models.FileRecord) []fileItem {
	items := make([]fileItem, 0, len(recs))
	for _, rec := range recs {
		items = append(items, toFileItem(rec))
	}
	return items
}

// handleList returns the owner's entries under ?parent_id (absent = root).
func (s *Server) handleList(w http.ResponseWriter, r *http.Request, ownerID string) {
	var parentID *string
	if v := r.URL.Query().Get("parent_id"); v != "" {
		parentID = &v
	}

	recs, err := s.content.List(r.Context(), ownerID, parentID)
	if err != nil {
		s.writeError(r, w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]fileItem{"files": toFileItems(recs)})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, ownerID string) {
	remaining, err := s.content.Delete(r.Context(), ownerID, r.PathValue("fileID"))
	if err != nil {
		s.writeError(r, w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"remaining_refs": remaining})
}

type createFolderRequest struct {
	Name           string  `json:"name"`
	ParentFolderID *string `json:"parent_folder_id,omitempty"`
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req createFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(r, w, fmt.Errorf("%w: invalid JSON body", common.ErrValidation))
		return
	}

	rec, err := s.content.CreateFolder(r.Context(), ownerID, req.Name, req.ParentFolderID)
	if err != nil {
		s.writeError(r, w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toFileItem(rec))
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, ownerID string) {
	rng, err := parseRangeHeader(r.Header.Get("Range"))
	if err != nil {
		s.writeError(r, w, err)
		return
	}

	res, err := s.streams.Stream(r.Context(), ownerID, r.PathValue("fileID"), rng)
	if err != nil {
		s.writeError(r, w, err)
		return
	}

	s.serveStream(w, r, res)
}

// serveStream writes the range headers and copies the body in bounded
// windows, never buffering whole files.
func (s *Server) serveStream(w http.ResponseWriter, r *http.Request, res *stream.Result) {
	defer res.Body.Close()

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Name))
	w.Header().Set("Content-Length", strconv.FormatInt(res.Length(), 10))

	if res.Status == stream.StatusPartial {
		w.Header().Set("Content-Range", res.ContentRange())
		w.WriteHeader(http.StatusPartialContent)
	}

	buf := make([]byte, 64*1024)
	if _, err := io.CopyBuffer(w, res.Body, buf); err != nil {
		// headers are already out; all we can do is log
		s.logger.Warn(r.Context(), "stream copy interrupted", "name", res.Name, "error", err.Error())
	}
}
