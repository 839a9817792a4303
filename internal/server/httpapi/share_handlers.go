package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dropvault/dropvault/internal/common"
	"github.com/dropvault/dropvault/internal/server/share"
)

type createShareRequest struct {
	FileID         string  `json:"file_id"`
	ExpiresInHours *int    `json:"expires_in_hours,omitempty"`
	Password       *string `json:"password,omitempty"`
}

type shareResponse struct {
	ShareID           string     `json:"share_id"`
	Token             string     `json:"token"`
	ShareURL          string     `json:"share_url"`
	FileID            string     `json:"file_id"`
	FileName          string     `json:"file_name"`
	Size              int64      `json:"size"`
	IsFolder          bool       `json:"is_folder"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	PasswordProtected bool       `json:"password_protected"`
	CreatedAt         time.Time  `json:"created_at"`
}

func toShareResponse(info *share.Info) shareResponse {
	return shareResponse{
		ShareID:           info.ShareID,
		Token:             info.Token,
		ShareURL:          info.URL,
		FileID:            info.FileID,
		FileName:          info.FileName,
		Size:              info.Size,
		IsFolder:          info.IsFolder,
		ExpiresAt:         info.ExpiresAt,
		PasswordProtected: info.PasswordProtected,
		CreatedAt:         info.CreatedAt,
	}
}

func (s *Server) handleCreateShare(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req createShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(r, w, fmt.Errorf("%w: invalid JSON body", common.ErrValidation))
		return
	}
	if req.FileID == "" {
		s.writeError(r, w, fmt.Errorf("%w: file_id is required", common.ErrValidation))
		return
	}

	info, err := s.shares.Create(r.Context(), ownerID, req.FileID, req.ExpiresInHours, req.Password)
	if err != nil {
		s.writeError(r, w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toShareResponse(info))
}

func (s *Server) handleListShares(w http.ResponseWriter, r *http.Request, ownerID string) {
	infos, err := s.shares.List(r.Context(), ownerID)
	if err != nil {
		s.writeError(r, w, err)
		return
	}

	out := make([]shareResponse, 0, len(infos))
	for _, info := range infos {
		out = append(out, toShareResponse(info))
	}
	writeJSON(w, http.StatusOK, map[string][]shareResponse{"shares": out})
}

type updateShareRequest struct {
	ExpiresInHours *int    `json:"expires_in_hours,omitempty"`
	Password       *string `json:"password,omitempty"`
}

func (s *Server) handleUpdateShare(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req updateShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(r, w, fmt.Errorf("%w: invalid JSON body", common.ErrValidation))
		return
	}

	err := s.shares.Apply(r.Context(), ownerID, r.PathValue("shareID"), share.Update{
		ExpiresInHours: req.ExpiresInHours,
		Password:       req.Password,
	})
	if err != nil {
		s.writeError(r, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteShare(w http.ResponseWriter, r *http.Request, ownerID string) {
	if err := s.shares.Delete(r.Context(), ownerID, r.PathValue("shareID")); err != nil {
		s.writeError(r, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleResolveShare is the public download/listing route. The password,
// when the capability has one, comes from the X-Share-Password header or
// the ?password query parameter. Range requests work on shared files
// exactly as on owned ones.
func (s *Server) handleResolveShare(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRangeHeader(r.Header.Get("Range"))
	if err != nil {
		s.writeError(r, w, err)
		return
	}

	password := r.Header.Get("X-Share-Password")
	if password == "" {
		password = r.URL.Query().Get("password")
	}

	resolved, err := s.shares.Resolve(r.Context(), r.PathValue("token"), password, rng)
	if err != nil {
		s.writeError(r, w, err)
		return
	}

	if resolved.Content != nil {
		s.serveStream(w, r, resolved.Content)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"folder": resolved.File.Name,
		"files":  toFileItems(resolved.Listing),
	})
}

type shareInfoResponse struct {
	Name              string     `json:"name"`
	Size              int64      `json:"size"`
	IsFolder          bool       `json:"is_folder"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	PasswordProtected bool       `json:"password_protected"`
}

// handleShareInfo returns public metadata for a token without requiring
// its password. Expired tokens are still refused.
func (s *Server) handleShareInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.shares.ResolveInfo(r.Context(), r.PathValue("token"))
	if err != nil {
		s.writeError(r, w, err)
		return
	}

	writeJSON(w, http.StatusOK, shareInfoResponse{
		Name:              info.FileName,
		Size:              info.Size,
		IsFolder:          info.IsFolder,
		ExpiresAt:         info.ExpiresAt,
		PasswordProtected: info.PasswordProtected,
	})
}
