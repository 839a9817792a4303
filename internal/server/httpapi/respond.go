package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dropvault/dropvault/internal/common"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the core's error kinds onto HTTP statuses. Unknown
// errors become 500 without leaking their message.
func (s *Server) writeError(r *http.Request, w http.ResponseWriter, err error) {
	var status int
	var code string

	switch {
	case errors.Is(err, common.ErrValidation):
		status, code = http.StatusBadRequest, "validation"
	case errors.Is(err, common.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, common.ErrPasswordRequired):
		status, code = http.StatusUnauthorized, "password_required"
	case errors.Is(err, common.ErrUnauthorized), errors.Is(err, common.ErrInvalidToken):
		status, code = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, common.ErrExpired):
		status, code = http.StatusGone, "expired"
	case errors.Is(err, common.ErrIncomplete):
		status, code = http.StatusConflict, "incomplete"
	case errors.Is(err, common.ErrRangeNotSatisfiable):
		status, code = http.StatusRequestedRangeNotSatisfiable, "range_not_satisfiable"
	default:
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err.Error())
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"})
		return
	}

	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}
