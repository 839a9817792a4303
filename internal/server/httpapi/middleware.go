package httpapi

import (
	"net/http"
	"strings"

	"github.com/dropvault/dropvault/internal/common"
	"github.com/dropvault/dropvault/internal/server/auth"
)

// withAuth verifies the caller's access token and passes the extracted
// owner id to the handler. The token is read from the Authorization
// bearer header, falling back to the access_token header.
func (s *Server) withAuth(next func(w http.ResponseWriter, r *http.Request, ownerID string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			token = r.Header.Get(common.AccessTokenHeaderName)
		}
		if token == "" {
			s.writeError(r, w, common.ErrUnauthorized)
			return
		}

		ownerID, err := auth.GetUserIDFromToken(token, s.jwtSecret)
		if err != nil {
			s.writeError(r, w, common.ErrUnauthorized)
			return
		}

		next(w, r, ownerID)
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return h[len(prefix):]
	}
	return ""
}
