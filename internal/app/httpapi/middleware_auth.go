package httpapi

import (
	"net/http"
	"strings"

	"github.com/quartzlabs/chatvault/internal/app/services/auth"
)

// authenticatedFunc is a handler that requires a resolved caller identity.
type authenticatedFunc func(w http.ResponseWriter, r *http.Request, identity auth.Identity)

// authenticated resolves the bearer token and rejects the request when it is
// missing or invalid. The vault trusts the (user id, session id) pair as-is.
func (h *handler) authenticated(next authenticatedFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Could not authenticate user."})
			return
		}

		identity, err := h.app.Auth.ParseToken(token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Your session has expired. Please log in again."})
			return
		}
		next(w, r, identity)
	})
}
