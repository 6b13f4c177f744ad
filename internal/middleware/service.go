package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/mangaverse/backend/internal/services"
)

// ServiceTokenHeader carries the shared secret of internal callers such as
// the catalogue sync and the reporting pipeline.
const ServiceTokenHeader = "X-Service-Token"

// RequireServiceToken admits only requests presenting token. An empty token
// disables the guarded routes.
func RequireServiceToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				services.SendErrorResponse(w, "Internal API disabled", http.StatusServiceUnavailable, nil)
				return
			}
			got := r.Header.Get(ServiceTokenHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				services.SendErrorResponse(w, "Invalid service token", http.StatusForbidden, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
