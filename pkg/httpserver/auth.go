package httpserver

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// bearerAuth rejects requests whose Authorization header does not carry token.
func bearerAuth(token string) func(http.Handler) http.Handler {
	expected := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
				_ = writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
