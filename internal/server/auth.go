package server

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

func hashAPIKey(v string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(v)))
	return hex.EncodeToString(sum[:])
}

// authMiddleware enforces the static API key when one is configured.
// Comparison is on SHA-256 digests so the configured key never sits in an
// easily greppable field.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKeyHash == "" {
			next.ServeHTTP(w, r)
			return
		}
		key := strings.TrimSpace(r.Header.Get("X-Api-Key"))
		if key == "" {
			writeError(w, http.StatusUnauthorized, "missing API key", "UNAUTHORIZED")
			return
		}
		if hashAPIKey(key) != s.apiKeyHash {
			writeError(w, http.StatusUnauthorized, "invalid API key", "UNAUTHORIZED")
			return
		}
		next.ServeHTTP(w, r)
	})
}
