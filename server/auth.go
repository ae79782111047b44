package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/nomis52/adlift/server/handlers"
)

// requireAPIKey wraps a handler with bearer-key authentication. The config
// stores a bcrypt hash rather than the key itself, so a leaked config file
// does not leak the credential. An empty hash disables the check.
//
// The hash is read from the current config on every request so a reload can
// rotate the key without a restart.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hash := s.Config().Server.APIKeyHash
		if hash == "" {
			next.ServeHTTP(w, r)
			return
		}

		key, ok := bearerToken(r)
		if !ok || bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) != nil {
			s.logger.Warn("rejected unauthenticated request",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(handlers.ErrorResponse{
				Error: "missing or invalid API key",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	return strings.TrimPrefix(auth, prefix), true
}
