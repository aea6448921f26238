package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// AuthConfig selects how API keys are checked. A bcrypt Hash wins over a
// plain Key. With neither set, authentication is off.
type AuthConfig struct {
	Key  string
	Hash string
	// Public paths skip authentication.
	Public []string
}

// Auth validates a Bearer token or X-API-Key header on every request
// outside the public paths.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	verify := verifier(cfg)
	public := make(map[string]bool, len(cfg.Public))
	for _, p := range cfg.Public {
		public[p] = true
	}

	return func(next http.Handler) http.Handler {
		if verify == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			token := extractToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "missing authentication token")
				return
			}
			if !verify(token) {
				writeError(w, http.StatusUnauthorized, "invalid authentication token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func verifier(cfg AuthConfig) func(string) bool {
	switch {
	case cfg.Hash != "":
		hash := []byte(cfg.Hash)
		return func(token string) bool {
			return bcrypt.CompareHashAndPassword(hash, []byte(token)) == nil
		}
	case cfg.Key != "":
		key := []byte(cfg.Key)
		return func(token string) bool {
			return subtle.ConstantTimeCompare([]byte(token), key) == 1
		}
	default:
		return nil
	}
}

// extractToken reads "Authorization: Bearer <token>" or X-API-Key.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, token, ok := strings.Cut(auth, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
