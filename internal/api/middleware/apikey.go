package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"net/http"
)

// APIKey guards routes with a single shared key. An empty key disables the
// check.
type APIKey struct {
	headerName string
	hash       [sha256.Size]byte
	enabled    bool
}

func NewAPIKey(key, headerName string) *APIKey {
	if headerName == "" {
		headerName = "X-API-Key"
	}
	return &APIKey{
		headerName: headerName,
		hash:       sha256.Sum256([]byte(key)),
		enabled:    key != "",
	}
}

func (m *APIKey) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.enabled {
			next.ServeHTTP(w, r)
			return
		}
		got := sha256.Sum256([]byte(r.Header.Get(m.headerName)))
		if subtle.ConstantTimeCompare(got[:], m.hash[:]) != 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid API key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
