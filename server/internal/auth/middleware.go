package auth

import (
	"crypto/subtle"
	"net/http"
)

// ModeAPIKey enables key enforcement.
const ModeAPIKey = "apikey"

// QueryParam is the fallback location of the key.
const QueryParam = "api_key"

// APIKey returns middleware that enforces API key authentication.
func APIKey(mode, header, key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		// Non-apikey modes or unconfigured key → allow everything.
		if mode != ModeAPIKey || key == "" {
			return next
		}

		want := []byte(key)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(header)
			if got == "" {
				got = r.URL.Query().Get(QueryParam)
			}
			if got == "" || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				http.Error(w, "invalid api key", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
