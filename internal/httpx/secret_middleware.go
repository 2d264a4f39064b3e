package httpx

import (
	"crypto/subtle"
	"net/http"
)

// SharedSecretHeader carries the static secret callers must present.
const SharedSecretHeader = "x-fidget-dot"

// SharedSecretMiddleware rejects requests whose header does not match secret.
// An empty secret rejects everything.
func SharedSecretMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(SharedSecretHeader)
			if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				Text(w, http.StatusForbidden, "Forbidden: Invalid fidget")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
