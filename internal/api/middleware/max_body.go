package middleware

import (
	"net/http"

	"github.com/readstack/readstack/internal/api"
)

// MaxBodyBytes caps request body size. Oversized declared bodies are rejected
// up front; chunked bodies are capped by the reader and fail inside the
// handler's decode instead.
func MaxBodyBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
