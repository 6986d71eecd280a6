package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const RequestIDKey contextKey = "request_id"

// maxInboundIDLen caps caller-supplied request ids before they reach logs.
const maxInboundIDLen = 64

// RequestID propagates an X-Request-ID header, minting one when the caller
// did not send any, and stores it in the request context for the access log.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		switch {
		case id == "":
			id = uuid.NewString()
		case len(id) > maxInboundIDLen:
			id = id[:maxInboundIDLen]
		}

		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(
			context.WithValue(r.Context(), RequestIDKey, id)))
	})
}

// GetRequestID returns the request ID from context, or "" when absent.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}
