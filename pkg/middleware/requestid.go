package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/meridian-search/meridian/pkg/logger"
)

// RequestID returns middleware that attaches a request ID to the context and
// echoes it in the X-Request-Id response header. An incoming X-Request-Id is
// propagated unchanged.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-Id")
			if id == "" {
				id = newRequestID()
			}
			w.Header().Set("X-Request-Id", id)
			ctx := logger.WithRequestID(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func newRequestID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b[:])
}
