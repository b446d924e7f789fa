// Package request provides middleware seeding every request with a
// correlation ID and a pinned request time.
package request

import (
	"net/http"

	"github.com/google/uuid"

	"overseer/pkg/requestcontext"
)

// RequestIDHeader is echoed back to clients for support correlation.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns a correlation ID to each request, preferring one supplied
// by the caller.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestTime pins the wall-clock time at request entry so that every store
// and predicate within one request evaluates against the same instant.
func RequestTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), requestcontext.Now(r.Context()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
