package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/iddaa-lens/jobscheduler/pkg/logger"
)

// RequestIDHeader carries the correlation id of a request
const RequestIDHeader = "X-Request-ID"

// RequestID tags each request with a correlation id, taken from the
// incoming header or generated, and stores a logger carrying it in the
// request context
func RequestID(log *logger.Logger, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		ctx := log.WithRequestID(id).ToContext(r.Context())
		next(w, r.WithContext(ctx))
	}
}
