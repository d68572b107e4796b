package middleware

import (
	"context"
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"github.com/leeforge/pngpress/logging"
)

// TraceIDHeader is the HTTP header name for trace ID
const TraceIDHeader = "X-Trace-ID"

// validTraceID bounds what a client may send: at most 64 URL-safe bytes.
var validTraceID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// TraceIDMiddleware reuses a well-formed incoming X-Trace-ID or generates a
// UUID, echoes it in the response and stores it where the logging package
// reads it.
func TraceIDMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := r.Header.Get(TraceIDHeader)
			if !validTraceID.MatchString(traceID) {
				traceID = uuid.NewString()
			}

			w.Header().Set(TraceIDHeader, traceID)
			next.ServeHTTP(w, r.WithContext(logging.SetTraceID(r.Context(), traceID)))
		})
	}
}

// GetTraceID retrieves the trace ID from context
func GetTraceID(ctx context.Context) string {
	return logging.GetTraceID(ctx)
}
