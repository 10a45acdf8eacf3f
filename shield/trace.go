package shield

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/contextmemo/idgen"
	"github.com/hazyhaar/contextmemo/kit"
)

var traceIDs = idgen.NanoID(8)

// Trace tags each request with a trace id. An incoming X-Trace-ID header is
// reused. The id lands in the context under kit.TraceIDKey, in the response
// headers and on a per-request logger stored under LoggerKey.
func Trace(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := r.Header.Get("X-Trace-ID")
			if traceID == "" || len(traceID) > 64 {
				traceID = traceIDs()
			}
			w.Header().Set("X-Trace-ID", traceID)

			logger := base.With(
				"trace_id", traceID,
				"method", r.Method,
				"path", r.URL.Path,
			)
			ctx := kit.WithTraceID(r.Context(), traceID)
			ctx = context.WithValue(ctx, LoggerKey, logger)

			start := time.Now()
			next.ServeHTTP(w, r.WithContext(ctx))
			logger.Debug("http: request", "duration", time.Since(start))
		})
	}
}
