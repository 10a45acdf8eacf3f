// Package shield holds the HTTP middleware shared by the contextmemo
// daemon: security headers, request tracing, body limits and HEAD handling.
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultStack(logger) {
//	    r.Use(mw)
//	}
package shield

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// DefaultBodyLimit caps request bodies on write methods.
const DefaultBodyLimit = 64 * 1024

// DefaultStack returns the middleware stack for the note API, outermost
// first: HeadToGet, SecurityHeaders, MaxBody, Trace.
func DefaultStack(logger *slog.Logger) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxBody(DefaultBodyLimit),
		Trace(logger),
	}
}

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
