// CLAUDE:SUMMARY Transport-neutral endpoint type and middleware chaining shared by the HTTP and MCP surfaces.
// Package kit holds the small transport-neutral pieces the contextmemo
// surfaces share: the Endpoint signature, middleware chaining, request
// context values and MCP tool registration.
package kit

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Endpoint is one operation, independent of the transport that calls it.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware decorates an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares so that the first one is the outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Logging logs every call of an endpoint with its duration and transport.
func Logging(logger *slog.Logger, name string) Middleware {
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			attrs := []any{
				"endpoint", name,
				"transport", GetTransport(ctx),
				"duration", time.Since(start),
			}
			if id := GetTraceID(ctx); id != "" {
				attrs = append(attrs, "trace_id", id)
			}
			if err != nil {
				logger.Warn("kit: endpoint failed", append(attrs, "error", err)...)
			} else {
				logger.Debug("kit: endpoint", attrs...)
			}
			return resp, err
		}
	}
}

// Recover turns a panic of the endpoint into an error, so one bad call does
// not take a stdio MCP session down.
func Recover() Middleware {
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (resp any, err error) {
			defer func() {
				if p := recover(); p != nil {
					resp, err = nil, fmt.Errorf("kit: endpoint panicked: %v", p)
				}
			}()
			return next(ctx, req)
		}
	}
}
