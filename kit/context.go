package kit

import "context"

type contextKey string

const (
	TransportKey contextKey = "kit_transport" // "http", "mcp", "cli"
	TraceIDKey   contextKey = "kit_trace_id"
	TabIDKey     contextKey = "kit_tab_id"
)

func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, TransportKey, t)
}
func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(TransportKey).(string); ok {
		return v
	}
	return "http"
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}
func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(TraceIDKey).(string)
	return v
}

// WithTabID records the tab an operation originates from.
func WithTabID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TabIDKey, id)
}
func GetTabID(ctx context.Context) string {
	v, _ := ctx.Value(TabIDKey).(string)
	return v
}
