// Package kit carries request-scoped identity through context and adapts
// transport-agnostic endpoints to the HTTP and MCP surfaces.
package kit

import "context"

type contextKey string

const (
	UserIDKey    contextKey = "kit_user_id"
	RoleKey      contextKey = "kit_role"
	TransportKey contextKey = "kit_transport" // "http", "mcp"
	TraceIDKey   contextKey = "kit_trace_id"
	ProjectIDKey contextKey = "kit_project_id"
)

func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, UserIDKey, id)
}
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, RoleKey, role)
}
func GetRole(ctx context.Context) string {
	v, _ := ctx.Value(RoleKey).(string)
	return v
}

func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, TransportKey, t)
}

// GetTransport defaults to "http" when nothing was set.
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

// WithProjectID tags ctx with the project a generation or deployment is
// working on, so log lines emitted deep in providers can be correlated.
func WithProjectID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ProjectIDKey, id)
}
func GetProjectID(ctx context.Context) string {
	v, _ := ctx.Value(ProjectIDKey).(string)
	return v
}
