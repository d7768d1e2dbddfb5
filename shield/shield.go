// Package shield is the HTTP middleware stack in front of the sitegen API:
// security headers, request tracing with a per-request logger, body limits,
// per-user rate limits read from SQLite and a maintenance switch.
//
//	r := chi.NewRouter()
//	stack, rl, mm := shield.DefaultStack(db)
//	for _, mw := range stack {
//	    r.Use(mw)
//	}
//	r.With(rl.Limit("generate")).Post("/api/projects/{id}/generate", h)
package shield

import (
	"database/sql"
	"net/http"
)

type contextKey string

// LoggerKey is the context key of the per-request logger set by TraceID.
const LoggerKey contextKey = "shield_logger"

// DefaultBodyLimit caps JSON request bodies. Large enough for a project
// file upload through PUT /api/projects/{id}/files/*.
const DefaultBodyLimit int64 = 2 << 20

// DefaultStack returns the middleware applied to every route, in order:
// maintenance gate, HEAD handling, security headers, body limit, tracing.
// The rate limiter is returned separately because limits apply per route.
func DefaultStack(db *sql.DB) ([]func(http.Handler) http.Handler, *RateLimiter, *MaintenanceMode) {
	rl := NewRateLimiter(db)
	mm := NewMaintenanceMode(db, "/healthz", "/api/admin/")
	return []func(http.Handler) http.Handler{
		mm.Middleware,
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxBody(DefaultBodyLimit),
		TraceID,
	}, rl, mm
}
