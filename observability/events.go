// Package observability records what happens to projects: business events
// (the data behind the log viewer) and numeric metrics such as generation
// durations. Everything is stored in SQLite and recording never fails the
// caller.
package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/sitegen/idgen"
	"github.com/hazyhaar/sitegen/kit"
)

// Event kinds.
const (
	KindProjectCreated      = "project.created"
	KindProjectDeleted      = "project.deleted"
	KindGenerationStarted   = "generation.started"
	KindGenerationCompleted = "generation.completed"
	KindGenerationPartial   = "generation.partial"
	KindGenerationFailed    = "generation.failed"
	KindFilesReconciled     = "files.reconciled"
	KindFileUpdated         = "file.updated"
	KindExport              = "export.created"
	KindDeployStarted       = "deploy.started"
	KindDeploySucceeded     = "deploy.succeeded"
	KindDeployFailed        = "deploy.failed"
	KindUserRegistered      = "user.registered"
	KindUserLogin           = "user.login"
)

// Event is one business event.
type Event struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Level     string         `json:"level"` // "info", "warn", "error"
	UserID    string         `json:"user_id,omitempty"`
	ProjectID string         `json:"project_id,omitempty"`
	EntityID  string         `json:"entity_id,omitempty"` // generation or deployment
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Success   bool           `json:"success"`
	TraceID   string         `json:"trace_id,omitempty"`
	CreatedAt int64          `json:"created_at"`
}

// EventLogger persists events.
type EventLogger struct {
	db     *sql.DB
	newID  idgen.Generator
	now    func() time.Time
	logger *slog.Logger
}

// EventLoggerOption configures an EventLogger.
type EventLoggerOption func(*EventLogger)

// WithEventIDGenerator replaces the evt_ UUIDv7 generator.
func WithEventIDGenerator(gen idgen.Generator) EventLoggerOption {
	return func(l *EventLogger) { l.newID = gen }
}

// WithLogger mirrors every event to logger.
func WithLogger(logger *slog.Logger) EventLoggerOption {
	return func(l *EventLogger) { l.logger = logger }
}

// NewEventLogger returns a logger writing to the events table of db.
func NewEventLogger(db *sql.DB, opts ...EventLoggerOption) *EventLogger {
	l := &EventLogger{
		db:     db,
		newID:  idgen.Event,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Log records e. User, project and trace IDs missing from e are taken from
// ctx. Storage errors are logged and swallowed. A nil logger drops e.
func (l *EventLogger) Log(ctx context.Context, e Event) {
	if l == nil {
		return
	}
	if e.ID == "" {
		e.ID = l.newID()
	}
	if e.Level == "" {
		e.Level = "info"
		if !e.Success {
			e.Level = "error"
		}
	}
	if e.UserID == "" {
		e.UserID = kit.GetUserID(ctx)
	}
	if e.ProjectID == "" {
		e.ProjectID = kit.GetProjectID(ctx)
	}
	if e.TraceID == "" {
		e.TraceID = kit.GetTraceID(ctx)
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = l.now().UnixMilli()
	}

	var details sql.NullString
	if len(e.Details) > 0 {
		if b, err := json.Marshal(e.Details); err == nil {
			details = sql.NullString{String: string(b), Valid: true}
		}
	}

	// The request context may already be cancelled when a generation
	// finishes late; the event must still be written.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	_, err := l.db.ExecContext(wctx, `
		INSERT INTO events (event_id, kind, level, user_id, project_id, entity_id,
		                    message, details, success, trace_id, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.Kind, e.Level, e.UserID, e.ProjectID, e.EntityID,
		e.Message, details, boolInt(e.Success), e.TraceID, e.CreatedAt)
	if err != nil {
		l.logger.Error("observability: event insert failed", "error", err, "kind", e.Kind)
	}

	l.logger.Log(ctx, levelOf(e.Level), e.Message,
		"event", e.Kind, "project_id", e.ProjectID, "entity_id", e.EntityID, "success", e.Success)
}

// Filter selects events for the log viewer. Zero fields are ignored.
type Filter struct {
	UserID    string
	ProjectID string
	Kind      string // exact kind, or a prefix ending in "." ("deploy.")
	Level     string
	Since     time.Time
	Limit     int // default 100, max 1000
	BeforeID  string
}

// Query returns events matching f, newest first.
func (l *EventLogger) Query(ctx context.Context, f Filter) ([]Event, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		where = append(where, cond)
		args = append(args, v)
	}
	if f.UserID != "" {
		add("user_id = ?", f.UserID)
	}
	if f.ProjectID != "" {
		add("project_id = ?", f.ProjectID)
	}
	if f.Kind != "" {
		if strings.HasSuffix(f.Kind, ".") {
			add("kind LIKE ?", f.Kind+"%")
		} else {
			add("kind = ?", f.Kind)
		}
	}
	if f.Level != "" {
		add("level = ?", f.Level)
	}
	if !f.Since.IsZero() {
		add("created_at >= ?", f.Since.UnixMilli())
	}
	if f.BeforeID != "" {
		add("event_id < ?", f.BeforeID)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	q := `SELECT event_id, kind, level, user_id, project_id, entity_id, message,
	             details, success, trace_id, created_at FROM events`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, event_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("observability: query events: %w", err)
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		var e Event
		var details sql.NullString
		var success int
		if err := rows.Scan(&e.ID, &e.Kind, &e.Level, &e.UserID, &e.ProjectID, &e.EntityID,
			&e.Message, &details, &success, &e.TraceID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("observability: scan event: %w", err)
		}
		e.Success = success == 1
		if details.Valid {
			json.Unmarshal([]byte(details.String), &e.Details)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// RetentionConfig gives per-table retention in days. Zero keeps everything.
type RetentionConfig struct {
	EventDays  int
	MetricDays int
}

// Cleanup deletes rows older than the retention thresholds and returns how
// many were removed.
func Cleanup(ctx context.Context, db *sql.DB, cfg RetentionConfig) (int64, error) {
	now := time.Now()
	targets := []struct {
		query string
		days  int
	}{
		{`DELETE FROM events WHERE created_at < ?`, cfg.EventDays},
		{`DELETE FROM metrics WHERE ts < ?`, cfg.MetricDays},
	}
	var total int64
	for _, t := range targets {
		if t.days <= 0 {
			continue
		}
		cutoff := now.AddDate(0, 0, -t.days).UnixMilli()
		res, err := db.ExecContext(ctx, t.query, cutoff)
		if err != nil {
			return total, fmt.Errorf("observability: cleanup: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func levelOf(s string) slog.Level {
	switch s {
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "debug":
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
