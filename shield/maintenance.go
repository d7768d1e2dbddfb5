package shield

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// MaintenanceMode answers 503 to every request while the maintenance row is
// active. The flag is cached and reloaded periodically; Set updates both.
type MaintenanceMode struct {
	db      *sql.DB
	active  atomic.Bool
	message atomic.Value // string
	exclude []string
}

// NewMaintenanceMode reads the current flag. Paths starting with one of
// excludePrefixes are never blocked.
func NewMaintenanceMode(db *sql.DB, excludePrefixes ...string) *MaintenanceMode {
	m := &MaintenanceMode{db: db, exclude: excludePrefixes}
	m.message.Store("")
	m.reload(context.Background())
	return m
}

// Active reports whether maintenance is on.
func (m *MaintenanceMode) Active() bool { return m.active.Load() }

// Message returns the maintenance message.
func (m *MaintenanceMode) Message() string {
	s, _ := m.message.Load().(string)
	return s
}

// Set switches maintenance on or off. An empty message keeps the stored one.
func (m *MaintenanceMode) Set(ctx context.Context, active bool, message string) error {
	on := 0
	if active {
		on = 1
	}
	_, err := m.db.ExecContext(ctx,
		`UPDATE maintenance SET active = ?, message = CASE WHEN ? = '' THEN message ELSE ? END WHERE id = 1`,
		on, message, message)
	if err != nil {
		return err
	}
	m.reload(ctx)
	return nil
}

// StartReloader refreshes the flag every five seconds until ctx is done, so
// a flag flipped by another process is picked up.
func (m *MaintenanceMode) StartReloader(ctx context.Context) {
	tick := time.NewTicker(5 * time.Second)
	go func() {
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				m.reload(ctx)
			}
		}
	}()
}

func (m *MaintenanceMode) reload(ctx context.Context) {
	var active int
	var message string
	err := m.db.QueryRowContext(ctx, `SELECT active, message FROM maintenance WHERE id = 1`).Scan(&active, &message)
	if err != nil {
		m.active.Store(false)
		return
	}
	was := m.active.Swap(active == 1)
	m.message.Store(message)
	switch {
	case active == 1 && !was:
		slog.Warn("maintenance: enabled", "message", message)
	case active != 1 && was:
		slog.Info("maintenance: disabled")
	}
}

// Middleware blocks requests with 503 while maintenance is active.
func (m *MaintenanceMode) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.active.Load() {
			next.ServeHTTP(w, r)
			return
		}
		for _, prefix := range m.exclude {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "300")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"error": "maintenance", "message": m.Message()})
	})
}
