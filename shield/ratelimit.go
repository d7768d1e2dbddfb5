package shield

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/sitegen/kit"
)

// RateLimitRule is one row of the rate_limits table.
type RateLimitRule struct {
	Name          string `json:"name"`
	MaxRequests   int    `json:"max_requests"`
	WindowSeconds int    `json:"window_seconds"`
	Enabled       bool   `json:"enabled"`
}

type window struct {
	count   int
	resetAt time.Time
}

// RateLimiter enforces fixed-window limits per rule and per caller. The
// caller is the authenticated user when there is one, else the client IP.
// Rules live in SQLite and are reloaded periodically; unknown or disabled
// rules never block.
type RateLimiter struct {
	db  *sql.DB
	now func() time.Time

	mu      sync.Mutex
	rules   map[string]RateLimitRule
	windows map[string]*window
}

// NewRateLimiter loads the rules from db.
func NewRateLimiter(db *sql.DB) *RateLimiter {
	rl := &RateLimiter{
		db:      db,
		now:     time.Now,
		rules:   make(map[string]RateLimitRule),
		windows: make(map[string]*window),
	}
	rl.Reload(context.Background())
	return rl
}

// StartReloader reloads rules every minute and drops expired windows every
// five minutes until ctx is done.
func (rl *RateLimiter) StartReloader(ctx context.Context) {
	reload := time.NewTicker(time.Minute)
	gc := time.NewTicker(5 * time.Minute)
	go func() {
		defer reload.Stop()
		defer gc.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-reload.C:
				rl.Reload(ctx)
			case <-gc.C:
				rl.gc()
			}
		}
	}()
}

// Reload reads the rate_limits table. On error the previous rules stay.
func (rl *RateLimiter) Reload(ctx context.Context) {
	rows, err := rl.db.QueryContext(ctx, `SELECT rule, max_requests, window_seconds, enabled FROM rate_limits`)
	if err != nil {
		slog.Warn("ratelimit: reload failed", "error", err)
		return
	}
	defer rows.Close()

	rules := make(map[string]RateLimitRule)
	for rows.Next() {
		var r RateLimitRule
		var enabled int
		if err := rows.Scan(&r.Name, &r.MaxRequests, &r.WindowSeconds, &enabled); err != nil {
			continue
		}
		r.Enabled = enabled == 1
		rules[r.Name] = r
	}

	rl.mu.Lock()
	rl.rules = rules
	rl.mu.Unlock()
	slog.Debug("ratelimit: rules reloaded", "count", len(rules))
}

// Rules returns the loaded rules.
func (rl *RateLimiter) Rules() []RateLimitRule {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	out := make([]RateLimitRule, 0, len(rl.rules))
	for _, r := range rl.rules {
		out = append(out, r)
	}
	return out
}

func (rl *RateLimiter) gc() {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for k, w := range rl.windows {
		if now.After(w.resetAt) {
			delete(rl.windows, k)
		}
	}
}

// Allow counts one call of caller against rule. When the call is refused it
// also returns how long until the window resets.
func (rl *RateLimiter) Allow(rule, caller string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cfg, ok := rl.rules[rule]
	if !ok || !cfg.Enabled || cfg.MaxRequests <= 0 {
		return true, 0
	}

	now := rl.now()
	key := rule + "|" + caller
	w, ok := rl.windows[key]
	if !ok || now.After(w.resetAt) {
		rl.windows[key] = &window{count: 1, resetAt: now.Add(time.Duration(cfg.WindowSeconds) * time.Second)}
		return true, 0
	}
	if w.count >= cfg.MaxRequests {
		return false, w.resetAt.Sub(now)
	}
	w.count++
	return true, 0
}

// Limit returns middleware applying rule to the route it wraps. Refused
// requests get 429 with a Retry-After header.
func (rl *RateLimiter) Limit(rule string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := kit.GetUserID(r.Context())
			if caller == "" {
				caller = "ip:" + ExtractIP(r)
			}
			ok, retry := rl.Allow(rule, caller)
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			GetLogger(r.Context()).Warn("ratelimit: blocked", "rule", rule, "caller", caller)
			secs := int(retry.Seconds())
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
		})
	}
}

// ExtractIP returns the first X-Forwarded-For address, else the host of
// RemoteAddr.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
