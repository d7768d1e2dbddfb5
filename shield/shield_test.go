package shield

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/sitegen/dbopen"
	"github.com/hazyhaar/sitegen/kit"
)

func testRouter(t *testing.T) (*chi.Mux, *RateLimiter, *MaintenanceMode) {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	stack, rl, mm := DefaultStack(db)
	r := chi.NewRouter()
	for _, mw := range stack {
		r.Use(mw)
	}
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/api/thing", func(w http.ResponseWriter, r *http.Request) {
		if kit.GetTraceID(r.Context()) == "" {
			t.Error("trace id missing from context")
		}
		w.WriteHeader(http.StatusOK)
	})
	r.With(rl.Limit("login")).Post("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r, rl, mm
}

func TestSecurityHeadersAndTrace(t *testing.T) {
	r, _, _ := testRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/thing", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	for h, want := range map[string]string{
		"X-Frame-Options":         "DENY",
		"X-Content-Type-Options":  "nosniff",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
	} {
		if got := rec.Header().Get(h); got != want {
			t.Errorf("%s: got %q, want %q", h, got, want)
		}
	}
	if id := rec.Header().Get("X-Trace-ID"); len(id) != 8 {
		t.Errorf("X-Trace-ID: got %q", id)
	}
}

func TestHeadToGet(t *testing.T) {
	r, _, _ := testRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("HEAD", "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("HEAD /healthz: got %d", rec.Code)
	}
}

func TestRateLimitLogin(t *testing.T) {
	r, rl, _ := testRouter(t)
	base := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return base }

	do := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/api/auth/login", strings.NewReader("{}"))
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	for i := range 10 {
		if rec := do("10.0.0.1"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: got %d", i, rec.Code)
		}
	}
	rec := do("10.0.0.1")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("11th request: got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "300" {
		t.Fatalf("Retry-After: got %q", rec.Header().Get("Retry-After"))
	}
	if rec := do("10.0.0.2"); rec.Code != http.StatusOK {
		t.Fatalf("other caller: got %d", rec.Code)
	}

	base = base.Add(301 * time.Second)
	if rec := do("10.0.0.1"); rec.Code != http.StatusOK {
		t.Fatalf("after window: got %d", rec.Code)
	}
}

func TestRateLimitPerUser(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	if _, err := db.Exec(`INSERT OR REPLACE INTO rate_limits (rule, max_requests, window_seconds) VALUES ('generate', 1, 60)`); err != nil {
		t.Fatal(err)
	}
	rl := NewRateLimiter(db)
	if ok, _ := rl.Allow("generate", "usr_a"); !ok {
		t.Fatal("first call refused")
	}
	if ok, retry := rl.Allow("generate", "usr_a"); ok || retry <= 0 {
		t.Fatalf("second call: ok=%v retry=%v", ok, retry)
	}
	if ok, _ := rl.Allow("generate", "usr_b"); !ok {
		t.Fatal("other user refused")
	}
	if ok, _ := rl.Allow("unknown-rule", "usr_a"); !ok {
		t.Fatal("unknown rule must not block")
	}
	if len(rl.Rules()) != 5 {
		t.Fatalf("rules: got %d", len(rl.Rules()))
	}
}

func TestMaintenance(t *testing.T) {
	r, _, mm := testRouter(t)
	ctx := context.Background()

	if err := mm.Set(ctx, true, "upgrading"); err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/thing", nil))
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "upgrading") {
		t.Fatalf("maintenance on: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz during maintenance: got %d", rec.Code)
	}

	if err := mm.Set(ctx, false, ""); err != nil {
		t.Fatal(err)
	}
	if mm.Message() != "upgrading" {
		t.Fatalf("message: got %q", mm.Message())
	}
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/thing", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("maintenance off: got %d", rec.Code)
	}
}

func TestExtractIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.1")
	if got := ExtractIP(req); got != "203.0.113.7" {
		t.Fatalf("xff: got %q", got)
	}
	req = httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	if got := ExtractIP(req); got != "192.0.2.1" {
		t.Fatalf("remote addr: got %q", got)
	}
}

func TestMaxBody(t *testing.T) {
	h := MaxBody(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 16)
		n, err := r.Body.Read(buf)
		for err == nil {
			var m int
			m, err = r.Body.Read(buf[n:])
			n += m
		}
		if n > 4 {
			t.Errorf("read %d bytes past limit", n)
		}
		if !strings.Contains(err.Error(), "too large") {
			t.Errorf("error: %v", err)
		}
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/", strings.NewReader("0123456789")))
}
