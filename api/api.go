// Package api is the HTTP surface of sitegen: JSON endpoints for accounts,
// projects, generations, files, previews, exports and deployments, the
// admin console endpoints and the MCP endpoint.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"

	"github.com/hazyhaar/sitegen/auth"
	"github.com/hazyhaar/sitegen/deploy"
	"github.com/hazyhaar/sitegen/generate"
	"github.com/hazyhaar/sitegen/llm"
	"github.com/hazyhaar/sitegen/observability"
	"github.com/hazyhaar/sitegen/shield"
	"github.com/hazyhaar/sitegen/store"
)

// Config wires a Server.
type Config struct {
	Store     *store.Store
	Generator *generate.Service
	Providers *llm.Registry
	Deployer  *deploy.Service            // optional
	Enhancer  *llm.Enhancer              // optional
	Events    *observability.EventLogger // optional
	Metrics   *observability.Metrics     // optional

	JWTSecret     []byte
	TokenTTL      time.Duration // default 7 days
	SecureCookies bool          // also set per request behind TLS
	AdminEmails   []string      // registering with one of these grants the admin role
	Google        *oauth2.Config

	Version string
	Logger  *slog.Logger
}

func (c *Config) defaults() {
	if c.TokenTTL <= 0 {
		c.TokenTTL = 7 * 24 * time.Hour
	}
	if c.Version == "" {
		c.Version = "dev"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Server routes API requests.
type Server struct {
	cfg         Config
	router      chi.Router
	limiter     *shield.RateLimiter
	maintenance *shield.MaintenanceMode
}

// New builds the router and its middleware stack.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil || cfg.Generator == nil || cfg.Providers == nil {
		return nil, fmt.Errorf("api: store, generator and providers are required")
	}
	if len(cfg.JWTSecret) == 0 {
		return nil, fmt.Errorf("api: jwt secret is required")
	}
	cfg.defaults()

	stack, rl, mm := shield.DefaultStack(cfg.Store.DB)
	s := &Server{cfg: cfg, limiter: rl, maintenance: mm}

	r := chi.NewRouter()
	for _, mw := range stack {
		r.Use(mw)
	}
	r.Use(auth.Middleware(cfg.JWTSecret))
	s.routes(r)
	s.router = r
	return s, nil
}

// Start runs the background reloaders of the rate limiter and the
// maintenance flag until ctx is done.
func (s *Server) Start(ctx context.Context) {
	s.limiter.StartReloader(ctx)
	s.maintenance.StartReloader(ctx)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes(r chi.Router) {
	r.Get("/healthz", s.handleHealth)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.With(s.limiter.Limit("login")).Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)
		r.With(auth.RequireSession).Get("/me", s.handleMe)
		r.Get("/google", s.handleGoogleLogin)
		r.Get("/google/callback", s.handleGoogleCallback)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireSession)

		r.Get("/api/providers", s.handleProviders)
		r.With(s.limiter.Limit("enhance")).Post("/api/prompts/enhance", s.handleEnhance)
		r.Get("/api/logs", s.handleLogs)

		r.Route("/api/projects", func(r chi.Router) {
			r.Get("/", s.handleListProjects)
			r.Post("/", s.handleCreateProject)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetProject)
				r.Patch("/", s.handleUpdateProject)
				r.Delete("/", s.handleDeleteProject)

				r.With(s.limiter.Limit("generate")).Post("/generate", s.handleGenerate(generate.ModeGenerate))
				r.With(s.limiter.Limit("modify")).Post("/modify", s.handleGenerate(generate.ModeModify))
				r.Get("/generations", s.handleListGenerations)
				r.Post("/reconcile", s.handleReconcile)

				r.Get("/files", s.handleListFiles)
				r.Get("/files/*", s.handleGetFile)
				r.Put("/files/*", s.handlePutFile)
				r.Delete("/files/*", s.handleDeleteFile)

				r.Get("/preview", s.handlePreview)
				r.Get("/thumbnail", s.handleThumbnail)
				r.Get("/export", s.handleExport)
				r.With(s.limiter.Limit("deploy")).Post("/deploy", s.handleDeploy)
				r.Get("/deployments", s.handleListDeployments)
				r.Get("/logs", s.handleProjectLogs)
			})
		})

		r.Handle("/mcp", s.mcpHandler())
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(auth.RequireAdmin)
		r.Get("/users", s.handleAdminUsers)
		r.Patch("/users/{id}", s.handleAdminSetRole)
		r.Get("/maintenance", s.handleGetMaintenance)
		r.Put("/maintenance", s.handleSetMaintenance)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/ratelimits", s.handleRateLimits)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.cfg.Store.DB.PingContext(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.cfg.Version})
}

func (s *Server) logEvent(ctx context.Context, e observability.Event) {
	s.cfg.Events.Log(ctx, e)
}
