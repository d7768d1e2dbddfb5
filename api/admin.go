package api

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/sitegen/auth"
	"github.com/hazyhaar/sitegen/observability"
	"github.com/hazyhaar/sitegen/shield"
	"github.com/hazyhaar/sitegen/store"
)

// adminMetrics are summarized by GET /api/admin/metrics.
var adminMetrics = []string{
	observability.MetricGenerationDuration,
	observability.MetricGenerationFiles,
	observability.MetricGenerationBytes,
	observability.MetricImageRewrites,
	observability.MetricHTMLRepairs,
	observability.MetricLLMDuration,
	observability.MetricDeployDuration,
}

func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.cfg.Store.ListUsers(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	if users == nil {
		users = []*store.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleAdminSetRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role string `json:"role"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.Role != auth.RoleUser && req.Role != auth.RoleAdmin {
		fail(w, r, badRequest("role must be %q or %q", auth.RoleUser, auth.RoleAdmin))
		return
	}
	id := chi.URLParam(r, "id")
	if id == userID(r) && req.Role != auth.RoleAdmin {
		fail(w, r, badRequest("admins cannot demote themselves"))
		return
	}
	if err := s.cfg.Store.SetUserRole(r.Context(), id, req.Role); err != nil {
		fail(w, r, err)
		return
	}
	u, err := s.cfg.Store.GetUser(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	shield.GetLogger(r.Context()).Info("api: role changed", "user_id", id, "role", req.Role)
	writeJSON(w, http.StatusOK, u)
}

type maintenanceState struct {
	Active  bool   `json:"active"`
	Message string `json:"message"`
}

func (s *Server) handleGetMaintenance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, maintenanceState{Active: s.maintenance.Active(), Message: s.maintenance.Message()})
}

func (s *Server) handleSetMaintenance(w http.ResponseWriter, r *http.Request) {
	var req maintenanceState
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if err := s.maintenance.Set(r.Context(), req.Active, cleanText(req.Message, maxDescriptionLength)); err != nil {
		fail(w, r, err)
		return
	}
	s.handleGetMaintenance(w, r)
}

// handleMetrics summarizes the recorded metrics over ?since (default 24h).
// ?name= restricts the answer to the listed comma separated metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Metrics == nil {
		writeJSON(w, http.StatusOK, []observability.Summary{})
		return
	}
	s.cfg.Metrics.Flush()

	names := adminMetrics
	if v := r.URL.Query().Get("name"); v != "" {
		names = strings.Split(v, ",")
	}
	since := querySince(r, "since", 24*time.Hour)
	out := make([]observability.Summary, 0, len(names))
	for _, name := range names {
		sum, err := s.cfg.Metrics.Summarize(r.Context(), name, since)
		if err != nil {
			fail(w, r, err)
			return
		}
		out = append(out, sum)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRateLimits(w http.ResponseWriter, r *http.Request) {
	rules := s.limiter.Rules()
	slices.SortFunc(rules, func(a, b shield.RateLimitRule) int { return strings.Compare(a.Name, b.Name) })
	writeJSON(w, http.StatusOK, rules)
}
