package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/sitegen/auth"
	"github.com/hazyhaar/sitegen/kit"
	"github.com/hazyhaar/sitegen/observability"
	"github.com/hazyhaar/sitegen/store"
)

const (
	maxNameLength        = 100
	maxDescriptionLength = 500
)

type projectRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Prompt      *string `json:"prompt"`
	Provider    *string `json:"provider"`
}

func userID(r *http.Request) string {
	return kit.GetUserID(r.Context())
}

// project loads the {id} project of the session user.
func (s *Server) project(r *http.Request) (*store.Project, error) {
	return s.cfg.Store.GetProject(r.Context(), userID(r), chi.URLParam(r, "id"))
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.cfg.Store.ListProjects(r.Context(), userID(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	if projects == nil {
		projects = []*store.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	p := &store.Project{UserID: userID(r)}
	if err := s.applyProject(p, req); err != nil {
		fail(w, r, err)
		return
	}
	if p.Name == "" {
		fail(w, r, badRequest("name is required"))
		return
	}
	if err := s.cfg.Store.CreateProject(r.Context(), p); err != nil {
		fail(w, r, err)
		return
	}
	s.logEvent(r.Context(), observability.Event{
		Kind: observability.KindProjectCreated, UserID: p.UserID, ProjectID: p.ID, Success: true,
		Message: "project " + p.Name + " created",
	})
	writeJSON(w, http.StatusCreated, p)
}

// applyProject copies the fields present in req onto p.
func (s *Server) applyProject(p *store.Project, req projectRequest) error {
	if req.Name != nil {
		p.Name = cleanText(*req.Name, maxNameLength)
		if p.Name == "" {
			return badRequest("name is required")
		}
	}
	if req.Description != nil {
		p.Description = cleanText(*req.Description, maxDescriptionLength)
	}
	if req.Prompt != nil {
		p.Prompt = *req.Prompt
	}
	if req.Provider != nil {
		if *req.Provider != "" && !s.cfg.Providers.Has(*req.Provider) {
			return badRequest("unknown provider %q", *req.Provider)
		}
		p.Provider = *req.Provider
	}
	return nil
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.project(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	p, err := s.project(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := s.applyProject(p, req); err != nil {
		fail(w, r, err)
		return
	}
	if err := s.cfg.Store.UpdateProject(r.Context(), p); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.cfg.Generator.Exclusive(id, func() error {
		return s.cfg.Store.DeleteProject(r.Context(), userID(r), id)
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	s.logEvent(r.Context(), observability.Event{
		Kind: observability.KindProjectDeleted, UserID: userID(r), ProjectID: id, Success: true,
		Message: "project deleted",
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"providers": s.cfg.Providers.Names(),
		"default":   s.cfg.Providers.Default(),
		"enhance":   s.cfg.Enhancer != nil,
		"deployers": []string{},
	}
	if s.cfg.Deployer != nil {
		resp["deployers"] = s.cfg.Deployer.Names()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEnhance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.Prompt == "" {
		fail(w, r, badRequest("prompt is required"))
		return
	}
	prompt, enhanced := req.Prompt, false
	if s.cfg.Enhancer != nil {
		prompt, enhanced = s.cfg.Enhancer.Enhance(r.Context(), req.Prompt)
	}
	writeJSON(w, http.StatusOK, map[string]any{"prompt": prompt, "enhanced": enhanced})
}

func isAdmin(r *http.Request) bool {
	c := auth.GetClaims(r.Context())
	return c != nil && c.Role == auth.RoleAdmin
}
