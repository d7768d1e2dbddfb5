package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/sitegen/deploy"
	"github.com/hazyhaar/sitegen/export"
	"github.com/hazyhaar/sitegen/observability"
	"github.com/hazyhaar/sitegen/preview"
	"github.com/hazyhaar/sitegen/shield"
	"github.com/hazyhaar/sitegen/store"
)

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	p, err := s.project(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	files, err := s.cfg.Store.Records(r.Context(), p.ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	doc, err := preview.Render(files, r.URL.Query().Get("page"))
	if err != nil {
		fail(w, r, err)
		return
	}
	shield.ApplyHeaders(w.Header(), shield.PreviewHeaders())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(doc))
}

func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	png, err := s.cfg.Store.GetProjectThumbnail(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Header().Set("Cache-Control", "private, max-age=60")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	p, err := s.project(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	files, err := s.cfg.Store.Records(r.Context(), p.ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	var buf bytes.Buffer
	n, err := export.Write(&buf, export.Site{
		Name:        p.Name,
		Description: p.Description,
		Prompt:      p.Prompt,
		BaseURL:     p.DeployURL,
		Files:       files,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	s.logEvent(r.Context(), observability.Event{
		Kind: observability.KindExport, UserID: p.UserID, ProjectID: p.ID, Success: true,
		Message: fmt.Sprintf("exported %d entries", n),
		Details: map[string]any{"bytes": buf.Len(), "entries": n},
	})
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(p.Name)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Deployer == nil {
		fail(w, r, deploy.ErrNotConfigured)
		return
	}
	var req struct {
		Provider string `json:"provider"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	p, err := s.project(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if s.cfg.Generator.Running(p.ID) {
		fail(w, r, deploy.ErrProjectBusy)
		return
	}
	dep, err := s.cfg.Deployer.Deploy(r.Context(), userID(r), p.ID, req.Provider)
	if err != nil {
		if dep == nil {
			fail(w, r, err)
			return
		}
		shield.GetLogger(r.Context()).Warn("api: deployment failed", "deployment", dep.ID, "error", err)
		code := errorStatus(err)
		if code == http.StatusInternalServerError {
			code = http.StatusBadGateway
		}
		writeJSON(w, code, map[string]any{"deployment": dep, "error": dep.Error})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deployment": dep})
}

func (s *Server) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	p, err := s.project(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	deps, err := s.cfg.Store.ListDeployments(r.Context(), p.ID, queryInt(r, "limit", 50))
	if err != nil {
		fail(w, r, err)
		return
	}
	if deps == nil {
		deps = []*store.Deployment{}
	}
	writeJSON(w, http.StatusOK, deps)
}
