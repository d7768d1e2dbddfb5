package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/sitegen/observability"
	"github.com/hazyhaar/sitegen/sitefile"
	"github.com/hazyhaar/sitegen/store"
)

func filePath(r *http.Request) (string, error) {
	p := sitefile.CleanPath(chi.URLParam(r, "*"))
	if p == "" {
		return "", badRequest("file path is required")
	}
	return p, nil
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	p, err := s.project(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	files, err := s.cfg.Store.ListFiles(r.Context(), p.ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	if files == nil {
		files = []store.StoredFile{}
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	path, err := filePath(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	p, err := s.project(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	f, err := s.cfg.Store.GetFile(r.Context(), p.ID, path)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// handlePutFile saves a manual edit. The record goes through the same
// pipeline as generated files, so HTML is completed and images fixed.
func (s *Server) handlePutFile(w http.ResponseWriter, r *http.Request) {
	path, err := filePath(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var req struct {
		Content *string `json:"content"`
		Type    string  `json:"type"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.Content == nil {
		fail(w, r, badRequest("content is required"))
		return
	}
	p, err := s.project(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	rec, report, err := s.cfg.Generator.SaveFile(r.Context(), p.ID,
		sitefile.New(path, *req.Content, sitefile.FileType(req.Type)))
	if err != nil {
		fail(w, r, err)
		return
	}
	s.logEvent(r.Context(), observability.Event{
		Kind: observability.KindFileUpdated, UserID: p.UserID, ProjectID: p.ID, Success: true,
		Message: "updated " + rec.Path,
		Details: map[string]any{"size": rec.Size, "type": string(rec.Type), "repaired": report.Repaired > 0},
	})
	writeJSON(w, http.StatusOK, map[string]any{"file": rec, "report": report})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	path, err := filePath(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	p, err := s.project(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	err = s.cfg.Generator.Exclusive(p.ID, func() error {
		return s.cfg.Store.DeleteFile(r.Context(), p.ID, path)
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
