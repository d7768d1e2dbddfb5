package api

import (
	"context"
	"net/http"

	"github.com/hazyhaar/sitegen/generate"
)

type generateRequest struct {
	Prompt   string `json:"prompt"`
	Provider string `json:"provider"`
	Enhance  bool   `json:"enhance"`
}

// handleGenerate runs a generation or a modification. With
// Accept: text/event-stream the progress events are streamed and the last
// event is "done" or "error"; otherwise the Result is returned as JSON.
//
// The run is detached from the request: a client that goes away does not
// cancel it, the generation timeout still applies.
func (s *Server) handleGenerate(mode string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := decodeJSON(r, &req); err != nil {
			fail(w, r, err)
			return
		}
		p, err := s.project(r)
		if err != nil {
			fail(w, r, err)
			return
		}
		if req.Prompt == "" && mode == generate.ModeGenerate {
			req.Prompt = p.Prompt
		}
		if req.Provider == "" {
			req.Provider = p.Provider
		}
		greq := generate.Request{
			UserID:    userID(r),
			ProjectID: p.ID,
			Prompt:    req.Prompt,
			Provider:  req.Provider,
			Enhance:   req.Enhance,
		}
		run := s.cfg.Generator.Generate
		if mode == generate.ModeModify {
			run = s.cfg.Generator.Modify
		}
		ctx := context.WithoutCancel(r.Context())

		if !wantsEventStream(r) {
			res, err := run(ctx, greq)
			if err != nil {
				fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, res)
			return
		}

		es := newEventStream(w)
		greq.OnEvent = func(e generate.Event) {
			es.send(e.Kind, e)
			if e.Kind == generate.EventDone || e.Kind == generate.EventError {
				es.markClosed()
			}
		}
		if _, err := run(ctx, greq); err != nil && !es.isClosed() {
			es.send(generate.EventError, generate.Event{Kind: generate.EventError, Error: err.Error()})
		}
	}
}

func (s *Server) handleListGenerations(w http.ResponseWriter, r *http.Request) {
	p, err := s.project(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	gens, err := s.cfg.Store.ListGenerations(r.Context(), p.ID, queryInt(r, "limit", 50))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gens)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	p, err := s.project(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	report, err := s.cfg.Generator.Reconcile(r.Context(), userID(r), p.ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
