package api

import (
	"net/http"

	"github.com/hazyhaar/sitegen/observability"
)

func eventFilter(r *http.Request) observability.Filter {
	q := r.URL.Query()
	return observability.Filter{
		Kind:     q.Get("kind"),
		Level:    q.Get("level"),
		Since:    querySince(r, "since", 0),
		Limit:    queryInt(r, "limit", 100),
		BeforeID: q.Get("before"),
	}
}

func (s *Server) handleProjectLogs(w http.ResponseWriter, r *http.Request) {
	p, err := s.project(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	f := eventFilter(r)
	f.ProjectID = p.ID
	s.queryEvents(w, r, f)
}

// handleLogs lists the session user's events. Admins see every user's
// events with ?all=1.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	f := eventFilter(r)
	if !(isAdmin(r) && r.URL.Query().Get("all") == "1") {
		f.UserID = userID(r)
	}
	s.queryEvents(w, r, f)
}

func (s *Server) queryEvents(w http.ResponseWriter, r *http.Request, f observability.Filter) {
	if s.cfg.Events == nil {
		writeJSON(w, http.StatusOK, []observability.Event{})
		return
	}
	events, err := s.cfg.Events.Query(r.Context(), f)
	if err != nil {
		fail(w, r, err)
		return
	}
	if events == nil {
		events = []observability.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}
