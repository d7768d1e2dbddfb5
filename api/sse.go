package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

func wantsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// eventStream writes server-sent events. Sends may come from several
// goroutines; after the first write error the stream goes quiet.
type eventStream struct {
	mu     sync.Mutex
	w      http.ResponseWriter
	rc     *http.ResponseController
	err    error
	closed bool // a done or error event was sent
}

func newEventStream(w http.ResponseWriter) *eventStream {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	es := &eventStream{w: w, rc: http.NewResponseController(w)}
	es.rc.Flush()
	return es
}

func (es *eventStream) send(event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	es.mu.Lock()
	defer es.mu.Unlock()
	if es.err != nil {
		return
	}
	if _, err := fmt.Fprintf(es.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		es.err = err
		return
	}
	if err := es.rc.Flush(); err != nil {
		es.err = err
	}
}

func (es *eventStream) markClosed() {
	es.mu.Lock()
	es.closed = true
	es.mu.Unlock()
}

func (es *eventStream) isClosed() bool {
	es.mu.Lock()
	defer es.mu.Unlock()
	return es.closed
}
