package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/sitegen/deploy"
	"github.com/hazyhaar/sitegen/export"
	"github.com/hazyhaar/sitegen/generate"
	"github.com/hazyhaar/sitegen/llm"
	"github.com/hazyhaar/sitegen/preview"
	"github.com/hazyhaar/sitegen/shield"
	"github.com/hazyhaar/sitegen/store"
)

var errBadRequest = errors.New("bad request")

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// fail answers with the status matching err. Unexpected errors are logged
// and hidden behind a generic message.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	code := errorStatus(err)
	if code == http.StatusInternalServerError {
		shield.GetLogger(r.Context()).Error("api: request failed", "error", err)
		writeError(w, code, errors.New("internal error"))
		return
	}
	writeError(w, code, err)
}

func errorStatus(err error) int {
	var upstream *llm.UpstreamError
	var hosting *deploy.ProviderError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, generate.ErrInvalidInput),
		errors.Is(err, llm.ErrUnknownProvider),
		errors.Is(err, deploy.ErrUnknownProvider):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, preview.ErrNoPages),
		errors.Is(err, preview.ErrPageNotFound),
		errors.Is(err, export.ErrEmpty):
		return http.StatusNotFound
	case errors.Is(err, store.ErrEmailTaken),
		errors.Is(err, store.ErrGenerationActive),
		errors.Is(err, deploy.ErrProjectBusy),
		errors.Is(err, deploy.ErrNoFiles):
		return http.StatusConflict
	case errors.Is(err, deploy.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, generate.ErrNoFiles),
		errors.As(err, &upstream),
		errors.As(err, &hosting):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads the request body into v. An empty body leaves v as is.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{errBadRequest}, args...)...)
}

// plainText strips every tag from user supplied text, keeps the visible
// characters and caps the result at max runes.
var plainText = bluemonday.StrictPolicy()

func cleanText(s string, max int) string {
	s = strings.TrimSpace(html.UnescapeString(plainText.Sanitize(s)))
	if utf8.RuneCountInString(s) > max {
		s = string([]rune(s)[:max])
	}
	return s
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}

// querySince accepts a Go duration ("24h") or unix milliseconds. A
// missing or invalid value means def ago, or no bound when def is zero.
func querySince(r *http.Request, key string, def time.Duration) time.Time {
	v := r.URL.Query().Get(key)
	if d, err := time.ParseDuration(v); err == nil {
		return time.Now().Add(-d)
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms)
	}
	if def == 0 {
		return time.Time{}
	}
	return time.Now().Add(-def)
}
