// Package llm talks to the language model providers that write website
// files. Providers stream text deltas; ParseFiles and StreamCollector turn
// that text into sitefile drafts.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnknownProvider = errors.New("llm: unknown provider")
	ErrNotConfigured   = errors.New("llm: provider not configured")
	ErrEmptyResponse   = errors.New("llm: empty response")
	ErrNoFiles         = errors.New("llm: no files in response")
)

// Roles of a Message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-neutral completion request.
type Request struct {
	System      string
	Messages    []Message
	Model       string // provider default when empty
	MaxTokens   int
	Temperature *float64
}

// UserRequest builds a single-turn request.
func UserRequest(system, prompt string) Request {
	return Request{System: system, Messages: []Message{{Role: RoleUser, Content: prompt}}}
}

// Completion is the full text of a finished completion.
type Completion struct {
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	Text         string `json:"text"`
	StopReason   string `json:"stop_reason,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
}

// Provider is a streaming completion backend. onDelta, when non-nil, is
// called with each text fragment in order; the returned Completion holds
// their concatenation.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request, onDelta func(string)) (*Completion, error)
}

// UpstreamError is a non-2xx answer from a provider API.
type UpstreamError struct {
	Provider string
	Status   int
	Message  string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("llm: %s upstream %d: %s", e.Provider, e.Status, e.Message)
}

// Retryable reports whether repeating the call may succeed.
func (e *UpstreamError) Retryable() bool {
	return e.Status == http.StatusRequestTimeout ||
		e.Status == http.StatusTooManyRequests ||
		e.Status/100 == 5
}

// IsRetryable reports whether err is an upstream error worth retrying.
func IsRetryable(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.Retryable()
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc struct {
	ProviderName string
	Fn           func(ctx context.Context, req Request, onDelta func(string)) (*Completion, error)
}

func (p ProviderFunc) Name() string { return p.ProviderName }

func (p ProviderFunc) Complete(ctx context.Context, req Request, onDelta func(string)) (*Completion, error) {
	return p.Fn(ctx, req, onDelta)
}
