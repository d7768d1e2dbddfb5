package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OpenAIConfig configures the OpenAI chat completions client. BaseURL may
// point at any compatible endpoint.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	HTTPClient *http.Client
}

func (c *OpenAIConfig) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Model == "" {
		c.Model = "gpt-4.1-mini"
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 16000
	}
	if c.HTTPClient == nil {
		// No client timeout: streams are bounded by the caller's context.
		c.HTTPClient = &http.Client{Transport: &http.Transport{ResponseHeaderTimeout: 60 * time.Second}}
	}
}

// OpenAI streams chat completions.
type OpenAI struct {
	cfg OpenAIConfig
	url string
}

// NewOpenAI returns ErrNotConfigured without an API key.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrNotConfigured)
	}
	cfg.defaults()
	return &OpenAI{cfg: cfg, url: strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions"}, nil
}

func (o *OpenAI) Name() string { return "openai" }

type oaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaRequest struct {
	Model         string      `json:"model"`
	Messages      []oaMessage `json:"messages"`
	MaxTokens     int         `json:"max_completion_tokens,omitempty"`
	Temperature   *float64    `json:"temperature,omitempty"`
	Stream        bool        `json:"stream"`
	StreamOptions struct {
		IncludeUsage bool `json:"include_usage"`
	} `json:"stream_options"`
}

type oaChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (o *OpenAI) Complete(ctx context.Context, req Request, onDelta func(string)) (*Completion, error) {
	body := oaRequest{
		Model:       firstNonEmpty(req.Model, o.cfg.Model),
		MaxTokens:   firstPositive(req.MaxTokens, o.cfg.MaxTokens),
		Temperature: req.Temperature,
		Stream:      true,
	}
	body.StreamOptions.IncludeUsage = true
	if req.System != "" {
		body.Messages = append(body.Messages, oaMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, oaMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := postStream(ctx, o.cfg.HTTPClient, o.Name(), o.url,
		map[string]string{"Authorization": "Bearer " + o.cfg.APIKey}, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out := &Completion{Provider: o.Name(), Model: body.Model}
	var text strings.Builder
	err = readSSE(resp.Body, func(_, data string) error {
		if data == "[DONE]" {
			return errStopStream
		}
		var chunk oaChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return fmt.Errorf("llm: openai: decode chunk: %w", err)
		}
		if chunk.Model != "" {
			out.Model = chunk.Model
		}
		if chunk.Usage != nil {
			out.InputTokens = chunk.Usage.PromptTokens
			out.OutputTokens = chunk.Usage.CompletionTokens
		}
		for _, ch := range chunk.Choices {
			if ch.FinishReason != nil {
				out.StopReason = *ch.FinishReason
			}
			if ch.Delta.Content != "" {
				text.WriteString(ch.Delta.Content)
				if onDelta != nil {
					onDelta(ch.Delta.Content)
				}
			}
		}
		return nil
	})
	out.Text = text.String()
	return finishStream(ctx, out, err)
}

// finishStream maps the end of a stream read to the Completion contract:
// the partial text is returned along with any error.
func finishStream(ctx context.Context, out *Completion, err error) (*Completion, error) {
	if errors.Is(err, errStopStream) {
		err = nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		return out, err
	}
	if out.Text == "" {
		return out, fmt.Errorf("llm: %s: %w", out.Provider, ErrEmptyResponse)
	}
	return out, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
