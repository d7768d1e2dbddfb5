package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// AnthropicVersion is sent as the anthropic-version header.
const AnthropicVersion = "2023-06-01"

// AnthropicConfig configures the Anthropic messages client.
type AnthropicConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	HTTPClient *http.Client
}

func (c *AnthropicConfig) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.anthropic.com"
	}
	if c.Model == "" {
		c.Model = "claude-sonnet-4-5"
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 16000
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Transport: &http.Transport{ResponseHeaderTimeout: 60 * time.Second}}
	}
}

// Anthropic streams the messages API.
type Anthropic struct {
	cfg AnthropicConfig
	url string
}

// NewAnthropic returns ErrNotConfigured without an API key.
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: %w", ErrNotConfigured)
	}
	cfg.defaults()
	return &Anthropic{cfg: cfg, url: strings.TrimRight(cfg.BaseURL, "/") + "/v1/messages"}, nil
}

func (a *Anthropic) Name() string { return "anthropic" }

type anthRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float64  `json:"temperature,omitempty"`
	Stream      bool      `json:"stream"`
}

type anthEvent struct {
	Type    string `json:"type"`
	Message struct {
		Model string `json:"model"`
		Usage struct {
			InputTokens int `json:"input_tokens"`
		} `json:"usage"`
	} `json:"message"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *Anthropic) Complete(ctx context.Context, req Request, onDelta func(string)) (*Completion, error) {
	body := anthRequest{
		Model:       firstNonEmpty(req.Model, a.cfg.Model),
		System:      req.System,
		Messages:    req.Messages,
		MaxTokens:   firstPositive(req.MaxTokens, a.cfg.MaxTokens),
		Temperature: req.Temperature,
		Stream:      true,
	}
	resp, err := postStream(ctx, a.cfg.HTTPClient, a.Name(), a.url, map[string]string{
		"x-api-key":         a.cfg.APIKey,
		"anthropic-version": AnthropicVersion,
	}, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out := &Completion{Provider: a.Name(), Model: body.Model}
	var text strings.Builder
	err = readSSE(resp.Body, func(_, data string) error {
		var ev anthEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return fmt.Errorf("llm: anthropic: decode event: %w", err)
		}
		switch ev.Type {
		case "message_start":
			out.Model = firstNonEmpty(ev.Message.Model, out.Model)
			out.InputTokens = ev.Message.Usage.InputTokens
		case "content_block_delta":
			if ev.Delta.Type == "text_delta" && ev.Delta.Text != "" {
				text.WriteString(ev.Delta.Text)
				if onDelta != nil {
					onDelta(ev.Delta.Text)
				}
			}
		case "message_delta":
			out.StopReason = ev.Delta.StopReason
			out.OutputTokens = ev.Usage.OutputTokens
		case "message_stop":
			return errStopStream
		case "error":
			status := http.StatusBadGateway
			if ev.Error.Type == "overloaded_error" {
				status = 529
			}
			return &UpstreamError{Provider: a.Name(), Status: status, Message: ev.Error.Message}
		}
		return nil
	})
	out.Text = text.String()
	return finishStream(ctx, out, err)
}
