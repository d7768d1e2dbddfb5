package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini client.
type GeminiConfig struct {
	APIKey    string
	BaseURL   string // tests only
	Model     string
	MaxTokens int
}

// Gemini streams GenerateContent through the genai SDK.
type Gemini struct {
	client *genai.Client
	cfg    GeminiConfig
}

// NewGemini returns ErrNotConfigured without an API key.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrNotConfigured)
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 16000
	}
	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("llm: gemini client: %w", err)
	}
	return &Gemini{client: client, cfg: cfg}, nil
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Complete(ctx context.Context, req Request, onDelta func(string)) (*Completion, error) {
	model := firstNonEmpty(req.Model, g.cfg.Model)
	conf := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(firstPositive(req.MaxTokens, g.cfg.MaxTokens)),
	}
	if req.System != "" {
		conf.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		conf.Temperature = &t
	}
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		var role genai.Role = genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	out := &Completion{Provider: g.Name(), Model: model}
	var text strings.Builder
	var streamErr error
	for resp, err := range g.client.Models.GenerateContentStream(ctx, model, contents, conf) {
		if err != nil {
			streamErr = geminiError(err)
			break
		}
		if resp.UsageMetadata != nil {
			out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
			out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		}
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
			out.StopReason = string(resp.Candidates[0].FinishReason)
		}
		if delta := resp.Text(); delta != "" {
			text.WriteString(delta)
			if onDelta != nil {
				onDelta(delta)
			}
		}
	}
	out.Text = text.String()
	return finishStream(ctx, out, streamErr)
}

func geminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &UpstreamError{Provider: "gemini", Status: apiErr.Code, Message: apiErr.Message}
	}
	return fmt.Errorf("llm: gemini: %w", err)
}
