package llm

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Enhancer expands short prompts into detailed website briefs. It never
// fails: any provider error yields the original prompt.
type Enhancer struct {
	Provider Provider
	Timeout  time.Duration
	Logger   *slog.Logger
}

// MaxEnhancedLength caps the accepted enhanced prompt, in bytes.
const MaxEnhancedLength = 4000

// Enhance returns the enhanced prompt and whether enhancement succeeded.
func (e *Enhancer) Enhance(ctx context.Context, prompt string) (string, bool) {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prompt = strings.TrimSpace(prompt)
	if e.Provider == nil || prompt == "" {
		return prompt, false
	}
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c, err := e.Provider.Complete(ctx, UserRequest(EnhanceSystemPrompt, prompt), nil)
	if err != nil {
		logger.WarnContext(ctx, "llm: prompt enhancement failed", "provider", e.Provider.Name(), "error", err)
		return prompt, false
	}
	out := cleanEnhanced(c.Text)
	if out == "" || len(out) > MaxEnhancedLength {
		return prompt, false
	}
	return out, true
}

// cleanEnhanced strips wrapping quotes and code fences models like to add.
func cleanEnhanced(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' && s[len(s)-1] == '"') {
		s = s[1 : len(s)-1]
	}
	return strings.TrimSpace(s)
}
