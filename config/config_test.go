package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hazyhaar/sitegen/horosafe"
)

const secret = "0123456789abcdef0123456789abcdef"

// clearEnv hides provider credentials of the machine running the tests.
func clearEnv(t *testing.T) {
	for _, env := range conventionalEnv {
		t.Setenv(env, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":8080" || cfg.LLM.Timeout != 3*time.Minute || cfg.Auth.TokenTTL != 168*time.Hour {
		t.Fatalf("defaults = %+v", cfg)
	}
	if diff := cmp.Diff([]string{"demo"}, cfg.LLM.Providers()); diff != "" {
		t.Fatalf("providers (-want +got):\n%s", diff)
	}
	if err := cfg.Validate(); !errors.Is(err, horosafe.ErrSecretTooShort) {
		t.Fatalf("Validate without secret: %v", err)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "sitegen.yaml")
	os.WriteFile(path, []byte(`
server:
  addr: ":9000"
llm:
  default_provider: openai
  timeout: 90s
deploy:
  directory:
    root: /srv/sites
`), 0o644)

	t.Setenv("SITEGEN_AUTH_JWT_SECRET", secret)
	t.Setenv("SITEGEN_SERVER_ADDR", ":9100")
	t.Setenv("OPENAI_API_KEY", "sk-conventional")
	t.Setenv("SITEGEN_LLM_ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("ANTHROPIC_API_KEY", "ignored")
	t.Setenv("SITEGEN_AUTH_ADMIN_EMAILS", "Root@Example.com, ops@example.com")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":9100" {
		t.Fatalf("env must override file: %q", cfg.Server.Addr)
	}
	if cfg.LLM.Timeout != 90*time.Second || cfg.Deploy.Directory.Root != "/srv/sites" {
		t.Fatalf("file values lost: %+v", cfg.LLM)
	}
	if cfg.LLM.OpenAI.APIKey != "sk-conventional" || cfg.LLM.Anthropic.APIKey != "sk-ant" {
		t.Fatalf("keys = %q, %q", cfg.LLM.OpenAI.APIKey, cfg.LLM.Anthropic.APIKey)
	}
	if diff := cmp.Diff([]string{"root@example.com", "ops@example.com"}, cfg.Auth.AdminEmails); diff != "" {
		t.Fatalf("admins (-want +got):\n%s", diff)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected an error for a missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	base := func() *Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatal(err)
		}
		cfg.Auth.JWTSecret = secret
		return cfg
	}
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"ok", func(*Config) {}, ""},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"no provider", func(c *Config) { c.LLM.Demo = false }, "no provider"},
		{"unknown default", func(c *Config) { c.LLM.DefaultProvider = "gemini" }, "default_provider"},
		{"half google", func(c *Config) { c.Google.ClientID = "id" }, "google"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	if l, err := ParseLevel("warn"); err != nil || l != slog.LevelWarn {
		t.Fatalf("ParseLevel(warn) = %v, %v", l, err)
	}
}
