// Package config loads sitegen settings from defaults, an optional YAML
// file and SITEGEN_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hazyhaar/sitegen/horosafe"
)

// Config holds all settings.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Google    GoogleConfig    `mapstructure:"google"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Deploy    DeployConfig    `mapstructure:"deploy"`
	Thumbnail ThumbnailConfig `mapstructure:"thumbnail"`
	Retention RetentionConfig `mapstructure:"retention"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	BaseURL         string        `mapstructure:"base_url"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or text
}

type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	SecureCookies bool          `mapstructure:"secure_cookies"`
	AdminEmails   []string      `mapstructure:"admin_emails"`
}

type GoogleConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url"`
}

// Enabled reports whether Google sign-in is configured.
func (g GoogleConfig) Enabled() bool { return g.ClientID != "" && g.ClientSecret != "" }

type LLMConfig struct {
	DefaultProvider string         `mapstructure:"default_provider"`
	Timeout         time.Duration  `mapstructure:"timeout"`
	MaxConcurrent   int            `mapstructure:"max_concurrent"`
	MaxRetries      int            `mapstructure:"max_retries"`
	MaxPromptLength int            `mapstructure:"max_prompt_length"`
	ContextBudget   int            `mapstructure:"context_budget"`
	EnhanceTimeout  time.Duration  `mapstructure:"enhance_timeout"`
	OpenAI          ProviderConfig `mapstructure:"openai"`
	Anthropic       ProviderConfig `mapstructure:"anthropic"`
	Gemini          ProviderConfig `mapstructure:"gemini"`
	Demo            bool           `mapstructure:"demo"`
}

// ProviderConfig configures one LLM API. A provider without an API key is
// not registered.
type ProviderConfig struct {
	APIKey    string `mapstructure:"api_key"`
	BaseURL   string `mapstructure:"base_url"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// Providers lists the LLM providers that will be registered, in
// registration order.
func (c LLMConfig) Providers() []string {
	var out []string
	if c.OpenAI.APIKey != "" {
		out = append(out, "openai")
	}
	if c.Anthropic.APIKey != "" {
		out = append(out, "anthropic")
	}
	if c.Gemini.APIKey != "" {
		out = append(out, "gemini")
	}
	if c.Demo {
		out = append(out, "demo")
	}
	return out
}

type DeployConfig struct {
	Default     string            `mapstructure:"default"`
	Timeout     time.Duration     `mapstructure:"timeout"`
	Vercel      VercelConfig      `mapstructure:"vercel"`
	GitHubPages GitHubPagesConfig `mapstructure:"github_pages"`
	Directory   DirectoryConfig   `mapstructure:"directory"`
}

type VercelConfig struct {
	Token  string `mapstructure:"token"`
	TeamID string `mapstructure:"team_id"`
}

type GitHubPagesConfig struct {
	RepoURL  string `mapstructure:"repo_url"`
	Branch   string `mapstructure:"branch"`
	Token    string `mapstructure:"token"`
	PagesURL string `mapstructure:"pages_url"`
}

type DirectoryConfig struct {
	Root    string `mapstructure:"root"`
	BaseURL string `mapstructure:"base_url"`
}

type ThumbnailConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	RemoteURL string        `mapstructure:"remote_url"`
	Width     int           `mapstructure:"width"`
	Height    int           `mapstructure:"height"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type RetentionConfig struct {
	EventDays  int           `mapstructure:"event_days"`
	MetricDays int           `mapstructure:"metric_days"`
	Interval   time.Duration `mapstructure:"interval"`
}

var defaults = map[string]any{
	"server.addr":                   ":8080",
	"server.base_url":               "http://localhost:8080",
	"server.read_timeout":           "15s",
	"server.write_timeout":          "5m",
	"server.shutdown_timeout":       "30s",
	"database.path":                 "data/sitegen.db",
	"log.level":                     "info",
	"log.format":                    "json",
	"auth.jwt_secret":               "",
	"auth.token_ttl":                "168h",
	"auth.secure_cookies":           false,
	"auth.admin_emails":             []string{},
	"google.client_id":              "",
	"google.client_secret":          "",
	"google.redirect_url":           "",
	"llm.default_provider":          "",
	"llm.timeout":                   "3m",
	"llm.max_concurrent":            4,
	"llm.max_retries":               2,
	"llm.max_prompt_length":         4000,
	"llm.context_budget":            120000,
	"llm.enhance_timeout":           "30s",
	"llm.openai.api_key":            "",
	"llm.openai.base_url":           "",
	"llm.openai.model":              "",
	"llm.openai.max_tokens":         0,
	"llm.anthropic.api_key":         "",
	"llm.anthropic.base_url":        "",
	"llm.anthropic.model":           "",
	"llm.anthropic.max_tokens":      0,
	"llm.gemini.api_key":            "",
	"llm.gemini.base_url":           "",
	"llm.gemini.model":              "",
	"llm.gemini.max_tokens":         0,
	"llm.demo":                      true,
	"deploy.default":                "",
	"deploy.timeout":                "5m",
	"deploy.vercel.token":           "",
	"deploy.vercel.team_id":         "",
	"deploy.github_pages.repo_url":  "",
	"deploy.github_pages.branch":    "gh-pages",
	"deploy.github_pages.token":     "",
	"deploy.github_pages.pages_url": "",
	"deploy.directory.root":         "",
	"deploy.directory.base_url":     "",
	"thumbnail.enabled":             false,
	"thumbnail.remote_url":          "",
	"thumbnail.width":               1280,
	"thumbnail.height":              800,
	"thumbnail.timeout":             "30s",
	"retention.event_days":          30,
	"retention.metric_days":         7,
	"retention.interval":            "1h",
}

// conventionalEnv maps keys to the variable names other tools use for the
// same credential. SITEGEN_* variables still take precedence.
var conventionalEnv = map[string]string{
	"llm.openai.api_key":        "OPENAI_API_KEY",
	"llm.anthropic.api_key":     "ANTHROPIC_API_KEY",
	"llm.gemini.api_key":        "GEMINI_API_KEY",
	"deploy.vercel.token":       "VERCEL_TOKEN",
	"deploy.github_pages.token": "GITHUB_TOKEN",
	"google.client_id":          "GOOGLE_CLIENT_ID",
	"google.client_secret":      "GOOGLE_CLIENT_SECRET",
}

// Load reads the configuration. An empty path looks for sitegen.yaml in the
// working directory and /etc/sitegen, and a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("sitegen")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/sitegen")
	}

	v.SetEnvPrefix("SITEGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range conventionalEnv {
		if err := v.BindEnv(key, "SITEGEN_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	for i, e := range cfg.Auth.AdminEmails {
		cfg.Auth.AdminEmails[i] = strings.ToLower(strings.TrimSpace(e))
	}
	return &cfg, nil
}

// Validate checks the settings a server needs. CLI commands that only touch
// files skip it.
func (c *Config) Validate() error {
	var errs []error
	if err := horosafe.ValidateSecret([]byte(c.Auth.JWTSecret)); err != nil {
		errs = append(errs, fmt.Errorf("auth.jwt_secret: %w", err))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("log.format: %q is not json or text", c.Log.Format))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is empty"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is empty"))
	}
	if c.LLM.Timeout <= 0 || c.LLM.MaxConcurrent <= 0 || c.LLM.MaxPromptLength <= 0 {
		errs = append(errs, errors.New("llm: timeout, max_concurrent and max_prompt_length must be positive"))
	}
	providers := c.LLM.Providers()
	if len(providers) == 0 {
		errs = append(errs, errors.New("llm: no provider configured (set an API key or enable llm.demo)"))
	}
	if p := c.LLM.DefaultProvider; p != "" && !slices.Contains(providers, p) {
		errs = append(errs, fmt.Errorf("llm.default_provider: %q is not configured", p))
	}
	if (c.Google.ClientID == "") != (c.Google.ClientSecret == "") {
		errs = append(errs, errors.New("google: client_id and client_secret go together"))
	}
	return errors.Join(errs...)
}

// ParseLevel maps a level name to slog.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %q is not debug, info, warn or error", s)
	}
	return l, nil
}

