package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/hazyhaar/sitegen/api"
	"github.com/hazyhaar/sitegen/auth"
	"github.com/hazyhaar/sitegen/config"
	"github.com/hazyhaar/sitegen/deploy"
	"github.com/hazyhaar/sitegen/generate"
	"github.com/hazyhaar/sitegen/llm"
	"github.com/hazyhaar/sitegen/observability"
	"github.com/hazyhaar/sitegen/store"
	"github.com/hazyhaar/sitegen/thumbnail"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Run the HTTP API server.

Generations left running by a previous process are marked failed at startup.
Events and metrics older than the retention settings are deleted periodically.
SIGINT or SIGTERM drains in-flight requests before exiting.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer st.Close()
	if n, err := st.FailStaleGenerations(ctx); err != nil {
		return err
	} else if n > 0 {
		logger.Warn("stale generations marked failed", "count", n)
	}

	events := observability.NewEventLogger(st.DB, observability.WithLogger(logger))
	metrics := observability.NewMetrics(st.DB, 100, 10*time.Second)
	defer metrics.Close()

	providers, err := buildProviders(ctx, cfg.LLM, metrics, logger)
	if err != nil {
		return err
	}
	enhancer := &llm.Enhancer{Timeout: cfg.LLM.EnhanceTimeout, Logger: logger}
	if p, err := providers.Get(""); err == nil {
		enhancer.Provider = p
	}

	gcfg := generate.Config{
		Store:           st,
		Providers:       providers,
		Events:          events,
		Metrics:         metrics,
		Enhancer:        enhancer,
		Timeout:         cfg.LLM.Timeout,
		MaxConcurrent:   int64(cfg.LLM.MaxConcurrent),
		MaxPromptLength: cfg.LLM.MaxPromptLength,
		ContextBudget:   cfg.LLM.ContextBudget,
		Logger:          logger,
	}
	if cfg.Thumbnail.Enabled {
		renderer := thumbnail.New(thumbnail.Config{
			RemoteURL: cfg.Thumbnail.RemoteURL,
			Width:     cfg.Thumbnail.Width,
			Height:    cfg.Thumbnail.Height,
			Timeout:   cfg.Thumbnail.Timeout,
			Logger:    logger,
		})
		defer renderer.Close()
		gcfg.Thumbnail = renderer
		gcfg.ThumbnailTimeout = cfg.Thumbnail.Timeout
	}
	generator, err := generate.New(gcfg)
	if err != nil {
		return err
	}
	defer generator.Close()

	deployer, err := buildDeployer(cfg.Deploy, st, events, metrics, logger)
	if err != nil {
		return err
	}

	acfg := api.Config{
		Store:         st,
		Generator:     generator,
		Providers:     providers,
		Deployer:      deployer,
		Enhancer:      enhancer,
		Events:        events,
		Metrics:       metrics,
		JWTSecret:     []byte(cfg.Auth.JWTSecret),
		TokenTTL:      cfg.Auth.TokenTTL,
		SecureCookies: cfg.Auth.SecureCookies,
		AdminEmails:   cfg.Auth.AdminEmails,
		Google:        googleOAuth(cfg),
		Version:       version,
		Logger:        logger,
	}
	srv, err := api.New(acfg)
	if err != nil {
		return err
	}
	srv.Start(ctx)

	go retentionLoop(ctx, st, cfg.Retention, logger)

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       2 * time.Minute,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("sitegen listening", "addr", cfg.Server.Addr, "version", version,
			"providers", providers.Names(), "default_provider", providers.Default())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http: %w", err)
		}
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	return nil
}

// buildProviders registers every configured LLM provider behind the
// logging, metrics, circuit breaker, retry and timeout middleware.
func buildProviders(ctx context.Context, cfg config.LLMConfig, metrics *observability.Metrics, logger *slog.Logger) (*llm.Registry, error) {
	reg := llm.NewRegistry()
	add := func(p llm.Provider) {
		reg.Register(llm.Wrap(p,
			llm.WithLogging(logger),
			llm.WithMetrics(metrics),
			llm.WithCircuitBreaker(llm.NewCircuitBreaker()),
			llm.WithRetry(cfg.MaxRetries, 500*time.Millisecond, logger),
			llm.WithTimeout(cfg.Timeout),
		))
	}

	for _, name := range cfg.Providers() {
		switch name {
		case "openai":
			p, err := llm.NewOpenAI(llm.OpenAIConfig{
				APIKey: cfg.OpenAI.APIKey, BaseURL: cfg.OpenAI.BaseURL,
				Model: cfg.OpenAI.Model, MaxTokens: cfg.OpenAI.MaxTokens,
			})
			if err != nil {
				return nil, err
			}
			add(p)
		case "anthropic":
			p, err := llm.NewAnthropic(llm.AnthropicConfig{
				APIKey: cfg.Anthropic.APIKey, BaseURL: cfg.Anthropic.BaseURL,
				Model: cfg.Anthropic.Model, MaxTokens: cfg.Anthropic.MaxTokens,
			})
			if err != nil {
				return nil, err
			}
			add(p)
		case "gemini":
			p, err := llm.NewGemini(ctx, llm.GeminiConfig{
				APIKey: cfg.Gemini.APIKey, BaseURL: cfg.Gemini.BaseURL,
				Model: cfg.Gemini.Model, MaxTokens: cfg.Gemini.MaxTokens,
			})
			if err != nil {
				return nil, err
			}
			add(p)
		case "demo":
			add(&llm.Demo{ChunkSize: 48, Delay: 15 * time.Millisecond})
		}
	}
	if cfg.DefaultProvider != "" {
		if err := reg.SetDefault(cfg.DefaultProvider); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// buildDeployer returns nil when no deployment target is configured.
func buildDeployer(cfg config.DeployConfig, st *store.Store, events *observability.EventLogger, metrics *observability.Metrics, logger *slog.Logger) (*deploy.Service, error) {
	var deployers []deploy.Deployer
	if cfg.Vercel.Token != "" {
		deployers = append(deployers, deploy.NewVercel(deploy.VercelConfig{
			Token:   cfg.Vercel.Token,
			TeamID:  cfg.Vercel.TeamID,
			Timeout: cfg.Timeout,
			Logger:  logger,
		}))
	}
	if cfg.GitHubPages.RepoURL != "" {
		deployers = append(deployers, deploy.NewGitPages(deploy.GitPagesConfig{
			RepoURL:  cfg.GitHubPages.RepoURL,
			Branch:   cfg.GitHubPages.Branch,
			Token:    cfg.GitHubPages.Token,
			PagesURL: cfg.GitHubPages.PagesURL,
			Logger:   logger,
		}))
	}
	if cfg.Directory.Root != "" {
		deployers = append(deployers, &deploy.Directory{Root: cfg.Directory.Root, BaseURL: cfg.Directory.BaseURL})
	}
	if len(deployers) == 0 {
		logger.Info("no deployment target configured")
		return nil, nil
	}
	return deploy.NewService(deploy.ServiceConfig{
		Store:   st,
		Events:  events,
		Metrics: metrics,
		Default: cfg.Default,
		Logger:  logger,
	}, deployers...)
}

func googleOAuth(cfg *config.Config) *oauth2.Config {
	if !cfg.Google.Enabled() {
		return nil
	}
	redirect := cfg.Google.RedirectURL
	if redirect == "" {
		redirect = strings.TrimRight(cfg.Server.BaseURL, "/") + "/api/auth/google/callback"
	}
	return auth.NewGoogleProvider(auth.OAuthConfig{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  redirect,
	})
}

// retentionLoop applies the retention settings at startup and then every
// interval until ctx is done.
func retentionLoop(ctx context.Context, st *store.Store, cfg config.RetentionConfig, logger *slog.Logger) {
	if cfg.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		applyRetention(ctx, st, cfg, logger)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func applyRetention(ctx context.Context, st *store.Store, cfg config.RetentionConfig, logger *slog.Logger) (int64, error) {
	n, err := observability.Cleanup(ctx, st.DB, observability.RetentionConfig{
		EventDays:  cfg.EventDays,
		MetricDays: cfg.MetricDays,
	})
	if err != nil {
		logger.Error("retention cleanup", "error", err)
		return n, err
	}
	if n > 0 {
		logger.Info("retention cleanup", "deleted", n)
	}
	return n, nil
}
