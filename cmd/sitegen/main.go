// Command sitegen runs the website generator server and its maintenance
// tools.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/sitegen/config"
	"github.com/hazyhaar/sitegen/store"

	_ "modernc.org/sqlite"
)

var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "sitegen",
	Short:         "AI website generator",
	Long:          "sitegen generates small static websites from prompts with an LLM, reconciles the files it produces and deploys them.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./sitegen.yaml or /etc/sitegen/sitegen.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "sitegen:", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and installs the default logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	switch cfg.Format {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json", "":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("log.format: %q is not json or text", cfg.Format)
	}
}

// openStore opens the configured database for the maintenance commands.
func openStore() (*store.Store, *config.Config, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}
	return st, cfg, nil
}
