// Package cli provides the command-line interface for autoposter.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ReactorcoreGames/BlueskyAutoPoster/internal/config"
	"github.com/ReactorcoreGames/BlueskyAutoPoster/internal/privacy"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

var (
	configDir string
	logLevel  string
	logFormat string

	// redactor scrubs credentials from log lines and the final error.
	redactor *privacy.Redactor

	logOutput io.Writer = os.Stderr
)

var rootCmd = &cobra.Command{
	Use:   "autoposter",
	Short: "Post the next link from a list to Bluesky",
	Long: "autoposter keeps a list of titles and links in a CSV or XLSX file and, on every run, " +
		"publishes the next one to Bluesky, cycling back to the start after the last row.",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadDotEnv,
	RunE:              runAction,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("autoposter %s (%s)\n", Version, Commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configDir, "config-dir", "C", ".", "directory holding config.yaml, .env and relative paths")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text, json (overrides config)")
	rootCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "format the next post without publishing or saving state")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(nextCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(doctorCmd)
}

// Execute runs the root command and prints a failure to stderr. Cancelling
// ctx aborts in-flight requests.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "autoposter: %s\n", redactor.Error(err))
	}
	return err
}

// loadDotEnv reads credentials from .env in the config dir. Variables
// already set in the environment win.
func loadDotEnv(_ *cobra.Command, _ []string) error {
	err := godotenv.Load(filepath.Join(configDir, ".env"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// loadConfig reads the config and builds the logger every command uses.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}

	r, err := privacy.NewRedactor(cfg.Privacy.Redact.Patterns, cfg.Bluesky.AppPassword, cfg.State.Git.Token)
	if err != nil {
		return nil, nil, fmt.Errorf("compile redact patterns: %w", err)
	}
	redactor = r

	log, err := newLogger(logOutput, cfg.Log.Level, cfg.Log.Format, r)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func newLogger(w io.Writer, level, format string, r *privacy.Redactor) (*slog.Logger, error) {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	switch format {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	case "text", "":
		h = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q (want text or json)", format)
	}
	return slog.New(privacy.NewHandler(h, r)), nil
}
