package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/unalkalkan/TaleWeaver/internal/app"
	"github.com/unalkalkan/TaleWeaver/internal/config"
	"github.com/unalkalkan/TaleWeaver/internal/observe"
	"github.com/unalkalkan/TaleWeaver/pkg/types"
)

var version = "dev"

var (
	configPath string
	offline    bool
	noColor    bool
)

var rootCmd = &cobra.Command{
	Use:           "taleweaver",
	Short:         "Generate illustrated, narrated children's tales and read them page by page",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file (default: built-in defaults)")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "use the offline generator and skip the remote tale store")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		report(markFail, "%v", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and installs the default logger
func loadConfig() (*types.Config, *slog.Logger, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// newApp builds the client application from the global flags
func newApp() (*app.App, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(app.Options{
		Config:  cfg,
		Offline: offline,
		Metrics: observe.DefaultMetrics(),
		Logger:  logger,
	})
}

func newLogger(cfg types.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func must(cmd *cobra.Command, name string) (string, error) {
	v, _ := cmd.Flags().GetString(name)
	if strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("--%s is required", name)
	}
	return v, nil
}
