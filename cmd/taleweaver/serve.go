package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/unalkalkan/TaleWeaver/internal/api"
	"github.com/unalkalkan/TaleWeaver/internal/health"
	"github.com/unalkalkan/TaleWeaver/internal/observe"
	"github.com/unalkalkan/TaleWeaver/internal/storage"
	"github.com/unalkalkan/TaleWeaver/internal/talestore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tale-store server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if port, _ := cmd.Flags().GetInt("port"); port > 0 {
			cfg.Server.Port = port
		}
		ctx := cmd.Context()

		var metrics *observe.Metrics
		if cfg.Server.Metrics {
			shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
			if err != nil {
				return fmt.Errorf("failed to init metrics: %w", err)
			}
			defer shutdown(context.Background())
			metrics = observe.DefaultMetrics()
		}

		storageAdapter, err := storage.NewAdapter(cfg.Server.Storage)
		if err != nil {
			return fmt.Errorf("failed to create storage adapter: %w", err)
		}
		defer storageAdapter.Close()
		logger.Info("storage adapter initialized", "adapter", cfg.Server.Storage.Adapter)

		healthHandler := health.NewHandler(version)
		healthHandler.Register("storage", health.StorageCheck(storageAdapter))

		handler := api.NewRouter(api.RouterConfig{
			Tales:   api.NewTaleHandler(talestore.NewRepository(storageAdapter), metrics, logger),
			Health:  healthHandler,
			Metrics: metrics,
			Expose:  cfg.Server.Metrics,
			Logger:  logger,
		})

		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		server := &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
			WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("server listening", "addr", addr, "version", version)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		logger.Info("server exited")
		return nil
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "listen port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
