package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/itish2003/docchat/controller"
)

func NewServeCmd(a func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			watchDir, _ := cmd.Flags().GetString("watch")
			return runServe(cmd.Context(), a(), watchDir)
		},
	}
	cmd.Flags().String("watch", "", "Also keep this directory ingested")
	return cmd
}

func runServe(ctx context.Context, a *app, watchDir string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gin.SetMode(gin.ReleaseMode)
	ragController := controller.NewRAGController(a.ingestion, a.stats, a.rag, a.cfg.Server.MaxUploadMB, a.log)
	router := controller.NewRouter(ragController, a.cfg.Server.AllowedOrigins, a.log)

	if watchDir != "" {
		go func() {
			if err := a.indexer.ScanAndIndexDirectory(ctx, watchDir); err != nil {
				a.log.WithError(err).Error("initial scan failed")
			}
			if err := a.indexer.WatchDirectory(ctx, watchDir); err != nil {
				a.log.WithError(err).Error("watcher stopped")
			}
		}()
	}

	srv := &http.Server{
		Addr:              ":" + a.cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("docchat backend running on http://localhost:%s", a.cfg.Server.Port)
		a.log.Infof("Health check: http://localhost:%s/api/health", a.cfg.Server.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
