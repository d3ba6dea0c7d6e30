package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/supportkb/internal/api/handlers"
	"github.com/cloo-solutions/supportkb/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the supportkb API server and, unless disabled, the embedding job workers",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides SUPPORTKB_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().Bool("no-worker", false, "Serve the API only; jobs are left for a separate worker process")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	noWorker, _ := cmd.Flags().GetBool("no-worker")

	a, err := newApp(ctx, appOptions{migrate: !noMigrate})
	if err != nil {
		return err
	}
	defer a.Close()

	port := a.cfg.Port
	if p, _ := cmd.Flags().GetString("port"); p != "" {
		port = p
	}

	router := server.NewRouter(server.RouterConfig{
		Logger:         a.logger,
		AllowedOrigins: a.cfg.CORSAllowedOrigins,
		HealthHandler:  handlers.NewHealthHandler(a.pool),
		ArticleHandler: handlers.NewArticleHandler(a.ingestion),
		JobHandler:     handlers.NewJobHandler(a.ingestion),
		SearchHandler:  handlers.NewSearchHandler(a.kb),
	})

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("starting server", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if !noWorker {
		a.startWorkers(gctx, g)
	}

	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Info("server exited")
	return nil
}
