package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"demobook/handlers"
	"demobook/middleware"
	"demobook/routes"
	"demobook/utils"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(state *cliState) *cobra.Command {
	var withWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the booking HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := state.cfg, state.logger

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			c, err := bootstrap(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer c.Close()
			c.Health.Start(ctx)

			if withWorker {
				w := newWorker(c)
				go func() {
					if err := w.Run(); err != nil {
						logger.Error("Resume worker stopped", zap.Error(err))
					}
				}()
				defer w.Shutdown()
			}

			if cfg.Env == "production" {
				gin.SetMode(gin.ReleaseMode)
			}
			router := gin.New()
			router.Use(gin.Recovery())
			router.Use(utils.ErrorHandler(logger))
			router.Use(middleware.RequestLogger(logger))
			router.Use(middleware.RateLimitMiddleware(cfg.MaxRequestsPerMin, logger))

			bundle := &handlers.HandlerBundle{
				Booking: handlers.NewBookingHandler(c.Service, c.Idempotency, logger),
				Health:  c.Health,
			}
			routes.RegisterRoutes(router, bundle)

			srv := &http.Server{
				Addr:              "0.0.0.0:" + cfg.AppPort,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Sugar().Infof("Starting server on %s...", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			logger.Info("Server is shutting down...")

			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			logger.Info("Server stopped gracefully")
			return nil
		},
	}

	cmd.Flags().BoolVar(&withWorker, "with-worker", false, "also run the resume worker in this process")
	return cmd
}
