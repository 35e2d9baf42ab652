package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/username/threadline/internal/pkg/constants"
	"github.com/username/threadline/internal/pkg/factory"
	"github.com/username/threadline/internal/pkg/httputil"
	"github.com/username/threadline/internal/pkg/logutil"
	"github.com/username/threadline/pkg/config"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "threadline-server",
		Short:         "Serve the threadline conversation API",
		Version:       constants.ServiceVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	rootCmd.Flags().StringVar(&configPath, "config", "", "Path to configuration file")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	logger := factory.NewLogger(cfg.Logging)
	logutil.SetGlobalLogger(logger)

	container, err := factory.NewServiceFactory(logger).Initialize(ctx, cfg)
	if err != nil {
		return err
	}
	if err := container.Start(ctx); err != nil {
		_ = container.Shutdown(context.Background())
		return err
	}

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	middleware := httputil.DefaultMiddlewareConfig
	middleware.EnableCORS = cfg.Server.CORSEnabled
	container.Handlers.SetupRoutes(router, middleware)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("Server starting", logutil.Fields{"addr": server.Addr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "http server")
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("Shutting down server")

		timeout := cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = constants.GracefulShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Server forced to shutdown", logutil.Fields{"error": err.Error()})
		}
		return container.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		return err
	}

	logger.Info("Server exited")
	return nil
}
