// Command authgate runs the OAuth authentication and session service.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/authgate/authgate/internal/app"
	"github.com/authgate/authgate/internal/config"
	"github.com/authgate/authgate/internal/http/middlewares"
	"github.com/authgate/authgate/internal/metrics"
	"github.com/authgate/authgate/internal/observability/logger"
	migrations "github.com/authgate/authgate/migrations/postgres"
)

var version = "dev" // set via -ldflags at build time

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "authgate",
		Short:         "OAuth login and session token service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")

	root.AddCommand(serveCmd(&configPath))
	root.AddCommand(migrateCmd(&configPath))
	root.AddCommand(keygenCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API and metrics servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger.Init(logger.Config{
				Env:         cfg.App.Env,
				Level:       cfg.Log.Level,
				ServiceName: "authgate",
				Version:     version,
			})
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer application.Close()

			apiSrv := application.APIServer()
			metricsSrv := &http.Server{
				Addr:              cfg.Server.MetricsAddr,
				Handler:           metricsMux(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			log := logger.Named("serve")
			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				log.Info("api server listening", logger.String("addr", apiSrv.Addr))
				if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					return err
				}
				return nil
			})
			g.Go(func() error {
				log.Info("metrics server listening", logger.String("addr", metricsSrv.Addr))
				if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				log.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				_ = metricsSrv.Shutdown(shutdownCtx)
				return apiSrv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return middlewares.Chain(mux, middlewares.WithRecover())
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if err := migrations.Up(cfg.Storage.DSN); err != nil {
				return err
			}
			fmt.Println("migrations up to date")
			return nil
		},
	}
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print a fresh 64-char hex encryption key",
		RunE: func(cmd *cobra.Command, args []string) error {
			var key [32]byte
			if _, err := rand.Read(key[:]); err != nil {
				return err
			}
			fmt.Println(hex.EncodeToString(key[:]))
			return nil
		},
	}
}
