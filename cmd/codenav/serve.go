package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aixgo-dev/codenav/internal/api"
	"github.com/aixgo-dev/codenav/internal/sweeper"
	metrics "github.com/aixgo-dev/codenav/pkg/observability"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the session sweeper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			health := metrics.NewHealthChecker(Version)
			if a.store.HasPrimary() {
				health.RegisterCheck(metrics.SessionStoreCheck(a.store.Ping))
			}

			var handlerOpts []api.HandlerOption
			if cfg.Server.RatePerSecond > 0 {
				handlerOpts = append(handlerOpts, api.WithRateLimiter(api.NewRateLimiter(cfg.Server.RatePerSecond, cfg.Server.Burst)))
			}

			srv := &http.Server{
				Addr:         cfg.Server.Addr,
				Handler:      api.NewRouter(api.NewHandler(a.engine, a.store, a.logger, handlerOpts...), health),
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
			}

			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				a.logger.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})

			g.Go(func() error {
				<-gctx.Done()
				a.logger.Info("shutting down http server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})

			if cfg.Session.SweepSchedule != "" {
				g.Go(func() error {
					return sweeper.New(a.store, a.logger).Run(gctx, cfg.Session.SweepSchedule)
				})
			}

			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
