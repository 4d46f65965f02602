package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/agentflow/pkg/server"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the agent over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			addr := a.settings.Server.Addr
			if flag, _ := cmd.Flags().GetString("addr"); flag != "" {
				addr = flag
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := &http.Server{
				Addr: addr,
				Handler: server.New(a.engine,
					server.WithLogger(a.logger),
					server.WithCORSOrigins(a.settings.Server.CORSOrigins...),
				).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			return serve(ctx, srv, a)
		},
	}
	cmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
	return cmd
}

// serve runs srv until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, a *app) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("server listening", "addr", srv.Addr, "store", a.settings.Store.Backend)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
