package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/agenthands/crosswalk/internal/server"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	var skipPopulate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Populate from the catalog and serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts, skipPopulate)
		},
	}
	cmd.Flags().BoolVar(&skipPopulate, "skip-populate", false, "do not run catalog population at startup")
	return cmd
}

func serve(ctx context.Context, opts *rootOptions, skipPopulate bool) error {
	a, err := newApp(ctx, opts, true)
	if err != nil {
		return err
	}
	defer a.close()

	if a.cfg.Log.Mode == "production" || a.cfg.Log.Mode == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	deps := server.Deps{
		Mapper:      a.engine,
		Coverage:    a.coverage,
		Importer:    a.importer,
		Graph:       a.projector,
		Health:      a.store,
		BaseContext: ctx,
	}
	if a.populator != nil {
		deps.Populator = a.populator
		if !skipPopulate {
			// a failed population is logged and retried by POST /refresh
			// or the refresh ticker; the server keeps running
			_ = a.populator.Start(ctx)
		}
		go a.populator.Loop(ctx, a.cfg.Catalog.RefreshInterval)
	} else {
		a.log.Warn("catalog.base_url is empty, population disabled")
	}

	srv := server.New(deps, a.log, a.metrics).HTTPServer(":" + a.cfg.Server.Port)
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("starting server", "port", a.cfg.Server.Port)
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

	a.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
