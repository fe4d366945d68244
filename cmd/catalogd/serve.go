package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/catalogsync/internal/web"
)

type serveOptions struct {
	workers   bool
	scheduler bool
}

func newServeCommand(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), root, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.workers, "workers", true, "also run the job worker pool")
	cmd.Flags().BoolVar(&opts.scheduler, "scheduler", true, "also run token refresh, lease expiry and audit purge")

	return cmd
}

func runServe(parent context.Context, root *rootOptions, opts *serveOptions) error {
	cfg := root.cfg
	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"worker_concurrency", cfg.Worker.Concurrency,
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	a, err := openApp(parent, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// Background work gets its own context so in-flight jobs finish after
	// the HTTP server has drained.
	bgCtx, cancelBackground := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	if opts.workers {
		pool := a.pool()
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Run(bgCtx)
		}()
	}
	if opts.scheduler {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.svc.StartScheduler(bgCtx, a.schedulerConfig())
		}()
	}

	server := web.NewServer(a.svc, cfg)

	sigCtx, stop := signalContext()
	defer stop()

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Start() }()

	select {
	case err = <-serveErr:
	case <-sigCtx.Done():
		slog.Info("shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if status := a.svc.Limiter().Status(); status.Active > 0 {
		slog.Info("waiting for uploads to complete", "active", status.Active)
	}
	if serr := server.Shutdown(shutdownCtx); serr != nil {
		slog.Error("shutdown error", "error", serr)
	}

	cancelBackground()
	wg.Wait()

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("server stopped")
	return nil
}
