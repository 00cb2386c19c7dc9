package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hoanghai1803/paperfeed/internal/api"
	"github.com/hoanghai1803/paperfeed/internal/pipeline"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run the pipeline on a schedule",
		Long: `Serve the HTTP API on localhost. When server.schedule_hours is set, the
pipeline also runs on that interval.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *options) error {
	cfg := opts.cfg

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	defer func() {
		// Runs started over the API must be recorded before the store closes.
		waitCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.pipeline.Shutdown(waitCtx); err != nil {
			slog.Warn("background run did not finish before shutdown", "error", err)
		}
	}()

	// Runs left running belong to a process that exited mid-run.
	if n, err := a.store.FailRunningRuns(ctx, "interrupted by restart"); err != nil {
		slog.Warn("failed to clean up stale runs", "error", err)
	} else if n > 0 {
		slog.Info("marked stale runs as failed", "count", n)
	}

	sched := pipeline.NewScheduler(time.Duration(cfg.Server.ScheduleHours) * time.Hour)
	sched.Start(ctx, pipeline.RunJob(a.pipeline))
	defer sched.Stop()

	addr := fmt.Sprintf("localhost:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(a.store, a.pipeline),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", "http://"+addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}
