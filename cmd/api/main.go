package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"inbound-backend/internal/bootstrap"
	"inbound-backend/internal/queue"
	"inbound-backend/internal/shared/config"
	"inbound-backend/internal/shared/server"
	"inbound-backend/internal/shared/telemetry"
	"inbound-backend/internal/workerproc"
)

func main() {
	if err := run(); err != nil {
		telemetry.Error("api.exit", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.BuildContext(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap build: %w", err)
	}
	defer app.Close()

	// The memory queue only exists inside this process, so its consumer runs here too.
	workerDone := make(chan error, 1)
	if mem, ok := app.Consumer.(*queue.MemoryQueue); ok {
		runner := &workerproc.Runner{
			Consumer:        mem,
			Deps:            app.WorkerDeps,
			Concurrency:     cfg.WorkerConcurrency,
			ShutdownTimeout: cfg.ShutdownTimeout,
			MaxAttempts:     cfg.WorkerMaxAttempts,
		}
		go func() { workerDone <- runner.Run(ctx) }()
	} else {
		close(workerDone)
	}

	srv := &http.Server{
		Addr:              server.Addr(cfg.Port),
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		telemetry.Info("api.listening", map[string]any{"addr": srv.Addr, "env": cfg.Env})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	telemetry.Info("api.shutdown", map[string]any{"timeout": timeout.String()})
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := <-workerDone; err != nil {
		if errors.Is(err, workerproc.ErrShutdownTimeout) {
			app.KeepDBOpen()
		}
		telemetry.Warn("api.worker_shutdown", map[string]any{"error": err.Error()})
	}
	return nil
}
