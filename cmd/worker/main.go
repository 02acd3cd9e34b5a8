package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"inbound-backend/internal/bootstrap"
	"inbound-backend/internal/queue"
	"inbound-backend/internal/shared/config"
	"inbound-backend/internal/shared/telemetry"
	"inbound-backend/internal/workerproc"
)

type recoverer interface {
	Recover(ctx context.Context) (int, error)
}

func main() {
	if err := run(); err != nil {
		telemetry.Error("worker.exit", map[string]any{"error": err.Error()})
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

	runner, err := newRunner(ctx, app)
	if err != nil {
		return err
	}
	telemetry.Info("worker.config", map[string]any{
		"queue_backend":   cfg.QueueBackend,
		"concurrency":     runner.Concurrency,
		"storage_enabled": app.Store != nil,
	})

	return finishRun(app, runner.Run(ctx))
}

// finishRun keeps the database open when tasks are still running past the shutdown timeout.
func finishRun(app *bootstrap.App, err error) error {
	if errors.Is(err, workerproc.ErrShutdownTimeout) {
		app.KeepDBOpen()
		return nil
	}
	return err
}

func newRunner(ctx context.Context, app *bootstrap.App) (*workerproc.Runner, error) {
	if app.Consumer == nil {
		return nil, errors.New("QUEUE_BACKEND is required for the worker")
	}
	if _, ok := app.Consumer.(*queue.MemoryQueue); ok {
		return nil, errors.New("QUEUE_BACKEND=memory cannot be consumed from a separate process; the API serves it in-process")
	}
	if err := recoverInFlight(ctx, app.Consumer); err != nil {
		return nil, err
	}
	return &workerproc.Runner{
		Consumer:        app.Consumer,
		Deps:            app.WorkerDeps,
		Concurrency:     app.Config.WorkerConcurrency,
		ShutdownTimeout: app.Config.ShutdownTimeout,
		MaxAttempts:     app.Config.WorkerMaxAttempts,
	}, nil
}

// recoverInFlight returns deliveries a previous run of this consumer never acknowledged.
func recoverInFlight(ctx context.Context, consumer queue.Consumer) error {
	rc, ok := consumer.(recoverer)
	if !ok {
		return nil
	}
	moved, err := rc.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover in-flight deliveries: %w", err)
	}
	if moved > 0 {
		telemetry.Warn("worker.recovered", map[string]any{"deliveries": moved})
	}
	return nil
}
