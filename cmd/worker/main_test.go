package main

import (
	"context"
	"errors"
	"testing"

	"inbound-backend/internal/bootstrap"
	"inbound-backend/internal/queue"
	"inbound-backend/internal/shared/config"
	"inbound-backend/internal/workerproc"
)

type fakeConsumer struct{}

func (fakeConsumer) Receive(ctx context.Context) ([]queue.Delivery, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (fakeConsumer) Ack(ctx context.Context, d queue.Delivery) error {
	_ = ctx
	_ = d
	return nil
}

type recoveringConsumer struct {
	fakeConsumer
	moved int
	err   error
	calls int
}

func (r *recoveringConsumer) Recover(ctx context.Context) (int, error) {
	_ = ctx
	r.calls++
	return r.moved, r.err
}

func TestRecoverInFlightCallsRecoverer(t *testing.T) {
	rc := &recoveringConsumer{moved: 3}
	if err := recoverInFlight(context.Background(), rc); err != nil {
		t.Fatalf("recoverInFlight: %v", err)
	}
	if rc.calls != 1 {
		t.Fatalf("expected Recover to be called once, got %d", rc.calls)
	}
}

func TestRecoverInFlightPropagatesError(t *testing.T) {
	rc := &recoveringConsumer{err: errors.New("connection refused")}
	if err := recoverInFlight(context.Background(), rc); !errors.Is(err, rc.err) {
		t.Fatalf("expected wrapped recover error, got %v", err)
	}
}

func TestRecoverInFlightSkipsPlainConsumers(t *testing.T) {
	if err := recoverInFlight(context.Background(), fakeConsumer{}); err != nil {
		t.Fatalf("recoverInFlight: %v", err)
	}
}

func TestNewRunnerRejectsUnusableQueues(t *testing.T) {
	cases := map[string]*bootstrap.App{
		"no queue":     {},
		"memory queue": {Consumer: queue.NewMemoryQueue()},
	}
	for name, app := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := newRunner(context.Background(), app); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestNewRunnerUsesConfig(t *testing.T) {
	app := &bootstrap.App{
		Config:   config.Config{WorkerConcurrency: 7},
		Consumer: &recoveringConsumer{},
	}
	runner, err := newRunner(context.Background(), app)
	if err != nil {
		t.Fatalf("newRunner: %v", err)
	}
	if runner.Concurrency != 7 || runner.Consumer != app.Consumer {
		t.Fatalf("unexpected runner %+v", runner)
	}
}

func TestNewRunnerPassesMaxAttempts(t *testing.T) {
	app := &bootstrap.App{
		Config:   config.Config{WorkerMaxAttempts: 3},
		Consumer: &recoveringConsumer{},
	}
	runner, err := newRunner(context.Background(), app)
	if err != nil {
		t.Fatalf("newRunner: %v", err)
	}
	if runner.MaxAttempts != 3 {
		t.Fatalf("expected max attempts 3, got %d", runner.MaxAttempts)
	}
}

func TestFinishRunToleratesShutdownTimeout(t *testing.T) {
	app := &bootstrap.App{}
	if err := finishRun(app, workerproc.ErrShutdownTimeout); err != nil {
		t.Fatalf("expected shutdown timeout to be tolerated, got %v", err)
	}
	if err := finishRun(app, nil); err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
	runErr := errors.New("receive loop failed")
	if err := finishRun(app, runErr); !errors.Is(err, runErr) {
		t.Fatalf("expected run error to propagate, got %v", err)
	}
}
