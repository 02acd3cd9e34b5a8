package workerproc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"inbound-backend/internal/queue"
	"inbound-backend/internal/shared/metrics"
	"inbound-backend/internal/shared/telemetry"
)

const (
	defaultConcurrency     = 4
	defaultShutdownTimeout = 30 * time.Second
	defaultRetryDelay      = 5 * time.Second
	defaultMaxAttempts     = 5
	receiveBackoff         = time.Second
	ackTimeout             = 10 * time.Second
)

// ErrShutdownTimeout is returned by Run when in-flight tasks outlive the shutdown timeout.
var ErrShutdownTimeout = errors.New("shutdown timeout reached with tasks in flight")

// Runner polls a consumer and handles deliveries on a bounded number of goroutines.
// RetryDelay and MaxAttempts apply only to consumers implementing queue.Releaser: a failed
// delivery is held RetryDelay before it is handed back, and once it has been received
// MaxAttempts times it is dead-lettered instead.
type Runner struct {
	Consumer        queue.Consumer
	Deps            Deps
	Concurrency     int
	ShutdownTimeout time.Duration
	RetryDelay      time.Duration
	MaxAttempts     int

	mu       sync.Mutex
	seq      uint64
	inFlight map[string]queue.Delivery
}

// Run polls until ctx is cancelled, then waits for in-flight tasks.
// In-flight tasks are not cancelled with ctx; ShutdownTimeout bounds the wait.
func (r *Runner) Run(ctx context.Context) error {
	concurrency := r.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	shutdownTimeout := r.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	work := context.WithoutCancel(ctx)

	telemetry.Info("worker.started", map[string]any{"concurrency": concurrency})

pollLoop:
	for {
		select {
		case <-ctx.Done():
			break pollLoop
		default:
		}

		deliveries, err := r.Consumer.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				break pollLoop
			}
			telemetry.Error("worker.receive_failed", map[string]any{"error": err.Error()})
			select {
			case <-ctx.Done():
				break pollLoop
			case <-time.After(receiveBackoff):
			}
			continue
		}

		for i, d := range deliveries {
			select {
			case <-ctx.Done():
				r.releaseAll(work, deliveries[i:])
				break pollLoop
			case sem <- struct{}{}:
			}
			wg.Add(1)
			key := r.track(d)
			go func(d queue.Delivery) {
				defer wg.Done()
				defer func() { <-sem }()
				defer r.untrack(key)
				r.safeHandle(work, d)
			}(d)
		}
	}

	telemetry.Info("worker.shutdown", map[string]any{"timeout": shutdownTimeout.String()})
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
		return nil
	case <-time.After(shutdownTimeout):
		running := r.running()
		telemetry.Warn("worker.shutdown_timeout", map[string]any{
			"in_flight":    len(running),
			"delivery_ids": running,
		})
		return ErrShutdownTimeout
	}
}

func (r *Runner) track(d queue.Delivery) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlight == nil {
		r.inFlight = map[string]queue.Delivery{}
	}
	r.seq++
	key := fmt.Sprintf("%d:%s", r.seq, d.ID)
	r.inFlight[key] = d
	return key
}

func (r *Runner) untrack(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, key)
}

// running lists the delivery ids of tasks that have not returned yet, sorted.
func (r *Runner) running() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.inFlight))
	for _, d := range r.inFlight {
		ids = append(ids, d.ID)
	}
	sort.Strings(ids)
	return ids
}

// Handle processes one delivery and acknowledges it on success or when it can never succeed.
// Failed deliveries are left for redelivery.
func (r *Runner) Handle(ctx context.Context, d queue.Delivery) {
	metrics.IncTasksReceived()
	fields := map[string]any{
		"delivery_id":   d.ID,
		"receive_count": d.ReceiveCount,
	}

	task, meta, err := ParseMessage(d.Body)
	if err != nil {
		fields["body_len"] = meta.BodyLen
		if meta.BodySHA != "" {
			fields["body_sha256"] = meta.BodySHA
		}
		fields["error"] = err.Error()
		telemetry.Error("worker.task.decode_failed", fields)
		if r.ack(ctx, d, fields) {
			metrics.IncTaskDeletedUnrecoverable()
		}
		return
	}

	fields["task"] = task.Name
	fields["task_id"] = task.ID
	if task.RequestID != "" {
		fields["request_id"] = task.RequestID
	}
	telemetry.Info("worker.task.received", fields)

	start := time.Now()
	err = HandleTask(ctx, r.Deps, task)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		fields["error"] = err.Error()
		if Unrecoverable(err) {
			telemetry.Error("worker.task.unrecoverable", fields)
			metrics.ObserveTaskDuration(task.Name, "unrecoverable", elapsed)
			if r.ack(ctx, d, fields) {
				metrics.IncTaskDeletedUnrecoverable()
			}
			return
		}
		telemetry.Error("worker.task.failed", fields)
		metrics.IncTaskFailed(task.Name)
		metrics.ObserveTaskDuration(task.Name, "failed", elapsed)
		if r.exhausted(d) {
			r.deadLetter(ctx, d, task.Name, fields)
			return
		}
		r.retryLater(ctx, d, fields)
		return
	}

	metrics.ObserveTaskDuration(task.Name, "completed", elapsed)
	if r.ack(ctx, d, fields) {
		telemetry.Info("worker.task.completed", fields)
		metrics.IncTaskCompleted(task.Name)
	}
}

// safeHandle keeps a panicking task from taking down the poll loop. The delivery stays unacked.
func (r *Runner) safeHandle(ctx context.Context, d queue.Delivery) {
	defer func() {
		if rec := recover(); rec != nil {
			telemetry.Error("worker.task.panic", map[string]any{
				"delivery_id": d.ID,
				"panic":       fmt.Sprint(rec),
			})
			metrics.IncTaskFailed("panic")
		}
	}()
	r.Handle(ctx, d)
}

func (r *Runner) ack(ctx context.Context, d queue.Delivery, fields map[string]any) bool {
	ackCtx, cancel := context.WithTimeout(ctx, ackTimeout)
	defer cancel()
	if err := r.Consumer.Ack(ackCtx, d); err != nil {
		fields["ack_error"] = err.Error()
		telemetry.Error("worker.task.ack_failed", fields)
		return false
	}
	return true
}

func (r *Runner) release(ctx context.Context, d queue.Delivery, fields map[string]any) {
	releaser, ok := r.Consumer.(queue.Releaser)
	if !ok {
		return
	}
	if err := releaser.Release(ctx, d); err != nil {
		fields["release_error"] = err.Error()
		telemetry.Error("worker.task.release_failed", fields)
	}
}

// exhausted reports whether a failed delivery has used up its attempts. Consumers without
// Release rely on the broker's own redrive policy and are never capped here.
func (r *Runner) exhausted(d queue.Delivery) bool {
	if _, ok := r.Consumer.(queue.Releaser); !ok {
		return false
	}
	limit := r.MaxAttempts
	if limit <= 0 {
		limit = defaultMaxAttempts
	}
	return d.ReceiveCount >= limit
}

// deadLetter parks d on the consumer's dead list, or acks it when the consumer has none.
// A failed move falls back to a normal retry.
func (r *Runner) deadLetter(ctx context.Context, d queue.Delivery, task string, fields map[string]any) {
	if dl, ok := r.Consumer.(queue.DeadLetterer); ok {
		dctx, cancel := context.WithTimeout(ctx, ackTimeout)
		err := dl.DeadLetter(dctx, d)
		cancel()
		if err != nil {
			fields["dead_letter_error"] = err.Error()
			telemetry.Error("worker.task.dead_letter_failed", fields)
			r.retryLater(ctx, d, fields)
			return
		}
	} else if !r.ack(ctx, d, fields) {
		return
	}
	telemetry.Error("worker.task.dead_lettered", fields)
	metrics.IncTaskDeadLettered(task)
}

func (r *Runner) retryLater(ctx context.Context, d queue.Delivery, fields map[string]any) {
	if _, ok := r.Consumer.(queue.Releaser); !ok {
		return
	}
	delay := r.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	r.release(ctx, d, fields)
}

func (r *Runner) releaseAll(ctx context.Context, deliveries []queue.Delivery) {
	for _, d := range deliveries {
		r.release(ctx, d, map[string]any{"delivery_id": d.ID})
	}
}
