package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Client enqueues tasks on a queue backend. Enqueue is fire-and-forget:
// the handle only identifies the task, results are never awaited.
type Client interface {
	Enqueue(ctx context.Context, name string, args ...any) (TaskHandle, error)
}

// Delivery is one received message. Unacked deliveries are redelivered.
type Delivery struct {
	ID           string
	Body         []byte
	ReceiveCount int

	// backend-specific acknowledgement token
	receipt string
}

// Consumer receives and acknowledges deliveries.
type Consumer interface {
	Receive(ctx context.Context) ([]Delivery, error)
	Ack(ctx context.Context, d Delivery) error
}

// Releaser is implemented by consumers that do not redeliver unacked deliveries on their own.
// Release hands a failed delivery back to the queue for another attempt.
type Releaser interface {
	Release(ctx context.Context, d Delivery) error
}

// DeadLetterer is implemented by consumers that park deliveries which exhausted their attempts.
// DeadLetter moves d out of the live queue without redelivering it.
type DeadLetterer interface {
	DeadLetter(ctx context.Context, d Delivery) error
}

type requestIDKey struct{}

// WithRequestID attaches the originating request id to ctx so it is carried on enqueued tasks.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func requestIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

var nowFunc = time.Now

// newTask builds and encodes a task envelope.
func newTask(ctx context.Context, name string, args []any) (Task, []byte, error) {
	if err := validateName(name); err != nil {
		return Task{}, nil, err
	}
	raw, err := marshalArgs(args)
	if err != nil {
		return Task{}, nil, err
	}
	task := Task{
		ID:         uuid.NewString(),
		Name:       name,
		Args:       raw,
		RequestID:  requestIDFrom(ctx),
		EnqueuedAt: nowFunc().UTC().Format(time.RFC3339),
		Version:    TaskVersion,
	}
	payload, err := EncodeTask(task)
	if err != nil {
		return Task{}, nil, err
	}
	return task, payload, nil
}
