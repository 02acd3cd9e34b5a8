package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryQueue is an in-process queue for local development and tests.
// Deliveries stay in flight until acked; Requeue returns unacked ones.
type MemoryQueue struct {
	mu       sync.Mutex
	cond     chan struct{}
	pending  []memoryItem
	inFlight map[string]memoryItem
	dead     []memoryItem
	wait     time.Duration
}

type memoryItem struct {
	id       string
	body     []byte
	received int
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		cond:     make(chan struct{}, 1),
		inFlight: map[string]memoryItem{},
		wait:     time.Second,
	}
}

// Enqueue appends a task to the queue.
func (q *MemoryQueue) Enqueue(ctx context.Context, name string, args ...any) (TaskHandle, error) {
	if err := ctx.Err(); err != nil {
		return TaskHandle{}, err
	}
	task, payload, err := newTask(ctx, name, args)
	if err != nil {
		return TaskHandle{}, fmt.Errorf("encode memory task: %w", err)
	}

	q.mu.Lock()
	q.pending = append(q.pending, memoryItem{id: task.ID, body: payload})
	q.mu.Unlock()

	select {
	case q.cond <- struct{}{}:
	default:
	}
	return TaskHandle{ID: task.ID}, nil
}

// Receive returns pending deliveries, waiting briefly when the queue is empty.
func (q *MemoryQueue) Receive(ctx context.Context) ([]Delivery, error) {
	if out := q.take(); len(out) > 0 {
		return out, nil
	}
	timer := time.NewTimer(q.wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case <-q.cond:
		return q.take(), nil
	}
}

// Ack drops an in-flight delivery.
func (q *MemoryQueue) Ack(ctx context.Context, d Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.inFlight[d.receipt]; !ok {
		return fmt.Errorf("unknown delivery %s", d.ID)
	}
	delete(q.inFlight, d.receipt)
	return nil
}

// Release returns one in-flight delivery to pending.
func (q *MemoryQueue) Release(ctx context.Context, d Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	item, ok := q.inFlight[d.receipt]
	if ok {
		delete(q.inFlight, d.receipt)
		q.pending = append(q.pending, item)
	}
	q.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown delivery %s", d.ID)
	}
	select {
	case q.cond <- struct{}{}:
	default:
	}
	return nil
}

// DeadLetter moves one in-flight delivery to the dead list.
func (q *MemoryQueue) DeadLetter(ctx context.Context, d Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.inFlight[d.receipt]
	if !ok {
		return fmt.Errorf("unknown delivery %s", d.ID)
	}
	delete(q.inFlight, d.receipt)
	q.dead = append(q.dead, item)
	return nil
}

// Dead returns the bodies of dead-lettered deliveries, oldest first.
func (q *MemoryQueue) Dead() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([][]byte, 0, len(q.dead))
	for _, item := range q.dead {
		out = append(out, item.body)
	}
	return out
}

// Requeue moves every unacked in-flight delivery back to pending.
func (q *MemoryQueue) Requeue() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for receipt, item := range q.inFlight {
		q.pending = append(q.pending, item)
		delete(q.inFlight, receipt)
		n++
	}
	return n
}

// Len reports pending plus in-flight deliveries.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) + len(q.inFlight)
}

func (q *MemoryQueue) take() []Delivery {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	out := make([]Delivery, 0, len(q.pending))
	for _, item := range q.pending {
		item.received++
		q.inFlight[item.id] = item
		out = append(out, Delivery{ID: item.id, Body: item.body, ReceiveCount: item.received, receipt: item.id})
	}
	q.pending = nil
	return out
}

var (
	_ Client       = (*MemoryQueue)(nil)
	_ Consumer     = (*MemoryQueue)(nil)
	_ Releaser     = (*MemoryQueue)(nil)
	_ DeadLetterer = (*MemoryQueue)(nil)
)
