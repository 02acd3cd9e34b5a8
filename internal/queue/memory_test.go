package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestMemoryQueueRedeliversUntilAcked(t *testing.T) {
	q := NewMemoryQueue()
	ctx := WithRequestID(context.Background(), "req-1")

	handle, err := q.Enqueue(ctx, TaskProcessEmailReceived, json.RawMessage(`{"type":"email.received"}`))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if handle.ID == "" {
		t.Fatalf("expected task id")
	}

	got, err := q.Receive(context.Background())
	if err != nil || len(got) != 1 {
		t.Fatalf("expected one delivery, got %d err=%v", len(got), err)
	}
	task, err := DecodeTask(got[0].Body)
	if err != nil {
		t.Fatalf("DecodeTask: %v", err)
	}
	if task.Name != TaskProcessEmailReceived || task.RequestID != "req-1" || task.ID != handle.ID {
		t.Fatalf("unexpected task: %+v", task)
	}
	if string(task.Args[0]) != `{"type":"email.received"}` {
		t.Fatalf("unexpected args: %s", task.Args[0])
	}

	if n := q.Requeue(); n != 1 {
		t.Fatalf("expected one requeued delivery, got %d", n)
	}
	again, _ := q.Receive(context.Background())
	if len(again) != 1 || again[0].ReceiveCount != 2 {
		t.Fatalf("expected redelivery with count 2, got %+v", again)
	}
	if err := q.Ack(context.Background(), again[0]); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", q.Len())
	}
}

func TestMemoryQueueReceiveTimesOutEmpty(t *testing.T) {
	q := NewMemoryQueue()
	q.wait = 10 * time.Millisecond

	got, err := q.Receive(context.Background())
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no deliveries, got %d", len(got))
	}
}

func TestMemoryQueueRejectsEmptyName(t *testing.T) {
	q := NewMemoryQueue()
	if _, err := q.Enqueue(context.Background(), " "); err == nil {
		t.Fatalf("expected error for empty task name")
	}
}

func TestMemoryQueueReleaseReturnsOneDelivery(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := q.Enqueue(ctx, TaskHeartbeat); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	got, _ := q.Receive(ctx)
	if len(got) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(got))
	}
	if err := q.Release(ctx, got[0]); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := q.Ack(ctx, got[1]); err != nil {
		t.Fatalf("Ack: %v", err)
	}

	again, _ := q.Receive(ctx)
	if len(again) != 1 || again[0].ID != got[0].ID || again[0].ReceiveCount != 2 {
		t.Fatalf("expected released delivery back, got %+v", again)
	}
	if err := q.Release(ctx, Delivery{ID: "missing", receipt: "missing"}); err == nil {
		t.Fatalf("expected error releasing unknown delivery")
	}
}

func TestMemoryQueueDeadLetterParksDelivery(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	if _, err := q.Enqueue(ctx, TaskHeartbeat); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	got, _ := q.Receive(ctx)
	if len(got) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(got))
	}
	if err := q.DeadLetter(ctx, got[0]); err != nil {
		t.Fatalf("DeadLetter: %v", err)
	}
	if q.Len() != 0 {
		t.Fatalf("expected live queue to be empty, got %d", q.Len())
	}
	if n := q.Requeue(); n != 0 {
		t.Fatalf("expected dead delivery not to be requeued, got %d", n)
	}
	dead := q.Dead()
	if len(dead) != 1 || string(dead[0]) != string(got[0].Body) {
		t.Fatalf("expected delivery on dead list, got %d entries", len(dead))
	}
	if err := q.DeadLetter(ctx, got[0]); err == nil {
		t.Fatalf("expected error dead-lettering an unknown delivery")
	}
}
