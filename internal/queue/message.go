package queue

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Task names understood by the worker.
const (
	TaskProcessEmailReceived = "process_email_received"
	TaskHeartbeat            = "heartbeat"
)

// TaskVersion is the envelope version written by this producer.
const TaskVersion = 1

// Task is the envelope carried on every queue backend.
type Task struct {
	ID         string            `json:"id"`
	Name       string            `json:"task"`
	Args       []json.RawMessage `json:"args"`
	RequestID  string            `json:"requestId,omitempty"`
	EnqueuedAt string            `json:"enqueuedAt"`
	Version    int               `json:"version"`
}

// TaskHandle identifies an enqueued task.
type TaskHandle struct {
	ID string
}

// EncodeTask returns the JSON representation of a task.
func EncodeTask(task Task) ([]byte, error) {
	return json.Marshal(task)
}

// DecodeTask parses a JSON payload into a Task.
func DecodeTask(payload []byte) (Task, error) {
	var task Task
	if err := json.Unmarshal(payload, &task); err != nil {
		return Task{}, err
	}
	return task, nil
}

func marshalArgs(args []any) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(args))
	for i, arg := range args {
		if raw, ok := arg.(json.RawMessage); ok {
			out = append(out, raw)
			continue
		}
		b, err := json.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("encode arg %d: %w", i, err)
		}
		out = append(out, b)
	}
	return out, nil
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("task name is required")
	}
	return nil
}
