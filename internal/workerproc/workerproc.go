package workerproc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"inbound-backend/internal/attachments"
	"inbound-backend/internal/queue"
	"inbound-backend/internal/shared/telemetry"
	"inbound-backend/internal/shared/util"
	"inbound-backend/internal/webhook"
)

// EmailProcessor handles the data of one email.received event.
type EmailProcessor interface {
	Process(ctx context.Context, data webhook.EmailReceivedData) (attachments.Result, error)
}

// Deps are the long-lived collaborators task handlers run against.
type Deps struct {
	Attachments EmailProcessor
}

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body []byte) MessageMeta {
	if len(body) == 0 {
		return MessageMeta{}
	}
	return MessageMeta{BodyLen: len(body), BodySHA: util.SHA256Hex(body)}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a payload or task argument that cannot be decoded.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

func (e ErrDecode) Unwrap() error { return e.Err }

// ErrMissingTaskName indicates a decoded task without a name.
type ErrMissingTaskName struct {
	Meta      MessageMeta
	TaskID    string
	RequestID string
}

func (e ErrMissingTaskName) Error() string { return "missing task name" }

// ErrUnknownTask indicates a task name this worker does not handle.
type ErrUnknownTask struct {
	Name   string
	TaskID string
}

func (e ErrUnknownTask) Error() string { return "unknown task " + e.Name }

// ErrProcess indicates processing failed after successful parsing. The delivery is retried.
type ErrProcess struct {
	Task      string
	TaskID    string
	RequestID string
	Err       error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "process " + e.Task
	}
	return "process " + e.Task + ": " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// Unrecoverable reports whether err means the delivery can never succeed and should be dropped.
func Unrecoverable(err error) bool {
	var (
		empty   ErrEmptyBody
		decode  ErrDecode
		missing ErrMissingTaskName
		unknown ErrUnknownTask
	)
	return errors.As(err, &empty) || errors.As(err, &decode) || errors.As(err, &missing) || errors.As(err, &unknown)
}

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body []byte) (queue.Task, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(string(body)) == "" {
		return queue.Task{}, meta, ErrEmptyBody{Meta: meta}
	}

	task, err := queue.DecodeTask(body)
	if err != nil {
		return queue.Task{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if strings.TrimSpace(task.Name) == "" {
		return task, meta, ErrMissingTaskName{Meta: meta, TaskID: task.ID, RequestID: task.RequestID}
	}
	return task, meta, nil
}

// HandleMessage parses a payload and runs its task.
func HandleMessage(ctx context.Context, deps Deps, body []byte) error {
	task, _, err := ParseMessage(body)
	if err != nil {
		return err
	}
	return HandleTask(ctx, deps, task)
}

// HandleTask dispatches a decoded task by name.
func HandleTask(ctx context.Context, deps Deps, task queue.Task) error {
	switch task.Name {
	case queue.TaskProcessEmailReceived:
		return processEmailReceived(ctx, deps, task)
	case queue.TaskHeartbeat:
		telemetry.Debug("worker.heartbeat", map[string]any{"task_id": task.ID})
		return nil
	default:
		return ErrUnknownTask{Name: task.Name, TaskID: task.ID}
	}
}

func processEmailReceived(ctx context.Context, deps Deps, task queue.Task) error {
	if len(task.Args) != 1 {
		return ErrDecode{Err: fmt.Errorf("%s expects 1 argument, got %d", task.Name, len(task.Args))}
	}
	evt, err := webhook.ParseEvent(task.Args[0])
	if err != nil {
		return ErrDecode{Meta: ComputeMeta(task.Args[0]), Err: err}
	}
	if evt.Kind() != webhook.EventEmailReceived {
		return ErrDecode{Err: fmt.Errorf("%s got event type %q", task.Name, evt.Type)}
	}
	if deps.Attachments == nil {
		return ErrProcess{Task: task.Name, TaskID: task.ID, RequestID: task.RequestID, Err: errors.New("attachment processor not configured")}
	}

	res, err := deps.Attachments.Process(ctx, evt.Data)
	if err != nil {
		return ErrProcess{Task: task.Name, TaskID: task.ID, RequestID: task.RequestID, Err: err}
	}
	telemetry.Info("worker.email_received.processed", map[string]any{
		"task_id":    task.ID,
		"request_id": task.RequestID,
		"email_id":   evt.Data.EmailID,
		"uploaded":   res.Uploaded,
		"skipped":    res.Skipped,
		"committed":  res.Committed,
	})
	return nil
}
