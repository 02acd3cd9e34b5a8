package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"inbound-backend/internal/attachments"
	"inbound-backend/internal/queue"
	"inbound-backend/internal/shared/telemetry"
	"inbound-backend/internal/webhook"
	"inbound-backend/internal/workerproc"
)

type fakeProcessor struct {
	failFor map[string]bool
	calls   int
}

func (f *fakeProcessor) Process(ctx context.Context, data webhook.EmailReceivedData) (attachments.Result, error) {
	_ = ctx
	f.calls++
	if f.failFor[data.EmailID] {
		return attachments.Result{}, errors.New("upload failed")
	}
	return attachments.Result{Uploaded: len(data.Attachments)}, nil
}

func taskBody(t *testing.T, emailID string) string {
	t.Helper()
	envelope := `{"type":"email.received","data":{"email_id":"` + emailID + `","attachments":[]}}`
	body, err := queue.EncodeTask(queue.Task{
		ID:   "task-" + emailID,
		Name: queue.TaskProcessEmailReceived,
		Args: []json.RawMessage{json.RawMessage(envelope)},
	})
	if err != nil {
		t.Fatalf("EncodeTask: %v", err)
	}
	return string(body)
}

func TestProcessRecordsReportsOnlyRetryableFailures(t *testing.T) {
	proc := &fakeProcessor{failFor: map[string]bool{"e2": true}}
	records := []events.SQSMessage{
		{MessageId: "m1", Body: taskBody(t, "e1")},
		{MessageId: "m2", Body: taskBody(t, "e2"), Attributes: map[string]string{"ApproximateReceiveCount": "3"}},
		{MessageId: "m3", Body: "{bad-json"},
	}

	failures := processRecords(context.Background(), workerproc.Deps{Attachments: proc}, records)

	if len(failures) != 1 || failures[0].ItemIdentifier != "m2" {
		t.Fatalf("expected only m2 to fail, got %+v", failures)
	}
	if proc.calls != 2 {
		t.Fatalf("expected 2 processor calls, got %d", proc.calls)
	}
}

func TestProcessRecordsLogsReceiveCount(t *testing.T) {
	var buf bytes.Buffer
	restore := telemetry.SetOutput(&buf)
	defer restore()

	proc := &fakeProcessor{failFor: map[string]bool{"e1": true}}
	records := []events.SQSMessage{
		{MessageId: "m1", Body: taskBody(t, "e1"), Attributes: map[string]string{"ApproximateReceiveCount": "4"}},
	}
	processRecords(context.Background(), workerproc.Deps{Attachments: proc}, records)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var payload map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &payload); err != nil {
		t.Fatalf("decode log json: %v", err)
	}
	if payload["message"] != "lambda_worker.task.failed" {
		t.Fatalf("unexpected message: %v", payload["message"])
	}
	if payload["receive_count"] != float64(4) {
		t.Fatalf("expected receive_count 4, got %v", payload["receive_count"])
	}
}
