package telemetry

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestInfoWritesStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutput(&buf)
	defer restore()

	Info("webhook.accepted", map[string]any{"svix_id": "msg_1", "event_type": "email.received"})

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["level"] != "info" {
		t.Fatalf("expected level info, got %v", entry["level"])
	}
	if entry["message"] != "webhook.accepted" {
		t.Fatalf("expected message webhook.accepted, got %v", entry["message"])
	}
	if entry["svix_id"] != "msg_1" {
		t.Fatalf("expected svix_id field, got %v", entry["svix_id"])
	}
	if _, ok := entry["time"]; !ok {
		t.Fatalf("expected timestamp field")
	}
}

func TestDebugSuppressedAtInfoLevel(t *testing.T) {
	Configure("info", "json")
	var buf bytes.Buffer
	restore := SetOutput(&buf)
	defer restore()

	Debug("worker.heartbeat", nil)

	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
}
