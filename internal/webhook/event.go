package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrParse reports a verified body that is not a valid event envelope.
var ErrParse = errors.New("invalid webhook payload")

// EventType is the closed set of event types this service acts on.
type EventType string

const (
	EventEmailReceived EventType = "email.received"
	EventUnknown       EventType = "unknown"
)

// ClassifyEventType maps a raw envelope type onto a known EventType.
func ClassifyEventType(raw string) EventType {
	switch EventType(strings.TrimSpace(raw)) {
	case EventEmailReceived:
		return EventEmailReceived
	default:
		return EventUnknown
	}
}

// Event is the webhook envelope.
type Event struct {
	Type      string            `json:"type"`
	CreatedAt string            `json:"created_at,omitempty"`
	Data      EmailReceivedData `json:"data"`
}

// Kind classifies the event's type.
func (e Event) Kind() EventType {
	return ClassifyEventType(e.Type)
}

// EmailReceivedData is the data object of an email.received event.
type EmailReceivedData struct {
	EmailID     string                 `json:"email_id"`
	CreatedAt   string                 `json:"created_at,omitempty"`
	From        string                 `json:"from,omitempty"`
	To          []string               `json:"to,omitempty"`
	Cc          []string               `json:"cc,omitempty"`
	Bcc         []string               `json:"bcc,omitempty"`
	MessageID   string                 `json:"message_id,omitempty"`
	Subject     string                 `json:"subject,omitempty"`
	Attachments []AttachmentDescriptor `json:"attachments,omitempty"`
}

// AttachmentDescriptor describes one attachment as announced in the webhook.
// Size and download URL are not trusted from here; they are fetched from the API.
type AttachmentDescriptor struct {
	ID                 string `json:"id"`
	Filename           string `json:"filename,omitempty"`
	ContentType        string `json:"content_type,omitempty"`
	ContentDisposition string `json:"content_disposition,omitempty"`
	ContentID          string `json:"content_id,omitempty"`
}

// ParseEvent decodes a webhook envelope. The body must be a JSON object with a type.
// Data is decoded leniently so that unknown event types with other data shapes still parse.
func ParseEvent(raw []byte) (Event, error) {
	var envelope struct {
		Type      *string         `json:"type"`
		CreatedAt string          `json:"created_at"`
		Data      json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if envelope.Type == nil || strings.TrimSpace(*envelope.Type) == "" {
		return Event{}, fmt.Errorf("%w: missing type", ErrParse)
	}

	evt := Event{Type: *envelope.Type, CreatedAt: envelope.CreatedAt}
	if ClassifyEventType(evt.Type) != EventEmailReceived {
		return evt, nil
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return Event{}, fmt.Errorf("%w: missing data", ErrParse)
	}
	if err := json.Unmarshal(envelope.Data, &evt.Data); err != nil {
		return Event{}, fmt.Errorf("%w: data: %v", ErrParse, err)
	}
	return evt, nil
}
