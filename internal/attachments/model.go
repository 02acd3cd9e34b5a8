package attachments

import "time"

// Fixed tags for records produced by this integration.
const (
	WebhookResend          = "resend"
	EventTypeEmailReceived = "email.received"
)

// Record is one stored attachment. Records are created after a successful upload
// and never updated or deleted.
type Record struct {
	ID                 string
	Webhook            string
	WebhookEventType   string
	MessageID          string
	EmailID            string
	AttachmentID       string
	From               string
	To                 string
	Subject            string
	Filename           string
	ContentType        string
	ContentDisposition string
	ContentID          string
	FileSize           int64
	CreatedAt          time.Time
	S3Region           string
	S3Bucket           string
	S3Key              string
}
