package attachments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"inbound-backend/internal/resend"
	"inbound-backend/internal/shared/metrics"
	"inbound-backend/internal/shared/storage/object"
	"inbound-backend/internal/shared/telemetry"
	"inbound-backend/internal/webhook"
)

var errSourceNotConfigured = errors.New("attachment source not configured")

// Source fetches attachment detail and content from the email provider.
type Source interface {
	GetAttachment(ctx context.Context, emailID, attachmentID string) (resend.Attachment, error)
	Download(ctx context.Context, downloadURL string) ([]byte, error)
}

// Result summarizes one Process call.
type Result struct {
	Uploaded  int
	Skipped   int
	Committed int
}

// Processor stores the attachments of a received email.
// A nil Store means object storage is disabled: every attachment is skipped.
type Processor struct {
	Source Source
	Store  object.ObjectStore
	Repo   Repo
	Prefix string
	NewID  func() string
}

// Process uploads every attachment of data and then commits their records in one batch.
// The first failing attachment aborts the whole call and nothing is committed.
func (p *Processor) Process(ctx context.Context, data webhook.EmailReceivedData) (Result, error) {
	fields := map[string]any{
		"email_id":    data.EmailID,
		"attachments": len(data.Attachments),
	}
	if len(data.Attachments) == 0 {
		telemetry.Info("attachments.none", fields)
		return Result{}, nil
	}
	if p.Store == nil {
		metrics.AddAttachmentsSkipped(len(data.Attachments))
		telemetry.Warn("attachments.storage_disabled", fields)
		return Result{Skipped: len(data.Attachments)}, nil
	}

	staged := make([]Record, 0, len(data.Attachments))
	for _, desc := range data.Attachments {
		rec, err := p.storeOne(ctx, data, desc)
		if err != nil {
			metrics.AddAttachmentsUploaded(len(staged))
			return Result{Uploaded: len(staged)}, err
		}
		staged = append(staged, rec)
	}
	metrics.AddAttachmentsUploaded(len(staged))

	committed, err := p.Repo.InsertBatch(ctx, staged)
	if err != nil {
		return Result{Uploaded: len(staged)}, err
	}
	metrics.AddRecordsCommitted(committed)

	fields["uploaded"] = len(staged)
	fields["committed"] = committed
	telemetry.Info("attachments.processed", fields)
	return Result{Uploaded: len(staged), Committed: committed}, nil
}

func (p *Processor) storeOne(ctx context.Context, data webhook.EmailReceivedData, desc webhook.AttachmentDescriptor) (Record, error) {
	if p.Source == nil {
		return Record{}, &StepError{Step: ErrFetch, AttachmentID: desc.ID, Err: errSourceNotConfigured}
	}
	detail, err := p.Source.GetAttachment(ctx, data.EmailID, desc.ID)
	if err != nil {
		return Record{}, &StepError{Step: ErrFetch, AttachmentID: desc.ID, Err: err}
	}

	body, err := p.Source.Download(ctx, detail.DownloadURL)
	if err != nil {
		return Record{}, &StepError{Step: ErrDownload, AttachmentID: desc.ID, Err: err}
	}

	contentType := firstNonEmpty(desc.ContentType, detail.ContentType)
	key := ObjectKey(p.Prefix, data.EmailID, desc.ID, ExtensionFromContentType(contentType))
	loc, err := p.Store.Put(ctx, key, contentType, body)
	if err != nil {
		return Record{}, &StepError{Step: ErrUpload, AttachmentID: desc.ID, Err: err}
	}

	size := detail.Size
	if size <= 0 {
		size = int64(len(body))
	}

	telemetry.Debug("attachments.uploaded", map[string]any{
		"email_id":      data.EmailID,
		"attachment_id": desc.ID,
		"key":           loc.Key,
		"size":          size,
	})

	return Record{
		ID:                 p.newID(),
		Webhook:            WebhookResend,
		WebhookEventType:   EventTypeEmailReceived,
		MessageID:          data.MessageID,
		EmailID:            data.EmailID,
		AttachmentID:       desc.ID,
		From:               data.From,
		To:                 strings.Join(data.To, ", "),
		Subject:            data.Subject,
		Filename:           firstNonEmpty(desc.Filename, detail.Filename),
		ContentType:        contentType,
		ContentDisposition: firstNonEmpty(desc.ContentDisposition, detail.ContentDisposition),
		ContentID:          firstNonEmpty(desc.ContentID, detail.ContentID),
		FileSize:           size,
		CreatedAt:          parseTime(data.CreatedAt),
		S3Region:           loc.Region,
		S3Bucket:           loc.Bucket,
		S3Key:              key,
	}, nil
}

func (p *Processor) newID() string {
	if p.NewID != nil {
		return p.NewID()
	}
	return uuid.NewString()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parseTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse("2006-01-02 15:04:05.999999-07", raw); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
