package attachments

import (
	"context"
	"database/sql"
	"fmt"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const insertRecordQuery = `
INSERT INTO email_attachments (
    id,
    webhook,
    webhook_event_type,
    message_id,
    email_id,
    attachment_id,
    from_address,
    to_address,
    subject,
    filename,
    content_type,
    content_disposition,
    content_id,
    file_size,
    created_at,
    s3_region,
    s3_bucket,
    s3_key
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
ON CONFLICT (email_id, attachment_id) DO NOTHING`

// InsertBatch inserts all records in a single transaction.
func (r *PGRepo) InsertBatch(ctx context.Context, records []Record) (inserted int, err error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %v", ErrPersist, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, rec := range records {
		var createdAt sql.NullTime
		if !rec.CreatedAt.IsZero() {
			createdAt = sql.NullTime{Time: rec.CreatedAt, Valid: true}
		}
		res, execErr := tx.ExecContext(
			ctx,
			insertRecordQuery,
			rec.ID,
			rec.Webhook,
			rec.WebhookEventType,
			rec.MessageID,
			rec.EmailID,
			rec.AttachmentID,
			rec.From,
			rec.To,
			rec.Subject,
			rec.Filename,
			rec.ContentType,
			rec.ContentDisposition,
			rec.ContentID,
			rec.FileSize,
			createdAt,
			rec.S3Region,
			rec.S3Bucket,
			rec.S3Key,
		)
		if execErr != nil {
			err = fmt.Errorf("%w: insert attachment=%s: %v", ErrPersist, rec.AttachmentID, execErr)
			return 0, err
		}
		if n, rowsErr := res.RowsAffected(); rowsErr == nil {
			inserted += int(n)
		}
	}

	if commitErr := tx.Commit(); commitErr != nil {
		err = fmt.Errorf("%w: commit: %v", ErrPersist, commitErr)
		return 0, err
	}
	return inserted, nil
}

var _ Repo = (*PGRepo)(nil)
