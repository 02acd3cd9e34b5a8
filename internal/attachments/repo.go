package attachments

import "context"

// Repo persists attachment records.
type Repo interface {
	// InsertBatch commits records in one transaction and returns how many were new.
	// Records whose (email_id, attachment_id) already exists are skipped.
	InsertBatch(ctx context.Context, records []Record) (int, error)
}
