package attachments

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory Repo enforcing uniqueness on (email_id, attachment_id).
type MemoryRepo struct {
	mu      sync.RWMutex
	records map[recordKey]Record
	order   []recordKey
}

type recordKey struct {
	emailID      string
	attachmentID string
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{records: make(map[recordKey]Record)}
}

// InsertBatch stores every new record, or none if the context is done.
func (r *MemoryRepo) InsertBatch(ctx context.Context, records []Record) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	staged := map[recordKey]Record{}
	var order []recordKey
	for _, rec := range records {
		key := recordKey{emailID: rec.EmailID, attachmentID: rec.AttachmentID}
		if _, ok := r.records[key]; ok {
			continue
		}
		if _, ok := staged[key]; ok {
			continue
		}
		staged[key] = rec
		order = append(order, key)
	}
	for _, key := range order {
		r.records[key] = staged[key]
	}
	r.order = append(r.order, order...)
	return len(order), nil
}

// List returns all records in insertion order.
func (r *MemoryRepo) List(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.records[key])
	}
	return out, nil
}

var _ Repo = (*MemoryRepo)(nil)
