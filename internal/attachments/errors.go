package attachments

import (
	"errors"
	"fmt"
)

var (
	ErrFetch    = errors.New("attachment detail fetch failed")
	ErrDownload = errors.New("attachment download failed")
	ErrUpload   = errors.New("attachment upload failed")
	ErrPersist  = errors.New("attachment records persist failed")
)

// StepError is a failure of one attachment at one processing step.
// It matches both the step sentinel and the underlying cause with errors.Is.
type StepError struct {
	Step         error
	AttachmentID string
	Err          error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: attachment=%s: %v", e.Step, e.AttachmentID, e.Err)
}

func (e *StepError) Unwrap() []error {
	return []error{e.Step, e.Err}
}
