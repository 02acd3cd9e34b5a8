package attachments

import (
	"mime"
	"strings"

	"inbound-backend/internal/shared/util"
)

const (
	keyFilePrefix    = "resend_"
	defaultExtension = "bin"
)

// ObjectKey is the single canonical key for an attachment, used both for the upload
// and for the persisted s3_key: {prefix}/resend_{email_id}_{attachment_id}.{ext}.
func ObjectKey(prefix, emailID, attachmentID, ext string) string {
	name := keyFilePrefix + util.SanitizeKeySegment(emailID) + "_" + util.SanitizeKeySegment(attachmentID)
	if ext = strings.TrimPrefix(strings.TrimSpace(ext), "."); ext != "" {
		name += "." + ext
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// ExtensionFromContentType returns the MIME subtype of contentType as a file extension.
// "image/png" gives "png", "application/pdf; name=x" gives "pdf". Unparseable types give "bin".
func ExtensionFromContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, _, _ = strings.Cut(contentType, ";")
	}
	_, subtype, ok := strings.Cut(strings.ToLower(strings.TrimSpace(mediaType)), "/")
	if !ok {
		return defaultExtension
	}

	var b strings.Builder
	for _, r := range subtype {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '+', r == '.':
			b.WriteRune(r)
		}
	}
	ext := strings.Trim(b.String(), ".")
	if ext == "" {
		return defaultExtension
	}
	return ext
}
