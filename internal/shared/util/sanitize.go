package util

import "strings"

// SanitizeKeySegment makes s safe to embed in one segment of an object key:
// path separators and traversal sequences become underscores.
func SanitizeKeySegment(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "..", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
