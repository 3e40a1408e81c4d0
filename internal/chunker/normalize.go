package chunker

import "strings"

// Normalize converts CRLF and lone CR line endings to LF and drops a leading
// byte order mark, so paragraph and line separators match regardless of origin.
func Normalize(text string) string {
	text = strings.TrimPrefix(text, "\uFEFF")
	if !strings.Contains(text, "\r") {
		return text
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}
