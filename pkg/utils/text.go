// Package utils provides shared helpers for text, vectors, disk usage, and logging.
package utils

// Truncate returns s cut to maxLen characters with "..." appended when it was cut.
// Lengths are counted in runes. If maxLen is 0 or negative, s is returned unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == maxLen {
			return s[:i] + "..."
		}
		n++
	}
	return s
}
