package utils

import "unicode/utf8"

// Truncate shortens s to maxLen runes and appends "..." when it was cut.
func Truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen]) + "..."
}
