package utils

import "unicode"

// ContainsControlChars checks if a string carries any control characters
// (newlines, escapes, NUL). Query text from IPC clients is rejected when it does.
func ContainsControlChars(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) {
			return true
		}
	}
	return false
}
