package utils

import "strings"

// FoldASCII lower-cases the ASCII letters A-Z and leaves every other rune untouched.
// Index keys and prefixes are both folded with it, so non-ASCII letters only match
// themselves exactly.
func FoldASCII(s string) string {
	i := 0
	for ; i < len(s); i++ {
		if c := s[i]; 'A' <= c && c <= 'Z' {
			break
		}
	}
	if i == len(s) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	b.WriteString(s[:i])
	for ; i < len(s); i++ {
		c := s[i]
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		b.WriteByte(c)
	}
	return b.String()
}
