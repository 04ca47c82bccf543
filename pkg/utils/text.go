// Package utils provides shared utilities for text, math, and logging.
package utils

import "strings"

// Truncate returns s truncated to maxLen characters, with "..." appended if truncated.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

// CollapseWhitespace trims s and replaces every run of whitespace with a single space.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// TruncateWords keeps at most maxWords whitespace separated words of s.
// The second return value reports whether anything was cut.
func TruncateWords(s string, maxWords int) (string, bool) {
	words := strings.Fields(s)
	if maxWords <= 0 || len(words) <= maxWords {
		return s, false
	}
	return strings.Join(words[:maxWords], " "), true
}

// TruncateRunes keeps at most maxRunes characters of s.
func TruncateRunes(s string, maxRunes int) (string, bool) {
	r := []rune(s)
	if maxRunes <= 0 || len(r) <= maxRunes {
		return s, false
	}
	return string(r[:maxRunes]), true
}
