// Package textutil shortens commit subjects and other one-line text for
// reports.
package textutil

import "strings"

// Ellipsis marks text cut by Ellipsize.
const Ellipsis = "..."

// Truncate returns the first n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}

	count := 0

	for i := range s {
		if count == n {
			return s[:i]
		}

		count++
	}

	return s
}

// Ellipsize returns s unchanged when it has at most n runes, otherwise its
// first n runes followed by Ellipsis.
func Ellipsize(s string, n int) string {
	cut := Truncate(s, n)
	if len(cut) == len(s) {
		return s
	}

	return cut + Ellipsis
}

// FirstLine returns s up to its first line break, without surrounding
// whitespace.
func FirstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")

	return strings.TrimSpace(line)
}
