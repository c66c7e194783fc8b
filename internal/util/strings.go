package util

import "strings"

// Truncate shortens s to at most max runes, appending suffix when it cuts.
// The suffix counts against the limit.
func Truncate(s string, max int, suffix string) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	keep := max - len([]rune(suffix))
	if keep < 0 {
		keep = 0
	}
	return string(runes[:keep]) + suffix
}

// FirstNonEmpty returns the first string in vals that is not empty
// after trimming whitespace, or "" when all are blank.
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
