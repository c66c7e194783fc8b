package rss

import (
	"regexp"
	"strings"
)

// looksTruncated reports whether feed-supplied content is worth
// replacing with a full-page extraction: absent, short, or carrying a
// truncation marker.
func looksTruncated(content string) bool {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return true
	}
	if len(trimmed) < 1000 {
		return true
	}

	lower := strings.ToLower(trimmed)
	for _, marker := range []string{"[...]", "read more", "continue reading"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

var (
	hrefPattern    = regexp.MustCompile(`href=["']([^"']+)["']`)
	bareURLPattern = regexp.MustCompile(`https?://[^\s<>"']+`)
)

// extractOriginURL pulls the origin article URL out of an aggregator
// entry's description: first link href, else first bare URL. Used for
// peer-through feeds whose entry links point at the aggregator itself.
func extractOriginURL(description string) string {
	if m := hrefPattern.FindStringSubmatch(description); m != nil {
		return m[1]
	}
	if m := bareURLPattern.FindString(description); m != "" {
		return strings.TrimRight(m, ".,;)")
	}
	return ""
}

// wordCount counts whitespace-separated tokens.
func wordCount(s string) int {
	return len(strings.Fields(s))
}
