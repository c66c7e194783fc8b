package podcast

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Podcast feeds increasingly publish transcripts alongside enclosures
// (podcast:transcript tags). When one exists we decode it to plain text
// and skip local speech-to-text entirely.

var (
	vttTimestamp = regexp.MustCompile(`^\d{2}:\d{2}(:\d{2})?\.\d{3}\s+-->\s+`)
	srtTimestamp = regexp.MustCompile(`^\d{2}:\d{2}:\d{2},\d{3}\s+-->\s+`)
	cueTag       = regexp.MustCompile(`</?[^>]+>`)
)

// DecodeTranscript converts a fetched transcript body into plain text
// based on its declared or sniffed format. Returns "" when nothing
// readable could be extracted.
func DecodeTranscript(body, mimeType string) string {
	switch {
	case strings.Contains(mimeType, "vtt") || strings.HasPrefix(strings.TrimSpace(body), "WEBVTT"):
		return decodeVTT(body)
	case strings.Contains(mimeType, "srt") || srtTimestamp.MatchString(sniffSecondLine(body)):
		return decodeSRT(body)
	case strings.Contains(mimeType, "json") || strings.HasPrefix(strings.TrimSpace(body), "{"):
		return decodeJSON(body)
	default:
		return strings.TrimSpace(body)
	}
}

func decodeVTT(body string) string {
	var lines []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == "WEBVTT" || strings.HasPrefix(line, "NOTE") {
			continue
		}
		if vttTimestamp.MatchString(line) || isCueIdentifier(line) {
			continue
		}
		lines = append(lines, cueTag.ReplaceAllString(line, ""))
	}
	return dedupeAdjacent(lines)
}

func decodeSRT(body string) string {
	var lines []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isCueIdentifier(line) || srtTimestamp.MatchString(line) {
			continue
		}
		lines = append(lines, cueTag.ReplaceAllString(line, ""))
	}
	return dedupeAdjacent(lines)
}

// decodeJSON handles the podcast-namespace JSON transcript format:
// {"segments": [{"body": "..."}]}. Unknown shapes yield "".
func decodeJSON(body string) string {
	var doc struct {
		Segments []struct {
			Body string `json:"body"`
		} `json:"segments"`
	}
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return ""
	}

	var parts []string
	for _, seg := range doc.Segments {
		if text := strings.TrimSpace(seg.Body); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// isCueIdentifier matches bare cue sequence numbers.
func isCueIdentifier(line string) bool {
	if line == "" {
		return false
	}
	for _, r := range line {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// dedupeAdjacent drops consecutive duplicate lines (rolling captions
// repeat each line) and joins the rest with spaces.
func dedupeAdjacent(lines []string) string {
	var out []string
	for _, line := range lines {
		if len(out) > 0 && out[len(out)-1] == line {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, " ")
}

func sniffSecondLine(body string) string {
	lines := strings.SplitN(body, "\n", 3)
	if len(lines) >= 2 {
		return strings.TrimSpace(lines[1])
	}
	return ""
}
