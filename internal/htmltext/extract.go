// Package htmltext turns raw article HTML into readable plain text.
// The web ingestor and the RSS content-enrichment path both go through
// it: pre-clean with goquery, extract the main content with
// go-readability, fall back to tag stripping.
package htmltext

import (
	"strings"

	"codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// readability sometimes returns only a title or metadata fragment;
// anything shorter than this falls back to paragraph extraction.
const minReadableLength = 200

// ExtractText converts raw article HTML into plain text paragraphs.
func ExtractText(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	// Already plain text.
	if !strings.Contains(trimmed, "<") {
		return normalizeWhitespace(trimmed)
	}

	if cleaned := preClean(trimmed); cleaned != "" {
		trimmed = cleaned
	}

	article, err := readability.FromReader(strings.NewReader(trimmed), nil)
	if err == nil {
		var buf strings.Builder
		if err := article.RenderText(&buf); err == nil {
			text := strings.TrimSpace(buf.String())
			if len(text) >= minReadableLength {
				var htmlBuf strings.Builder
				if err := article.RenderHTML(&htmlBuf); err == nil {
					if html := strings.TrimSpace(htmlBuf.String()); html != "" {
						return extractParagraphs(html)
					}
				}
				return normalizeWhitespace(text)
			}
		}
	}

	return extractParagraphs(trimmed)
}

// ExtractTitle pulls the document title: <title>, og:title, first <h1>.
func ExtractTitle(raw string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return ""
	}

	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	if og, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		if title := strings.TrimSpace(og); title != "" {
			return title
		}
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

// StripTags removes all HTML tags and normalizes whitespace.
func StripTags(raw string) string {
	p := bluemonday.StrictPolicy()
	return normalizeWhitespace(p.Sanitize(raw))
}

// preClean removes non-content elements before readability runs.
func preClean(raw string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return ""
	}

	doc.Find("head, script, style, noscript, title, aside, nav, header, footer").Remove()
	doc.Find("iframe, embed, object, video, audio, canvas").Remove()
	doc.Find("[class*='social'], [class*='share'], [class*='comment'], [id*='comment']").Remove()
	doc.Find("meta, link[rel='stylesheet'], link[rel='preload'], link[rel='prefetch']").Remove()

	html, err := doc.Html()
	if err != nil {
		return ""
	}
	return html
}

// extractParagraphs walks headers, paragraphs, code blocks, and list
// items in document order fallback groups, joined by blank lines.
func extractParagraphs(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return StripTags(html)
	}

	var paragraphs []string
	appendText := func(i int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	}

	doc.Find("h1, h2, h3, h4, h5, h6").Each(appendText)
	doc.Find("p").Each(appendText)
	doc.Find("pre code, pre").Each(appendText)
	doc.Find("li").Each(appendText)

	if len(paragraphs) == 0 {
		doc.Find("div, article, section").Each(func(i int, s *goquery.Selection) {
			if text := strings.TrimSpace(s.Text()); len(text) > 10 {
				paragraphs = append(paragraphs, text)
			}
		})
	}

	if len(paragraphs) == 0 {
		return StripTags(html)
	}

	return strings.Join(paragraphs, "\n\n")
}

func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) > 0 {
			out = append(out, strings.Join(fields, " "))
		}
	}
	return strings.Join(out, "\n")
}
