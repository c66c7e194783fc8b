package htmltext

import (
	"strings"
	"testing"
)

func TestExtractText(t *testing.T) {
	t.Run("plain text passes through", func(t *testing.T) {
		got := ExtractText("already   plain text")
		if got != "already plain text" {
			t.Errorf("unexpected output: %q", got)
		}
	})

	t.Run("strips script and nav content", func(t *testing.T) {
		html := `<html><head><script>evil()</script></head><body>
			<nav>Menu Item</nav>
			<p>First paragraph of the article body.</p>
			<p>Second paragraph with more detail.</p>
			<footer>Copyright</footer></body></html>`

		got := ExtractText(html)
		if strings.Contains(got, "evil") {
			t.Errorf("script content leaked: %q", got)
		}
		if strings.Contains(got, "Menu Item") {
			t.Errorf("nav content leaked: %q", got)
		}
		if !strings.Contains(got, "First paragraph") {
			t.Errorf("body content missing: %q", got)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		if got := ExtractText("   "); got != "" {
			t.Errorf("expected empty, got %q", got)
		}
	})

	t.Run("preserves paragraph separation", func(t *testing.T) {
		got := ExtractText("<p>one</p><p>two</p>")
		if !strings.Contains(got, "one") || !strings.Contains(got, "two") {
			t.Errorf("paragraphs lost: %q", got)
		}
	})
}

func TestExtractTitle(t *testing.T) {
	t.Run("title tag wins", func(t *testing.T) {
		html := `<html><head><title>Page Title</title><meta property="og:title" content="OG Title"></head><body><h1>Heading</h1></body></html>`
		if got := ExtractTitle(html); got != "Page Title" {
			t.Errorf("expected title tag, got %q", got)
		}
	})

	t.Run("og title fallback", func(t *testing.T) {
		html := `<html><head><meta property="og:title" content="OG Title"></head><body></body></html>`
		if got := ExtractTitle(html); got != "OG Title" {
			t.Errorf("expected og:title, got %q", got)
		}
	})

	t.Run("h1 fallback", func(t *testing.T) {
		html := `<html><body><h1>The Heading</h1></body></html>`
		if got := ExtractTitle(html); got != "The Heading" {
			t.Errorf("expected h1, got %q", got)
		}
	})
}

func TestStripTags(t *testing.T) {
	got := StripTags("<b>bold</b> and <a href='x'>link</a>")
	if got != "bold and link" {
		t.Errorf("unexpected output: %q", got)
	}
}
