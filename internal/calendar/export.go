package calendar

import (
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ClipboardPayload carries both representations the copy-to-X / copy-to-note
// actions place on the clipboard at once: HTML for rich-text destinations
// and a readable plain-text fallback for everything else.
type ClipboardPayload struct {
	HTML string `json:"html"`
	Text string `json:"text"`
}

// ExportClipboard serializes a post's title and body for the clipboard.
// Posts without a long-form body fall back to their thread segments.
func ExportClipboard(post Post) (ClipboardPayload, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "<h1>%s</h1>\n", html.EscapeString(post.Title))

	if strings.TrimSpace(post.Body) != "" {
		b.WriteString(post.Body)
	} else {
		for _, segment := range post.Threads {
			fmt.Fprintf(&b, "<p>%s</p>\n", html.EscapeString(segment))
		}
	}
	htmlOut := b.String()

	text, err := htmlToText(htmlOut)
	if err != nil {
		return ClipboardPayload{}, fmt.Errorf("failed to build plain-text fallback: %w", err)
	}

	return ClipboardPayload{HTML: htmlOut, Text: text}, nil
}

// htmlToText flattens markup into readable text, one block element per line.
func htmlToText(markup string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", err
	}

	var lines []string
	doc.Find("h1, h2, h3, h4, p, li, blockquote, pre, div").Each(func(_ int, sel *goquery.Selection) {
		// Skip containers whose text is already covered by a nested block.
		if sel.Find("h1, h2, h3, h4, p, li, blockquote, pre, div").Length() > 0 {
			return
		}
		if t := strings.TrimSpace(sel.Text()); t != "" {
			lines = append(lines, t)
		}
	})

	if len(lines) == 0 {
		if t := strings.TrimSpace(doc.Text()); t != "" {
			lines = append(lines, t)
		}
	}
	return strings.Join(lines, "\n\n"), nil
}
