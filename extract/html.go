package extract

import (
	"context"
	"os"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var blankLines = regexp.MustCompile(`\n\s*\n+`)

// HTML extracts readable text from an HTML page.
type HTML struct{}

// Extract returns the text of block elements, preferring main/article
// content when present. Scripts and styles are dropped.
func (HTML) Extract(_ context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript").Remove()

	sel := doc.Find("main, article")
	if sel.Length() == 0 {
		sel = doc.Find("body")
	}

	var parts []string
	sel.Find("h1, h2, h3, h4, h5, h6, p, li, pre, td").Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) == 0 {
		// pages without block markup
		return strings.TrimSpace(sel.Text()), nil
	}

	text := strings.ReplaceAll(strings.Join(parts, "\n"), "\r", "")
	return blankLines.ReplaceAllString(text, "\n"), nil
}
