package ckan

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// NotesText converts a package's HTML notes into plain text: one line per
// block element, whitespace collapsed, empty lines dropped.
func NotesText(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	var lines []string
	blocks := doc.Find("p, li, h1, h2, h3, h4, h5, h6, pre, td")
	if blocks.Length() == 0 {
		blocks = doc.Find("body")
	}
	blocks.Each(func(_ int, s *goquery.Selection) {
		// skip containers whose text is reported by a nested block
		if s.Find("p, li").Length() > 0 {
			return
		}
		text := strings.Join(strings.Fields(s.Text()), " ")
		if text == "" {
			return
		}
		if goquery.NodeName(s) == "li" {
			text = "- " + text
		}
		lines = append(lines, text)
	})
	return strings.Join(lines, "\n"), nil
}
