package loader

import (
	"context"
	"html"
	"regexp"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

var (
	docxParagraphEnd = regexp.MustCompile(`</w:p>`)
	docxTab          = regexp.MustCompile(`<w:tab/>`)
	docxBreak        = regexp.MustCompile(`<w:br[^>]*/>`)
	xmlTag           = regexp.MustCompile(`<[^>]+>`)
)

// LoadDOCX returns the document body as a single page.
// Word does not store pagination, so every docx is page 1.
func LoadDOCX(ctx context.Context, path string) ([]Page, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return []Page{{Number: 1, Text: docxText(r.Editable().GetContent())}}, nil
}

// docxText flattens word/document.xml into paragraphs.
func docxText(body string) string {
	body = docxParagraphEnd.ReplaceAllString(body, "\n\n")
	body = docxTab.ReplaceAllString(body, "\t")
	body = docxBreak.ReplaceAllString(body, "\n")
	body = xmlTag.ReplaceAllString(body, "")
	return strings.TrimSpace(html.UnescapeString(body))
}
