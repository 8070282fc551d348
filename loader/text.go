package loader

import (
	"context"
	"os"
	"strings"
)

// LoadText returns a plain text file. Form feeds split pages, so text
// exported from paginated sources keeps its page numbers.
func LoadText(ctx context.Context, path string) ([]Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	parts := strings.Split(string(data), "\f")
	pages := make([]Page, len(parts))
	for i, part := range parts {
		pages[i] = Page{Number: i + 1, Text: part}
	}
	return pages, nil
}
