package loader

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// LoadXLSX returns one Page per worksheet, numbered in workbook order.
// Cells are tab-separated, rows newline-separated.
func LoadXLSX(ctx context.Context, path string) ([]Page, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var pages []Page
	for i, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
		}
		var text strings.Builder
		fmt.Fprintf(&text, "Sheet: %s\n", sheet)
		for _, row := range rows {
			text.WriteString(strings.TrimRight(strings.Join(row, "\t"), "\t"))
			text.WriteByte('\n')
		}
		pages = append(pages, Page{Number: i + 1, Text: text.String()})
	}
	return pages, nil
}
