package extract

import (
	"context"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Xlsx extracts cell text from spreadsheets.
type Xlsx struct{}

// Extract returns every sheet in workbook order. Each sheet starts with a
// "# <name>" line followed by one tab-separated line per non-empty row.
func (Xlsx) Extract(ctx context.Context, path string) (string, error) {
	x, err := excelize.OpenFile(path)
	if err != nil {
		return "", err
	}
	defer x.Close()

	var b strings.Builder
	for _, sheet := range x.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		rows, err := x.GetRows(sheet)
		if err != nil {
			return "", err
		}
		if len(rows) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("# " + sheet + "\n")
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, "\t"))
			if line == "" {
				continue
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return strings.TrimSpace(b.String()), nil
}
