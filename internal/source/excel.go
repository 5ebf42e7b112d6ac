package source

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"shipment_parser/internal/sheet"
)

// ExcelSource reads rows from one worksheet of an .xlsx workbook.
type ExcelSource struct {
	Path      string
	Worksheet string // Empty means the workbook's first sheet.
}

// Fetch opens the workbook and returns every row of the chosen sheet
// with formatted cell values.
func (s *ExcelSource) Fetch(ctx context.Context) (*sheet.Table, error) {
	f, err := excelize.OpenFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	name := s.Worksheet
	if name == "" {
		name = f.GetSheetName(0)
	} else {
		idx, err := f.GetSheetIndex(name)
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("%w: %q", ErrWorksheetNotFound, name)
		}
	}

	rows, err := f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("read worksheet %q: %w", name, err)
	}

	table := &sheet.Table{Worksheet: name, FetchedAt: time.Now().UTC()}
	for i, cells := range rows {
		table.Rows = append(table.Rows, sheet.Row{Index: i + 1, Cells: cells})
	}
	return table, nil
}
