package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"shipment_parser/internal/sheet"
)

// CSVSource reads rows from a CSV file or stream. When Reader is set it
// wins over Path, which lets the extract command feed stdin through the
// same pipeline.
type CSVSource struct {
	Path   string
	Reader io.Reader
	Name   string // Worksheet label recorded on the table; defaults to the file name.
}

// Fetch reads every CSV record. Short and ragged rows pass through
// untouched; the extractor decides what to do with them.
func (s *CSVSource) Fetch(ctx context.Context) (*sheet.Table, error) {
	in := s.Reader
	if in == nil {
		f, err := os.Open(s.Path)
		if err != nil {
			return nil, fmt.Errorf("open csv: %w", err)
		}
		defer f.Close()
		in = f
	}

	r := csv.NewReader(in)
	r.FieldsPerRecord = -1

	name := s.Name
	if name == "" {
		if s.Path != "" {
			name = filepath.Base(s.Path)
		} else {
			name = "stdin"
		}
	}

	table := &sheet.Table{Worksheet: name, FetchedAt: time.Now().UTC()}
	for i := 1; ; i++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", i, err)
		}
		table.Rows = append(table.Rows, sheet.Row{Index: i, Cells: record})
	}
	return table, nil
}
