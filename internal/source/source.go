// Package source fetches worksheet rows from their backing stores: the
// Google Sheets API for live runs, CSV and XLSX files for local ones.
package source

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"shipment_parser/internal/sheet"
)

// Sentinel errors for source resolution failures. Both are fatal to a
// run; neither is retried.
var (
	ErrSpreadsheetNotFound = errors.New("spreadsheet not found")
	ErrWorksheetNotFound   = errors.New("worksheet not found")
)

// Source produces the rows of one worksheet.
type Source interface {
	Fetch(ctx context.Context) (*sheet.Table, error)
}

// Open builds a file-backed source for path. Format "auto" picks by
// extension: .xlsx/.xlsm open as workbooks, everything else as CSV.
// The worksheet name applies to workbooks only; empty means the first
// sheet.
func Open(path, format, worksheet string) (Source, error) {
	if format == "auto" || format == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".xlsx", ".xlsm":
			format = "xlsx"
		default:
			format = "csv"
		}
	}

	switch format {
	case "csv":
		return &CSVSource{Path: path}, nil
	case "xlsx":
		return &ExcelSource{Path: path, Worksheet: worksheet}, nil
	default:
		return nil, fmt.Errorf("unknown input format %q (want auto, csv or xlsx)", format)
	}
}
