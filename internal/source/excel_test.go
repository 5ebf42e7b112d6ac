package source

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

func writeWorkbook(t *testing.T) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	rows := [][]any{
		{"Customer", "Reference", "Arrival", "Departure", "Day"},
		{"Acme Corp", "REF-10023", "8/21/2025", "9/2/2025", "Friday"},
		{"Beta Haulage", "REF-10024", "8/22/2025", "TBD", "monday"},
	}
	for i, row := range rows {
		for j, v := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			if err := f.SetCellValue("Sheet1", cell, v); err != nil {
				t.Fatalf("set cell: %v", err)
			}
		}
	}

	path := filepath.Join(t.TempDir(), "shipments.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
	return path
}

func TestExcelSource_Fetch(t *testing.T) {
	path := writeWorkbook(t)

	src := &ExcelSource{Path: path}
	table, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if table.Worksheet != "Sheet1" {
		t.Errorf("Worksheet = %q, want Sheet1", table.Worksheet)
	}
	if len(table.Rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(table.Rows))
	}
	if got := table.Rows[1].Cells[0]; got != "Acme Corp" {
		t.Errorf("cell A2 = %q, want Acme Corp", got)
	}
	if table.Rows[2].Index != 3 {
		t.Errorf("third row index = %d, want 3", table.Rows[2].Index)
	}
}

func TestExcelSource_NamedWorksheet(t *testing.T) {
	path := writeWorkbook(t)

	src := &ExcelSource{Path: path, Worksheet: "Sheet1"}
	if _, err := src.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	src = &ExcelSource{Path: path, Worksheet: "Deliveries"}
	_, err := src.Fetch(context.Background())
	if !errors.Is(err, ErrWorksheetNotFound) {
		t.Errorf("err = %v, want ErrWorksheetNotFound", err)
	}
}

func TestOpen_Autodetect(t *testing.T) {
	tests := []struct {
		path    string
		format  string
		want    string
		wantErr bool
	}{
		{"shipments.xlsx", "auto", "*source.ExcelSource", false},
		{"shipments.csv", "auto", "*source.CSVSource", false},
		{"shipments.txt", "auto", "*source.CSVSource", false},
		{"shipments.dat", "xlsx", "*source.ExcelSource", false},
		{"shipments.xlsx", "csv", "*source.CSVSource", false},
		{"shipments.bin", "parquet", "", true},
	}

	for _, tt := range tests {
		src, err := Open(tt.path, tt.format, "")
		if tt.wantErr {
			if err == nil {
				t.Errorf("Open(%q, %q) expected error", tt.path, tt.format)
			}
			continue
		}
		if err != nil {
			t.Errorf("Open(%q, %q) failed: %v", tt.path, tt.format, err)
			continue
		}
		var got string
		switch src.(type) {
		case *ExcelSource:
			got = "*source.ExcelSource"
		case *CSVSource:
			got = "*source.CSVSource"
		}
		if got != tt.want {
			t.Errorf("Open(%q, %q) = %s, want %s", tt.path, tt.format, got, tt.want)
		}
	}
}
