package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCSVSource_Fetch(t *testing.T) {
	input := `Customer,Reference,Arrival,Departure,Day
Acme Corp,REF-10023,8/21/2025,9/2/2025,Friday
"Beta, Inc",REF-10024,8/22/2025,TBD,Monday
short,row
`
	src := &CSVSource{Reader: strings.NewReader(input)}

	table, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if table.Worksheet != "stdin" {
		t.Errorf("Worksheet = %q, want stdin", table.Worksheet)
	}
	if len(table.Rows) != 4 {
		t.Fatalf("got %d rows, want 4", len(table.Rows))
	}
	if table.Rows[0].Index != 1 {
		t.Errorf("first row index = %d, want 1", table.Rows[0].Index)
	}
	if got := table.Rows[2].Cells[0]; got != "Beta, Inc" {
		t.Errorf("quoted cell = %q, want %q", got, "Beta, Inc")
	}
	if len(table.Rows[3].Cells) != 2 {
		t.Errorf("ragged row has %d cells, want 2", len(table.Rows[3].Cells))
	}
}

func TestCSVSource_FetchFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shipments.csv")
	if err := os.WriteFile(path, []byte("Acme Corp 8/21/2025 Monday\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	src := &CSVSource{Path: path}
	table, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if table.Worksheet != "shipments.csv" {
		t.Errorf("Worksheet = %q, want shipments.csv", table.Worksheet)
	}
	if len(table.Rows) != 1 || len(table.Rows[0].Cells) != 1 {
		t.Fatalf("rows = %+v, want one single-cell row", table.Rows)
	}
}

func TestCSVSource_MissingFile(t *testing.T) {
	src := &CSVSource{Path: filepath.Join(t.TempDir(), "absent.csv")}
	if _, err := src.Fetch(context.Background()); err == nil {
		t.Error("expected error for missing file")
	}
}
