package columns

import (
	"encoding/json"
	"strings"
	"testing"

	"shipment_parser/internal/sheet"
)

func TestExtractor_Extract(t *testing.T) {
	e := &Extractor{}

	row := sheet.Row{Index: 2, Cells: []string{"Acme Corp", "REF-10023", "8/21/2025", "9/2/2025", "friday"}}
	rec, skip := e.Extract(row)
	if skip != nil {
		t.Fatalf("expected record, got skip %q", skip.Reason)
	}

	r, ok := rec.(*Record)
	if !ok {
		t.Fatalf("expected *Record, got %T", rec)
	}

	if r.Day() != "Friday" {
		t.Errorf("Day() = %q, want %q", r.Day(), "Friday")
	}
	if r.Customer != "Acme Corp" {
		t.Errorf("Customer = %q, want %q", r.Customer, "Acme Corp")
	}
	if r.Reference != "REF-10023" {
		t.Errorf("Reference = %q, want %q", r.Reference, "REF-10023")
	}
	if r.Arrival != "8/21/2025" {
		t.Errorf("Arrival = %q, want %q", r.Arrival, "8/21/2025")
	}
	if r.Departure != "9/2/2025" {
		t.Errorf("Departure = %q, want %q", r.Departure, "9/2/2025")
	}
}

func TestExtractor_Placeholders(t *testing.T) {
	e := &Extractor{}

	tests := []struct {
		name  string
		cells []string
		want  Record
	}{
		{
			name:  "empty customer",
			cells: []string{"", "REF-1", "8/21/2025", "9/2/2025", "Monday"},
			want:  Record{Weekday: "Monday", Customer: "N/A", Reference: "REF-1", Arrival: "8/21/2025", Departure: "9/2/2025"},
		},
		{
			name:  "whitespace cells",
			cells: []string{"  ", "REF-2", "   ", "", "tuesday"},
			want:  Record{Weekday: "Tuesday", Customer: "N/A", Reference: "REF-2", Arrival: "N/A", Departure: "N/A"},
		},
		{
			name:  "fields trimmed",
			cells: []string{" Acme ", " REF-3 ", " 1/2/2025 ", " TBD ", " WEDNESDAY "},
			want:  Record{Weekday: "Wednesday", Customer: "Acme", Reference: "REF-3", Arrival: "1/2/2025", Departure: "TBD"},
		},
		{
			name:  "extra cells ignored",
			cells: []string{"Acme", "REF-4", "1/2/2025", "2/3/2025", "Thursday", "notes", "more"},
			want:  Record{Weekday: "Thursday", Customer: "Acme", Reference: "REF-4", Arrival: "1/2/2025", Departure: "2/3/2025"},
		},
		{
			name:  "unrecognized day kept for grouping to drop",
			cells: []string{"Acme", "REF-5", "1/2/2025", "2/3/2025", "tues"},
			want:  Record{Weekday: "Tues", Customer: "Acme", Reference: "REF-5", Arrival: "1/2/2025", Departure: "2/3/2025"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, skip := e.Extract(sheet.Row{Index: 3, Cells: tt.cells})
			if skip != nil {
				t.Fatalf("expected record, got skip %q", skip.Reason)
			}
			r := rec.(*Record)
			if *r != tt.want {
				t.Errorf("Record = %+v, want %+v", *r, tt.want)
			}
		})
	}
}

func TestExtractor_Skips(t *testing.T) {
	e := &Extractor{}

	tests := []struct {
		name       string
		cells      []string
		wantReason string
		wantQuiet  bool
	}{
		{"empty row", nil, "short row", true},
		{"four cells", []string{"Acme", "REF-1", "8/21/2025", "9/2/2025"}, "short row", true},
		{"empty day", []string{"Acme", "REF-1", "8/21/2025", "9/2/2025", ""}, "empty day column", false},
		{"whitespace day", []string{"Acme", "REF-1", "8/21/2025", "9/2/2025", "   "}, "empty day column", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, skip := e.Extract(sheet.Row{Index: 4, Cells: tt.cells})
			if rec != nil {
				t.Fatalf("expected skip, got record %+v", rec)
			}
			if skip == nil {
				t.Fatal("expected skip, got nil")
			}
			if skip.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", skip.Reason, tt.wantReason)
			}
			if skip.Quiet != tt.wantQuiet {
				t.Errorf("Quiet = %v, want %v", skip.Quiet, tt.wantQuiet)
			}
		})
	}
}

func TestExtractor_HasHeader(t *testing.T) {
	e := &Extractor{}
	if !e.HasHeader() {
		t.Error("HasHeader() = false, want true")
	}
}

func TestRecord_MarshalNoNulls(t *testing.T) {
	e := &Extractor{}

	rec, skip := e.Extract(sheet.Row{Index: 2, Cells: []string{"", "", "", "", "Sunday"}})
	if skip != nil {
		t.Fatalf("expected record, got skip %q", skip.Reason)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	if strings.Contains(string(data), "null") {
		t.Errorf("column records must never marshal nulls: %s", data)
	}
	for _, want := range []string{`"customer":"N/A"`, `"reference":"N/A"`, `"arrival":"N/A"`, `"departure":"N/A"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("output %s missing %s", data, want)
		}
	}
	if strings.Contains(string(data), "Sunday") {
		t.Errorf("day key leaked into record JSON: %s", data)
	}
}
