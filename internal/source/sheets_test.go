package source

import (
	"context"
	"testing"
)

func TestNewSheetsSource_BadCredential(t *testing.T) {
	_, err := NewSheetsSource(context.Background(), "sheet-id", "Sheet1", []byte("{not json"))
	if err == nil {
		t.Error("expected error for malformed credential payload")
	}
}

func TestRangeRef(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Sheet1", "'Sheet1'"},
		{"Inbound Shipments", "'Inbound Shipments'"},
		{"Bob's List", "'Bob''s List'"},
	}

	for _, tt := range tests {
		if got := rangeRef(tt.input); got != tt.want {
			t.Errorf("rangeRef(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
