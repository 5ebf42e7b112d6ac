package sheet

import "testing"

func TestCellString(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"string", "Acme Corp", "Acme Corp"},
		{"empty string", "", ""},
		{"nil", nil, ""},
		{"integral number", float64(12345), "12345"},
		{"fractional number", 131.55, "131.55"},
		{"negative number", float64(-7), "-7"},
		{"bool true", true, "TRUE"},
		{"bool false", false, "FALSE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CellString(tt.input)
			if got != tt.want {
				t.Errorf("CellString(%v) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRow_Line(t *testing.T) {
	tests := []struct {
		name  string
		cells []string
		want  string
	}{
		{"joins non-empty cells", []string{"Acme", "12345", "Monday"}, "Acme 12345 Monday"},
		{"drops empty cells", []string{"Acme", "", "Monday"}, "Acme Monday"},
		{"all empty", []string{"", "", ""}, ""},
		{"no cells", nil, ""},
		{"whitespace cell survives the join", []string{"a", " ", "b"}, "a   b"},
		{"trims the joined line", []string{"  Acme  "}, "Acme"},
		{"single cell", []string{"Friday"}, "Friday"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Row{Index: 1, Cells: tt.cells}
			got := r.Line()
			if got != tt.want {
				t.Errorf("Line() = %q, want %q", got, tt.want)
			}
		})
	}
}
