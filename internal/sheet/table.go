// Package sheet provides the tabular types shared by every row source.
package sheet

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Row is one fetched worksheet row. Index is 1-based and is used only
// for diagnostics.
type Row struct {
	Index int
	Cells []string
}

// Line joins the row's non-empty cells with single spaces and trims the
// result. Only truly empty cells are dropped; cells holding whitespace
// still take part in the join.
func (r Row) Line() string {
	parts := make([]string, 0, len(r.Cells))
	for _, c := range r.Cells {
		if c != "" {
			parts = append(parts, c)
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// Table is the contents of one worksheet at fetch time.
type Table struct {
	Worksheet string
	Rows      []Row
	FetchedAt time.Time
}

// CellString coerces a raw cell value to its string form. The values
// endpoint can hand back strings, numbers or booleans depending on the
// cell format; JSON numbers arrive as float64.
func CellString(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	case bool:
		if c {
			return "TRUE"
		}
		return "FALSE"
	default:
		return fmt.Sprint(c)
	}
}
