// Package columns extracts shipment records from the fixed five-column
// worksheet layout.
package columns

import (
	"fmt"
	"strings"

	"shipment_parser/internal/registry"
	"shipment_parser/internal/schedule"
	"shipment_parser/internal/sheet"
)

// Fixed column layout of the canonical worksheet.
const (
	colCustomer  = 0
	colReference = 1
	colArrival   = 2
	colDeparture = 3
	colDay       = 4

	minCells = 5
)

// placeholder fills fields whose cells are empty after trimming.
const placeholder = "N/A"

// Record is a shipment extracted from the five-column layout. Empty
// cells are normalized to the N/A placeholder, never left empty and
// never null.
type Record struct {
	Weekday   string `json:"-"`
	Customer  string `json:"customer"`
	Reference string `json:"reference"`
	Arrival   string `json:"arrival"`
	Departure string `json:"departure"`
}

func (r *Record) Kind() string { return "columns" }
func (r *Record) Day() string  { return r.Weekday }

// Extractor parses rows laid out as customer, reference, arrival,
// departure, day.
type Extractor struct{}

func init() {
	registry.Register(&Extractor{})
}

func (e *Extractor) Name() string    { return "columns" }
func (e *Extractor) HasHeader() bool { return true }

// Extract maps the row's cells by position. Rows narrower than the
// layout are dropped without diagnostics; rows with no day cannot be
// bucketed and are dropped with one.
func (e *Extractor) Extract(row sheet.Row) (registry.Record, *registry.Skip) {
	if len(row.Cells) < minCells {
		return nil, &registry.Skip{Reason: "short row", Quiet: true}
	}

	day := strings.TrimSpace(row.Cells[colDay])
	if day == "" {
		return nil, &registry.Skip{Reason: "empty day column"}
	}

	return &Record{
		Weekday:   schedule.Capitalize(day),
		Customer:  orPlaceholder(row.Cells[colCustomer]),
		Reference: orPlaceholder(row.Cells[colReference]),
		Arrival:   orPlaceholder(row.Cells[colArrival]),
		Departure: orPlaceholder(row.Cells[colDeparture]),
	}, nil
}

// orPlaceholder trims the cell and substitutes N/A when nothing is left.
func orPlaceholder(cell string) string {
	s := strings.TrimSpace(cell)
	if s == "" {
		return placeholder
	}
	return s
}

// ExtractWithTrace implements registry.Traceable for detailed debugging.
func (e *Extractor) ExtractWithTrace(row sheet.Row) *registry.TraceResult {
	trace := &registry.TraceResult{ExtractorName: e.Name()}

	trace.Steps = append(trace.Steps, registry.StepTrace{
		Name:    "width",
		Matched: len(row.Cells) >= minCells,
		Value:   fmt.Sprintf("%d cells", len(row.Cells)),
	})

	rec, skip := e.Extract(row)
	if skip != nil {
		trace.Skip = skip
		return trace
	}

	r := rec.(*Record)
	trace.Steps = append(trace.Steps, registry.StepTrace{
		Name:    "day",
		Matched: true,
		Value:   r.Weekday,
	})
	trace.Matched = true
	trace.Fields = map[string]string{
		"day":       r.Weekday,
		"customer":  r.Customer,
		"reference": r.Reference,
		"arrival":   r.Arrival,
		"departure": r.Departure,
	}
	return trace
}
