// Package registry provides tracing interfaces for extractor debugging.
package registry

import "shipment_parser/internal/sheet"

// TraceResult contains trace information from an extractor's attempt on a row.
type TraceResult struct {
	ExtractorName string            // Name of the extractor.
	Steps         []StepTrace       // Rule attempts in evaluation order.
	Fields        map[string]string // Final field values when the row was extracted.
	Skip          *Skip             // Set when the row was discarded.
	Matched       bool              // Whether the row yielded a record.
}

// StepTrace contains debug information about one rule or pattern attempt.
type StepTrace struct {
	Name    string // Rule name (e.g., "weekday", "dates", "tbd").
	Pattern string // The regex pattern used ("" for non-regex rules).
	Matched bool   // Whether the rule matched.
	Value   string // Matched or derived value (if any).
}

// Traceable is implemented by extractors that support debug tracing.
// This allows the debug command to show detailed information about
// why a row did or didn't yield a record.
type Traceable interface {
	// ExtractWithTrace parses the row and returns detailed trace information.
	// The trace includes which rules were tried and what each produced.
	ExtractWithTrace(row sheet.Row) *TraceResult
}
