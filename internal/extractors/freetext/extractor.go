// Package freetext extracts shipment records from loosely formatted rows
// where every field shares one line of text.
package freetext

import (
	"regexp"
	"strings"

	"shipment_parser/internal/registry"
	"shipment_parser/internal/schedule"
	"shipment_parser/internal/sheet"
)

// Record is a shipment extracted from free-form row text. Arrival and
// departure marshal as explicit nulls when absent, never omitted.
type Record struct {
	Weekday           string  `json:"-"`
	CustomerReference string  `json:"customer_reference"`
	Arrival           *string `json:"arrival"`
	Departure         *string `json:"departure"`
}

func (r *Record) Kind() string { return "freetext" }
func (r *Record) Day() string  { return r.Weekday }

var (
	// ACME LOGISTICS - REF 10023 8/21/2025 TBD Friday
	dayRe = regexp.MustCompile(`(?i)\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\s*$`)

	// 8/21/2025 or 12/3/2025
	dateRe = regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`)

	// TBD as a standalone word, any case
	tbdRe = regexp.MustCompile(`(?i)\bTBD\b`)

	// Whitespace runs left behind after removing dates and TBD tokens.
	spaceRe = regexp.MustCompile(`\s+`)
)

// Extractor parses rows whose fields share a single line of text.
type Extractor struct{}

func init() {
	registry.Register(&Extractor{})
}

func (e *Extractor) Name() string    { return "freetext" }
func (e *Extractor) HasHeader() bool { return false }

// Extract joins the row into one line, anchors on the trailing weekday,
// and mines the preceding content for dates and the customer reference.
func (e *Extractor) Extract(row sheet.Row) (registry.Record, *registry.Skip) {
	line := row.Line()
	if line == "" {
		return nil, &registry.Skip{Reason: "empty row", Quiet: true}
	}

	m := dayRe.FindStringSubmatchIndex(line)
	if m == nil {
		return nil, &registry.Skip{Reason: "no trailing weekday"}
	}

	rec := &Record{Weekday: schedule.Capitalize(line[m[2]:m[3]])}
	content := strings.TrimSpace(line[:m[0]])

	// First date is the arrival, second the departure. Anything past the
	// second is ignored. Detection of TBD is deliberately looser than its
	// removal below: presence anywhere in the content counts.
	dates := dateRe.FindAllString(content, -1)
	if len(dates) > 0 {
		rec.Arrival = &dates[0]
	}
	switch {
	case len(dates) > 1:
		rec.Departure = &dates[1]
	case strings.Contains(strings.ToUpper(content), "TBD"):
		tbd := "TBD"
		rec.Departure = &tbd
	}

	// The reference is whatever remains once dates and TBD markers are
	// stripped out.
	ref := dateRe.ReplaceAllString(content, "")
	ref = tbdRe.ReplaceAllString(ref, "")
	ref = spaceRe.ReplaceAllString(ref, " ")
	rec.CustomerReference = strings.Trim(ref, " -")

	return rec, nil
}

// ExtractWithTrace implements registry.Traceable for detailed debugging.
func (e *Extractor) ExtractWithTrace(row sheet.Row) *registry.TraceResult {
	trace := &registry.TraceResult{ExtractorName: e.Name()}

	line := row.Line()
	trace.Steps = append(trace.Steps, registry.StepTrace{
		Name:    "line",
		Matched: line != "",
		Value:   line,
	})
	if line == "" {
		trace.Skip = &registry.Skip{Reason: "empty row", Quiet: true}
		return trace
	}

	m := dayRe.FindStringSubmatchIndex(line)
	day := registry.StepTrace{Name: "weekday", Pattern: dayRe.String()}
	if m != nil {
		day.Matched = true
		day.Value = line[m[2]:m[3]]
	}
	trace.Steps = append(trace.Steps, day)
	if m == nil {
		trace.Skip = &registry.Skip{Reason: "no trailing weekday"}
		return trace
	}

	content := strings.TrimSpace(line[:m[0]])
	dates := dateRe.FindAllString(content, -1)
	trace.Steps = append(trace.Steps, registry.StepTrace{
		Name:    "dates",
		Pattern: dateRe.String(),
		Matched: len(dates) > 0,
		Value:   strings.Join(dates, " "),
	})
	trace.Steps = append(trace.Steps, registry.StepTrace{
		Name:    "tbd",
		Matched: strings.Contains(strings.ToUpper(content), "TBD"),
	})

	rec, skip := e.Extract(row)
	if skip != nil {
		trace.Skip = skip
		return trace
	}

	r := rec.(*Record)
	trace.Matched = true
	trace.Fields = map[string]string{
		"day":                r.Weekday,
		"customer_reference": r.CustomerReference,
		"arrival":            display(r.Arrival),
		"departure":          display(r.Departure),
	}
	return trace
}

func display(s *string) string {
	if s == nil {
		return "null"
	}
	return *s
}
