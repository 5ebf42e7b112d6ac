// Package main provides a tool to export the schedule JSON document to
// an XLSX workbook, one worksheet per weekday, for handing off to ops
// teams that live in Excel.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/xuri/excelize/v2"

	"shipment_parser/internal/output"
	"shipment_parser/internal/schedule"
)

// Preferred column order for the worksheets. Keys not listed here are
// appended alphabetically after these.
var preferredColumns = []string{"customer", "reference", "customer_reference", "arrival", "departure"}

var headerTitles = map[string]string{
	"customer":           "Customer",
	"reference":          "Reference",
	"customer_reference": "Customer / Reference",
	"arrival":            "Arrival",
	"departure":          "Departure",
}

func main() {
	input := flag.String("input", output.DefaultPath, "Schedule JSON document to export")
	outPath := flag.String("output", "shipments_by_day.xlsx", "Output XLSX file")
	showStats := flag.Bool("stats", false, "Show schedule statistics only, don't export")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Parse()

	data, err := os.ReadFile(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading schedule document: %v\n", err)
		os.Exit(1)
	}

	// The document is a day-keyed map of shipment objects. Decoding
	// generically keeps the tool agnostic to which extractor produced
	// the document.
	var week map[string][]map[string]any
	if err := json.Unmarshal(data, &week); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing schedule document: %v\n", err)
		os.Exit(1)
	}

	if *showStats {
		showScheduleStats(week)
		return
	}

	total, err := writeWorkbook(week, *outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error writing workbook: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		fmt.Fprintf(os.Stderr, "Wrote %d shipments across %d worksheets to %s\n", total, len(schedule.Weekdays), *outPath)
	}
}

// writeWorkbook builds the XLSX file with one worksheet per weekday in
// Monday-to-Sunday order. Days absent from the document still get an
// empty worksheet so the workbook shape is stable week over week.
func writeWorkbook(week map[string][]map[string]any, path string) (int, error) {
	cols := columnOrder(week)

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	total := 0
	for i, day := range schedule.Weekdays {
		if i == 0 {
			// Rename the default sheet rather than leaving a stray Sheet1.
			if err := f.SetSheetName(f.GetSheetName(0), day); err != nil {
				return 0, fmt.Errorf("naming worksheet %s: %w", day, err)
			}
		} else {
			if _, err := f.NewSheet(day); err != nil {
				return 0, fmt.Errorf("creating worksheet %s: %w", day, err)
			}
		}

		// Header row.
		for c, key := range cols {
			cell, err := excelize.CoordinatesToCellName(c+1, 1)
			if err != nil {
				return 0, err
			}
			if err := f.SetCellValue(day, cell, headerTitle(key)); err != nil {
				return 0, err
			}
		}

		// Shipment rows.
		for r, rec := range week[day] {
			for c, key := range cols {
				cell, err := excelize.CoordinatesToCellName(c+1, r+2)
				if err != nil {
					return 0, err
				}
				if err := f.SetCellValue(day, cell, cellString(rec[key])); err != nil {
					return 0, err
				}
			}
			total++
		}

		if len(cols) > 0 {
			lastCol, err := excelize.ColumnNumberToName(len(cols))
			if err != nil {
				return 0, err
			}
			if err := f.SetColWidth(day, "A", lastCol, 22); err != nil {
				return 0, err
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return 0, fmt.Errorf("saving workbook: %w", err)
	}
	return total, nil
}

// columnOrder returns the union of record keys across the whole week,
// preferred columns first, any extras alphabetically after.
func columnOrder(week map[string][]map[string]any) []string {
	seen := make(map[string]bool)
	for _, recs := range week {
		for _, rec := range recs {
			for key := range rec {
				seen[key] = true
			}
		}
	}

	var cols []string
	for _, key := range preferredColumns {
		if seen[key] {
			cols = append(cols, key)
			delete(seen, key)
		}
	}

	var extras []string
	for key := range seen {
		extras = append(extras, key)
	}
	sort.Strings(extras)
	return append(cols, extras...)
}

func headerTitle(key string) string {
	if title, ok := headerTitles[key]; ok {
		return title
	}
	return key
}

// cellString renders a decoded JSON value for a cell. Explicit nulls
// (unknown dates from the free-text extractor) become empty cells.
func cellString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

// showScheduleStats displays per-day shipment counts from the document.
func showScheduleStats(week map[string][]map[string]any) {
	fmt.Println("Schedule Statistics")
	fmt.Println("───────────────────")

	total := 0
	for _, day := range schedule.Weekdays {
		fmt.Printf("%-12s %6d\n", day, len(week[day]))
		total += len(week[day])
	}
	fmt.Printf("%-12s %6d\n", "Total", total)

	// Flag day keys that aren't canonical weekdays; a well-formed
	// document never has any.
	known := make(map[string]bool, len(schedule.Weekdays))
	for _, day := range schedule.Weekdays {
		known[day] = true
	}
	var unknown []string
	for key := range week {
		if !known[key] {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		fmt.Printf("\nUnrecognized day keys: %v\n", unknown)
	}
}
