// Package main provides a tool to export current shipment state from the
// PostgreSQL database to CSV format, for reconciliation against customer
// manifests and import into downstream tracking systems.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"time"

	"shipment_parser/internal/schedule"
	"shipment_parser/internal/storage"
)

func main() {
	// PostgreSQL connection flags.
	pgHost := flag.String("pg-host", "localhost", "PostgreSQL host")
	pgPort := flag.Int("pg-port", 5432, "PostgreSQL port")
	pgUser := flag.String("pg-user", "shipments", "PostgreSQL user")
	pgPassword := flag.String("pg-password", "", "PostgreSQL password")
	pgDB := flag.String("pg-db", "shipments_state", "PostgreSQL database")

	output := flag.String("output", "", "Output CSV file (default: stdout)")
	day := flag.String("day", "", "Export a single weekday only")
	minRuns := flag.Int("min-runs", 1, "Minimum run count to include a shipment")
	limit := flag.Int("limit", 1000, "Maximum shipments per weekday")
	showStats := flag.Bool("stats", false, "Show statistics only, don't export")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Parse()

	ctx := context.Background()

	pg, err := storage.OpenPostgres(ctx, storage.PostgresConfig{
		Host:     *pgHost,
		Port:     *pgPort,
		Database: *pgDB,
		User:     *pgUser,
		Password: *pgPassword,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening PostgreSQL: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	// Show stats mode.
	if *showStats {
		showShipmentStats(ctx, pg)
		return
	}

	days := schedule.Weekdays[:]
	if *day != "" {
		canonical, ok := schedule.Canonical(*day)
		if !ok {
			fmt.Fprintf(os.Stderr, "Unknown weekday %q\n", *day)
			os.Exit(1)
		}
		days = []string{canonical}
	}

	// Query current state.
	shipments, err := getShipments(ctx, pg, days, *minRuns, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error querying shipments: %v\n", err)
		os.Exit(1)
	}

	if len(shipments) == 0 {
		fmt.Fprintf(os.Stderr, "No shipments found matching criteria\n")
		os.Exit(0)
	}

	if *verbose {
		fmt.Fprintf(os.Stderr, "Exporting %d shipments to CSV\n", len(shipments))
	}

	// Write output.
	var writer *csv.Writer
	if *output != "" {
		file, err := os.Create(*output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating file: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = file.Close() }()
		writer = csv.NewWriter(file)
	} else {
		writer = csv.NewWriter(os.Stdout)
	}

	// Header row first; the file is usually opened in a spreadsheet.
	header := []string{"day", "customer", "reference", "customer_reference", "arrival", "departure", "run_count", "first_seen", "last_seen"}
	if err := writer.Write(header); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing header: %v\n", err)
		os.Exit(1)
	}

	for _, s := range shipments {
		if err := writer.Write(csvRow(s)); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing row: %v\n", err)
			os.Exit(1)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		fmt.Fprintf(os.Stderr, "Error flushing CSV: %v\n", err)
		os.Exit(1)
	}

	if *verbose && *output != "" {
		fmt.Fprintf(os.Stderr, "Wrote %d shipments to %s\n", len(shipments), *output)
	}
}

// getShipments retrieves current shipments for the given weekdays, in
// Monday-to-Sunday order, dropping those under the run count threshold.
func getShipments(ctx context.Context, pg *storage.PostgresDB, days []string, minRuns, limit int) ([]storage.Shipment, error) {
	var shipments []storage.Shipment
	for _, day := range days {
		dayShipments, err := pg.ListShipmentsByDay(ctx, day, limit)
		if err != nil {
			return nil, fmt.Errorf("querying %s: %w", day, err)
		}
		for _, s := range dayShipments {
			if s.RunCount < minRuns {
				continue
			}
			shipments = append(shipments, s)
		}
	}
	return shipments, nil
}

// csvRow renders one shipment as a CSV record.
func csvRow(s storage.Shipment) []string {
	return []string{
		s.Day,
		s.Customer,
		s.Reference,
		s.CustomerReference,
		s.Arrival,
		s.Departure,
		fmt.Sprintf("%d", s.RunCount),
		s.FirstSeen.Format("2006-01-02 15:04:05"),
		s.LastSeen.Format("2006-01-02 15:04:05"),
	}
}

// showShipmentStats displays statistics about the tracked shipments.
func showShipmentStats(ctx context.Context, pg *storage.PostgresDB) {
	pool := pg.Pool()

	var total int
	_ = pool.QueryRow(ctx, "SELECT COUNT(*) FROM current_shipments").Scan(&total)

	var freetext int
	_ = pool.QueryRow(ctx, "SELECT COUNT(*) FROM current_shipments WHERE kind = 'freetext'").Scan(&freetext)

	var avgRuns float64
	_ = pool.QueryRow(ctx, "SELECT COALESCE(AVG(run_count), 0) FROM current_shipments").Scan(&avgRuns)

	var maxRuns int
	var maxKey string
	_ = pool.QueryRow(ctx, "SELECT ref_key, run_count FROM current_shipments ORDER BY run_count DESC LIMIT 1").Scan(&maxKey, &maxRuns)

	fmt.Println("Shipment State Statistics")
	fmt.Println("─────────────────────────")
	fmt.Printf("Tracked shipments:  %d\n", total)
	fmt.Printf("Free-text sourced:  %d\n", freetext)
	fmt.Printf("Average run count:  %.1f\n", avgRuns)
	if maxKey != "" {
		fmt.Printf("Longest tracked:    %s (%d runs)\n", maxKey, maxRuns)
	}

	// Per-weekday counts.
	counts, err := pg.CountShipmentsByDay(ctx)
	if err == nil {
		fmt.Println("\nShipments by Day:")
		for _, day := range schedule.Weekdays {
			fmt.Printf("%-12s %6d\n", day, counts[day])
		}
	}

	// Run count distribution.
	fmt.Println("\nRun Count Distribution:")
	rows, err := pool.Query(ctx, `
		SELECT
			CASE
				WHEN run_count = 1 THEN '1'
				WHEN run_count <= 5 THEN '2-5'
				WHEN run_count <= 10 THEN '6-10'
				ELSE '10+'
			END as bucket,
			COUNT(*) as cnt
		FROM current_shipments
		GROUP BY bucket
		ORDER BY MIN(run_count)
	`)
	if err == nil {
		defer rows.Close()
		fmt.Printf("%-15s %10s\n", "Runs", "Count")
		for rows.Next() {
			var bucket string
			var cnt int
			_ = rows.Scan(&bucket, &cnt)
			fmt.Printf("%-15s %10d\n", bucket, cnt)
		}
	}

	// Top 10 longest tracked shipments.
	fmt.Println("\nTop 10 Longest Tracked Shipments:")
	topRows, err := pool.Query(ctx, `
		SELECT ref_key, day, run_count, last_seen
		FROM current_shipments
		ORDER BY run_count DESC, last_seen DESC
		LIMIT 10
	`)
	if err == nil {
		defer topRows.Close()
		fmt.Printf("%-28s %-10s %5s %s\n", "Reference", "Day", "Runs", "Last Seen")
		for topRows.Next() {
			var key, shipDay string
			var runs int
			var lastSeen time.Time
			_ = topRows.Scan(&key, &shipDay, &runs, &lastSeen)
			fmt.Printf("%-28s %-10s %5d %s\n", key, shipDay, runs, lastSeen.Format("2006-01-02 15:04"))
		}
	}
}
