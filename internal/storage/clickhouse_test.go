package storage

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

// setupTestClickHouse creates a test archive connection.
// Returns nil if no ClickHouse server is available.
func setupTestClickHouse(t *testing.T) *ClickHouseDB {
	t.Helper()

	host := os.Getenv("CLICKHOUSE_HOST")
	if host == "" {
		host = "localhost"
	}
	user := os.Getenv("CLICKHOUSE_USER")
	if user == "" {
		user = "default"
	}
	database := os.Getenv("CLICKHOUSE_DATABASE")
	if database == "" {
		database = "shipments"
	}

	ctx := context.Background()
	ch, err := OpenClickHouse(ctx, ClickHouseConfig{
		Host:     host,
		Port:     9000,
		User:     user,
		Password: os.Getenv("CLICKHOUSE_PASSWORD"),
		Database: database,
	})
	if err != nil {
		return nil
	}

	if err := ch.CreateSchema(ctx); err != nil {
		_ = ch.Close()
		return nil
	}
	return ch
}

func testBatch(runID string) []RecordParams {
	return []RecordParams{
		{
			RunID: runID, RowIndex: 2, Position: 0, Day: "Thursday", Kind: "columns",
			Customer: "Acme Logistics", Reference: "PO-1001", Arrival: "8/21/2025", Departure: "8/25/2025",
			Record: map[string]string{"reference": "PO-1001"},
		},
		{
			RunID: runID, RowIndex: 3, Position: 1, Day: "Thursday", Kind: "columns",
			Customer: "Globex", Reference: "PO-1002", Arrival: "8/22/2025", Departure: "N/A",
			Record: map[string]string{"reference": "PO-1002"},
		},
		{
			RunID: runID, RowIndex: 4, Position: 0, Day: "Friday", Kind: "freetext",
			CustomerReference: "Initech crates", Arrival: "8/23/2025",
			Record: map[string]string{"customer_reference": "Initech crates"},
		},
	}
}

func TestInsertBatch_EmptyIsNoOp(t *testing.T) {
	// An empty batch must not touch the connection at all.
	var ch ClickHouseDB
	if err := ch.InsertBatch(context.Background(), time.Now(), nil); err != nil {
		t.Errorf("empty batch returned error: %v", err)
	}
}

func TestInsertBatch_QueryRoundtrip(t *testing.T) {
	ch := setupTestClickHouse(t)
	if ch == nil {
		t.Skip("No ClickHouse connection available")
	}
	defer func() { _ = ch.Close() }()

	ctx := context.Background()
	runID := fmt.Sprintf("test-run-%d", time.Now().UnixNano())
	fetchedAt := time.Now().UTC().Truncate(time.Second)

	if err := ch.InsertBatch(ctx, fetchedAt, testBatch(runID)); err != nil {
		t.Fatalf("insert batch failed: %v", err)
	}
	defer func() {
		// Best-effort cleanup; mutations are async so leftovers are tolerated.
		_ = ch.Conn().Exec(ctx, "ALTER TABLE shipment_records DELETE WHERE run_id = ?", runID)
	}()

	records, err := ch.Query(ctx, CHQueryParams{RunID: runID})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records for run, want 3", len(records))
	}

	byDay, err := ch.Query(ctx, CHQueryParams{RunID: runID, Day: "Thursday"})
	if err != nil {
		t.Fatalf("day query failed: %v", err)
	}
	if len(byDay) != 2 {
		t.Errorf("got %d Thursday records, want 2", len(byDay))
	}
	for _, r := range byDay {
		if r.Day != "Thursday" {
			t.Errorf("day filter leaked record for %q", r.Day)
		}
	}
	if byDay[0].Position != 0 || byDay[1].Position != 1 {
		t.Errorf("records out of position order: %d, %d", byDay[0].Position, byDay[1].Position)
	}
	if byDay[0].Reference != "PO-1001" {
		t.Errorf("reference = %q, want PO-1001", byDay[0].Reference)
	}
	if byDay[0].RecordJSON == "" {
		t.Error("record_json not archived")
	}

	limited, err := ch.Query(ctx, CHQueryParams{RunID: runID, Limit: 1})
	if err != nil {
		t.Fatalf("limited query failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("got %d records with limit 1, want 1", len(limited))
	}
}

func TestArchiveStats(t *testing.T) {
	ch := setupTestClickHouse(t)
	if ch == nil {
		t.Skip("No ClickHouse connection available")
	}
	defer func() { _ = ch.Close() }()

	ctx := context.Background()
	runID := fmt.Sprintf("test-stats-%d", time.Now().UnixNano())

	if err := ch.InsertBatch(ctx, time.Now().UTC(), testBatch(runID)); err != nil {
		t.Fatalf("insert batch failed: %v", err)
	}
	defer func() {
		_ = ch.Conn().Exec(ctx, "ALTER TABLE shipment_records DELETE WHERE run_id = ?", runID)
	}()

	// The archive is shared, so counts are lower bounds.
	counts, err := ch.CountByDay(ctx)
	if err != nil {
		t.Fatalf("count by day failed: %v", err)
	}
	if counts["Thursday"] < 2 {
		t.Errorf("Thursday count = %d, want at least 2", counts["Thursday"])
	}
	if counts["Friday"] < 1 {
		t.Errorf("Friday count = %d, want at least 1", counts["Friday"])
	}

	stats, err := ch.GetStats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.TotalRecords < 3 {
		t.Errorf("total records = %d, want at least 3", stats.TotalRecords)
	}
	if stats.DistinctRuns < 1 {
		t.Errorf("distinct runs = %d, want at least 1", stats.DistinctRuns)
	}
	if stats.ByKind["columns"] < 2 {
		t.Errorf("columns kind count = %d, want at least 2", stats.ByKind["columns"])
	}
}
