package storage

import (
	"context"
	"os"
	"testing"
)

// setupTestPostgres creates a test database connection.
// Returns nil if no PostgreSQL connection is available.
func setupTestPostgres(t *testing.T) *PostgresDB {
	t.Helper()

	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		host = "localhost"
	}
	user := os.Getenv("POSTGRES_USER")
	if user == "" {
		user = "shipments"
	}
	password := os.Getenv("POSTGRES_PASSWORD")
	if password == "" {
		password = "shipments"
	}
	database := os.Getenv("POSTGRES_DB")
	if database == "" {
		database = "shipments_state"
	}

	ctx := context.Background()
	pg, err := OpenPostgres(ctx, PostgresConfig{
		Host:     host,
		Port:     5432,
		User:     user,
		Password: password,
		Database: database,
	})
	if err != nil {
		return nil
	}

	if err := pg.CreateSchema(ctx); err != nil {
		pg.Close()
		return nil
	}
	return pg
}

func TestUpsertShipment_MergesKnownFields(t *testing.T) {
	pg := setupTestPostgres(t)
	if pg == nil {
		t.Skip("No PostgreSQL connection available")
	}
	defer pg.Close()

	ctx := context.Background()

	cleanup := func() {
		_, _ = pg.pool.Exec(ctx, "DELETE FROM current_shipments WHERE ref_key = 'TEST-REF-1'")
	}
	cleanup()
	defer cleanup()

	// First sighting carries only the arrival.
	err := pg.UpsertShipment(ctx, Shipment{
		RefKey:    "TEST-REF-1",
		Kind:      "columns",
		Customer:  "Acme Logistics",
		Reference: "TEST-REF-1",
		Day:       "Monday",
		Arrival:   "8/21/2025",
		LastRunID: "run-a",
	})
	if err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	// Second sighting adds the departure but leaves arrival blank;
	// the known arrival must survive.
	err = pg.UpsertShipment(ctx, Shipment{
		RefKey:    "TEST-REF-1",
		Kind:      "columns",
		Reference: "TEST-REF-1",
		Day:       "Tuesday",
		Departure: "8/25/2025",
		LastRunID: "run-b",
	})
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	s, err := pg.GetShipment(ctx, "TEST-REF-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if s == nil {
		t.Fatal("expected shipment, got nil")
	}

	if s.Arrival != "8/21/2025" {
		t.Errorf("arrival = %q, want preserved 8/21/2025", s.Arrival)
	}
	if s.Departure != "8/25/2025" {
		t.Errorf("departure = %q, want 8/25/2025", s.Departure)
	}
	if s.Customer != "Acme Logistics" {
		t.Errorf("customer = %q, want preserved Acme Logistics", s.Customer)
	}
	if s.Day != "Tuesday" {
		t.Errorf("day = %q, want latest Tuesday", s.Day)
	}
	if s.RunCount != 2 {
		t.Errorf("run_count = %d, want 2", s.RunCount)
	}
	if s.LastRunID != "run-b" {
		t.Errorf("last_run_id = %q, want run-b", s.LastRunID)
	}
}

func TestGetShipment_NotFound(t *testing.T) {
	pg := setupTestPostgres(t)
	if pg == nil {
		t.Skip("No PostgreSQL connection available")
	}
	defer pg.Close()

	s, err := pg.GetShipment(context.Background(), "NO-SUCH-KEY")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != nil {
		t.Errorf("expected nil for unknown shipment, got %+v", s)
	}
}

func TestUpsertShipment_EmptyKeyIgnored(t *testing.T) {
	pg := setupTestPostgres(t)
	if pg == nil {
		t.Skip("No PostgreSQL connection available")
	}
	defer pg.Close()

	err := pg.UpsertShipment(context.Background(), Shipment{
		Kind:    "freetext",
		Day:     "Friday",
		Arrival: "8/21/2025",
	})
	if err != nil {
		t.Errorf("expected nil error for empty ref key, got: %v", err)
	}
}

func TestCountShipmentsByDay(t *testing.T) {
	pg := setupTestPostgres(t)
	if pg == nil {
		t.Skip("No PostgreSQL connection available")
	}
	defer pg.Close()

	ctx := context.Background()

	cleanup := func() {
		_, _ = pg.pool.Exec(ctx, "DELETE FROM current_shipments WHERE ref_key IN ('TEST-COUNT-1', 'TEST-COUNT-2', 'TEST-COUNT-3')")
	}
	cleanup()
	defer cleanup()

	// The table is shared, so compare against a baseline snapshot.
	before, err := pg.CountShipmentsByDay(ctx)
	if err != nil {
		t.Fatalf("baseline count failed: %v", err)
	}

	for _, s := range []Shipment{
		{RefKey: "TEST-COUNT-1", Kind: "columns", Day: "Saturday", Reference: "TEST-COUNT-1"},
		{RefKey: "TEST-COUNT-2", Kind: "columns", Day: "Saturday", Reference: "TEST-COUNT-2"},
		{RefKey: "TEST-COUNT-3", Kind: "freetext", Day: "Sunday", CustomerReference: "TEST-COUNT-3"},
	} {
		if err := pg.UpsertShipment(ctx, s); err != nil {
			t.Fatalf("upsert %s: %v", s.RefKey, err)
		}
	}

	after, err := pg.CountShipmentsByDay(ctx)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}

	if got := after["Saturday"] - before["Saturday"]; got != 2 {
		t.Errorf("Saturday count grew by %d, want 2", got)
	}
	if got := after["Sunday"] - before["Sunday"]; got != 1 {
		t.Errorf("Sunday count grew by %d, want 1", got)
	}
}

func TestListShipmentsByDay(t *testing.T) {
	pg := setupTestPostgres(t)
	if pg == nil {
		t.Skip("No PostgreSQL connection available")
	}
	defer pg.Close()

	ctx := context.Background()

	cleanup := func() {
		_, _ = pg.pool.Exec(ctx, "DELETE FROM current_shipments WHERE ref_key IN ('TEST-DAY-1', 'TEST-DAY-2')")
	}
	cleanup()
	defer cleanup()

	for _, s := range []Shipment{
		{RefKey: "TEST-DAY-1", Kind: "columns", Day: "Wednesday", Reference: "TEST-DAY-1"},
		{RefKey: "TEST-DAY-2", Kind: "columns", Day: "Wednesday", Reference: "TEST-DAY-2"},
	} {
		if err := pg.UpsertShipment(ctx, s); err != nil {
			t.Fatalf("upsert %s: %v", s.RefKey, err)
		}
	}

	shipments, err := pg.ListShipmentsByDay(ctx, "Wednesday", 100)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}

	found := 0
	for _, s := range shipments {
		if s.RefKey == "TEST-DAY-1" || s.RefKey == "TEST-DAY-2" {
			found++
		}
	}
	if found != 2 {
		t.Errorf("found %d test shipments under Wednesday, want 2", found)
	}
}
