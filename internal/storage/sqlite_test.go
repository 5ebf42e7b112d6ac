package storage

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "shipments.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestInsertAndGetRun(t *testing.T) {
	db := openTestDB(t)

	started := time.Date(2025, 8, 18, 6, 0, 0, 0, time.UTC)
	run := Run{
		ID:          "run-1",
		StartedAt:   started,
		FinishedAt:  started.Add(3 * time.Second),
		Source:      "sheets",
		Worksheet:   "Sheet1",
		Extractor:   "columns",
		RowsFetched: 12,
		RowsParsed:  9,
		RowsSkipped: 3,
		OutputPath:  "data/shipments_by_day.json",
		OutputBytes: 2048,
	}
	if err := db.InsertRun(run); err != nil {
		t.Fatalf("insert run: %v", err)
	}

	got, err := db.GetRun("run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got == nil {
		t.Fatal("expected run, got nil")
	}
	if got.Worksheet != "Sheet1" {
		t.Errorf("worksheet = %q, want Sheet1", got.Worksheet)
	}
	if got.RowsParsed != 9 {
		t.Errorf("rows_parsed = %d, want 9", got.RowsParsed)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("started_at = %v, want %v", got.StartedAt, started)
	}

	missing, err := db.GetRun("nope")
	if err != nil {
		t.Fatalf("get missing run: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown run, got %+v", missing)
	}
}

func TestLatestRun(t *testing.T) {
	db := openTestDB(t)

	latest, err := db.LatestRun()
	if err != nil {
		t.Fatalf("latest on empty store: %v", err)
	}
	if latest != nil {
		t.Errorf("expected nil on empty store, got %+v", latest)
	}

	base := time.Date(2025, 8, 18, 6, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		run := Run{ID: id, StartedAt: base.Add(time.Duration(i) * time.Hour), Source: "csv", Worksheet: "w", Extractor: "columns"}
		if err := db.InsertRun(run); err != nil {
			t.Fatalf("insert run %s: %v", id, err)
		}
	}

	latest, err = db.LatestRun()
	if err != nil {
		t.Fatalf("latest run: %v", err)
	}
	if latest == nil || latest.ID != "new" {
		t.Errorf("latest = %+v, want id new", latest)
	}

	runs, err := db.Runs(2)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].ID != "new" || runs[1].ID != "mid" {
		t.Errorf("runs ordered %s, %s; want new, mid", runs[0].ID, runs[1].ID)
	}
}

func TestRecordsForRun_InsertOrder(t *testing.T) {
	db := openTestDB(t)

	params := []RecordParams{
		{RunID: "r1", RowIndex: 2, Position: 0, Day: "Monday", Kind: "columns", Customer: "Acme", Reference: "REF-1", Arrival: "8/21/2025", Departure: "N/A", Record: map[string]string{"reference": "REF-1"}},
		{RunID: "r1", RowIndex: 5, Position: 1, Day: "Monday", Kind: "columns", Customer: "Beta", Reference: "REF-2", Arrival: "N/A", Departure: "N/A", Record: map[string]string{"reference": "REF-2"}},
		{RunID: "r1", RowIndex: 3, Position: 0, Day: "Friday", Kind: "columns", Customer: "Gamma", Reference: "REF-3", Arrival: "9/1/2025", Departure: "9/2/2025", Record: map[string]string{"reference": "REF-3"}},
	}
	for _, p := range params {
		if _, err := db.InsertRecord(p); err != nil {
			t.Fatalf("insert record: %v", err)
		}
	}

	records, err := db.RecordsForRun("r1")
	if err != nil {
		t.Fatalf("records for run: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	for i, wantRef := range []string{"REF-1", "REF-2", "REF-3"} {
		if records[i].Reference != wantRef {
			t.Errorf("record %d reference = %q, want %q", i, records[i].Reference, wantRef)
		}
	}
	if records[0].RecordJSON != `{"reference":"REF-1"}` {
		t.Errorf("record_json = %s, want canonical marshal", records[0].RecordJSON)
	}

	none, err := db.RecordsForRun("other")
	if err != nil {
		t.Fatalf("records for unknown run: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("got %d records for unknown run, want 0", len(none))
	}
}

func TestQueryMisses_Filters(t *testing.T) {
	db := openTestDB(t)

	misses := []MissParams{
		{RunID: "r1", RowIndex: 4, Extractor: "freetext", Line: "Acme Corp 8/21/2025", Reason: "no trailing weekday"},
		{RunID: "r1", RowIndex: 9, Extractor: "columns", Line: "Beta Haulage", Reason: "empty day column"},
		{RunID: "r2", RowIndex: 2, Extractor: "freetext", Line: "Northline Freight 12/3/2025", Reason: "no trailing weekday"},
	}
	for _, p := range misses {
		if _, err := db.InsertMiss(p); err != nil {
			t.Fatalf("insert miss: %v", err)
		}
	}

	byRun, err := db.QueryMisses(MissQueryParams{RunID: "r1"})
	if err != nil {
		t.Fatalf("query by run: %v", err)
	}
	if len(byRun) != 2 {
		t.Errorf("run filter returned %d, want 2", len(byRun))
	}

	byReason, err := db.QueryMisses(MissQueryParams{Reason: "empty day column"})
	if err != nil {
		t.Fatalf("query by reason: %v", err)
	}
	if len(byReason) != 1 || byReason[0].Line != "Beta Haulage" {
		t.Errorf("reason filter = %+v, want the Beta Haulage row", byReason)
	}

	byText, err := db.QueryMisses(MissQueryParams{FullText: "Northline"})
	if err != nil {
		t.Fatalf("full-text query: %v", err)
	}
	if len(byText) != 1 || byText[0].RunID != "r2" {
		t.Errorf("full-text filter = %+v, want the r2 row", byText)
	}

	// Newest first.
	all, err := db.QueryMisses(MissQueryParams{})
	if err != nil {
		t.Fatalf("query all: %v", err)
	}
	if len(all) != 3 || all[0].RunID != "r2" {
		t.Errorf("query all = %d rows, first run %q; want 3 rows, r2 first", len(all), all[0].RunID)
	}
}

func TestReviewFlow(t *testing.T) {
	db := openTestDB(t)

	id, err := db.InsertMiss(MissParams{RunID: "r1", RowIndex: 7, Extractor: "freetext", Line: "mystery row", Reason: "no trailing weekday"})
	if err != nil {
		t.Fatalf("insert miss: %v", err)
	}

	unreviewed, err := db.QueryMisses(MissQueryParams{Unreviewed: true})
	if err != nil {
		t.Fatalf("query unreviewed: %v", err)
	}
	if len(unreviewed) != 1 {
		t.Fatalf("got %d unreviewed, want 1", len(unreviewed))
	}

	if err := db.SetReviewed(id, true); err != nil {
		t.Fatalf("set reviewed: %v", err)
	}
	if err := db.SetNote(id, "abbreviated day name"); err != nil {
		t.Fatalf("set note: %v", err)
	}

	m, err := db.GetMiss(id)
	if err != nil {
		t.Fatalf("get miss: %v", err)
	}
	if m == nil {
		t.Fatal("expected miss, got nil")
	}
	if !m.Reviewed {
		t.Error("miss not marked reviewed")
	}
	if m.Note != "abbreviated day name" {
		t.Errorf("note = %q, want the saved note", m.Note)
	}

	unreviewed, err = db.QueryMisses(MissQueryParams{Unreviewed: true})
	if err != nil {
		t.Fatalf("query unreviewed again: %v", err)
	}
	if len(unreviewed) != 0 {
		t.Errorf("got %d unreviewed after review, want 0", len(unreviewed))
	}

	missing, err := db.GetMiss(9999)
	if err != nil {
		t.Fatalf("get unknown miss: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown miss, got %+v", missing)
	}
}

func TestGetStats(t *testing.T) {
	db := openTestDB(t)

	if err := db.InsertRun(Run{ID: "r1", StartedAt: time.Now().UTC(), Source: "csv", Worksheet: "w", Extractor: "columns"}); err != nil {
		t.Fatalf("insert run: %v", err)
	}
	for i, day := range []string{"Monday", "Monday", "Friday"} {
		p := RecordParams{RunID: "r1", RowIndex: i + 2, Position: i, Day: day, Kind: "columns", Record: map[string]string{}}
		if _, err := db.InsertRecord(p); err != nil {
			t.Fatalf("insert record: %v", err)
		}
	}
	if _, err := db.InsertMiss(MissParams{RunID: "r1", RowIndex: 9, Extractor: "columns", Line: "x", Reason: "short row"}); err != nil {
		t.Fatalf("insert miss: %v", err)
	}

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if stats.TotalRuns != 1 || stats.TotalRecords != 3 || stats.TotalMisses != 1 {
		t.Errorf("stats = %d runs, %d records, %d misses; want 1, 3, 1",
			stats.TotalRuns, stats.TotalRecords, stats.TotalMisses)
	}
	if stats.ByDay["Monday"] != 2 {
		t.Errorf("ByDay[Monday] = %d, want 2", stats.ByDay["Monday"])
	}
	if stats.ByReason["short row"] != 1 {
		t.Errorf("ByReason[short row] = %d, want 1", stats.ByReason["short row"])
	}
	if stats.Unreviewed != 1 {
		t.Errorf("Unreviewed = %d, want 1", stats.Unreviewed)
	}
}

func TestDistinct(t *testing.T) {
	db := openTestDB(t)

	for _, p := range []MissParams{
		{RunID: "r1", RowIndex: 1, Extractor: "freetext", Line: "a", Reason: "no trailing weekday"},
		{RunID: "r1", RowIndex: 2, Extractor: "columns", Line: "b", Reason: "short row"},
		{RunID: "r2", RowIndex: 3, Extractor: "columns", Line: "c", Reason: "short row"},
	} {
		if _, err := db.InsertMiss(p); err != nil {
			t.Fatalf("insert miss: %v", err)
		}
	}

	reasons, err := db.Distinct("reason")
	if err != nil {
		t.Fatalf("distinct reasons: %v", err)
	}
	if len(reasons) != 2 {
		t.Errorf("got %d distinct reasons, want 2", len(reasons))
	}

	if _, err := db.Distinct("line; DROP TABLE misses"); err == nil {
		t.Error("expected error for invalid column name")
	}
}
