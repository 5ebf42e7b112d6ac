// Package storage provides persistent storage for shipment runs, parsed
// records and discarded rows.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Run represents one pipeline execution, recorded after it finishes.
type Run struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time
	Source      string
	Worksheet   string
	Extractor   string
	RowsFetched int
	RowsParsed  int
	RowsSkipped int
	RowsDropped int
	OutputPath  string
	OutputBytes int64
}

// StoredRecord is one parsed row persisted for a run. Insert order
// follows the schedule's bucket order, so reading a run back by id
// reconstructs the output document exactly.
type StoredRecord struct {
	ID                int64
	RunID             string
	RowIndex          int
	Position          int
	Day               string
	Kind              string
	Customer          string
	Reference         string
	CustomerReference string
	Arrival           string
	Departure         string
	RecordJSON        string
	CreatedAt         time.Time
}

// Miss is one discarded row kept for review.
type Miss struct {
	ID        int64
	RunID     string
	RowIndex  int
	Extractor string
	Line      string
	Reason    string
	Reviewed  bool
	Note      string
	CreatedAt time.Time
}

// DB wraps a SQLite database connection for run storage.
type DB struct {
	db *sql.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent access.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// createSchema creates the database tables and indices.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		source TEXT NOT NULL,
		worksheet TEXT NOT NULL,
		extractor TEXT NOT NULL,
		rows_fetched INTEGER DEFAULT 0,
		rows_parsed INTEGER DEFAULT 0,
		rows_skipped INTEGER DEFAULT 0,
		rows_dropped INTEGER DEFAULT 0,
		output_path TEXT,
		output_bytes INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		row_index INTEGER NOT NULL,
		position INTEGER NOT NULL,
		day TEXT NOT NULL,
		kind TEXT NOT NULL,
		customer TEXT,
		reference TEXT,
		customer_reference TEXT,
		arrival TEXT,
		departure TEXT,
		record_json TEXT NOT NULL,
		created_at TEXT DEFAULT (datetime('now'))
	);

	CREATE INDEX IF NOT EXISTS idx_records_run ON records(run_id);
	CREATE INDEX IF NOT EXISTS idx_records_day ON records(day);

	CREATE TABLE IF NOT EXISTS misses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		row_index INTEGER NOT NULL,
		extractor TEXT NOT NULL,
		line TEXT NOT NULL,
		reason TEXT NOT NULL,
		reviewed INTEGER DEFAULT 0,
		note TEXT,
		created_at TEXT DEFAULT (datetime('now'))
	);

	CREATE INDEX IF NOT EXISTS idx_misses_run ON misses(run_id);
	CREATE INDEX IF NOT EXISTS idx_misses_reason ON misses(reason);
	-- Note: idx_misses_reviewed created by migration for existing DBs

	-- FTS5 virtual table for full-text search on discarded row text.
	CREATE VIRTUAL TABLE IF NOT EXISTS misses_fts USING fts5(
		line,
		content='misses',
		content_rowid='id'
	);

	-- Triggers to keep FTS index in sync.
	CREATE TRIGGER IF NOT EXISTS misses_ai AFTER INSERT ON misses BEGIN
		INSERT INTO misses_fts(rowid, line) VALUES (new.id, new.line);
	END;

	CREATE TRIGGER IF NOT EXISTS misses_ad AFTER DELETE ON misses BEGIN
		INSERT INTO misses_fts(misses_fts, rowid, line) VALUES('delete', old.id, old.line);
	END;

	CREATE TRIGGER IF NOT EXISTS misses_au AFTER UPDATE ON misses BEGIN
		INSERT INTO misses_fts(misses_fts, rowid, line) VALUES('delete', old.id, old.line);
		INSERT INTO misses_fts(rowid, line) VALUES (new.id, new.line);
	END;
	`

	if _, err := db.Exec(schema); err != nil {
		return err
	}

	// Run migrations for existing databases.
	return migrateSchema(db)
}

// migrateSchema adds new columns to existing databases.
func migrateSchema(db *sql.DB) error {
	// Check if the review columns exist.
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('misses') WHERE name='reviewed'`).Scan(&count)
	if err != nil {
		return err
	}

	if count == 0 {
		migrations := []string{
			`ALTER TABLE misses ADD COLUMN reviewed INTEGER DEFAULT 0`,
			`ALTER TABLE misses ADD COLUMN note TEXT`,
		}
		for _, m := range migrations {
			if _, err := db.Exec(m); err != nil {
				// Ignore "duplicate column" errors for idempotency.
				if !strings.Contains(err.Error(), "duplicate column") {
					return err
				}
			}
		}
	}
	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_misses_reviewed ON misses(reviewed)`)

	return nil
}

// InsertRun stores a completed run.
func (d *DB) InsertRun(r Run) error {
	var finished any
	if !r.FinishedAt.IsZero() {
		finished = r.FinishedAt.UTC().Format(time.RFC3339)
	}

	_, err := d.db.Exec(`
		INSERT INTO runs (id, started_at, finished_at, source, worksheet, extractor,
			rows_fetched, rows_parsed, rows_skipped, rows_dropped, output_path, output_bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.StartedAt.UTC().Format(time.RFC3339), finished, r.Source, r.Worksheet, r.Extractor,
		r.RowsFetched, r.RowsParsed, r.RowsSkipped, r.RowsDropped, r.OutputPath, r.OutputBytes)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordParams contains the parameters for inserting a parsed record.
type RecordParams struct {
	RunID             string
	RowIndex          int
	Position          int
	Day               string
	Kind              string
	Customer          string
	Reference         string
	CustomerReference string
	Arrival           string
	Departure         string
	Record            interface{} // Marshalled into record_json.
}

// InsertRecord stores one parsed record.
func (d *DB) InsertRecord(p RecordParams) (int64, error) {
	recordJSON, err := json.Marshal(p.Record)
	if err != nil {
		return 0, fmt.Errorf("marshal record: %w", err)
	}

	result, err := d.db.Exec(`
		INSERT INTO records (run_id, row_index, position, day, kind, customer, reference,
			customer_reference, arrival, departure, record_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.RunID, p.RowIndex, p.Position, p.Day, p.Kind, p.Customer, p.Reference,
		p.CustomerReference, p.Arrival, p.Departure, string(recordJSON))
	if err != nil {
		return 0, fmt.Errorf("insert record: %w", err)
	}

	return result.LastInsertId()
}

// MissParams contains the parameters for inserting a discarded row.
type MissParams struct {
	RunID     string
	RowIndex  int
	Extractor string
	Line      string
	Reason    string
}

// InsertMiss stores one discarded row.
func (d *DB) InsertMiss(p MissParams) (int64, error) {
	result, err := d.db.Exec(`
		INSERT INTO misses (run_id, row_index, extractor, line, reason)
		VALUES (?, ?, ?, ?, ?)
	`, p.RunID, p.RowIndex, p.Extractor, p.Line, p.Reason)
	if err != nil {
		return 0, fmt.Errorf("insert miss: %w", err)
	}

	return result.LastInsertId()
}

// Runs returns the most recent runs, newest first.
func (d *DB) Runs(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := d.db.Query(fmt.Sprintf(`
		SELECT id, started_at, finished_at, source, worksheet, extractor,
			rows_fetched, rows_parsed, rows_skipped, rows_dropped, output_path, output_bytes
		FROM runs ORDER BY started_at DESC LIMIT %d`, limit))
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// GetRun retrieves a single run by id. Returns nil when not found.
func (d *DB) GetRun(id string) (*Run, error) {
	row := d.db.QueryRow(`
		SELECT id, started_at, finished_at, source, worksheet, extractor,
			rows_fetched, rows_parsed, rows_skipped, rows_dropped, output_path, output_bytes
		FROM runs WHERE id = ?`, id)

	r, err := scanRun(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return r, nil
}

// LatestRun returns the most recent run, nil when the store is empty.
func (d *DB) LatestRun() (*Run, error) {
	row := d.db.QueryRow(`
		SELECT id, started_at, finished_at, source, worksheet, extractor,
			rows_fetched, rows_parsed, rows_skipped, rows_dropped, output_path, output_bytes
		FROM runs ORDER BY started_at DESC LIMIT 1`)

	r, err := scanRun(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return r, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var r Run
	var started, finished, outputPath sql.NullString

	err := s.Scan(&r.ID, &started, &finished, &r.Source, &r.Worksheet, &r.Extractor,
		&r.RowsFetched, &r.RowsParsed, &r.RowsSkipped, &r.RowsDropped, &outputPath, &r.OutputBytes)
	if err != nil {
		return nil, err
	}

	if started.Valid {
		r.StartedAt, _ = time.Parse(time.RFC3339, started.String)
	}
	if finished.Valid {
		r.FinishedAt, _ = time.Parse(time.RFC3339, finished.String)
	}
	if outputPath.Valid {
		r.OutputPath = outputPath.String
	}
	return &r, nil
}

// RecordsForRun returns a run's records in insert order.
func (d *DB) RecordsForRun(runID string) ([]StoredRecord, error) {
	rows, err := d.db.Query(`
		SELECT id, run_id, row_index, position, day, kind, customer, reference,
			customer_reference, arrival, departure, record_json, created_at
		FROM records WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []StoredRecord
	for rows.Next() {
		var rec StoredRecord
		var customer, reference, customerRef, arrival, departure, created sql.NullString

		err := rows.Scan(&rec.ID, &rec.RunID, &rec.RowIndex, &rec.Position, &rec.Day, &rec.Kind,
			&customer, &reference, &customerRef, &arrival, &departure, &rec.RecordJSON, &created)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}

		rec.Customer = customer.String
		rec.Reference = reference.String
		rec.CustomerReference = customerRef.String
		rec.Arrival = arrival.String
		rec.Departure = departure.String
		if created.Valid {
			rec.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", created.String)
		}

		records = append(records, rec)
	}
	return records, rows.Err()
}

// MissQueryParams contains filtering options for querying misses.
type MissQueryParams struct {
	RunID      string // Filter by run.
	Extractor  string // Filter by extractor (exact match).
	Reason     string // Filter by skip reason (exact match).
	Unreviewed bool   // Only rows not yet reviewed.
	FullText   string // FTS5 full-text search on the row line.
	Limit      int    // Max results (default 100).
	Offset     int    // Pagination offset.
}

// QueryMisses retrieves discarded rows matching the given parameters,
// newest first.
func (d *DB) QueryMisses(p MissQueryParams) ([]Miss, error) {
	var conditions []string
	var args []interface{}

	if p.RunID != "" {
		conditions = append(conditions, "run_id = ?")
		args = append(args, p.RunID)
	}
	if p.Extractor != "" {
		conditions = append(conditions, "extractor = ?")
		args = append(args, p.Extractor)
	}
	if p.Reason != "" {
		conditions = append(conditions, "reason = ?")
		args = append(args, p.Reason)
	}
	if p.Unreviewed {
		conditions = append(conditions, "reviewed = 0")
	}

	// FTS5 search requires a JOIN with the FTS table.
	var query string
	if p.FullText != "" {
		query = `SELECT m.id, m.run_id, m.row_index, m.extractor, m.line, m.reason,
				m.reviewed, m.note, m.created_at
				FROM misses m
				JOIN misses_fts fts ON m.id = fts.rowid
				WHERE misses_fts MATCH ?`
		args = append([]interface{}{p.FullText}, args...)
		if len(conditions) > 0 {
			query += " AND " + strings.Join(conditions, " AND ")
		}
	} else {
		query = `SELECT id, run_id, row_index, extractor, line, reason,
				reviewed, note, created_at
				FROM misses`
		if len(conditions) > 0 {
			query += " WHERE " + strings.Join(conditions, " AND ")
		}
	}

	query += " ORDER BY id DESC"

	limit := 100
	if p.Limit > 0 {
		limit = p.Limit
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, p.Offset)

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query misses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var misses []Miss
	for rows.Next() {
		var m Miss
		var note, created sql.NullString
		var reviewed sql.NullInt64

		err := rows.Scan(&m.ID, &m.RunID, &m.RowIndex, &m.Extractor, &m.Line, &m.Reason,
			&reviewed, &note, &created)
		if err != nil {
			return nil, fmt.Errorf("scan miss: %w", err)
		}

		if reviewed.Valid {
			m.Reviewed = reviewed.Int64 == 1
		}
		if note.Valid {
			m.Note = note.String
		}
		if created.Valid {
			m.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", created.String)
		}

		misses = append(misses, m)
	}
	return misses, rows.Err()
}

// GetMiss retrieves a single discarded row by id. Returns nil when not found.
func (d *DB) GetMiss(id int64) (*Miss, error) {
	var m Miss
	var note, created sql.NullString
	var reviewed sql.NullInt64

	err := d.db.QueryRow(`
		SELECT id, run_id, row_index, extractor, line, reason, reviewed, note, created_at
		FROM misses WHERE id = ?`, id).
		Scan(&m.ID, &m.RunID, &m.RowIndex, &m.Extractor, &m.Line, &m.Reason, &reviewed, &note, &created)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if reviewed.Valid {
		m.Reviewed = reviewed.Int64 == 1
	}
	if note.Valid {
		m.Note = note.String
	}
	if created.Valid {
		m.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", created.String)
	}
	return &m, nil
}

// SetReviewed marks or unmarks a discarded row as reviewed.
func (d *DB) SetReviewed(id int64, reviewed bool) error {
	val := 0
	if reviewed {
		val = 1
	}
	_, err := d.db.Exec(`UPDATE misses SET reviewed = ? WHERE id = ?`, val, id)
	return err
}

// SetNote sets the review note for a discarded row.
func (d *DB) SetNote(id int64, note string) error {
	_, err := d.db.Exec(`UPDATE misses SET note = ? WHERE id = ?`, note, id)
	return err
}

// Stats returns aggregate statistics about the store.
type Stats struct {
	TotalRuns    int
	TotalRecords int
	TotalMisses  int
	Unreviewed   int
	ByDay        map[string]int
	ByReason     map[string]int
}

// GetStats returns statistics across all stored runs.
func (d *DB) GetStats() (*Stats, error) {
	stats := &Stats{
		ByDay:    make(map[string]int),
		ByReason: make(map[string]int),
	}

	row := d.db.QueryRow("SELECT COUNT(*) FROM runs")
	if err := row.Scan(&stats.TotalRuns); err != nil {
		return nil, err
	}

	row = d.db.QueryRow("SELECT COUNT(*) FROM records")
	if err := row.Scan(&stats.TotalRecords); err != nil {
		return nil, err
	}

	row = d.db.QueryRow("SELECT COUNT(*) FROM misses")
	if err := row.Scan(&stats.TotalMisses); err != nil {
		return nil, err
	}

	row = d.db.QueryRow("SELECT COUNT(*) FROM misses WHERE reviewed = 0")
	if err := row.Scan(&stats.Unreviewed); err != nil {
		return nil, err
	}

	rows, err := d.db.Query("SELECT day, COUNT(*) FROM records GROUP BY day")
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var day string
		var count int
		if err := rows.Scan(&day, &count); err != nil {
			_ = rows.Close()
			return nil, err
		}
		stats.ByDay[day] = count
	}
	_ = rows.Close()

	rows, err = d.db.Query("SELECT reason, COUNT(*) FROM misses GROUP BY reason ORDER BY COUNT(*) DESC")
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var reason string
		var count int
		if err := rows.Scan(&reason, &count); err != nil {
			_ = rows.Close()
			return nil, err
		}
		stats.ByReason[reason] = count
	}
	_ = rows.Close()

	return stats, nil
}

// Distinct returns distinct values for a given miss column.
func (d *DB) Distinct(column string) ([]string, error) {
	// Validate column name to prevent SQL injection.
	validColumns := map[string]bool{
		"reason":    true,
		"extractor": true,
		"run_id":    true,
	}
	if !validColumns[column] {
		return nil, fmt.Errorf("invalid column: %s", column)
	}

	query := fmt.Sprintf("SELECT DISTINCT %s FROM misses WHERE %s IS NOT NULL AND %s != '' ORDER BY %s", column, column, column, column)
	rows, err := d.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}
