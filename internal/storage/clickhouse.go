// Package storage provides persistent storage for shipment runs, parsed
// records and discarded rows.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// ClickHouseDB wraps a ClickHouse connection for the append-only
// shipment archive.
type ClickHouseDB struct {
	conn driver.Conn
}

// Conn returns the underlying ClickHouse connection for direct queries.
func (d *ClickHouseDB) Conn() driver.Conn {
	return d.conn
}

// OpenClickHouse opens a connection to ClickHouse.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	// Test the connection.
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Close closes the ClickHouse connection.
func (d *ClickHouseDB) Close() error {
	return d.conn.Close()
}

// CreateSchema creates the ClickHouse tables.
func (d *ClickHouseDB) CreateSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS shipment_records (
			run_id             String,
			fetched_at         DateTime64(3),
			row_index          UInt32,
			position           UInt32,
			day                LowCardinality(String),
			kind               LowCardinality(String),
			customer           String,
			reference          String,
			customer_reference String,
			arrival            String,
			departure          String,
			record_json        String,
			created_at         DateTime64(3) DEFAULT now64(3)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(fetched_at)
		ORDER BY (day, fetched_at, run_id, position)
		SETTINGS index_granularity = 8192`,
	}

	for _, q := range queries {
		if err := d.conn.Exec(ctx, q); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	// Add bloom filter index for reference search (ignore error if already exists).
	_ = d.conn.Exec(ctx, `ALTER TABLE shipment_records ADD INDEX IF NOT EXISTS idx_reference_bloom customer_reference TYPE tokenbf_v1(32768, 3, 0) GRANULARITY 1`)

	return nil
}

// CHRecord represents an archived shipment record.
type CHRecord struct {
	RunID             string
	FetchedAt         time.Time
	RowIndex          uint32
	Position          uint32
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

// InsertBatch archives a run's records in one batch. Shares RecordParams
// with the SQLite store so callers build the rows once.
func (d *ClickHouseDB) InsertBatch(ctx context.Context, fetchedAt time.Time, records []RecordParams) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO shipment_records (run_id, fetched_at, row_index, position, day, kind, customer, reference, customer_reference, arrival, departure, record_json)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range records {
		recordJSON, err := json.Marshal(p.Record)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}

		err = batch.Append(p.RunID, fetchedAt, uint32(p.RowIndex), uint32(p.Position), p.Day, p.Kind,
			p.Customer, p.Reference, p.CustomerReference, p.Arrival, p.Departure, string(recordJSON))
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// CHQueryParams contains filtering options for querying the archive.
type CHQueryParams struct {
	RunID  string
	Day    string
	Kind   string
	Since  time.Time // Only records fetched at or after this time.
	Limit  int
	Offset int
}

// Query retrieves archived records matching the given parameters.
func (d *ClickHouseDB) Query(ctx context.Context, p CHQueryParams) ([]CHRecord, error) {
	var conditions []string
	var args []interface{}

	if p.RunID != "" {
		conditions = append(conditions, "run_id = ?")
		args = append(args, p.RunID)
	}
	if p.Day != "" {
		conditions = append(conditions, "day = ?")
		args = append(args, p.Day)
	}
	if p.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, p.Kind)
	}
	if !p.Since.IsZero() {
		conditions = append(conditions, "fetched_at >= ?")
		args = append(args, p.Since)
	}

	query := `SELECT run_id, fetched_at, row_index, position, day, kind, customer, reference, customer_reference, arrival, departure, record_json, created_at FROM shipment_records`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY fetched_at DESC, position ASC"

	limit := 100
	if p.Limit > 0 {
		limit = p.Limit
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, p.Offset)

	rows, err := d.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query archive: %w", err)
	}
	defer rows.Close()

	var records []CHRecord
	for rows.Next() {
		var r CHRecord
		err := rows.Scan(&r.RunID, &r.FetchedAt, &r.RowIndex, &r.Position, &r.Day, &r.Kind,
			&r.Customer, &r.Reference, &r.CustomerReference, &r.Arrival, &r.Departure, &r.RecordJSON, &r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return records, nil
}

// CountByDay returns archived record counts grouped by weekday.
func (d *ClickHouseDB) CountByDay(ctx context.Context) (map[string]uint64, error) {
	counts := make(map[string]uint64)
	rows, err := d.conn.Query(ctx, "SELECT day, count() FROM shipment_records GROUP BY day")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var day string
		var count uint64
		if err := rows.Scan(&day, &count); err != nil {
			return nil, fmt.Errorf("scan count by day: %w", err)
		}
		counts[day] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate count by day: %w", err)
	}
	return counts, nil
}

// CHStats contains aggregate statistics about the archive.
type CHStats struct {
	TotalRecords uint64
	DistinctRuns uint64
	ByDay        map[string]uint64
	ByKind       map[string]uint64
}

// GetStats returns statistics about the archive.
func (d *ClickHouseDB) GetStats(ctx context.Context) (*CHStats, error) {
	stats := &CHStats{
		ByDay:  make(map[string]uint64),
		ByKind: make(map[string]uint64),
	}

	row := d.conn.QueryRow(ctx, "SELECT count() FROM shipment_records")
	if err := row.Scan(&stats.TotalRecords); err != nil {
		return nil, err
	}

	row = d.conn.QueryRow(ctx, "SELECT uniqExact(run_id) FROM shipment_records")
	if err := row.Scan(&stats.DistinctRuns); err != nil {
		return nil, err
	}

	byDay, err := d.CountByDay(ctx)
	if err != nil {
		return nil, err
	}
	stats.ByDay = byDay

	rows, err := d.conn.Query(ctx, "SELECT kind, count() FROM shipment_records GROUP BY kind ORDER BY count() DESC")
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var kind string
		var count uint64
		if err := rows.Scan(&kind, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan kind stats: %w", err)
		}
		stats.ByKind[kind] = count
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate kind stats: %w", err)
	}
	rows.Close()

	return stats, nil
}
