package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// PostgresDB wraps a PostgreSQL connection pool for current-shipment state.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens a connection pool to PostgreSQL.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresDB, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	// Test the connection.
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// Close closes the PostgreSQL connection pool.
func (d *PostgresDB) Close() {
	d.pool.Close()
}

// Pool returns the underlying connection pool for direct queries.
func (d *PostgresDB) Pool() *pgxpool.Pool {
	return d.pool
}

// CreateSchema creates the PostgreSQL tables.
func (d *PostgresDB) CreateSchema(ctx context.Context) error {
	schema := `
	-- Mutable state: the latest known details per tracked shipment.
	CREATE TABLE IF NOT EXISTS current_shipments (
		ref_key            TEXT PRIMARY KEY,
		kind               TEXT NOT NULL,
		customer           TEXT,
		reference          TEXT,
		customer_reference TEXT,
		day                TEXT NOT NULL,
		arrival            TEXT,
		departure          TEXT,
		first_seen         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_seen          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		run_count          INTEGER NOT NULL DEFAULT 1,
		last_run_id        TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_current_shipments_day ON current_shipments(day);
	CREATE INDEX IF NOT EXISTS idx_current_shipments_seen ON current_shipments(last_seen);
	`

	if _, err := d.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create postgres schema: %w", err)
	}
	return nil
}

// Shipment is the current state of one tracked shipment.
type Shipment struct {
	RefKey            string
	Kind              string
	Customer          string
	Reference         string
	CustomerReference string
	Day               string
	Arrival           string
	Departure         string
	FirstSeen         time.Time
	LastSeen          time.Time
	RunCount          int
	LastRunID         string
}

// UpsertShipment inserts or refreshes one shipment's current state,
// keeping previously known fields when the new sighting leaves them
// blank. An empty ref key is ignored without error.
func (d *PostgresDB) UpsertShipment(ctx context.Context, s Shipment) error {
	if s.RefKey == "" {
		return nil
	}

	_, err := d.pool.Exec(ctx, `
		INSERT INTO current_shipments (ref_key, kind, customer, reference, customer_reference, day, arrival, departure, first_seen, last_seen, run_count, last_run_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW(), 1, $9)
		ON CONFLICT (ref_key) DO UPDATE SET
			kind = EXCLUDED.kind,
			customer = COALESCE(NULLIF(EXCLUDED.customer, ''), current_shipments.customer),
			reference = COALESCE(NULLIF(EXCLUDED.reference, ''), current_shipments.reference),
			customer_reference = COALESCE(NULLIF(EXCLUDED.customer_reference, ''), current_shipments.customer_reference),
			day = EXCLUDED.day,
			arrival = COALESCE(NULLIF(EXCLUDED.arrival, ''), current_shipments.arrival),
			departure = COALESCE(NULLIF(EXCLUDED.departure, ''), current_shipments.departure),
			last_seen = NOW(),
			run_count = current_shipments.run_count + 1,
			last_run_id = EXCLUDED.last_run_id
	`, s.RefKey, s.Kind, s.Customer, s.Reference, s.CustomerReference, s.Day, s.Arrival, s.Departure, s.LastRunID)
	return err
}

// GetShipment retrieves one shipment's current state by ref key.
// Returns nil when the shipment has never been seen.
func (d *PostgresDB) GetShipment(ctx context.Context, refKey string) (*Shipment, error) {
	var s Shipment
	var customer, reference, customerRef, arrival, departure, lastRunID *string

	err := d.pool.QueryRow(ctx, `
		SELECT ref_key, kind, customer, reference, customer_reference, day, arrival, departure, first_seen, last_seen, run_count, last_run_id
		FROM current_shipments WHERE ref_key = $1
	`, refKey).Scan(&s.RefKey, &s.Kind, &customer, &reference, &customerRef, &s.Day, &arrival, &departure, &s.FirstSeen, &s.LastSeen, &s.RunCount, &lastRunID)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s.Customer = deref(customer)
	s.Reference = deref(reference)
	s.CustomerReference = deref(customerRef)
	s.Arrival = deref(arrival)
	s.Departure = deref(departure)
	s.LastRunID = deref(lastRunID)
	return &s, nil
}

// ListShipmentsByDay returns the current shipments bucketed under one
// weekday, most recently seen first.
func (d *PostgresDB) ListShipmentsByDay(ctx context.Context, day string, limit int) ([]Shipment, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := d.pool.Query(ctx, `
		SELECT ref_key, kind, customer, reference, customer_reference, day, arrival, departure, first_seen, last_seen, run_count, last_run_id
		FROM current_shipments WHERE day = $1
		ORDER BY last_seen DESC LIMIT $2
	`, day, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shipments []Shipment
	for rows.Next() {
		var s Shipment
		var customer, reference, customerRef, arrival, departure, lastRunID *string

		err := rows.Scan(&s.RefKey, &s.Kind, &customer, &reference, &customerRef, &s.Day, &arrival, &departure, &s.FirstSeen, &s.LastSeen, &s.RunCount, &lastRunID)
		if err != nil {
			return nil, fmt.Errorf("scan shipment: %w", err)
		}

		s.Customer = deref(customer)
		s.Reference = deref(reference)
		s.CustomerReference = deref(customerRef)
		s.Arrival = deref(arrival)
		s.Departure = deref(departure)
		s.LastRunID = deref(lastRunID)
		shipments = append(shipments, s)
	}
	return shipments, rows.Err()
}

// CountShipmentsByDay returns current shipment counts grouped by weekday.
func (d *PostgresDB) CountShipmentsByDay(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)

	rows, err := d.pool.Query(ctx, `SELECT day, COUNT(*) FROM current_shipments GROUP BY day`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var day string
		var count int
		if err := rows.Scan(&day, &count); err != nil {
			return nil, fmt.Errorf("scan day count: %w", err)
		}
		counts[day] = count
	}
	return counts, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
