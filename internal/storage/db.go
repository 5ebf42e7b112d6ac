package storage

import (
	"context"
	"fmt"
	"time"
)

// Config holds the connection settings for every store a run may use.
// Only the SQLite path is required; the ClickHouse archive and the
// Postgres current-state table attach when their sections are non-nil.
type Config struct {
	Path       string            // SQLite database file.
	ClickHouse *ClickHouseConfig // nil leaves the archive detached.
	Postgres   *PostgresConfig   // nil leaves current state detached.
}

// Stores bundles the opened stores behind one open/close pair.
type Stores struct {
	Local *DB           // SQLite for runs, records and misses.
	CH    *ClickHouseDB // ClickHouse append-only archive (optional).
	PG    *PostgresDB   // PostgreSQL current-shipment state (optional).
}

// OpenStores opens the SQLite store and whichever optional stores the
// config enables, creating schemas as it goes. A failure on any
// configured store closes the ones already opened and fails the call.
func OpenStores(ctx context.Context, cfg Config) (*Stores, error) {
	local, err := Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	s := &Stores{Local: local}

	if cfg.ClickHouse != nil {
		ch, err := OpenClickHouse(ctx, *cfg.ClickHouse)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		s.CH = ch
		if err := ch.CreateSchema(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}
	}

	if cfg.Postgres != nil {
		pg, err := OpenPostgres(ctx, *cfg.Postgres)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("postgres: %w", err)
		}
		s.PG = pg
		if err := pg.CreateSchema(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
	}

	return s, nil
}

// Close closes every attached store. The first error wins.
func (s *Stores) Close() error {
	var errs []error
	if s.Local != nil {
		if err := s.Local.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sqlite: %w", err))
		}
	}
	if s.CH != nil {
		if err := s.CH.Close(); err != nil {
			errs = append(errs, fmt.Errorf("clickhouse: %w", err))
		}
	}
	if s.PG != nil {
		s.PG.Close()
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// InsertRun records a completed run in the local store.
func (s *Stores) InsertRun(r Run) error {
	return s.Local.InsertRun(r)
}

// InsertRecords dual-writes a run's parsed records: row by row into
// SQLite and as one batch into the ClickHouse archive when attached.
func (s *Stores) InsertRecords(ctx context.Context, fetchedAt time.Time, records []RecordParams) error {
	for _, p := range records {
		if _, err := s.Local.InsertRecord(p); err != nil {
			return err
		}
	}
	if s.CH != nil {
		if err := s.CH.InsertBatch(ctx, fetchedAt, records); err != nil {
			return fmt.Errorf("archive: %w", err)
		}
	}
	return nil
}

// InsertMisses records every discarded row in the local store.
func (s *Stores) InsertMisses(misses []MissParams) error {
	for _, p := range misses {
		if _, err := s.Local.InsertMiss(p); err != nil {
			return err
		}
	}
	return nil
}

// UpsertCurrent refreshes the Postgres current-state table from a run's
// records. A no-op when Postgres is not attached; records without a
// usable reference key are skipped.
func (s *Stores) UpsertCurrent(ctx context.Context, records []RecordParams) error {
	if s.PG == nil {
		return nil
	}
	for _, p := range records {
		if err := s.PG.UpsertShipment(ctx, shipmentFromParams(p)); err != nil {
			return err
		}
	}
	return nil
}

// shipmentFromParams derives the current-state row for one parsed
// record. The reference key is the column layout's reference field, or
// the free-text customer reference; placeholder and empty values yield
// no key, which UpsertShipment ignores. N/A placeholders count as
// unknown so they never clobber previously seen values.
func shipmentFromParams(p RecordParams) Shipment {
	key := known(p.Reference)
	if key == "" {
		key = p.CustomerReference
	}
	return Shipment{
		RefKey:            key,
		Kind:              p.Kind,
		Customer:          known(p.Customer),
		Reference:         known(p.Reference),
		CustomerReference: p.CustomerReference,
		Day:               p.Day,
		Arrival:           known(p.Arrival),
		Departure:         known(p.Departure),
		LastRunID:         p.RunID,
	}
}

func known(v string) string {
	if v == "N/A" {
		return ""
	}
	return v
}
