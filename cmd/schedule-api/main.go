// Package main provides the schedule-api server for the weekly shipment
// schedule.
//
// This is a standalone REST API server over the run store written by the
// shipment_parser CLI. Downstream dashboards query it for the latest
// grouped schedule, per-run history, and discarded rows; when PostgreSQL
// is configured it also answers per-shipment current-state lookups.
//
// Usage:
//
//	schedule-api [options]
//
// Options:
//
//	-db PATH            SQLite run store (default: data/shipments.db, env: DATABASE_PATH)
//	-data PATH          Schedule JSON written by the sync run; served verbatim
//	                    when set, otherwise the schedule is rebuilt from the
//	                    latest stored run (env: OUTPUT_JSON_PATH)
//	-pg-host HOST       PostgreSQL host; empty disables current-state lookups
//	                    (env: POSTGRES_HOST)
//	-pg-port PORT       PostgreSQL port (default: 5432, env: POSTGRES_PORT)
//	-pg-database DB     PostgreSQL database (default: shipments_state, env: POSTGRES_DATABASE)
//	-pg-user USER       PostgreSQL user (default: shipments, env: POSTGRES_USER)
//	-pg-password PASS   PostgreSQL password (default: shipments, env: POSTGRES_PASSWORD)
//	-port N             HTTP port (default: 8081, env: API_PORT)
//	-auth               Enable API key authentication
//	-api-keys KEYS      Comma-separated list of valid API keys (env: API_KEYS)
//
// API Endpoints:
//
//	GET /api/v1/health
//	    Health check endpoint.
//
//	GET /api/v1/schedule
//	    The latest full week, Monday through Sunday.
//
//	GET /api/v1/schedule/{day}
//	    One weekday bucket. Unknown day names are a 404.
//
//	GET /api/v1/runs
//	GET /api/v1/runs/{id}
//	GET /api/v1/runs/{id}/records
//	    Run history, one run, and its parsed records in bucket order.
//
//	GET /api/v1/misses
//	    Discarded rows. Filters: run, extractor, reason, unreviewed, search.
//
//	GET /api/v1/shipments/{key}
//	    Current state for one shipment reference (requires PostgreSQL).
//
// Authentication:
//
//	When -auth is enabled, requests must include an API key via:
//	  - X-API-Key header
//	  - Authorization: Bearer <key> header
//	  - ?api_key=<key> query parameter
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"shipment_parser/internal/api"
	"shipment_parser/internal/storage"
)

func main() {
	// Optional .env for connection settings.
	_ = godotenv.Load()

	// Store flags.
	dbPath := flag.String("db", envOrDefault("DATABASE_PATH", "data/shipments.db"), "SQLite run store")
	dataPath := flag.String("data", envOrDefault("OUTPUT_JSON_PATH", ""), "Schedule JSON file served verbatim (empty: rebuild from store)")

	// PostgreSQL connection flags; an empty host disables current-state lookups.
	pgHost := flag.String("pg-host", envOrDefault("POSTGRES_HOST", ""), "PostgreSQL host")
	pgPort := flag.Int("pg-port", envOrDefaultInt("POSTGRES_PORT", 5432), "PostgreSQL port")
	pgUser := flag.String("pg-user", envOrDefault("POSTGRES_USER", "shipments"), "PostgreSQL user")
	pgPassword := flag.String("pg-password", envOrDefault("POSTGRES_PASSWORD", "shipments"), "PostgreSQL password")
	pgDB := flag.String("pg-database", envOrDefault("POSTGRES_DATABASE", "shipments_state"), "PostgreSQL database")

	// API server flags.
	port := flag.Int("port", envOrDefaultInt("API_PORT", 8081), "HTTP port for API server")
	authEnabled := flag.Bool("auth", false, "Enable API key authentication")
	apiKeys := flag.String("api-keys", envOrDefault("API_KEYS", ""), "Comma-separated list of valid API keys (when auth enabled)")

	flag.Parse()

	ctx := context.Background()

	// Open the local run store.
	local, err := storage.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening run store: %v\n", err)
		os.Exit(1)
	}
	defer local.Close()

	// Open PostgreSQL when configured.
	var pg *storage.PostgresDB
	if *pgHost != "" {
		pg, err = storage.OpenPostgres(ctx, storage.PostgresConfig{
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
	}

	// Parse API keys.
	var keys []string
	if *apiKeys != "" {
		keys = strings.Split(*apiKeys, ",")
		for i := range keys {
			keys[i] = strings.TrimSpace(keys[i])
		}
	}

	// Create and run server.
	server := api.NewServer(local, pg, api.Config{
		Port:        *port,
		DataPath:    *dataPath,
		AuthEnabled: *authEnabled,
		APIKeys:     keys,
	})

	if err := server.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
