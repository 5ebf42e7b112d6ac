// Command-line entry point for the shipment schedule parser.
//
// Note about run modes
// --------------------
// The weekly schedule normally lives on one worksheet of a Google
// spreadsheet; "sync" fetches it with a service-account credential. The
// same row pipeline runs against local CSV/XLSX files ("extract") so a
// layout can be tried without touching the live sheet. Two extract modes
// exist:
//
//	columns  - fixed five-column layout (customer, reference, arrival,
//	           departure, day); the canonical sheet format
//	freetext - legacy rows where every field shares one line of text
//
// The run store, ClickHouse archive, Postgres current state and NATS
// publishing are all optional; the fetch -> extract -> group -> write
// path never depends on them.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	_ "shipment_parser/internal/extractors" // register all extractors via init()
	"shipment_parser/internal/extractors/columns"
	"shipment_parser/internal/extractors/freetext"
	"shipment_parser/internal/output"
	"shipment_parser/internal/publish"
	"shipment_parser/internal/registry"
	"shipment_parser/internal/review"
	"shipment_parser/internal/schedule"
	"shipment_parser/internal/sheet"
	"shipment_parser/internal/source"
	"shipment_parser/internal/storage"
)

func usage(w io.Writer) {
	fmt.Fprintln(w, "shipment_parser - commands:")
	fmt.Fprintln(w, "  sync     - fetch the configured spreadsheet and write the weekly schedule")
	fmt.Fprintln(w, "  extract  - run the same pipeline over a local CSV/XLSX file")
	fmt.Fprintln(w, "  debug    - trace one row through an extractor")
	fmt.Fprintln(w, "  stats    - show run history from the local store")
	fmt.Fprintln(w, "  review   - start the discarded-row review UI")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  shipment_parser sync [-worksheet Sheet1] [-mode columns] [-output data/shipments_by_day.json] [-db path] [-nats url]")
	fmt.Fprintln(w, "  shipment_parser extract -input rows.csv [-format auto] [-mode columns] [-output out.json] [-stats]")
	fmt.Fprintln(w, "  shipment_parser debug [-mode freetext] \"ACME LOGISTICS - REF 10023 8/21/2025 TBD Friday\"")
	fmt.Fprintln(w, "  shipment_parser stats [-db data/shipments.db] [-limit 10]")
	fmt.Fprintln(w, "  shipment_parser review [-db data/shipments.db] [-port 8080]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - sync requires SPREADSHEET_ID and GOOGLE_CREDENTIAL_JSON in the environment (.env is read).")
	fmt.Fprintln(w, "  - extract reads CSV from stdin when -input is omitted.")
	fmt.Fprintln(w, "")
}

func main() {
	// Optional .env for credentials and connection settings.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	cmd := strings.ToLower(os.Args[1])
	switch cmd {
	case "sync":
		runSync(os.Args[2:])
	case "extract":
		runExtract(os.Args[2:])
	case "debug":
		runDebug(os.Args[2:])
	case "stats":
		runStats(os.Args[2:])
	case "review":
		runReview(os.Args[2:])
	case "-h", "--help", "help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage(os.Stderr)
		os.Exit(2)
	}
}

func runSync(args []string) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	worksheet := fs.String("worksheet", envOrDefault("WORKSHEET_NAME", "Sheet1"), "Worksheet title to fetch")
	mode := fs.String("mode", envOrDefault("EXTRACT_MODE", registry.DefaultName), "Extract mode (columns or freetext)")
	outPath := fs.String("output", envOrDefault("OUTPUT_JSON_PATH", output.DefaultPath), "Output JSON file")
	dbPath := fs.String("db", envOrDefault("DATABASE_PATH", ""), "SQLite run store (empty: keep no history)")
	chHost := fs.String("ch-host", envOrDefault("CLICKHOUSE_HOST", ""), "ClickHouse host (empty: no archive)")
	chPort := fs.Int("ch-port", envOrDefaultInt("CLICKHOUSE_PORT", 9000), "ClickHouse port")
	chUser := fs.String("ch-user", envOrDefault("CLICKHOUSE_USER", "default"), "ClickHouse user")
	chPassword := fs.String("ch-password", envOrDefault("CLICKHOUSE_PASSWORD", ""), "ClickHouse password")
	chDB := fs.String("ch-database", envOrDefault("CLICKHOUSE_DATABASE", "shipments"), "ClickHouse database")
	pgHost := fs.String("pg-host", envOrDefault("POSTGRES_HOST", ""), "PostgreSQL host (empty: no current state)")
	pgPort := fs.Int("pg-port", envOrDefaultInt("POSTGRES_PORT", 5432), "PostgreSQL port")
	pgUser := fs.String("pg-user", envOrDefault("POSTGRES_USER", "shipments"), "PostgreSQL user")
	pgPassword := fs.String("pg-password", envOrDefault("POSTGRES_PASSWORD", "shipments"), "PostgreSQL password")
	pgDB := fs.String("pg-database", envOrDefault("POSTGRES_DATABASE", "shipments_state"), "PostgreSQL database")
	natsURL := fs.String("nats", envOrDefault("NATS_URL", ""), "NATS server URL (empty: no publish)")
	_ = fs.Parse(args)

	// Both must be present before any network call happens.
	spreadsheetID := os.Getenv("SPREADSHEET_ID")
	credential := os.Getenv("GOOGLE_CREDENTIAL_JSON")
	if spreadsheetID == "" || credential == "" {
		fmt.Fprintln(os.Stderr, "SPREADSHEET_ID and GOOGLE_CREDENTIAL_JSON must be set")
		os.Exit(1)
	}

	ex, err := registry.Default().Find(*mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	if *dbPath == "" && (*chHost != "" || *pgHost != "") {
		fmt.Fprintln(os.Stderr, "-ch-host and -pg-host require -db (the local run store)")
		os.Exit(2)
	}

	ctx := context.Background()
	started := time.Now().UTC()
	runID := uuid.New().String()

	var stores *storage.Stores
	if *dbPath != "" {
		cfg := storage.Config{Path: *dbPath}
		if *chHost != "" {
			cfg.ClickHouse = &storage.ClickHouseConfig{
				Host: *chHost, Port: *chPort, Database: *chDB,
				User: *chUser, Password: *chPassword,
			}
		}
		if *pgHost != "" {
			cfg.Postgres = &storage.PostgresConfig{
				Host: *pgHost, Port: *pgPort, Database: *pgDB,
				User: *pgUser, Password: *pgPassword,
			}
		}
		stores, err = storage.OpenStores(ctx, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open stores: %v\n", err)
			os.Exit(1)
		}
		defer stores.Close()
	}

	src, err := source.NewSheetsSource(ctx, spreadsheetID, *worksheet, []byte(credential))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create sheets client: %v\n", err)
		os.Exit(1)
	}

	table, err := src.Fetch(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fetch failed: %v\n", err)
		os.Exit(1)
	}

	week, records, misses, ct := processTable(table, ex, runID)

	written, err := output.Write(*outPath, week)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}

	// The document is on disk and verified; everything below is best-effort.
	if stores != nil {
		persistRun(ctx, stores, storage.Run{
			ID: runID, StartedAt: started, FinishedAt: time.Now().UTC(),
			Source: "sheets", Worksheet: table.Worksheet, Extractor: ex.Name(),
			RowsFetched: ct.Rows, RowsParsed: ct.Parsed, RowsSkipped: ct.Skipped,
			RowsDropped: ct.Dropped, OutputPath: *outPath, OutputBytes: written,
		}, table.FetchedAt, records, misses)
	}

	if *natsURL != "" {
		publishWeek(*natsURL, week)
	}

	fmt.Fprintf(os.Stderr, "stats: rows=%d parsed=%d skipped=%d dropped=%d output_bytes=%d\n",
		ct.Rows, ct.Parsed, ct.Skipped, ct.Dropped, written)
}

func runExtract(args []string) {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	inPath := fs.String("input", "", "Input CSV/XLSX file (default: stdin, CSV)")
	format := fs.String("format", "auto", "Input format: auto, csv or xlsx")
	worksheet := fs.String("worksheet", "", "Worksheet name for XLSX input (default: first sheet)")
	mode := fs.String("mode", envOrDefault("EXTRACT_MODE", registry.DefaultName), "Extract mode (columns or freetext)")
	outPath := fs.String("output", "", "Output JSON file (default: stdout)")
	dbPath := fs.String("db", envOrDefault("DATABASE_PATH", ""), "SQLite run store (empty: keep no history)")
	showStats := fs.Bool("stats", false, "Print run counters to stderr")
	_ = fs.Parse(args)

	ex, err := registry.Default().Find(*mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	var src source.Source
	srcName := "stdin"
	if *inPath == "" {
		src = &source.CSVSource{Reader: os.Stdin}
	} else {
		src, err = source.Open(*inPath, *format, *worksheet)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(2)
		}
		srcName = strings.TrimPrefix(strings.ToLower(filepath.Ext(*inPath)), ".")
		if srcName == "" {
			srcName = "file"
		}
	}

	ctx := context.Background()
	started := time.Now().UTC()
	runID := uuid.New().String()

	var stores *storage.Stores
	if *dbPath != "" {
		stores, err = storage.OpenStores(ctx, storage.Config{Path: *dbPath})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
			os.Exit(1)
		}
		defer stores.Close()
	}

	table, err := src.Fetch(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Read failed: %v\n", err)
		os.Exit(1)
	}

	week, records, misses, ct := processTable(table, ex, runID)

	var written int64
	if *outPath != "" {
		written, err = output.Write(*outPath, week)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		doc, err := output.Marshal(week)
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON encode error: %v\n", err)
			os.Exit(1)
		}
		written = int64(len(doc))
		_, _ = os.Stdout.Write(doc)
	}

	if stores != nil {
		persistRun(ctx, stores, storage.Run{
			ID: runID, StartedAt: started, FinishedAt: time.Now().UTC(),
			Source: srcName, Worksheet: table.Worksheet, Extractor: ex.Name(),
			RowsFetched: ct.Rows, RowsParsed: ct.Parsed, RowsSkipped: ct.Skipped,
			RowsDropped: ct.Dropped, OutputPath: *outPath, OutputBytes: written,
		}, table.FetchedAt, records, misses)
	}

	if *showStats {
		fmt.Fprintf(os.Stderr, "stats: rows=%d parsed=%d skipped=%d dropped=%d output_bytes=%d\n",
			ct.Rows, ct.Parsed, ct.Skipped, ct.Dropped, written)
	}
}

func runDebug(args []string) {
	fs := flag.NewFlagSet("debug", flag.ExitOnError)
	mode := fs.String("mode", envOrDefault("EXTRACT_MODE", registry.DefaultName), "Extract mode to trace")
	_ = fs.Parse(args)

	cells := fs.Args()
	if len(cells) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: shipment_parser debug [-mode columns|freetext] CELL [CELL ...]")
		fmt.Fprintln(os.Stderr, "Each argument is one cell; quote the whole row as a single argument for freetext.")
		os.Exit(2)
	}

	ex, err := registry.Default().Find(*mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	row := sheet.Row{Index: 1, Cells: cells}

	tr, ok := ex.(registry.Traceable)
	if !ok {
		// No trace support; report the plain outcome.
		rec, skip := ex.Extract(row)
		if skip != nil {
			fmt.Printf("extractor: %s\nresult: skipped (%s)\n", ex.Name(), skip.Reason)
			return
		}
		fmt.Printf("extractor: %s\nresult: matched (%s, day %s)\n", ex.Name(), rec.Kind(), rec.Day())
		return
	}

	printTrace(tr.ExtractWithTrace(row))
}

func printTrace(tr *registry.TraceResult) {
	fmt.Printf("extractor: %s\n", tr.ExtractorName)
	for _, st := range tr.Steps {
		mark := " "
		if st.Matched {
			mark = "*"
		}
		fmt.Printf("  [%s] %-8s %s", mark, st.Name, st.Value)
		if st.Pattern != "" {
			fmt.Printf("  (pattern %s)", st.Pattern)
		}
		fmt.Println()
	}

	if tr.Skip != nil {
		fmt.Printf("result: skipped (%s)\n", tr.Skip.Reason)
		return
	}

	fmt.Println("result: matched")
	names := make([]string, 0, len(tr.Fields))
	for name := range tr.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %s = %q\n", name, tr.Fields[name])
	}
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	dbPath := fs.String("db", envOrDefault("DATABASE_PATH", "data/shipments.db"), "SQLite run store")
	limit := fs.Int("limit", 10, "Recent runs to list")
	_ = fs.Parse(args)

	db, err := storage.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	st, err := db.GetStats()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read stats: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("runs: %d\n", st.TotalRuns)
	fmt.Printf("records: %d\n", st.TotalRecords)
	fmt.Printf("misses: %d (%d unreviewed)\n", st.TotalMisses, st.Unreviewed)

	if len(st.ByDay) > 0 {
		fmt.Println("\nrecords by day:")
		for _, day := range schedule.Weekdays {
			if n := st.ByDay[day]; n > 0 {
				fmt.Printf("  %-9s %d\n", day, n)
			}
		}
	}

	if len(st.ByReason) > 0 {
		fmt.Println("\nmisses by reason:")
		type reasonCount struct {
			reason string
			n      int
		}
		counts := make([]reasonCount, 0, len(st.ByReason))
		for reason, n := range st.ByReason {
			counts = append(counts, reasonCount{reason, n})
		}
		sort.Slice(counts, func(i, j int) bool {
			if counts[i].n != counts[j].n {
				return counts[i].n > counts[j].n
			}
			return counts[i].reason < counts[j].reason
		})
		for _, c := range counts {
			fmt.Printf("  %-24s %d\n", c.reason, c.n)
		}
	}

	runs, err := db.Runs(*limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list runs: %v\n", err)
		os.Exit(1)
	}
	if len(runs) > 0 {
		fmt.Println("\nrecent runs:")
		for _, r := range runs {
			fmt.Printf("  %s  %s  %s/%s  fetched=%d parsed=%d skipped=%d dropped=%d\n",
				r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Source, r.Extractor,
				r.RowsFetched, r.RowsParsed, r.RowsSkipped, r.RowsDropped)
		}
	}
}

func runReview(args []string) {
	fs := flag.NewFlagSet("review", flag.ExitOnError)
	dbPath := fs.String("db", envOrDefault("DATABASE_PATH", "data/shipments.db"), "SQLite run store")
	port := fs.Int("port", 8080, "HTTP port for the review UI")
	filter := fs.String("extractor", "", "Only show misses from this extractor")
	_ = fs.Parse(args)

	db, err := storage.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := review.NewServer(db, *port, *filter).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

// runCounters carries the totals printed in the stats line and recorded
// on the run row.
type runCounters struct {
	Rows    int
	Parsed  int
	Skipped int
	Dropped int
}

// processTable runs every data row through the extractor and buckets the
// results. Actionable discards are collected for the miss store; bucket
// positions follow insertion order so a stored run replays the output
// document exactly.
func processTable(table *sheet.Table, ex registry.Extractor, runID string) (*schedule.Week, []storage.RecordParams, []storage.MissParams, runCounters) {
	rows := table.Rows
	if ex.HasHeader() && len(rows) > 0 {
		rows = rows[1:]
	}

	week := schedule.NewWeek()
	var records []storage.RecordParams
	var misses []storage.MissParams
	ct := runCounters{Rows: len(table.Rows)}

	for _, row := range rows {
		rec, skip := ex.Extract(row)
		if skip != nil {
			ct.Skipped++
			if !skip.Quiet {
				fmt.Fprintf(os.Stderr, "skip row %d: %s\n", row.Index, skip.Reason)
				misses = append(misses, storage.MissParams{
					RunID:     runID,
					RowIndex:  row.Index,
					Extractor: ex.Name(),
					Line:      row.Line(),
					Reason:    skip.Reason,
				})
			}
			continue
		}

		if !week.Add(rec) {
			fmt.Fprintf(os.Stderr, "drop row %d: unrecognized day %q\n", row.Index, rec.Day())
			misses = append(misses, storage.MissParams{
				RunID:     runID,
				RowIndex:  row.Index,
				Extractor: ex.Name(),
				Line:      row.Line(),
				Reason:    "unrecognized day",
			})
			continue
		}

		ct.Parsed++
		records = append(records, recordParams(runID, row, rec, len(week.Day(rec.Day()))-1))
	}
	ct.Dropped = week.Dropped()

	return week, records, misses, ct
}

// recordParams flattens a record into its storage row. The type switch
// mirrors the registered extractors; a new record shape must be added
// here to be indexed on its own fields.
func recordParams(runID string, row sheet.Row, rec registry.Record, position int) storage.RecordParams {
	p := storage.RecordParams{
		RunID:    runID,
		RowIndex: row.Index,
		Position: position,
		Day:      rec.Day(),
		Kind:     rec.Kind(),
		Record:   rec,
	}
	switch r := rec.(type) {
	case *columns.Record:
		p.Customer = r.Customer
		p.Reference = r.Reference
		p.Arrival = r.Arrival
		p.Departure = r.Departure
	case *freetext.Record:
		p.CustomerReference = r.CustomerReference
		p.Arrival = strOrEmpty(r.Arrival)
		p.Departure = strOrEmpty(r.Departure)
	}
	return p
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// persistRun records the run and its rows; failures warn but never fail
// the command once the output document is written.
func persistRun(ctx context.Context, stores *storage.Stores, run storage.Run, fetchedAt time.Time, records []storage.RecordParams, misses []storage.MissParams) {
	if err := stores.InsertRun(run); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: record run: %v\n", err)
		return
	}
	if err := stores.InsertRecords(ctx, fetchedAt, records); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: store records: %v\n", err)
	}
	if err := stores.InsertMisses(misses); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: store misses: %v\n", err)
	}
	if err := stores.UpsertCurrent(ctx, records); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: refresh current state: %v\n", err)
	}
}

// publishWeek pushes the grouped schedule to NATS; failures warn only.
func publishWeek(url string, week *schedule.Week) {
	pub, err := publish.Connect(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: connect nats: %v\n", err)
		return
	}
	defer pub.Close()

	if err := pub.PublishWeek(week); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: publish schedule: %v\n", err)
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
