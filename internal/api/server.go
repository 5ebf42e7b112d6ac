// Package api provides the read-only REST API over stored schedules,
// runs and discarded rows.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"shipment_parser/internal/output"
	"shipment_parser/internal/schedule"
	"shipment_parser/internal/storage"
)

// Server serves the schedule API from the local run store, optionally
// backed by the Postgres current-state table and the output file.
type Server struct {
	local       *storage.DB
	pg          *storage.PostgresDB
	dataPath    string
	port        int
	authEnabled bool
	apiKeys     map[string]bool // Simple API key auth (when enabled).
}

// Config holds configuration for the schedule API server.
type Config struct {
	Port        int
	DataPath    string // Schedule JSON path; served verbatim when set.
	AuthEnabled bool
	APIKeys     []string // List of valid API keys.
}

// NewServer creates a new schedule API server. The Postgres store may
// be nil; the per-shipment endpoint then reports it as unconfigured.
func NewServer(local *storage.DB, pg *storage.PostgresDB, cfg Config) *Server {
	keys := make(map[string]bool)
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys[k] = true
		}
	}

	return &Server{
		local:       local,
		pg:          pg,
		dataPath:    cfg.DataPath,
		port:        cfg.Port,
		authEnabled: cfg.AuthEnabled,
		apiKeys:     keys,
	}
}

// Run starts the HTTP server.
func (s *Server) Run() error {
	r := chi.NewRouter()

	// Standard middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))

	// CORS for browser access.
	r.Use(corsMiddleware)

	// Optional authentication.
	if s.authEnabled {
		r.Use(s.authMiddleware)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/schedule", s.handleSchedule)
		r.Get("/schedule/{day}", s.handleDay)
		r.Get("/runs", s.handleRuns)
		r.Get("/runs/{id}", s.handleRun)
		r.Get("/runs/{id}/records", s.handleRunRecords)
		r.Get("/misses", s.handleMisses)
		r.Get("/shipments/{key}", s.handleShipment)
	})

	addr := ":" + itoa(s.port)
	log.Printf("Schedule API starting at http://localhost%s", addr)
	if s.authEnabled {
		log.Printf("Authentication: ENABLED (API key required)")
	} else {
		log.Printf("Authentication: DISABLED (open access)")
	}

	return http.ListenAndServe(addr, r)
}

// Router returns the configured chi router for embedding in other servers.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	// Optional authentication.
	if s.authEnabled {
		r.Use(s.authMiddleware)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/schedule", s.handleSchedule)
	r.Get("/schedule/{day}", s.handleDay)
	r.Get("/runs", s.handleRuns)
	r.Get("/runs/{id}", s.handleRun)
	r.Get("/runs/{id}/records", s.handleRunRecords)
	r.Get("/misses", s.handleMisses)
	r.Get("/shipments/{key}", s.handleShipment)

	return r
}

// corsMiddleware adds CORS headers for browser access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authMiddleware validates API key authentication.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check X-API-Key header first.
		apiKey := r.Header.Get("X-API-Key")

		// Fall back to Authorization: Bearer <key>.
		if apiKey == "" {
			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		// Fall back to query parameter (for simple testing).
		if apiKey == "" {
			apiKey = r.URL.Query().Get("api_key")
		}

		if apiKey == "" {
			writeError(w, http.StatusUnauthorized, "API key required")
			return
		}

		if !s.apiKeys[apiKey] {
			writeError(w, http.StatusForbidden, "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// rawRecord replays a stored record's canonical JSON through the week
// marshaller, so the rebuilt document matches what the run wrote.
type rawRecord struct {
	day  string
	data json.RawMessage
}

func (r rawRecord) Kind() string                 { return "stored" }
func (r rawRecord) Day() string                  { return r.day }
func (r rawRecord) MarshalJSON() ([]byte, error) { return r.data, nil }

// latestWeek rebuilds the schedule from the most recent run's stored
// records. Returns nil with no error when the store has no runs yet.
func (s *Server) latestWeek() (*schedule.Week, error) {
	run, err := s.local.LatestRun()
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, nil
	}

	records, err := s.local.RecordsForRun(run.ID)
	if err != nil {
		return nil, err
	}

	week := schedule.NewWeek()
	for _, rec := range records {
		week.Add(rawRecord{day: rec.Day, data: json.RawMessage(rec.RecordJSON)})
	}
	return week, nil
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	// Prefer the file on disk: it is the artifact of record.
	if s.dataPath != "" {
		doc, err := os.ReadFile(s.dataPath)
		if err != nil {
			writeError(w, http.StatusNotFound, "Schedule file not available")
			return
		}
		writeRawJSON(w, http.StatusOK, doc)
		return
	}

	week, err := s.latestWeek()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if week == nil {
		writeError(w, http.StatusNotFound, "No runs recorded yet")
		return
	}

	doc, err := output.Marshal(week)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeRawJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	day, ok := schedule.Canonical(chi.URLParam(r, "day"))
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown weekday")
		return
	}

	if s.dataPath != "" {
		doc, err := os.ReadFile(s.dataPath)
		if err != nil {
			writeError(w, http.StatusNotFound, "Schedule file not available")
			return
		}
		var buckets map[string]json.RawMessage
		if err := json.Unmarshal(doc, &buckets); err != nil {
			writeError(w, http.StatusInternalServerError, "Schedule file is not valid JSON")
			return
		}
		bucket, ok := buckets[day]
		if !ok {
			bucket = json.RawMessage("[]")
		}
		writeRawJSON(w, http.StatusOK, bucket)
		return
	}

	week, err := s.latestWeek()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if week == nil {
		writeError(w, http.StatusNotFound, "No runs recorded yet")
		return
	}

	bucket, err := json.Marshal(week.Day(day))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeRawJSON(w, http.StatusOK, bucket)
}

// RunResponse is the JSON representation of a recorded run.
type RunResponse struct {
	ID          string `json:"id"`
	StartedAt   string `json:"started_at"`
	FinishedAt  string `json:"finished_at,omitempty"`
	Source      string `json:"source"`
	Worksheet   string `json:"worksheet"`
	Extractor   string `json:"extractor"`
	RowsFetched int    `json:"rows_fetched"`
	RowsParsed  int    `json:"rows_parsed"`
	RowsSkipped int    `json:"rows_skipped"`
	RowsDropped int    `json:"rows_dropped"`
	OutputPath  string `json:"output_path,omitempty"`
	OutputBytes int64  `json:"output_bytes"`
}

func runToResponse(r *storage.Run) RunResponse {
	resp := RunResponse{
		ID:          r.ID,
		StartedAt:   r.StartedAt.UTC().Format(time.RFC3339),
		Source:      r.Source,
		Worksheet:   r.Worksheet,
		Extractor:   r.Extractor,
		RowsFetched: r.RowsFetched,
		RowsParsed:  r.RowsParsed,
		RowsSkipped: r.RowsSkipped,
		RowsDropped: r.RowsDropped,
		OutputPath:  r.OutputPath,
		OutputBytes: r.OutputBytes,
	}
	if !r.FinishedAt.IsZero() {
		resp.FinishedAt = r.FinishedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	runs, err := s.local.Runs(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := make([]RunResponse, 0, len(runs))
	for i := range runs {
		resp = append(resp, runToResponse(&runs[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.local.GetRun(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "Run not found")
		return
	}
	writeJSON(w, http.StatusOK, runToResponse(run))
}

// RecordResponse is the JSON representation of one stored record.
type RecordResponse struct {
	RowIndex int             `json:"row_index"`
	Position int             `json:"position"`
	Day      string          `json:"day"`
	Kind     string          `json:"kind"`
	Record   json.RawMessage `json:"record"`
}

func (s *Server) handleRunRecords(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := s.local.GetRun(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "Run not found")
		return
	}

	records, err := s.local.RecordsForRun(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := make([]RecordResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, RecordResponse{
			RowIndex: rec.RowIndex,
			Position: rec.Position,
			Day:      rec.Day,
			Kind:     rec.Kind,
			Record:   json.RawMessage(rec.RecordJSON),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// MissResponse is the JSON representation of one discarded row.
type MissResponse struct {
	ID        int64  `json:"id"`
	RunID     string `json:"run_id"`
	RowIndex  int    `json:"row_index"`
	Extractor string `json:"extractor"`
	Line      string `json:"line"`
	Reason    string `json:"reason"`
	Reviewed  bool   `json:"reviewed"`
	Note      string `json:"note,omitempty"`
}

func (s *Server) handleMisses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := storage.MissQueryParams{
		RunID:      q.Get("run"),
		Extractor:  q.Get("extractor"),
		Reason:     q.Get("reason"),
		Unreviewed: q.Get("unreviewed") == "true",
		FullText:   q.Get("search"),
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
		params.Limit = limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil {
		params.Offset = offset
	}

	misses, err := s.local.QueryMisses(params)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := make([]MissResponse, 0, len(misses))
	for _, m := range misses {
		resp = append(resp, MissResponse{
			ID:        m.ID,
			RunID:     m.RunID,
			RowIndex:  m.RowIndex,
			Extractor: m.Extractor,
			Line:      m.Line,
			Reason:    m.Reason,
			Reviewed:  m.Reviewed,
			Note:      m.Note,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ShipmentResponse is the JSON representation of one current shipment.
type ShipmentResponse struct {
	RefKey            string `json:"ref_key"`
	Kind              string `json:"kind"`
	Customer          string `json:"customer,omitempty"`
	Reference         string `json:"reference,omitempty"`
	CustomerReference string `json:"customer_reference,omitempty"`
	Day               string `json:"day"`
	Arrival           string `json:"arrival,omitempty"`
	Departure         string `json:"departure,omitempty"`
	FirstSeen         string `json:"first_seen"`
	LastSeen          string `json:"last_seen"`
	RunCount          int    `json:"run_count"`
	LastRunID         string `json:"last_run_id,omitempty"`
}

func shipmentToResponse(s *storage.Shipment) ShipmentResponse {
	return ShipmentResponse{
		RefKey:            s.RefKey,
		Kind:              s.Kind,
		Customer:          s.Customer,
		Reference:         s.Reference,
		CustomerReference: s.CustomerReference,
		Day:               s.Day,
		Arrival:           s.Arrival,
		Departure:         s.Departure,
		FirstSeen:         s.FirstSeen.UTC().Format(time.RFC3339),
		LastSeen:          s.LastSeen.UTC().Format(time.RFC3339),
		RunCount:          s.RunCount,
		LastRunID:         s.LastRunID,
	}
}

func (s *Server) handleShipment(w http.ResponseWriter, r *http.Request) {
	if s.pg == nil {
		writeError(w, http.StatusServiceUnavailable, "Current-state store not configured")
		return
	}

	key := chi.URLParam(r, "key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "Shipment key is required")
		return
	}

	shipment, err := s.pg.GetShipment(context.Background(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if shipment == nil {
		writeError(w, http.StatusNotFound, "No current state for shipment")
		return
	}
	writeJSON(w, http.StatusOK, shipmentToResponse(shipment))
}

// Helper functions.

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeRawJSON(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
