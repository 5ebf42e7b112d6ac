// Package review provides a web UI for reviewing and annotating discarded rows.
package review

import (
	"embed"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"strconv"
	"strings"

	"shipment_parser/internal/storage"
)

//go:embed static/*
var staticFiles embed.FS

// Server provides the review web UI.
type Server struct {
	db     *storage.DB
	port   int
	filter string // Optional extractor filter
}

// NewServer creates a new review server.
func NewServer(db *storage.DB, port int, filter string) *Server {
	return &Server{
		db:     db,
		port:   port,
		filter: filter,
	}
}

// Run starts the HTTP server.
func (s *Server) Run() error {
	mux := http.NewServeMux()

	// API routes.
	mux.HandleFunc("/api/misses", s.handleMisses)
	mux.HandleFunc("/api/misses/", s.handleMiss) // /api/misses/{id}
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/reasons", s.handleReasons)
	mux.HandleFunc("/api/export/json", s.handleExportJSON)
	mux.HandleFunc("/api/export/csv", s.handleExportCSV)

	// Static files.
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return fmt.Errorf("embed static files: %w", err)
	}
	mux.Handle("/", http.FileServer(http.FS(staticFS)))

	addr := fmt.Sprintf(":%d", s.port)
	log.Printf("Review UI starting at http://localhost%s", addr)
	if s.filter != "" {
		log.Printf("Filtering to extractor: %s", s.filter)
	}

	return http.ListenAndServe(addr, mux)
}

// APIMiss is the JSON representation of a discarded row.
type APIMiss struct {
	ID        int64  `json:"id"`
	CreatedAt string `json:"created_at"`
	RunID     string `json:"run_id"`
	RowIndex  int    `json:"row_index"`
	Extractor string `json:"extractor"`
	Line      string `json:"line"`
	Reason    string `json:"reason"`
	Reviewed  bool   `json:"reviewed"`
	Note      string `json:"note"`
}

func missToAPI(m *storage.Miss) APIMiss {
	return APIMiss{
		ID:        m.ID,
		CreatedAt: m.CreatedAt.Format("2006-01-02 15:04:05"),
		RunID:     m.RunID,
		RowIndex:  m.RowIndex,
		Extractor: m.Extractor,
		Line:      m.Line,
		Reason:    m.Reason,
		Reviewed:  m.Reviewed,
		Note:      m.Note,
	}
}

func (s *Server) handleMisses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Parse query parameters.
	q := r.URL.Query()
	params := storage.MissQueryParams{
		RunID:      q.Get("run"),
		Extractor:  q.Get("extractor"),
		Reason:     q.Get("reason"),
		Unreviewed: q.Get("unreviewed") == "true",
		FullText:   q.Get("search"),
	}

	// Apply server-level filter.
	if s.filter != "" && params.Extractor == "" {
		params.Extractor = s.filter
	}

	// Pagination.
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
		params.Limit = limit
	} else {
		params.Limit = 50
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil {
		params.Offset = offset
	}

	misses, err := s.db.QueryMisses(params)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Convert to API format.
	var result []APIMiss
	for i := range misses {
		result = append(result, missToAPI(&misses[i]))
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

func (s *Server) handleMiss(w http.ResponseWriter, r *http.Request) {
	// Extract ID from path: /api/misses/{id}
	path := strings.TrimPrefix(r.URL.Path, "/api/misses/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Missing miss ID", http.StatusBadRequest)
		return
	}

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		http.Error(w, "Invalid miss ID", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.getMiss(w, id)
	case http.MethodPost, http.MethodPatch:
		// Check for sub-action.
		if len(parts) > 1 {
			switch parts[1] {
			case "reviewed":
				s.setReviewed(w, r, id)
			case "note":
				s.setNote(w, r, id)
			default:
				http.Error(w, "Unknown action", http.StatusBadRequest)
			}
		} else {
			http.Error(w, "No action specified", http.StatusBadRequest)
		}
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) getMiss(w http.ResponseWriter, id int64) {
	miss, err := s.db.GetMiss(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if miss == nil {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(missToAPI(miss))
}

func (s *Server) setReviewed(w http.ResponseWriter, r *http.Request, id int64) {
	var req struct {
		Reviewed bool `json:"reviewed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.db.SetReviewed(id, req.Reviewed); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

func (s *Server) setNote(w http.ResponseWriter, r *http.Request, id int64) {
	var req struct {
		Note string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.db.SetNote(id, req.Note); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats, err := s.db.GetStats()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats)
}

func (s *Server) handleReasons(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	reasons, err := s.db.Distinct("reason")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(reasons)
}

// MissExport represents a discarded row for export.
type MissExport struct {
	ID        int64  `json:"id"`
	RunID     string `json:"run_id"`
	RowIndex  int    `json:"row_index"`
	Extractor string `json:"extractor"`
	Line      string `json:"line"`
	Reason    string `json:"reason"`
	Note      string `json:"note,omitempty"`
}

func (s *Server) exportMisses(r *http.Request) ([]storage.Miss, error) {
	params := storage.MissQueryParams{
		Unreviewed: r.URL.Query().Get("unreviewed") == "true",
		Limit:      100000,
	}
	if s.filter != "" {
		params.Extractor = s.filter
	}
	return s.db.QueryMisses(params)
}

func (s *Server) handleExportJSON(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	misses, err := s.exportMisses(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var exports []MissExport
	for _, m := range misses {
		exports = append(exports, MissExport{
			ID:        m.ID,
			RunID:     m.RunID,
			RowIndex:  m.RowIndex,
			Extractor: m.Extractor,
			Line:      m.Line,
			Reason:    m.Reason,
			Note:      m.Note,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", "attachment; filename=discarded_rows.json")
	_ = json.NewEncoder(w).Encode(exports)
}

// handleExportCSV writes discarded rows as CSV, one row per miss, for
// fixing up the source spreadsheet offline.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	misses, err := s.exportMisses(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=discarded_rows.csv")

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"id", "run_id", "row_index", "extractor", "line", "reason", "reviewed", "note"})
	for _, m := range misses {
		reviewed := "no"
		if m.Reviewed {
			reviewed = "yes"
		}
		_ = cw.Write([]string{
			strconv.FormatInt(m.ID, 10),
			m.RunID,
			strconv.Itoa(m.RowIndex),
			m.Extractor,
			m.Line,
			m.Reason,
			reviewed,
			m.Note,
		})
	}
	cw.Flush()
}
