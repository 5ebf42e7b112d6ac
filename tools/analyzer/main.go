// Package main provides a corpus analyzer for discarded spreadsheet rows.
// It analyzes miss distribution, near-miss day tokens, and date formats.
package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	dbPath := flag.String("db", "data/shipments.db", "SQLite run store")
	outputFormat := flag.String("format", "text", "Output format: text, json")
	topN := flag.Int("top", 20, "Show top N items in each category")
	extractor := flag.String("extractor", "", "Analyze misses from one extractor only")
	testPattern := flag.String("test", "", "Test a regex pattern against the stored miss lines")
	suggest := flag.Bool("suggest", false, "Generate pattern suggestions from miss line clusters")
	minCluster := flag.Int("min-cluster", 3, "Minimum cluster size for suggestions")

	flag.Parse()

	db, err := sql.Open("sqlite3", *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	// Pattern testing mode.
	if *testPattern != "" {
		matches, total, matchIDs, nonMatchIDs, err := TestPattern(db, *testPattern, *extractor)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Pattern: %s\n", *testPattern)
		if *extractor != "" {
			fmt.Printf("Extractor: %s\n", *extractor)
		}
		pct := 0.0
		if total > 0 {
			pct = float64(matches) / float64(total) * 100
		}
		fmt.Printf("Result: %d/%d miss lines match (%.1f%%)\n\n", matches, total, pct)

		if len(matchIDs) > 0 {
			fmt.Printf("Sample matches: %v\n", matchIDs)
		}
		if len(nonMatchIDs) > 0 {
			fmt.Printf("Sample non-matches: %v\n", nonMatchIDs)
		}
		return
	}

	// Suggestion mode.
	if *suggest {
		fmt.Fprintf(os.Stderr, "Generating pattern suggestions from miss lines...\n")
		suggestions := SuggestPatterns(db, *extractor, *minCluster, *topN)

		if *outputFormat == "json" {
			data, _ := json.MarshalIndent(suggestions, "", "  ")
			fmt.Println(string(data))
		} else {
			PrintSuggestions(db, suggestions, *extractor)
		}
		return
	}

	report := &AnalysisReport{}

	// Run all analyses.
	fmt.Fprintf(os.Stderr, "Analyzing miss corpus...\n")

	report.Summary = analyzeSummary(db)
	fmt.Fprintf(os.Stderr, "  - Summary complete\n")

	report.ReasonDistribution = analyzeReasons(db, *extractor, *topN)
	fmt.Fprintf(os.Stderr, "  - Reason distribution complete\n")

	report.ExtractorCoverage = analyzeExtractors(db)
	fmt.Fprintf(os.Stderr, "  - Extractor coverage complete\n")

	report.DayTokens = analyzeDayTokens(db, *extractor, *topN)
	fmt.Fprintf(os.Stderr, "  - Day token analysis complete\n")

	report.DateFormats = analyzeDateFormats(db, *extractor)
	fmt.Fprintf(os.Stderr, "  - Date format analysis complete\n")

	// Output.
	if *outputFormat == "json" {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(data))
	} else {
		printTextReport(report)
	}
}

// AnalysisReport contains all analysis results.
type AnalysisReport struct {
	Summary            SummaryStats      `json:"summary"`
	ReasonDistribution []ReasonCount     `json:"reason_distribution"`
	ExtractorCoverage  []ExtractorStats  `json:"extractor_coverage"`
	DayTokens          []DayTokenCount   `json:"day_tokens"`
	DateFormats        []DateFormatCount `json:"date_formats"`
}

type SummaryStats struct {
	TotalRuns     int     `json:"total_runs"`
	TotalRecords  int     `json:"total_records"`
	TotalMisses   int     `json:"total_misses"`
	MissRate      float64 `json:"miss_rate"`
	Reviewed      int     `json:"reviewed"`
	Unreviewed    int     `json:"unreviewed"`
	Annotated     int     `json:"annotated"`
	UniqueReasons int     `json:"unique_reasons"`
}

type ReasonCount struct {
	Reason string  `json:"reason"`
	Count  int     `json:"count"`
	Pct    float64 `json:"percentage"`
}

type ExtractorStats struct {
	Extractor string  `json:"extractor"`
	Records   int     `json:"records"`
	Misses    int     `json:"misses"`
	MissRate  float64 `json:"miss_rate"`
}

// DayTokenCount describes a trailing line token that nearly names a
// weekday: an abbreviation or misspelling the extractor rejected.
type DayTokenCount struct {
	Token   string `json:"token"`
	Nearest string `json:"nearest_day"`
	Kind    string `json:"kind"` // abbreviation, misspelling
	Count   int    `json:"count"`
}

type DateFormatCount struct {
	Format string  `json:"format"`
	Lines  int     `json:"lines"`
	Pct    float64 `json:"percentage"`
}

func analyzeSummary(db *sql.DB) SummaryStats {
	var stats SummaryStats

	db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&stats.TotalRuns)
	db.QueryRow("SELECT COUNT(*) FROM records").Scan(&stats.TotalRecords)
	db.QueryRow("SELECT COUNT(*) FROM misses").Scan(&stats.TotalMisses)
	if stats.TotalRecords+stats.TotalMisses > 0 {
		stats.MissRate = float64(stats.TotalMisses) / float64(stats.TotalRecords+stats.TotalMisses) * 100
	}
	db.QueryRow("SELECT COUNT(*) FROM misses WHERE reviewed = 1").Scan(&stats.Reviewed)
	stats.Unreviewed = stats.TotalMisses - stats.Reviewed
	db.QueryRow("SELECT COUNT(*) FROM misses WHERE note IS NOT NULL AND note != ''").Scan(&stats.Annotated)
	db.QueryRow("SELECT COUNT(DISTINCT reason) FROM misses").Scan(&stats.UniqueReasons)

	return stats
}

func analyzeReasons(db *sql.DB, extractor string, topN int) []ReasonCount {
	query := "SELECT reason, COUNT(*) as cnt FROM misses"
	args := []any{}
	if extractor != "" {
		query += " WHERE extractor = ?"
		args = append(args, extractor)
	}
	query += " GROUP BY reason ORDER BY cnt DESC LIMIT ?"
	args = append(args, topN)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var total int
	if extractor != "" {
		db.QueryRow("SELECT COUNT(*) FROM misses WHERE extractor = ?", extractor).Scan(&total)
	} else {
		db.QueryRow("SELECT COUNT(*) FROM misses").Scan(&total)
	}

	var results []ReasonCount
	for rows.Next() {
		var rc ReasonCount
		rows.Scan(&rc.Reason, &rc.Count)
		if total > 0 {
			rc.Pct = float64(rc.Count) / float64(total) * 100
		}
		results = append(results, rc)
	}
	return results
}

func analyzeExtractors(db *sql.DB) []ExtractorStats {
	recordCounts := make(map[string]int)
	rows, err := db.Query("SELECT kind, COUNT(*) FROM records GROUP BY kind")
	if err == nil {
		for rows.Next() {
			var kind string
			var cnt int
			rows.Scan(&kind, &cnt)
			recordCounts[kind] = cnt
		}
		rows.Close()
	}

	missCounts := make(map[string]int)
	rows, err = db.Query("SELECT extractor, COUNT(*) FROM misses GROUP BY extractor")
	if err == nil {
		for rows.Next() {
			var ex string
			var cnt int
			rows.Scan(&ex, &cnt)
			missCounts[ex] = cnt
		}
		rows.Close()
	}

	names := make(map[string]bool)
	for n := range recordCounts {
		names[n] = true
	}
	for n := range missCounts {
		names[n] = true
	}

	var results []ExtractorStats
	for n := range names {
		es := ExtractorStats{Extractor: n, Records: recordCounts[n], Misses: missCounts[n]}
		if es.Records+es.Misses > 0 {
			es.MissRate = float64(es.Misses) / float64(es.Records+es.Misses) * 100
		}
		results = append(results, es)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Records+results[i].Misses > results[j].Records+results[j].Misses
	})
	return results
}

// The seven target day names for near-miss classification.
var weekdayNames = []string{
	"MONDAY", "TUESDAY", "WEDNESDAY", "THURSDAY", "FRIDAY", "SATURDAY", "SUNDAY",
}

// analyzeDayTokens inspects the trailing token of every miss line and
// reports tokens that nearly name a weekday. These are the rows a
// slightly looser day pattern would have caught.
func analyzeDayTokens(db *sql.DB, extractor string, topN int) []DayTokenCount {
	query := "SELECT line FROM misses"
	args := []any{}
	if extractor != "" {
		query += " WHERE extractor = ?"
		args = append(args, extractor)
	}
	query += " LIMIT 5000"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil
	}
	defer rows.Close()

	type key struct {
		token   string
		nearest string
		kind    string
	}
	counts := make(map[key]int)

	for rows.Next() {
		var line string
		rows.Scan(&line)

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		token := strings.ToUpper(strings.Trim(fields[len(fields)-1], ".,;:"))
		if token == "" {
			continue
		}

		nearest, kind := classifyDayToken(token)
		if kind == "" {
			continue
		}
		counts[key{token, nearest, kind}]++
	}

	var results []DayTokenCount
	for k, cnt := range counts {
		results = append(results, DayTokenCount{
			Token:   k.token,
			Nearest: k.nearest,
			Kind:    k.kind,
			Count:   cnt,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Count != results[j].Count {
			return results[i].Count > results[j].Count
		}
		return results[i].Token < results[j].Token
	})
	if len(results) > topN {
		results = results[:topN]
	}
	return results
}

// classifyDayToken reports how a token relates to a weekday name:
// a prefix abbreviation ("FRI", "THURS"), or a misspelling within
// edit distance 2 ("WEDNSDAY"). Exact day names are not near-misses;
// a row carrying one was discarded for some other reason.
func classifyDayToken(token string) (nearest, kind string) {
	if len(token) < 3 {
		return "", ""
	}
	for _, day := range weekdayNames {
		if token == day {
			return "", ""
		}
		if len(token) < len(day) && strings.HasPrefix(day, token) {
			return day, "abbreviation"
		}
	}
	best := ""
	bestDist := 3
	for _, day := range weekdayNames {
		if d := editDistance(token, day); d < bestDist {
			best, bestDist = day, d
		}
	}
	if best != "" {
		return best, "misspelling"
	}
	return "", ""
}

// editDistance is the Levenshtein distance between two short strings.
func editDistance(a, b string) int {
	if a == b {
		return 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min3(cur[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// Date shapes beyond the canonical M/D/YYYY. Lines carrying one of
// these were probably readable rows in a format the extractor does not
// accept yet.
var dateFormats = []struct {
	Name    string
	Pattern *regexp.Regexp
}{
	{"M/D/YYYY", regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{4}\b`)},
	{"M/D/YY", regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2}\b`)},
	{"YYYY-MM-DD", regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)},
	{"D-M-YYYY", regexp.MustCompile(`\b\d{1,2}-\d{1,2}-\d{4}\b`)},
	{"D.M.YYYY", regexp.MustCompile(`\b\d{1,2}\.\d{1,2}\.\d{4}\b`)},
	{"Month D", regexp.MustCompile(`(?i)\b(jan(uary)?|feb(ruary)?|mar(ch)?|apr(il)?|may|jun(e)?|jul(y)?|aug(ust)?|sep(t(ember)?)?|oct(ober)?|nov(ember)?|dec(ember)?)\.? +\d{1,2}\b`)},
}

func analyzeDateFormats(db *sql.DB, extractor string) []DateFormatCount {
	query := "SELECT line FROM misses"
	args := []any{}
	if extractor != "" {
		query += " WHERE extractor = ?"
		args = append(args, extractor)
	}
	query += " LIMIT 5000"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil
	}
	defer rows.Close()

	counts := make(map[string]int)
	var total int
	for rows.Next() {
		var line string
		rows.Scan(&line)
		total++
		for _, df := range dateFormats {
			if df.Pattern.MatchString(line) {
				counts[df.Name]++
			}
		}
	}

	var results []DateFormatCount
	for _, df := range dateFormats {
		cnt := counts[df.Name]
		if cnt == 0 {
			continue
		}
		dc := DateFormatCount{Format: df.Name, Lines: cnt}
		if total > 0 {
			dc.Pct = float64(cnt) / float64(total) * 100
		}
		results = append(results, dc)
	}
	return results
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

func printTextReport(report *AnalysisReport) {
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println("                  DISCARDED ROW CORPUS ANALYSIS")
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println()

	// Summary.
	fmt.Println("SUMMARY")
	fmt.Println("───────")
	s := report.Summary
	fmt.Printf("Total Runs:         %d\n", s.TotalRuns)
	fmt.Printf("Parsed Records:     %d\n", s.TotalRecords)
	fmt.Printf("Discarded Rows:     %d (%.1f%% of all rows)\n", s.TotalMisses, s.MissRate)
	fmt.Printf("Reviewed:           %d\n", s.Reviewed)
	fmt.Printf("Unreviewed:         %d\n", s.Unreviewed)
	fmt.Printf("Annotated:          %d\n", s.Annotated)
	fmt.Printf("Unique Reasons:     %d\n", s.UniqueReasons)
	fmt.Println()

	// Reason distribution.
	fmt.Println("REASON DISTRIBUTION (Discards by reason)")
	fmt.Println("───────────────────")
	fmt.Printf("%-28s %10s %8s\n", "Reason", "Count", "Pct")
	for _, rc := range report.ReasonDistribution {
		fmt.Printf("%-28s %10d %7.1f%%\n", truncate(rc.Reason, 28), rc.Count, rc.Pct)
	}
	fmt.Println()

	// Extractor coverage.
	fmt.Println("EXTRACTOR COVERAGE (Rows by extract mode)")
	fmt.Println("──────────────────")
	fmt.Printf("%-12s %10s %10s %10s\n", "Extractor", "Records", "Misses", "Miss rate")
	for _, es := range report.ExtractorCoverage {
		fmt.Printf("%-12s %10d %10d %9.1f%%\n", es.Extractor, es.Records, es.Misses, es.MissRate)
	}
	fmt.Println()

	// Near-miss day tokens.
	fmt.Println("NEAR-MISS DAY TOKENS (Trailing tokens close to a weekday)")
	fmt.Println("────────────────────")
	if len(report.DayTokens) == 0 {
		fmt.Println("(none)")
	} else {
		fmt.Printf("%-14s %-12s %-14s %8s\n", "Token", "Nearest", "Kind", "Count")
		for _, dt := range report.DayTokens {
			fmt.Printf("%-14s %-12s %-14s %8d\n", dt.Token, dt.Nearest, dt.Kind, dt.Count)
		}
	}
	fmt.Println()

	// Date formats.
	fmt.Println("DATE FORMATS (Shapes present in miss lines)")
	fmt.Println("────────────")
	if len(report.DateFormats) == 0 {
		fmt.Println("(none)")
	} else {
		for _, df := range report.DateFormats {
			bar := strings.Repeat("█", int(df.Pct/5))
			fmt.Printf("  %-12s %5d lines %5.1f%% %s\n", df.Format, df.Lines, df.Pct, bar)
		}
	}
}
