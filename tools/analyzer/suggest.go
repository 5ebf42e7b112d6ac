// Pattern suggestion logic for generating regex candidates from miss
// line clusters.
package main

import (
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// PatternSuggestion represents a suggested regex pattern for a cluster
// of similarly shaped miss lines.
type PatternSuggestion struct {
	ClusterID       int      `json:"cluster_id"`
	LineCount       int      `json:"line_count"`
	SuggestedRegex  string   `json:"suggested_regex"`
	NamedGroups     []string `json:"named_groups"`
	Examples        []string `json:"examples"`
	ExampleIDs      []int64  `json:"example_ids"`
	TemplatePattern string   `json:"template_pattern"`
}

// rowInfo holds miss ID and line for clustering.
type rowInfo struct {
	id   int64
	line string
}

// Tokens the template normalizer recognizes in shipment rows.
var tokenPatterns = []struct {
	Name    string
	Pattern *regexp.Regexp
}{
	{"<DATE>", regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`)},
	{"<DATE2Y>", regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{2}$`)},
	{"<ISODATE>", regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)},
	{"<DAY>", regexp.MustCompile(`^(MONDAY|TUESDAY|WEDNESDAY|THURSDAY|FRIDAY|SATURDAY|SUNDAY)$`)},
	{"<DAYABBR>", regexp.MustCompile(`^(MON|TUE|TUES|WED|WEDS|THU|THUR|THURS|FRI|SAT|SUN)$`)},
	{"<TBD>", regexp.MustCompile(`^TBD$`)},
	{"<REF>", regexp.MustCompile(`^[A-Z]{2,}-?\d+$`)},
	{"<NUM>", regexp.MustCompile(`^\d+$`)},
}

// Short structural words kept literal in templates.
var literalKeywords = map[string]bool{
	"REF": true, "PO": true, "ORDER": true, "NO": true, "NR": true,
	"-": true, "/": true, "&": true, "AND": true,
}

// SuggestPatterns clusters miss lines by template shape and proposes a
// regex per cluster. These are starting points for extending the
// free-text extractor, not drop-in rules.
func SuggestPatterns(db *sql.DB, extractor string, minClusterSize, maxSuggestions int) []PatternSuggestion {
	query := "SELECT id, line FROM misses"
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

	// Group by template.
	clusters := make(map[string][]rowInfo)
	for rows.Next() {
		var id int64
		var line string
		_ = rows.Scan(&id, &line)
		if strings.TrimSpace(line) == "" {
			continue
		}

		template := normaliseToTemplate(line)
		clusters[template] = append(clusters[template], rowInfo{id, line})
	}

	// Sort clusters by size.
	type clusterInfo struct {
		template string
		lines    []rowInfo
	}
	var sortedClusters []clusterInfo
	for tmpl, lines := range clusters {
		if len(lines) >= minClusterSize {
			sortedClusters = append(sortedClusters, clusterInfo{tmpl, lines})
		}
	}
	sort.Slice(sortedClusters, func(i, j int) bool {
		return len(sortedClusters[i].lines) > len(sortedClusters[j].lines)
	})

	if len(sortedClusters) > maxSuggestions {
		sortedClusters = sortedClusters[:maxSuggestions]
	}

	// Generate suggestions for each cluster.
	var suggestions []PatternSuggestion
	for i, cluster := range sortedClusters {
		suggestions = append(suggestions, generateSuggestion(cluster.lines, cluster.template, i+1))
	}
	return suggestions
}

func generateSuggestion(lines []rowInfo, template string, clusterID int) PatternSuggestion {
	suggestion := PatternSuggestion{
		ClusterID:       clusterID,
		LineCount:       len(lines),
		TemplatePattern: template,
	}

	// Keep up to 3 examples.
	for i, row := range lines {
		if i >= 3 {
			break
		}
		suggestion.Examples = append(suggestion.Examples, row.line)
		suggestion.ExampleIDs = append(suggestion.ExampleIDs, row.id)
	}

	suggestion.SuggestedRegex, suggestion.NamedGroups = generateRegexFromTemplate(template)
	return suggestion
}

// normaliseToTemplate reduces a miss line to its token shape:
// "ACME - REF 10023 8/21/2025 TBD Frdiay" -> "<WORD> - REF <NUM> <DATE> TBD <WORD>".
func normaliseToTemplate(line string) string {
	tokens := strings.Fields(strings.ToUpper(line))
	normalised := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		normalised = append(normalised, classifyToken(tok))
	}
	return strings.Join(normalised, " ")
}

func classifyToken(tok string) string {
	if literalKeywords[tok] {
		return tok
	}
	for _, tp := range tokenPatterns {
		if tp.Pattern.MatchString(tok) {
			return tp.Name
		}
	}
	if len(tok) <= 2 {
		return tok
	}
	return "<WORD>"
}

// generateRegexFromTemplate maps template tokens to regex fragments.
// The first date becomes the arrival group, the second (or a TBD) the
// departure; day-like trailing tokens become the day group.
func generateRegexFromTemplate(template string) (string, []string) {
	var regexParts []string
	var namedGroups []string

	dateNames := []string{"arrival", "departure"}
	dateIdx := 0

	group := func(name, body string) string {
		namedGroups = append(namedGroups, name)
		return fmt.Sprintf(`(?P<%s>%s)`, name, body)
	}

	for _, tok := range strings.Fields(template) {
		switch tok {
		case "<DATE>":
			body := `\d{1,2}/\d{1,2}/\d{4}`
			if dateIdx < len(dateNames) {
				regexParts = append(regexParts, group(dateNames[dateIdx], body))
				dateIdx++
			} else {
				regexParts = append(regexParts, body)
			}
		case "<DATE2Y>":
			body := `\d{1,2}/\d{1,2}/\d{2}`
			if dateIdx < len(dateNames) {
				regexParts = append(regexParts, group(dateNames[dateIdx], body))
				dateIdx++
			} else {
				regexParts = append(regexParts, body)
			}
		case "<ISODATE>":
			body := `\d{4}-\d{2}-\d{2}`
			if dateIdx < len(dateNames) {
				regexParts = append(regexParts, group(dateNames[dateIdx], body))
				dateIdx++
			} else {
				regexParts = append(regexParts, body)
			}
		case "<TBD>":
			if dateIdx == 1 {
				// A TBD after one date stands in for the departure.
				regexParts = append(regexParts, group("departure", "TBD"))
				dateIdx++
			} else {
				regexParts = append(regexParts, "TBD")
			}
		case "<DAY>":
			regexParts = append(regexParts, group("day", `monday|tuesday|wednesday|thursday|friday|saturday|sunday`))
		case "<DAYABBR>":
			regexParts = append(regexParts, group("day", `mon|tues?|weds?|thur?s?|fri|sat|sun`))
		case "<REF>":
			regexParts = append(regexParts, group("reference", `[A-Z]+-?\d+`))
		case "<NUM>":
			regexParts = append(regexParts, `\d+`)
		case "<WORD>":
			regexParts = append(regexParts, `\S+`)
		default:
			regexParts = append(regexParts, regexp.QuoteMeta(tok))
		}
	}

	regex := `(?i)` + strings.Join(regexParts, `\s+`)
	return regex, namedGroups
}

// TestPattern tests a regex pattern against the stored miss lines and
// returns match statistics.
func TestPattern(db *sql.DB, pattern, extractor string) (matches, total int, sampleMatches, sampleNonMatches []int64, err error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, 0, nil, nil, fmt.Errorf("compile pattern: %w", err)
	}

	query := "SELECT id, line FROM misses"
	args := []any{}
	if extractor != "" {
		query += " WHERE extractor = ?"
		args = append(args, extractor)
	}
	query += " LIMIT 2000"

	rows, err := db.Query(query, args...)
	if err != nil {
		return 0, 0, nil, nil, fmt.Errorf("query misses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var line string
		_ = rows.Scan(&id, &line)
		total++

		if re.MatchString(line) {
			matches++
			if len(sampleMatches) < 5 {
				sampleMatches = append(sampleMatches, id)
			}
		} else {
			if len(sampleNonMatches) < 5 {
				sampleNonMatches = append(sampleNonMatches, id)
			}
		}
	}
	return matches, total, sampleMatches, sampleNonMatches, nil
}

// PrintSuggestions outputs pattern suggestions in a readable format.
func PrintSuggestions(db *sql.DB, suggestions []PatternSuggestion, extractor string) {
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println("                    PATTERN SUGGESTIONS")
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println()

	for _, s := range suggestions {
		fmt.Printf("───────────────────────────────────────────────────────────────\n")
		fmt.Printf("CLUSTER %d: %d lines\n", s.ClusterID, s.LineCount)
		fmt.Printf("───────────────────────────────────────────────────────────────\n")
		fmt.Println()

		fmt.Println("Template:")
		fmt.Printf("  %s\n", s.TemplatePattern)
		fmt.Println()

		fmt.Println("Suggested Regex:")
		printFormattedRegex(s.SuggestedRegex)
		fmt.Println()

		if len(s.NamedGroups) > 0 {
			fmt.Printf("Capture Groups: %s\n", strings.Join(s.NamedGroups, ", "))
			fmt.Println()
		}

		fmt.Println("Examples:")
		for i, ex := range s.Examples {
			fmt.Printf("  [ID %d] %s\n", s.ExampleIDs[i], truncate(ex, 200))
		}
		fmt.Println()

		// Test the pattern against the full corpus.
		if s.SuggestedRegex != "" {
			matches, total, _, _, err := TestPattern(db, s.SuggestedRegex, extractor)
			if err == nil && total > 0 {
				fmt.Printf("Test Results: %d/%d miss lines match (%.1f%%)\n",
					matches, total, float64(matches)/float64(total)*100)
			}
		}
		fmt.Println()
	}
}

func printFormattedRegex(regex string) {
	if len(regex) <= 80 {
		fmt.Printf("  %s\n", regex)
		return
	}

	// Break long patterns at whitespace matchers.
	parts := strings.Split(regex, `\s+`)
	var line strings.Builder
	line.WriteString("  ")
	for i, part := range parts {
		if i > 0 {
			if line.Len()+len(part)+6 > 80 {
				fmt.Println(line.String() + `\s+`)
				line.Reset()
				line.WriteString("    ")
			} else {
				line.WriteString(`\s+`)
			}
		}
		line.WriteString(part)
	}
	if strings.TrimSpace(line.String()) != "" {
		fmt.Println(line.String())
	}
}
