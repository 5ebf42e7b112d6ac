// Package schedule groups extracted records into the fixed weekday buckets.
package schedule

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode"

	"shipment_parser/internal/registry"
)

// Weekdays lists the seven bucket keys in output order.
var Weekdays = [7]string{
	"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday",
}

// Capitalize returns s with its first rune upper-cased and the rest
// lower-cased, so case variants of a weekday collapse to one bucket key.
func Capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(strings.ToLower(s))
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// Canonical maps s to its bucket key form and reports whether it names
// one of the seven weekdays.
func Canonical(s string) (string, bool) {
	day := Capitalize(strings.TrimSpace(s))
	for _, d := range Weekdays {
		if d == day {
			return day, true
		}
	}
	return day, false
}

// Week holds one run's records bucketed by weekday. All seven buckets
// always exist; Add preserves input order within each bucket.
type Week struct {
	buckets map[string][]registry.Record
	dropped int
}

// NewWeek returns a Week with all seven buckets initialized empty.
func NewWeek() *Week {
	b := make(map[string][]registry.Record, len(Weekdays))
	for _, d := range Weekdays {
		b[d] = []registry.Record{}
	}
	return &Week{buckets: b}
}

// Group buckets every record into a new Week.
func Group(records []registry.Record) *Week {
	w := NewWeek()
	for _, rec := range records {
		w.Add(rec)
	}
	return w
}

// Add appends rec to the bucket named by its day key. A record carrying
// an unrecognized key is dropped and counted, never an error.
func (w *Week) Add(rec registry.Record) bool {
	day := rec.Day()
	if _, ok := w.buckets[day]; !ok {
		w.dropped++
		return false
	}
	w.buckets[day] = append(w.buckets[day], rec)
	return true
}

// Day returns the records bucketed under day, nil when day is not a
// bucket key.
func (w *Week) Day(day string) []registry.Record {
	return w.buckets[day]
}

// Total returns the number of bucketed records.
func (w *Week) Total() int {
	n := 0
	for _, recs := range w.buckets {
		n += len(recs)
	}
	return n
}

// Dropped returns the number of records dropped for unrecognized day keys.
func (w *Week) Dropped() int {
	return w.dropped
}

// Counts returns the per-day record counts.
func (w *Week) Counts() map[string]int {
	counts := make(map[string]int, len(Weekdays))
	for _, d := range Weekdays {
		counts[d] = len(w.buckets[d])
	}
	return counts
}

// MarshalJSON writes the buckets as a single object with the weekday
// keys in Monday..Sunday order. Empty buckets marshal as [], never null.
func (w *Week) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, day := range Weekdays {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(day)
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(w.buckets[day])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
