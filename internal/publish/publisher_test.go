package publish

import (
	"testing"

	"shipment_parser/internal/schedule"
)

func TestSubjectForDay(t *testing.T) {
	tests := []struct {
		day  string
		want string
	}{
		{"Monday", "shipments.schedule.monday"},
		{"Sunday", "shipments.schedule.sunday"},
	}

	for _, tt := range tests {
		if got := SubjectForDay(tt.day); got != tt.want {
			t.Errorf("SubjectForDay(%q) = %q, want %q", tt.day, got, tt.want)
		}
	}

	// Every bucket key yields a distinct subject under the root.
	seen := make(map[string]bool)
	for _, day := range schedule.Weekdays {
		subj := SubjectForDay(day)
		if seen[subj] {
			t.Errorf("duplicate subject %q", subj)
		}
		seen[subj] = true
	}
}

func TestConnect_BadURL(t *testing.T) {
	if _, err := Connect("nats://127.0.0.1:1"); err == nil {
		t.Error("expected connect error for unreachable server")
	}
}
