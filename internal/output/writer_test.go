package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"shipment_parser/internal/schedule"
)

// testRecord is a minimal record for writer tests.
type testRecord struct {
	day string
	Ref string `json:"ref"`
}

func (r testRecord) Kind() string { return "test" }
func (r testRecord) Day() string  { return r.day }

func TestWrite_CreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "nested", "shipments_by_day.json")

	week := schedule.NewWeek()
	week.Add(testRecord{day: "Monday", Ref: "REF-1"})

	n, err := Write(path, week)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("output file missing: %v", err)
	}
	if n != info.Size() {
		t.Errorf("returned %d bytes, file has %d", n, info.Size())
	}
}

func TestWrite_SevenKeysAlways(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shipments_by_day.json")

	if _, err := Write(path, schedule.NewWeek()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	var decoded map[string][]json.RawMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(decoded) != 7 {
		t.Errorf("output has %d keys, want 7", len(decoded))
	}
	for _, day := range schedule.Weekdays {
		recs, ok := decoded[day]
		if !ok {
			t.Errorf("key %q missing", day)
		}
		if recs == nil {
			t.Errorf("key %q decoded as null, want []", day)
		}
	}

	if !strings.Contains(string(data), `    "Monday": []`) {
		t.Errorf("expected four-space indentation, got:\n%s", data)
	}
}

func TestWrite_OverwritesPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shipments_by_day.json")

	week := schedule.NewWeek()
	week.Add(testRecord{day: "Monday", Ref: "REF-1"})
	week.Add(testRecord{day: "Tuesday", Ref: "REF-2"})
	if _, err := Write(path, week); err != nil {
		t.Fatalf("first write failed: %v", err)
	}

	if _, err := Write(path, schedule.NewWeek()); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if strings.Contains(string(data), "REF-1") {
		t.Errorf("previous contents survived the overwrite:\n%s", data)
	}
}

func TestWrite_ParentNotADirectory(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("fixture write failed: %v", err)
	}

	_, err := Write(filepath.Join(blocker, "shipments_by_day.json"), schedule.NewWeek())
	if err == nil {
		t.Fatal("expected error when the parent path is a regular file")
	}
	if errors.Is(err, ErrMissingAfterWrite) {
		t.Errorf("directory failure reported as a post-write miss: %v", err)
	}
}

func TestWrite_Idempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shipments_by_day.json")

	week := schedule.NewWeek()
	week.Add(testRecord{day: "Wednesday", Ref: "REF-9"})
	week.Add(testRecord{day: "Wednesday", Ref: "REF-10"})
	week.Add(testRecord{day: "Sunday", Ref: "REF-11"})

	if _, err := Write(path, week); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	if _, err := Write(path, week); err != nil {
		t.Fatalf("second write failed: %v", err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Error("repeat runs over identical input should produce byte-identical output")
	}
}

func TestMarshal_MatchesFileBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shipments_by_day.json")

	week := schedule.NewWeek()
	week.Add(testRecord{day: "Friday", Ref: "REF-7"})

	if _, err := Write(path, week); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	fromDisk, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	inMemory, err := Marshal(week)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	if !bytes.Equal(fromDisk, inMemory) {
		t.Errorf("Marshal output differs from file bytes:\n%s\nvs\n%s", inMemory, fromDisk)
	}
}
