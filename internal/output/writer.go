// Package output writes the grouped schedule to its JSON document.
package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultPath is where the schedule lands unless overridden.
const DefaultPath = "data/shipments_by_day.json"

// ErrMissingAfterWrite reports that the output file did not exist when
// checked after an apparently successful write.
var ErrMissingAfterWrite = errors.New("output file missing after write")

// Write serializes v to path as four-space-indented UTF-8 JSON, creating
// parent directories as needed and overwriting any previous document.
// The path is stat-checked after writing; absence is reported as
// ErrMissingAfterWrite, distinct from the write errors themselves.
// Returns the number of bytes on disk.
func Write(path string, v any) (int64, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create output file: %w", err)
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		_ = f.Close()
		return 0, fmt.Errorf("encode schedule: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close output file: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: %s", ErrMissingAfterWrite, path)
		}
		return 0, fmt.Errorf("verify output file: %w", err)
	}
	return info.Size(), nil
}

// Marshal renders v exactly as Write lays it out on disk, for callers
// that serve the schedule without touching the filesystem.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
