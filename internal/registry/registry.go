// Package registry provides the extractor registry that maps extract
// modes to row extractors.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"shipment_parser/internal/sheet"
)

// DefaultName is the extract mode used when none is configured.
const DefaultName = "columns"

// Record is the common interface for all extracted row shapes.
type Record interface {
	// Kind returns the shape identifier, e.g., "columns", "freetext".
	Kind() string

	// Day returns the weekday bucket key, e.g., "Monday".
	Day() string
}

// Skip describes a row the extractor discarded.
type Skip struct {
	Reason string // e.g., "no trailing weekday".
	Quiet  bool   // Routine discard (empty row, header); no diagnostic needed.
}

// Extractor is implemented by each row extraction strategy.
type Extractor interface {
	// Name returns the extractor's unique mode name.
	Name() string

	// HasHeader reports whether the first fetched row is a header that
	// must be skipped before extraction.
	HasHeader() bool

	// Extract parses one row. Exactly one return value is non-nil: a
	// record when the row parses, a skip when it is discarded.
	Extract(row sheet.Row) (Record, *Skip)
}

// Registry holds registered extractors keyed by mode name.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Extractor
}

// New creates a new Registry instance.
func New() *Registry {
	return &Registry{
		byName: make(map[string]Extractor),
	}
}

// Global default registry.
var defaultRegistry = New()

// Default returns the global registry instance.
func Default() *Registry {
	return defaultRegistry
}

// Register adds an extractor to the default registry.
// Called during init() in each extractor package.
func Register(e Extractor) {
	defaultRegistry.Register(e)
}

// Register adds an extractor to the registry. A later registration with
// the same name replaces the earlier one.
func (r *Registry) Register(e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[e.Name()] = e
}

// Find looks up an extractor by mode name.
func (r *Registry) Find(name string) (Extractor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown extract mode %q (available: %s)", name, strings.Join(r.names(), ", "))
	}
	return e, nil
}

// Names returns all registered mode names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names()
}

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
