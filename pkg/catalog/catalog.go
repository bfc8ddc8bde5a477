package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"
)

// NewDocument returns an empty document stamped with now.
func NewDocument(now time.Time) *RegistryDocument {
	return &RegistryDocument{
		Components:  []ComponentRecord{},
		GeneratedAt: now,
		UpdatedAt:   now,
		Version:     SchemaVersion,
		Diagnostics: Diagnostics{Warnings: []string{}},
	}
}

// FallbackDocument builds the minimal document persisted after a fatal scan
// error so the host always receives a valid registry.
func FallbackDocument(now time.Time, cause error, environment string) *RegistryDocument {
	doc := NewDocument(now)
	if cause != nil {
		doc.Error = cause.Error()
	}
	doc.Metadata = &Metadata{Environment: environment}
	return doc
}

// Validate checks a document for internal consistency.
// Returns a slice of validation errors (empty slice if valid).
func (d *RegistryDocument) Validate() []error {
	var errs []error

	if d.Version == "" {
		errs = append(errs, fmt.Errorf("registry version is required"))
	}
	if len(d.Warnings) > MaxWarnings {
		errs = append(errs, fmt.Errorf("warnings: %d entries exceed cap of %d", len(d.Warnings), MaxWarnings))
	}

	seen := make(map[string]bool, len(d.Components))
	for i, c := range d.Components {
		if c.Name == "" {
			errs = append(errs, fmt.Errorf("components[%d]: name is required", i))
			continue
		}
		if c.Path == "" {
			errs = append(errs, fmt.Errorf("component %q: path is required", c.Name))
		}
		if seen[c.Key()] {
			errs = append(errs, fmt.Errorf("component %q: duplicate key %q", c.Name, c.Key()))
			continue
		}
		seen[c.Key()] = true

		for j, p := range c.Props {
			if p.Name == "" {
				errs = append(errs, fmt.Errorf("component %q props[%d]: name is required", c.Name, j))
			}
		}
	}

	return errs
}

// DedupComponents collapses records sharing (path, name). The last-seen
// record wins and takes the position of the first occurrence.
func DedupComponents(records []ComponentRecord) []ComponentRecord {
	out := make([]ComponentRecord, 0, len(records))
	index := make(map[string]int, len(records))
	for _, r := range records {
		if i, ok := index[r.Key()]; ok {
			out[i] = r
			continue
		}
		index[r.Key()] = len(out)
		out = append(out, r)
	}
	return out
}

// SortComponents orders records by path, then name.
func SortComponents(records []ComponentRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Path != records[j].Path {
			return records[i].Path < records[j].Path
		}
		return records[i].Name < records[j].Name
	})
}

// Clone returns a deep copy of the record.
func (c ComponentRecord) Clone() ComponentRecord {
	out := c
	if c.Exports != nil {
		out.Exports = append([]string(nil), c.Exports...)
	}
	if c.Props != nil {
		out.Props = append([]PropRecord(nil), c.Props...)
	}
	return out
}

// CloneComponents deep-copies a record slice.
func CloneComponents(records []ComponentRecord) []ComponentRecord {
	out := make([]ComponentRecord, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

// Clone returns a deep copy of the document.
func (d *RegistryDocument) Clone() *RegistryDocument {
	if d == nil {
		return nil
	}
	out := *d
	out.Components = CloneComponents(d.Components)
	out.Warnings = append([]string{}, d.Warnings...)
	if d.BuildTime != nil {
		t := *d.BuildTime
		out.BuildTime = &t
	}
	if d.OriginalComponentCount != nil {
		n := *d.OriginalComponentCount
		out.OriginalComponentCount = &n
	}
	if d.Metadata != nil {
		m := *d.Metadata
		out.Metadata = &m
	}
	return &out
}

// Report derives the standalone diagnostics asset from the document.
func (d *RegistryDocument) Report(now time.Time) DiagnosticsReport {
	return DiagnosticsReport{
		Timestamp:      now,
		ComponentCount: len(d.Components),
		ScanDurationMs: d.ScanDurationMs,
		CacheHits:      d.CacheHits,
		Warnings:       append([]string{}, d.Warnings...),
	}
}

// LoadFromFile reads and validates a registry document.
func LoadFromFile(path string) (*RegistryDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry file: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses and validates a registry document.
func LoadFromBytes(data []byte) (*RegistryDocument, error) {
	var doc RegistryDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse registry JSON: %w", err)
	}
	if doc.Components == nil {
		doc.Components = []ComponentRecord{}
	}
	if doc.Warnings == nil {
		doc.Warnings = []string{}
	}

	if errs := doc.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("registry validation failed: %w", errors.Join(errs...))
	}
	return &doc, nil
}
