// Package registry owns the live registry document and its on-disk artifact.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gnana997/compreg/pkg/catalog"
	"github.com/gnana997/compreg/pkg/util"
)

// Config configures a Store.
type Config struct {
	// OutputPath is the registry JSON location.
	OutputPath string
	// Minify selects compact JSON.
	Minify bool
	Logger *slog.Logger
}

// Store is the single owner of the live RegistryDocument. All mutation goes
// through Replace, Merge, RemoveComponentsForPath and Update; readers get
// deep copies from Snapshot and JSON.
//
// Thread Safety:
// - One writer (the orchestrator) and any number of concurrent readers
// - Persist holds the write lock so readers never see a half-adopted document
type Store struct {
	mu  sync.RWMutex
	doc *catalog.RegistryDocument

	// intentionalDrops counts components removed on purpose since the last
	// successful write. Never-shrink compares against the on-disk count
	// minus this number.
	intentionalDrops int

	// dirty is set by every mutation and cleared by a write. Persist on a
	// clean store is a no-op so the backup keeps the previous artifact.
	dirty bool

	config Config
	logger *slog.Logger
	now    func() time.Time
}

// MergeResult summarizes one Merge.
type MergeResult struct {
	Removed int
	Added   int
	Total   int
}

// New creates a Store with no live document.
func New(config Config) *Store {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{config: config, logger: logger, now: time.Now}
}

// OutputPath returns the registry file location.
func (s *Store) OutputPath() string {
	return s.config.OutputPath
}

// BackupPath returns the sibling written before each overwrite.
func (s *Store) BackupPath() string {
	return BackupPath(s.config.OutputPath)
}

// BackupPath derives the backup location for a registry path.
func BackupPath(outputPath string) string {
	if strings.HasSuffix(outputPath, ".json") {
		return strings.TrimSuffix(outputPath, ".json") + ".backup.json"
	}
	return outputPath + ".backup.json"
}

// Load adopts the on-disk registry as the live document. A missing file is
// not an error and leaves the store empty.
func (s *Store) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc, err := catalog.LoadFromFile(s.config.OutputPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Debug("no existing registry", "path", s.config.OutputPath)
			return nil
		}
		return err
	}

	s.mu.Lock()
	s.doc = doc
	s.intentionalDrops = 0
	s.dirty = false
	s.mu.Unlock()

	s.logger.Debug("loaded existing registry",
		"path", s.config.OutputPath,
		"components", len(doc.Components))
	return nil
}

// Loaded reports whether a live document exists.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc != nil
}

// Replace installs doc as the live document after a full scan.
// intentionalDrops counts components the scan removed on purpose.
func (s *Store) Replace(doc *catalog.RegistryDocument, intentionalDrops int) {
	doc = doc.Clone()
	doc.Components = catalog.DedupComponents(doc.Components)

	s.mu.Lock()
	s.doc = doc
	s.dirty = true
	if intentionalDrops > 0 {
		s.intentionalDrops += intentionalDrops
	}
	s.mu.Unlock()
}

// Merge drops every record whose path is in touchedPaths, appends records
// and deduplicates by (path, name), last seen winning. The whole set is
// applied under one lock. A touched path that lost records counts toward
// intentional drops unless it is listed in degradedPaths.
func (s *Store) Merge(records []catalog.ComponentRecord, touchedPaths, degradedPaths []string) MergeResult {
	touched := make(map[string]bool, len(touchedPaths))
	for _, p := range touchedPaths {
		touched[p] = true
	}
	degraded := make(map[string]bool, len(degradedPaths))
	for _, p := range degradedPaths {
		degraded[p] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc == nil {
		s.doc = catalog.NewDocument(s.now())
	}

	kept := make([]catalog.ComponentRecord, 0, len(s.doc.Components)+len(records))
	removedByPath := make(map[string]int)
	removed := 0
	for _, c := range s.doc.Components {
		if touched[c.Path] {
			removedByPath[c.Path]++
			removed++
			continue
		}
		kept = append(kept, c)
	}
	kept = append(kept, catalog.CloneComponents(records)...)
	before := len(kept)
	kept = catalog.DedupComponents(kept)
	added := len(records) - (before - len(kept))

	s.doc.Components = kept
	s.doc.UpdatedAt = s.now()
	s.dirty = true

	addedByPath := make(map[string]int)
	for _, c := range kept {
		if touched[c.Path] {
			addedByPath[c.Path]++
		}
	}
	for path, n := range removedByPath {
		if degraded[path] {
			continue
		}
		if shrink := n - addedByPath[path]; shrink > 0 {
			s.intentionalDrops += shrink
		}
	}

	return MergeResult{Removed: removed, Added: added, Total: len(kept)}
}

// RemoveComponentsForPath drops every record for path and returns how many
// were removed.
func (s *Store) RemoveComponentsForPath(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc == nil {
		return 0
	}
	kept := s.doc.Components[:0:0]
	for _, c := range s.doc.Components {
		if c.Path != path {
			kept = append(kept, c)
		}
	}
	removed := len(s.doc.Components) - len(kept)
	if removed > 0 {
		s.doc.Components = kept
		s.doc.UpdatedAt = s.now()
		s.intentionalDrops += removed
		s.dirty = true
	}
	return removed
}

// RecordsFor returns copies of the live records for path with the given
// names. ok is false unless every name is present.
func (s *Store) RecordsFor(path string, names []string) ([]catalog.ComponentRecord, bool) {
	if len(names) == 0 {
		return nil, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.doc == nil {
		return nil, false
	}

	byName := make(map[string]catalog.ComponentRecord)
	for _, c := range s.doc.Components {
		if c.Path == path {
			byName[c.Name] = c
		}
	}
	out := make([]catalog.ComponentRecord, 0, len(names))
	for _, name := range names {
		c, ok := byName[name]
		if !ok {
			return nil, false
		}
		out = append(out, c.Clone())
	}
	return out, true
}

// PathsWithComponents returns the set of paths the live document covers.
func (s *Store) PathsWithComponents() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int)
	if s.doc == nil {
		return out
	}
	for _, c := range s.doc.Components {
		out[c.Path]++
	}
	return out
}

// Update applies fn to the live document under the write lock. fn must not
// retain the document.
func (s *Store) Update(fn func(doc *catalog.RegistryDocument)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		s.doc = catalog.NewDocument(s.now())
	}
	fn(s.doc)
	s.dirty = true
}

// Snapshot returns a deep copy of the live document, or nil before the
// first scan.
func (s *Store) Snapshot() *catalog.RegistryDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.doc == nil {
		return nil
	}
	return s.doc.Clone()
}

// ComponentCount returns the number of live components.
func (s *Store) ComponentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.doc == nil {
		return 0
	}
	return len(s.doc.Components)
}

// JSON serializes the live document. An empty store serializes an empty
// document.
func (s *Store) JSON() ([]byte, error) {
	doc := s.Snapshot()
	if doc == nil {
		doc = catalog.NewDocument(s.now())
	}
	return s.Marshal(doc)
}

// Marshal serializes doc with the store's formatting.
func (s *Store) Marshal(doc *catalog.RegistryDocument) ([]byte, error) {
	if s.config.Minify {
		return json.Marshal(doc)
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Dirty reports whether the live document changed since the last write.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// Persist writes the live document, applying the never-shrink policy:
//   - a candidate smaller than the on-disk count (less intentional drops)
//     keeps the on-disk components and is marked preservedFromNewer
//   - an empty candidate is never written over a non-empty registry
//
// The live document adopts whatever was decided. The existing file is
// copied to the backup path before overwrite. Nothing is written when the
// document is unchanged since the last write. Errors wrap
// catalog.ErrPersistFailure; the previous artifact stays authoritative.
func (s *Store) Persist(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc == nil || !s.dirty {
		return nil
	}

	candidate := s.doc
	candidate.PreservedFromNewer = false
	candidate.OriginalComponentCount = nil
	candidateCount := len(candidate.Components)

	existing, readErr := catalog.LoadFromFile(s.config.OutputPath)
	if readErr != nil && !errors.Is(readErr, os.ErrNotExist) {
		s.logger.Warn("existing registry unreadable, overwriting",
			"path", s.config.OutputPath,
			"error", readErr)
	}

	if existing != nil {
		onDisk := len(existing.Components)
		baseline := onDisk - s.intentionalDrops
		if baseline < 0 {
			baseline = 0
		}

		switch {
		case candidateCount == 0 && onDisk > 0:
			s.logger.Warn("refusing to write empty registry over existing components",
				"path", s.config.OutputPath,
				"on_disk", onDisk)
			candidate.Components = catalog.CloneComponents(existing.Components)
			candidate.PreservedFromNewer = true
			zero := 0
			candidate.OriginalComponentCount = &zero
			s.intentionalDrops = 0
			s.dirty = false
			return nil

		case candidateCount < baseline:
			s.logger.Warn("candidate registry smaller than existing, preserving on-disk components",
				"path", s.config.OutputPath,
				"candidate", candidateCount,
				"on_disk", onDisk,
				"intentional_drops", s.intentionalDrops)
			candidate.Components = catalog.CloneComponents(existing.Components)
			candidate.PreservedFromNewer = true
			count := candidateCount
			candidate.OriginalComponentCount = &count
		}
	}

	data, err := s.Marshal(candidate)
	if err != nil {
		return s.persistFailure(fmt.Errorf("failed to serialize registry: %w", err))
	}

	if _, err := util.CopyFile(s.config.OutputPath, s.BackupPath()); err != nil {
		return s.persistFailure(fmt.Errorf("failed to write backup: %w", err))
	}

	if err := util.WriteFileAtomic(s.config.OutputPath, data, 0644); err != nil {
		return s.persistFailure(err)
	}

	s.intentionalDrops = 0
	s.dirty = false
	s.logger.Debug("persisted registry",
		"path", s.config.OutputPath,
		"components", len(candidate.Components),
		"preserved", candidate.PreservedFromNewer)
	return nil
}

func (s *Store) persistFailure(err error) error {
	wrapped := fmt.Errorf("%w: %v", catalog.ErrPersistFailure, err)
	s.logger.Error("failed to persist registry",
		"path", s.config.OutputPath,
		"error", err)
	return wrapped
}
