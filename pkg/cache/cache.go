package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/gnana997/compreg/pkg/catalog"
	"github.com/gnana997/compreg/pkg/util"
)

// Entry is the cached state of one source file.
type Entry struct {
	Hash        string    `json:"hash"`
	Components  []string  `json:"components"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// fileFormat is the on-disk cache layout.
type fileFormat struct {
	Files map[string]Entry `json:"files"`
	Meta  struct {
		LastUpdate time.Time `json:"lastUpdate"`
	} `json:"meta"`
}

// Config configures a Cache.
type Config struct {
	// Path is the cache file location.
	Path string
	// Disabled turns the cache into a no-op that always misses.
	Disabled bool
	Logger   *slog.Logger
}

// Cache maps project-relative paths to their last-seen digest and
// component names.
//
// Thread Safety:
// - Safe for concurrent use; batch workers read while the orchestrator writes
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	dirty   bool

	config Config
	logger *slog.Logger
}

// New creates an empty Cache. Call Load to populate it from disk.
func New(config Config) *Cache {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		entries: make(map[string]Entry),
		config:  config,
		logger:  logger,
	}
}

// Enabled reports whether the cache participates in lookups.
func (c *Cache) Enabled() bool {
	return !c.config.Disabled
}

// Load replaces the in-memory entries with the cache file. A missing file
// is not an error. An unreadable or corrupt file is logged, the cache
// restarts empty and the returned error wraps catalog.ErrCacheCorrupt.
func (c *Cache) Load(ctx context.Context) error {
	if c.config.Disabled || c.config.Path == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := os.ReadFile(c.config.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.logger.Debug("no cache file, starting empty", "path", c.config.Path)
			return nil
		}
		return c.reset(fmt.Errorf("%w: failed to read cache file: %v", catalog.ErrCacheCorrupt, err))
	}

	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return c.reset(fmt.Errorf("%w: failed to parse cache JSON: %v", catalog.ErrCacheCorrupt, err))
	}

	entries := make(map[string]Entry, len(ff.Files))
	for path, entry := range ff.Files {
		entries[path] = entry
	}

	c.mu.Lock()
	c.entries = entries
	c.dirty = false
	c.mu.Unlock()

	c.logger.Debug("loaded cache", "path", c.config.Path, "entries", len(entries))
	return nil
}

func (c *Cache) reset(err error) error {
	c.mu.Lock()
	c.entries = make(map[string]Entry)
	c.dirty = true
	c.mu.Unlock()

	c.logger.Warn("cache unreadable, reinitializing empty",
		"path", c.config.Path,
		"error", err)
	return err
}

// Persist writes the cache file through a temp file and rename. Errors
// wrap catalog.ErrPersistFailure.
func (c *Cache) Persist(ctx context.Context) error {
	if c.config.Disabled || c.config.Path == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.RLock()
	var ff fileFormat
	ff.Files = make(map[string]Entry, len(c.entries))
	for path, entry := range c.entries {
		ff.Files[path] = entry
	}
	c.mu.RUnlock()
	ff.Meta.LastUpdate = time.Now()

	data, err := json.MarshalIndent(ff, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: failed to serialize cache: %v", catalog.ErrPersistFailure, err)
	}
	if err := util.WriteFileAtomic(c.config.Path, data, 0644); err != nil {
		return fmt.Errorf("%w: %v", catalog.ErrPersistFailure, err)
	}

	c.mu.Lock()
	c.dirty = false
	c.mu.Unlock()

	c.logger.Debug("persisted cache", "path", c.config.Path, "entries", len(ff.Files))
	return nil
}

// Lookup returns the entry for path.
func (c *Cache) Lookup(path string) (Entry, bool) {
	if c.config.Disabled {
		return Entry{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[path]
	if !ok {
		return Entry{}, false
	}
	entry.Components = append([]string(nil), entry.Components...)
	return entry, true
}

// IsValid reports whether path is unchanged: an entry exists, its digest
// equals hash and it names at least one component. Entries covering zero
// components are always stale.
func (c *Cache) IsValid(path, hash string) bool {
	entry, ok := c.Lookup(path)
	return ok && entry.Hash == hash && len(entry.Components) > 0
}

// Names returns the component names recorded for path.
func (c *Cache) Names(path string) []string {
	entry, _ := c.Lookup(path)
	return entry.Components
}

// Put records the entry for path.
func (c *Cache) Put(path string, entry Entry) {
	if c.config.Disabled {
		return
	}
	entry.Components = append([]string(nil), entry.Components...)
	c.mu.Lock()
	c.entries[path] = entry
	c.dirty = true
	c.mu.Unlock()
}

// Evict removes path and reports whether it was present.
func (c *Cache) Evict(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[path]; !ok {
		return false
	}
	delete(c.entries, path)
	c.dirty = true
	return true
}

// Retain drops every entry whose path is not in keep and returns the
// number removed.
func (c *Cache) Retain(keep map[string]bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for path := range c.entries {
		if !keep[path] {
			delete(c.entries, path)
			removed++
		}
	}
	if removed > 0 {
		c.dirty = true
	}
	return removed
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Paths returns the cached paths, sorted.
func (c *Cache) Paths() []string {
	c.mu.RLock()
	paths := make([]string, 0, len(c.entries))
	for path := range c.entries {
		paths = append(paths, path)
	}
	c.mu.RUnlock()
	sort.Strings(paths)
	return paths
}

// Dirty reports whether entries changed since the last Load or Persist.
func (c *Cache) Dirty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dirty
}
