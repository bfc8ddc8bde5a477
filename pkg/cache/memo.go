package cache

import (
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gnana997/compreg/pkg/catalog"
)

// DefaultMemoSize is the number of extractions kept in memory.
const DefaultMemoSize = 512

// Memo remembers recent extractions by content digest so that reverting a
// file to earlier content reuses the earlier result without parsing. It
// never influences the persisted cache.
type Memo struct {
	cache  *lru.Cache[string, []catalog.ComponentRecord]
	logger *slog.Logger
}

// NewMemo creates a Memo holding up to size extractions. A non-positive
// size selects DefaultMemoSize.
func NewMemo(size int, logger *slog.Logger) *Memo {
	if size <= 0 {
		size = DefaultMemoSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	c, err := lru.NewWithEvict(size, func(key string, value []catalog.ComponentRecord) {
		logger.Debug("memo evicting extraction", "hash", key, "components", len(value))
	})
	if err != nil {
		// Only returned for a non-positive size.
		panic(err)
	}
	return &Memo{cache: c, logger: logger}
}

// Get returns a deep copy of the records extracted from content with hash.
func (m *Memo) Get(hash string) ([]catalog.ComponentRecord, bool) {
	records, ok := m.cache.Get(hash)
	if !ok {
		return nil, false
	}
	return catalog.CloneComponents(records), true
}

// Add stores records for hash. Records carry their path, so callers key
// per file content, not per content alone.
func (m *Memo) Add(hash string, records []catalog.ComponentRecord) {
	m.cache.Add(hash, catalog.CloneComponents(records))
}

// Key combines a path and content digest into a memo key.
func Key(path, hash string) string {
	return path + "@" + hash
}

// Len returns the number of memoized extractions.
func (m *Memo) Len() int {
	return m.cache.Len()
}

// Purge drops every memoized extraction.
func (m *Memo) Purge() {
	m.cache.Purge()
}
