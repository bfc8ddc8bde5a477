package mcp

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/gnana997/compreg/pkg/catalog"
)

// ErrNotBuilt is returned while no registry document is available.
var ErrNotBuilt = errors.New("registry not built yet")

// DocumentSource yields the registry document tools query. Returned
// documents are treated as read-only.
type DocumentSource interface {
	Document() (*catalog.RegistryDocument, error)
}

// SnapshotSource adapts anything with a Snapshot method, such as
// registry.Store, into a DocumentSource.
type SnapshotSource struct {
	Snapshotter interface {
		Snapshot() *catalog.RegistryDocument
	}
}

// Document returns the current snapshot.
func (s SnapshotSource) Document() (*catalog.RegistryDocument, error) {
	doc := s.Snapshotter.Snapshot()
	if doc == nil {
		return nil, ErrNotBuilt
	}
	return doc, nil
}

// FileSource reads the registry file, reloading it when its modification
// time or size changes. Safe for concurrent use.
type FileSource struct {
	Path string

	mu      sync.Mutex
	doc     *catalog.RegistryDocument
	modTime time.Time
	size    int64
}

// NewFileSource creates a FileSource for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// Document returns the registry at Path.
func (f *FileSource) Document() (*catalog.RegistryDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := os.Stat(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotBuilt
		}
		return nil, err
	}
	if f.doc != nil && info.ModTime().Equal(f.modTime) && info.Size() == f.size {
		return f.doc, nil
	}

	doc, err := catalog.LoadFromFile(f.Path)
	if err != nil {
		return nil, err
	}
	f.doc, f.modTime, f.size = doc, info.ModTime(), info.Size()
	return doc, nil
}
