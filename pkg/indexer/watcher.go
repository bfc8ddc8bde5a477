package indexer

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gnana997/compreg/pkg/parser"
	"github.com/gnana997/compreg/pkg/scanner"
)

// Watcher turns file system events under the component roots into debounced
// change batches and immediate removals.
//
// **Debouncing:** one timer per Watcher. Every accepted Write or Create
// resets it; when it fires, all pending paths are emitted as one sorted
// batch on Batches().
//
// **Removals:** Remove and Rename events bypass the timer and are sent on
// Removals() right away. A pending change for the same path is dropped.
// A watched directory that goes away is sent as one removal for the
// directory path; pending changes below it are dropped.
//
// **Usage:**
//
//	w, err := NewWatcher(WatchOptions{Roots: roots}, logger)
//	if err != nil {
//	    return err
//	}
//	if err := w.Start(); err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	for batch := range w.Batches() {
//	    // process batch
//	}
type Watcher struct {
	watcher *fsnotify.Watcher
	options WatchOptions
	logger  *slog.Logger

	batches  chan []string
	removals chan string

	// dirs holds every watched directory. Written by Start before the
	// event loop runs and by the event loop afterwards.
	dirs map[string]bool

	// Lifecycle
	stopChan chan struct{}
	done     chan struct{}
	started  bool
	stopped  bool
	mu       sync.Mutex
}

// NewWatcher creates a Watcher. Call Start to begin watching.
func NewWatcher(options WatchOptions, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if options.Debounce <= 0 {
		options.Debounce = DefaultDebounce
	}
	if options.ProjectRoot == "" {
		options.ProjectRoot = "."
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		watcher:  fsw,
		options:  options,
		logger:   logger,
		batches:  make(chan []string),
		removals: make(chan string, 64),
		dirs:     make(map[string]bool),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start registers every directory under the roots and starts the event
// loop. A missing root is logged and skipped.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return fmt.Errorf("watcher already stopped")
	}
	if w.started {
		return fmt.Errorf("watcher already started")
	}

	watched := 0
	for _, root := range w.options.Roots {
		absRoot := root
		if !filepath.IsAbs(absRoot) {
			absRoot = filepath.Join(w.options.ProjectRoot, root)
		}
		n, err := w.addTree(absRoot)
		if err != nil {
			w.logger.Warn("failed to watch component root", "root", root, "error", err)
			continue
		}
		watched += n
	}

	w.started = true
	go w.eventLoop()

	w.logger.Info("file watcher started",
		"roots", len(w.options.Roots),
		"directories", watched,
		"debounce_ms", w.options.Debounce.Milliseconds())
	return nil
}

// Batches delivers debounced, sorted change batches of absolute paths.
func (w *Watcher) Batches() <-chan []string {
	return w.batches
}

// Removals delivers absolute paths of removed or renamed files.
func (w *Watcher) Removals() <-chan string {
	return w.removals
}

// Stop cancels the pending timer, closes the underlying watcher and waits
// for the event loop to exit.
//
// **Thread Safety:** Safe to call multiple times (idempotent).
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	started := w.started
	close(w.stopChan)
	w.mu.Unlock()

	err := w.watcher.Close()
	if started {
		<-w.done
	}
	w.logger.Info("file watcher stopped")
	return err
}

// addTree watches dir and every non-skipped directory below it.
func (w *Watcher) addTree(dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil // Continue on error
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.shouldIgnore(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", "path", path, "error", err)
			return nil
		}
		w.dirs[path] = true
		count++
		return nil
	})
	return count, err
}

// eventLoop owns the pending set and the debounce timer.
func (w *Watcher) eventLoop() {
	defer close(w.done)

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.options.Debounce)
	timer.Stop()
	defer timer.Stop()
	var fire <-chan time.Time

	for {
		select {
		case <-w.stopChan:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.handleEvent(event, pending) {
				timer.Reset(w.options.Debounce)
				fire = timer.C
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("file watcher error", "error", err)

		case <-fire:
			fire = nil
			if len(pending) == 0 {
				continue
			}
			batch := make([]string, 0, len(pending))
			for path := range pending {
				batch = append(batch, path)
			}
			sort.Strings(batch)
			pending = make(map[string]struct{})

			w.logger.Debug("emitting change batch", "files", len(batch))
			select {
			case w.batches <- batch:
			case <-w.stopChan:
				return
			}
		}
	}
}

// handleEvent applies one event and reports whether the pending set grew.
func (w *Watcher) handleEvent(event fsnotify.Event, pending map[string]struct{}) bool {
	path := event.Name

	if event.Has(fsnotify.Create) && isDir(path) {
		if w.shouldIgnore(path) {
			return false
		}
		if _, err := w.addTree(path); err != nil {
			w.logger.Warn("failed to watch new directory", "path", path, "error", err)
			return false
		}
		// Files may land before the watch is registered.
		return w.queueExisting(path, pending)
	}

	if (event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)) && w.dirs[path] {
		w.forgetTree(path, pending)
		w.logger.Debug("watched directory removed", "op", event.Op.String(), "dir", path)
		select {
		case w.removals <- path:
		case <-w.stopChan:
		}
		return false
	}

	if !parser.IsComponentEligible(path) || w.shouldIgnore(path) {
		return false
	}

	w.logger.Debug("file event", "op", event.Op.String(), "file", path)

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		delete(pending, path)
		select {
		case w.removals <- path:
		case <-w.stopChan:
		}
		return false

	case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
		pending[path] = struct{}{}
		return true
	}
	return false
}

// forgetTree drops dir and its subdirectories from the watched set, along
// with any pending changes below dir.
func (w *Watcher) forgetTree(dir string, pending map[string]struct{}) {
	prefix := dir + string(filepath.Separator)
	for d := range w.dirs {
		if d == dir || strings.HasPrefix(d, prefix) {
			delete(w.dirs, d)
			_ = w.watcher.Remove(d)
		}
	}
	for path := range pending {
		if strings.HasPrefix(path, prefix) {
			delete(pending, path)
		}
	}
}

func (w *Watcher) queueExisting(dir string, pending map[string]struct{}) bool {
	added := false
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if parser.IsComponentEligible(path) && !w.shouldIgnore(path) {
			pending[path] = struct{}{}
			added = true
		}
		return nil
	})
	return added
}

// shouldIgnore applies the exclude patterns to the project-relative path.
func (w *Watcher) shouldIgnore(path string) bool {
	rel, err := scanner.RelPath(w.options.ProjectRoot, path)
	if err != nil {
		return false
	}
	return scanner.IsExcluded(w.options.Exclude, rel)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
