package indexer

import (
	"time"

	"github.com/gnana997/compreg/pkg/catalog"
	"github.com/gnana997/compreg/pkg/scanner"
)

// DefaultMaxParallelScans bounds concurrent file processing within a batch.
const DefaultMaxParallelScans = 5

// DefaultDebounce is the quiet period before a batch of changes is emitted.
const DefaultDebounce = 300 * time.Millisecond

// Options configures an engine.
type Options struct {
	// ProjectRoot anchors component roots and record paths.
	ProjectRoot string

	// Roots are the component directories.
	Roots []string

	// Include patterns (glob syntax, e.g., "**/*.tsx").
	Include []string

	// Exclude patterns (glob syntax, e.g., "**/*.test.*").
	Exclude []string

	// MaxParallelScans is both the batch size and the concurrency limit.
	// Default: 5
	MaxParallelScans int

	// Incremental enables per-file updates in watch mode. When false every
	// change batch triggers a full scan.
	Incremental bool

	// Verbose logs every per-file failure instead of a summary.
	Verbose bool

	// Environment is recorded in scan metadata ("development" or "production").
	Environment string
}

// ScanSummary reports one FullScan or ProcessUpdates call.
type ScanSummary struct {
	// Kind is "full" or "incremental".
	Kind string

	// Files is the number of files considered.
	Files int

	SuccessfulFiles int
	FailedFiles     int

	// CacheHits counts files whose records were reused without parsing.
	CacheHits int

	// Components is the live component count after the scan.
	Components int

	Duration time.Duration

	// Failures holds per-file errors, in file order.
	Failures []FileError
}

// FileError is an error that occurred while processing a file.
type FileError struct {
	Path string
	Err  error
}

// fileResult is the per-file outcome of processFile.
type fileResult struct {
	ref scanner.FileRef

	// records is nil when the file could not be read.
	records []catalog.ComponentRecord
	hash    string

	cacheHit bool
	memoHit  bool

	// err is set for read failures and degraded extractions.
	err error
	// retained means the previous records must be kept.
	retained bool
}

// WatchOptions configures a Watcher.
type WatchOptions struct {
	// Roots are the directories to watch recursively.
	Roots []string

	// ProjectRoot anchors Exclude matching.
	ProjectRoot string

	// Exclude patterns filter events by project-relative path.
	Exclude []string

	// Debounce is the quiet period before a change batch is emitted.
	// Default: 300ms
	Debounce time.Duration
}
