package catalog

import "errors"

// Error taxonomy shared by every stage of the registry pipeline. Per-file
// errors wrap one of these and are recorded in Diagnostics; only ErrScanFatal
// reaches the orchestrator.
var (
	// ErrRootNotFound marks a configured source root missing on disk.
	ErrRootNotFound = errors.New("root not found")

	// ErrParseFailure marks a file every grammar tier rejected.
	ErrParseFailure = errors.New("parse failure")

	// ErrExtractionFailure marks a file whose tree walk or read failed.
	ErrExtractionFailure = errors.New("extraction failure")

	// ErrCacheCorrupt marks an unreadable cache file.
	ErrCacheCorrupt = errors.New("cache corrupt")

	// ErrPersistFailure marks a failed registry or cache write.
	ErrPersistFailure = errors.New("persist failure")

	// ErrScanFatal marks a scan that could not resolve its file set.
	ErrScanFatal = errors.New("scan fatal")
)
