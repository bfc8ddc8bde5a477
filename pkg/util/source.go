package util

import (
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/edsrzf/mmap-go"
)

// SourceReader loads component source files for hashing and parsing.
//
// **Strategy:**
//   - Files at or above MmapThreshold are memory-mapped (read-only)
//   - Smaller files, and files whose mmap fails, are read with os.ReadFile
//
// Unlike a long-lived cache, every SourceFile is owned by exactly one caller
// and released with Close once extraction is done. Mappings are never kept
// across a batch, so files edited during watch mode are always re-read.
//
// Thread-safe: Open may be called from any number of goroutines.
type SourceReader struct {
	threshold int64
	logger    *slog.Logger

	opened       atomic.Int64
	mapped       atomic.Int64
	mmapFailures atomic.Int64
	bytesRead    atomic.Int64
}

// SourceReaderConfig controls SourceReader behavior.
type SourceReaderConfig struct {
	// MmapThreshold is the minimum size in bytes for a file to be mapped.
	// Zero selects DefaultMmapThreshold. A negative value disables mmap.
	MmapThreshold int64

	// Logger for mmap fallbacks. If nil, uses slog.Default().
	Logger *slog.Logger
}

// DefaultMmapThreshold keeps typical component files (a few KB) on the
// plain read path where a syscall-free copy is cheaper than a mapping.
const DefaultMmapThreshold = 64 * 1024

// SourceFile is the byte content of one source file.
type SourceFile struct {
	// Path is the path the file was opened with.
	Path string

	// Size is the file size in bytes.
	Size int64

	data mmap.MMap
	raw  []byte
	file *os.File
}

// SourceReaderStats tracks reader activity.
type SourceReaderStats struct {
	FilesOpened  int64
	FilesMapped  int64
	MmapFailures int64
	BytesRead    int64
}

// NewSourceReader creates a SourceReader.
func NewSourceReader(config SourceReaderConfig) *SourceReader {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	threshold := config.MmapThreshold
	if threshold == 0 {
		threshold = DefaultMmapThreshold
	}
	return &SourceReader{threshold: threshold, logger: config.Logger}
}

// Open loads path. The returned SourceFile must be closed by the caller.
func (r *SourceReader) Open(path string) (*SourceFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %q: %w", path, err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat file %q: %w", path, err)
	}
	if stat.IsDir() {
		file.Close()
		return nil, fmt.Errorf("%q is a directory", path)
	}

	r.opened.Add(1)
	r.bytesRead.Add(stat.Size())

	// Empty files can't be mapped.
	if stat.Size() == 0 {
		file.Close()
		return &SourceFile{Path: path}, nil
	}

	if r.threshold > 0 && stat.Size() >= r.threshold {
		data, err := mmap.Map(file, mmap.RDONLY, 0)
		if err == nil {
			r.mapped.Add(1)
			return &SourceFile{Path: path, Size: stat.Size(), data: data, file: file}, nil
		}
		r.mmapFailures.Add(1)
		r.logger.Warn("mmap failed, using fallback",
			"file", path,
			"size", stat.Size(),
			"error", err)
	}
	file.Close()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %q: %w", path, err)
	}
	return &SourceFile{Path: path, Size: int64(len(raw)), raw: raw}, nil
}

// ReadAll loads path fully into memory and releases any mapping.
func (r *SourceReader) ReadAll(path string) ([]byte, error) {
	sf, err := r.Open(path)
	if err != nil {
		return nil, err
	}
	defer sf.Close()
	if sf.raw != nil {
		return sf.raw, nil
	}
	out := make([]byte, len(sf.data))
	copy(out, sf.data)
	return out, nil
}

// Stats returns cumulative reader metrics.
func (r *SourceReader) Stats() SourceReaderStats {
	return SourceReaderStats{
		FilesOpened:  r.opened.Load(),
		FilesMapped:  r.mapped.Load(),
		MmapFailures: r.mmapFailures.Load(),
		BytesRead:    r.bytesRead.Load(),
	}
}

// Bytes returns the file content. The slice is only valid until Close.
func (f *SourceFile) Bytes() []byte {
	if f.data != nil {
		return f.data
	}
	return f.raw
}

// Mapped reports whether the content is backed by a memory mapping.
func (f *SourceFile) Mapped() bool {
	return f.data != nil
}

// Close unmaps the file and closes its descriptor. Safe to call twice.
func (f *SourceFile) Close() error {
	var firstErr error
	if f.data != nil {
		if err := f.data.Unmap(); err != nil {
			firstErr = fmt.Errorf("unmap %q: %w", f.Path, err)
		}
		f.data = nil
	}
	if f.file != nil {
		if err := f.file.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %q: %w", f.Path, err)
		}
		f.file = nil
	}
	f.raw = nil
	return firstErr
}
