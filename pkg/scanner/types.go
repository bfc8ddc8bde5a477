// Package scanner resolves component source files and extracts component
// records from their syntax trees.
package scanner

import (
	"github.com/gnana997/compreg/pkg/catalog"
)

// ResolveOptions configures Resolve.
type ResolveOptions struct {
	// ProjectRoot anchors relative roots and record paths. Empty means the
	// working directory.
	ProjectRoot string
	// Roots are the component directories to walk.
	Roots []string
	// Include glob patterns, matched against root-relative slash paths.
	Include []string
	// Exclude glob patterns, matched against root- and project-relative paths.
	Exclude []string
}

// FileRef is one resolved source file.
type FileRef struct {
	// AbsPath is used for I/O.
	AbsPath string
	// RelPath is project-relative and slash-separated; it is the record path.
	RelPath string
}

// ResolveResult is the resolved file set.
type ResolveResult struct {
	// Files is deduplicated and sorted by RelPath.
	Files []FileRef
	// Warnings holds soft failures such as missing roots.
	Warnings []string
}

// Outcome is the result of extracting one file.
type Outcome struct {
	Records []catalog.ComponentRecord
	Method  catalog.DetectionMethod
	// Tier names the grammar tier that produced the tree. Empty on fallback.
	Tier string
	// Err is the parse or extraction failure that forced the filename
	// fallback. Nil when the syntax tree path succeeded.
	Err error
}

// Degraded reports whether the outcome came from the filename fallback.
func (o Outcome) Degraded() bool {
	return o.Err != nil
}
