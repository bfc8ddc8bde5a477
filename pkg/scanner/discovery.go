package scanner

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/gnana997/compreg/pkg/catalog"
)

// alwaysSkipped are path fragments that are never component sources,
// whatever the configured patterns say.
var alwaysSkipped = []string{"node_modules", ".test.", ".spec."}

// ValidatePatterns checks include and exclude globs.
func ValidatePatterns(include, exclude []string) error {
	for _, pattern := range exclude {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid exclude pattern: %s", pattern)
		}
	}
	for _, pattern := range include {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid include pattern: %s", pattern)
		}
	}
	return nil
}

// Resolve expands every (root, include) pair, subtracts the exclude
// patterns and returns a sorted, deduplicated file set. A missing root is
// skipped with a warning. An invalid pattern or unusable project root is
// returned as an error.
func Resolve(opts ResolveOptions, logger *slog.Logger) (*ResolveResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := ValidatePatterns(opts.Include, opts.Exclude); err != nil {
		return nil, err
	}

	projectRoot := opts.ProjectRoot
	if projectRoot == "" {
		projectRoot = "."
	}
	absProject, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}

	result := &ResolveResult{}
	seen := make(map[string]bool)

	for _, root := range opts.Roots {
		absRoot := root
		if !filepath.IsAbs(absRoot) {
			absRoot = filepath.Join(absProject, root)
		}

		info, err := os.Stat(absRoot)
		if err != nil {
			msg := fmt.Sprintf("%s: %v", root, catalog.ErrRootNotFound)
			result.Warnings = append(result.Warnings, msg)
			logger.Warn("component root not found, skipping", "root", root)
			continue
		}

		if !info.IsDir() {
			ref, ok := fileRef(absProject, absRoot)
			if ok && !seen[ref.RelPath] && !isAlwaysSkipped(ref.RelPath) {
				seen[ref.RelPath] = true
				result.Files = append(result.Files, ref)
			}
			continue
		}

		walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil // Continue walking on errors.
			}

			relToRoot, err := filepath.Rel(absRoot, path)
			if err != nil {
				return nil
			}
			relToRoot = filepath.ToSlash(relToRoot)
			ref, ok := fileRef(absProject, path)
			if !ok {
				return nil
			}

			if path != absRoot && (isAlwaysSkipped(ref.RelPath) || isExcluded(opts.Exclude, relToRoot, ref.RelPath)) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}

			if !matchesAny(opts.Include, relToRoot) {
				return nil
			}
			if seen[ref.RelPath] {
				return nil
			}
			seen[ref.RelPath] = true
			result.Files = append(result.Files, ref)
			return nil
		})
		if walkErr != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", root, walkErr)
		}
	}

	sort.Slice(result.Files, func(i, j int) bool {
		return result.Files[i].RelPath < result.Files[j].RelPath
	})

	logger.Debug("resolved component files",
		"roots", len(opts.Roots),
		"files", len(result.Files),
		"warnings", len(result.Warnings))

	return result, nil
}

// RelPath returns the project-relative slash path of absPath.
func RelPath(projectRoot, absPath string) (string, error) {
	absProject, err := filepath.Abs(projectRoot)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absProject, absPath)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// IsExcluded reports whether a project-relative path is filtered out by the
// built-in skips or the exclude patterns. Used by the watcher.
func IsExcluded(exclude []string, relPath string) bool {
	return isAlwaysSkipped(relPath) || isExcluded(exclude, relPath, relPath)
}

func fileRef(absProject, path string) (FileRef, bool) {
	rel, err := filepath.Rel(absProject, path)
	if err != nil {
		return FileRef{}, false
	}
	return FileRef{AbsPath: path, RelPath: filepath.ToSlash(rel)}, true
}

func isAlwaysSkipped(slashPath string) bool {
	for _, frag := range alwaysSkipped {
		if strings.Contains(slashPath, frag) {
			return true
		}
	}
	return false
}

func isExcluded(exclude []string, paths ...string) bool {
	for _, pattern := range exclude {
		for _, p := range paths {
			if matched, _ := doublestar.PathMatch(pattern, p); matched {
				return true
			}
		}
	}
	return false
}

func matchesAny(patterns []string, slashPath string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		if m, _ := doublestar.PathMatch(pattern, slashPath); m {
			return true
		}
	}
	return false
}
