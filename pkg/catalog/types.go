package catalog

import (
	"strings"
	"time"
)

// SchemaVersion is written to every RegistryDocument.
const SchemaVersion = "1.0.0"

// MaxWarnings caps the diagnostics warning list.
const MaxWarnings = 10

// Category is the atomic-design tier of a component.
type Category string

const (
	CategoryAtom     Category = "atom"
	CategoryMolecule Category = "molecule"
	CategoryOrganism Category = "organism"
	CategoryUnknown  Category = "unknown"
)

// CategoryFromPath derives a Category from the directory segments of a
// slash-separated path.
func CategoryFromPath(slashPath string) Category {
	p := "/" + strings.TrimPrefix(slashPath, "/")
	switch {
	case strings.Contains(p, "/atoms/"):
		return CategoryAtom
	case strings.Contains(p, "/molecules/"):
		return CategoryMolecule
	case strings.Contains(p, "/organisms/"):
		return CategoryOrganism
	default:
		return CategoryUnknown
	}
}

// DetectionMethod records which extraction tier produced a record.
type DetectionMethod string

const (
	DetectionSyntaxTree       DetectionMethod = "SyntaxTree"
	DetectionFilenameFallback DetectionMethod = "FilenameFallback"
)

// ComponentRecord is one discovered UI component.
type ComponentRecord struct {
	Path            string          `json:"path"`
	Name            string          `json:"name"`
	Category        Category        `json:"category"`
	Exports         []string        `json:"exports"`
	Props           []PropRecord    `json:"props"`
	Description     string          `json:"description"`
	LastUpdated     time.Time       `json:"lastUpdated"`
	DetectionMethod DetectionMethod `json:"detectionMethod"`
}

// Key returns the unique identity of the record within a document.
func (c ComponentRecord) Key() string {
	return c.Path + ":" + c.Name
}

// PropRecord is one declared property of a component.
type PropRecord struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Required     bool   `json:"required"`
	DefaultValue string `json:"defaultValue,omitempty"`
}

// Diagnostics is the scan summary block, serialized inline in the document.
type Diagnostics struct {
	ScanDurationMs  int64    `json:"scanDurationMs"`
	CacheHits       int      `json:"cacheHits"`
	SuccessfulFiles int      `json:"successfulFiles"`
	FailedFiles     int      `json:"failedFiles"`
	Warnings        []string `json:"warnings"`
}

// AddWarning records msg as the most recent warning, dropping the oldest
// entries beyond MaxWarnings.
func (d *Diagnostics) AddWarning(msg string) {
	d.Warnings = append([]string{msg}, d.Warnings...)
	if len(d.Warnings) > MaxWarnings {
		d.Warnings = d.Warnings[:MaxWarnings]
	}
}

// Metadata summarizes a full scan.
type Metadata struct {
	TotalFiles          int    `json:"totalFiles"`
	ExtractedComponents int    `json:"extractedComponents"`
	UniqueComponents    int    `json:"uniqueComponents"`
	Environment         string `json:"environment"`
}

// RegistryDocument is the published registry artifact.
type RegistryDocument struct {
	Components  []ComponentRecord `json:"components"`
	GeneratedAt time.Time         `json:"generatedAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	Version     string            `json:"version"`

	Diagnostics

	// Production builds only.
	BuildID     string     `json:"buildId,omitempty"`
	BuildTime   *time.Time `json:"buildTime,omitempty"`
	Environment string     `json:"environment,omitempty"`

	// Set when a smaller candidate was discarded in favor of the on-disk list.
	PreservedFromNewer     bool `json:"preservedFromNewer,omitempty"`
	OriginalComponentCount *int `json:"originalComponentCount,omitempty"`

	Metadata *Metadata `json:"metadata,omitempty"`

	// Error is set on the fallback document produced after a fatal scan error.
	Error string `json:"error,omitempty"`
}

// DiagnosticsReport is the standalone diagnostics asset.
type DiagnosticsReport struct {
	Timestamp      time.Time `json:"timestamp"`
	ComponentCount int       `json:"componentCount"`
	ScanDurationMs int64     `json:"scanDurationMs"`
	CacheHits      int       `json:"cacheHits"`
	Warnings       []string  `json:"warnings"`
}

// CategoryCount is one row of QueryService.ListCategories.
type CategoryCount struct {
	Name           Category `json:"name"`
	ComponentCount int      `json:"component_count"`
}
