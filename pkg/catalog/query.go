package catalog

import (
	"sort"
	"strings"
	"time"
)

// QueryService provides read-only query methods over a registry document.
// The document must not be mutated after the service is built; callers pass
// a snapshot.
type QueryService struct {
	Document *RegistryDocument

	byName     map[string][]*ComponentRecord
	byCategory map[Category][]*ComponentRecord
}

// NewQueryService indexes doc for lookups.
func NewQueryService(doc *RegistryDocument) *QueryService {
	if doc == nil {
		doc = &RegistryDocument{}
	}
	q := &QueryService{
		Document:   doc,
		byName:     make(map[string][]*ComponentRecord),
		byCategory: make(map[Category][]*ComponentRecord),
	}
	for i := range doc.Components {
		c := &doc.Components[i]
		q.byName[c.Name] = append(q.byName[c.Name], c)
		q.byCategory[c.Category] = append(q.byCategory[c.Category], c)
	}
	return q
}

// LoadAndQuery loads a registry from file and returns a ready-to-use QueryService.
func LoadAndQuery(path string) (*QueryService, error) {
	doc, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	return NewQueryService(doc), nil
}

// ListCategories returns every category present with its component count,
// in atom, molecule, organism, unknown order.
func (q *QueryService) ListCategories() []CategoryCount {
	order := []Category{CategoryAtom, CategoryMolecule, CategoryOrganism, CategoryUnknown}
	out := make([]CategoryCount, 0, len(order))
	for _, c := range order {
		if n := len(q.byCategory[c]); n > 0 {
			out = append(out, CategoryCount{Name: c, ComponentCount: n})
		}
	}
	return out
}

// ListComponents returns components filtered by category and/or keyword.
// Both filters are optional (pass "" to skip). The keyword matches
// case-insensitively against name, path and description. Results are
// sorted by name, then path.
func (q *QueryService) ListComponents(category Category, keyword string) []ComponentRecord {
	var candidates []*ComponentRecord
	if category != "" {
		candidates = q.byCategory[category]
	} else {
		candidates = make([]*ComponentRecord, 0, len(q.Document.Components))
		for i := range q.Document.Components {
			candidates = append(candidates, &q.Document.Components[i])
		}
	}

	keyword = strings.ToLower(keyword)
	result := make([]ComponentRecord, 0, len(candidates))
	for _, c := range candidates {
		if keyword != "" &&
			!strings.Contains(strings.ToLower(c.Name), keyword) &&
			!strings.Contains(strings.ToLower(c.Path), keyword) &&
			!strings.Contains(strings.ToLower(c.Description), keyword) {
			continue
		}
		result = append(result, c.Clone())
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].Path < result[j].Path
	})
	return result
}

// GetComponent returns every record named name. The same name may be
// declared in several files.
func (q *QueryService) GetComponent(name string) ([]ComponentRecord, bool) {
	matches := q.byName[name]
	if len(matches) == 0 {
		return nil, false
	}
	out := make([]ComponentRecord, len(matches))
	for i, c := range matches {
		out[i] = c.Clone()
	}
	return out, true
}

// Summary is a compact view of the document header.
type Summary struct {
	ComponentCount  int      `json:"component_count"`
	Version         string   `json:"version"`
	GeneratedAt     string   `json:"generated_at"`
	UpdatedAt       string   `json:"updated_at"`
	ScanDurationMs  int64    `json:"scan_duration_ms"`
	CacheHits       int      `json:"cache_hits"`
	SuccessfulFiles int      `json:"successful_files"`
	FailedFiles     int      `json:"failed_files"`
	Warnings        []string `json:"warnings"`
	BuildID         string   `json:"build_id,omitempty"`
	Environment     string   `json:"environment,omitempty"`
	Preserved       bool     `json:"preserved_from_newer,omitempty"`
	FallbackCount   int      `json:"filename_fallback_count"`
}

// Stats summarizes the document.
func (q *QueryService) Stats() Summary {
	d := q.Document
	s := Summary{
		ComponentCount:  len(d.Components),
		Version:         d.Version,
		ScanDurationMs:  d.ScanDurationMs,
		CacheHits:       d.CacheHits,
		SuccessfulFiles: d.SuccessfulFiles,
		FailedFiles:     d.FailedFiles,
		Warnings:        append([]string{}, d.Warnings...),
		BuildID:         d.BuildID,
		Environment:     d.Environment,
		Preserved:       d.PreservedFromNewer,
	}
	if !d.GeneratedAt.IsZero() {
		s.GeneratedAt = d.GeneratedAt.Format(time.RFC3339)
	}
	if !d.UpdatedAt.IsZero() {
		s.UpdatedAt = d.UpdatedAt.Format(time.RFC3339)
	}
	for _, c := range d.Components {
		if c.DetectionMethod == DetectionFilenameFallback {
			s.FallbackCount++
		}
	}
	return s
}
