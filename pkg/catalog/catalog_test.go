package catalog

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

func rec(path, name string) ComponentRecord {
	return ComponentRecord{
		Path:            path,
		Name:            name,
		Category:        CategoryFromPath(path),
		Exports:         []string{name},
		Description:     "UI " + name + " component",
		DetectionMethod: DetectionSyntaxTree,
	}
}

// --- CategoryFromPath ---

func TestCategoryFromPath(t *testing.T) {
	tests := []struct {
		path string
		want Category
	}{
		{"src/components/ui/atoms/Button.tsx", CategoryAtom},
		{"src/components/ui/molecules/Field.tsx", CategoryMolecule},
		{"src/components/ui/organisms/Header.tsx", CategoryOrganism},
		{"atoms/Button.tsx", CategoryAtom},
		{"src/components/ui/Card.tsx", CategoryUnknown},
		{"src/atomsish/Thing.tsx", CategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, CategoryFromPath(tt.path))
		})
	}
}

// --- Diagnostics ---

func TestAddWarning_MostRecentFirstAndCapped(t *testing.T) {
	var d Diagnostics
	for i := 0; i < 15; i++ {
		d.AddWarning(string(rune('a' + i)))
	}
	require.Len(t, d.Warnings, MaxWarnings)
	assert.Equal(t, "o", d.Warnings[0], "most recent warning comes first")
	assert.Equal(t, "f", d.Warnings[MaxWarnings-1])
}

// --- DedupComponents ---

func TestDedupComponents_LastWriterWins(t *testing.T) {
	first := rec("a/Button.tsx", "Button")
	other := rec("a/Card.tsx", "Card")
	second := rec("a/Button.tsx", "Button")
	second.Description = "newer"

	out := DedupComponents([]ComponentRecord{first, other, second})
	require.Len(t, out, 2)
	assert.Equal(t, "Button", out[0].Name)
	assert.Equal(t, "newer", out[0].Description)
	assert.Equal(t, "Card", out[1].Name)
}

func TestDedupComponents_SameNameDifferentPath(t *testing.T) {
	out := DedupComponents([]ComponentRecord{rec("a/Button.tsx", "Button"), rec("b/Button.tsx", "Button")})
	assert.Len(t, out, 2)
}

// --- Validate ---

func TestValidate_DuplicateKey(t *testing.T) {
	doc := NewDocument(time.Now())
	doc.Components = []ComponentRecord{rec("a/Button.tsx", "Button"), rec("a/Button.tsx", "Button")}
	errs := doc.Validate()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "duplicate key")
}

func TestValidate_MissingFields(t *testing.T) {
	doc := &RegistryDocument{Components: []ComponentRecord{{Path: "x.tsx"}}}
	errs := doc.Validate()
	assert.Len(t, errs, 2, "missing version and missing name")
}

// --- Clone ---

func TestClone_IsDeep(t *testing.T) {
	doc := NewDocument(time.Now())
	r := rec("a/Button.tsx", "Button")
	r.Props = []PropRecord{{Name: "label", Type: "string", Required: true}}
	doc.Components = []ComponentRecord{r}
	doc.AddWarning("w1")
	n := 3
	doc.OriginalComponentCount = &n

	cp := doc.Clone()
	cp.Components[0].Props[0].Name = "changed"
	cp.Components[0].Exports[0] = "changed"
	cp.Warnings[0] = "changed"
	*cp.OriginalComponentCount = 9

	assert.Equal(t, "label", doc.Components[0].Props[0].Name)
	assert.Equal(t, "Button", doc.Components[0].Exports[0])
	assert.Equal(t, "w1", doc.Warnings[0])
	assert.Equal(t, 3, *doc.OriginalComponentCount)
}

// --- Fallback ---

func TestFallbackDocument(t *testing.T) {
	doc := FallbackDocument(time.Now(), errors.New("boom"), "production")
	assert.Empty(t, doc.Components)
	assert.NotNil(t, doc.Components, "components serialize as [] not null")
	assert.Equal(t, "boom", doc.Error)
	assert.Equal(t, SchemaVersion, doc.Version)
	assert.Equal(t, "production", doc.Metadata.Environment)
}

// --- JSON shape ---

func TestDocumentJSONShape(t *testing.T) {
	doc := NewDocument(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	r := rec("src/components/ui/atoms/Button.tsx", "Button")
	r.Props = []PropRecord{{Name: "label", Type: "string", Required: true}}
	doc.Components = []ComponentRecord{r}
	doc.CacheHits = 2

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "1.0.0", raw["version"])
	assert.Equal(t, float64(2), raw["cacheHits"], "diagnostics are inlined")
	assert.Contains(t, raw, "scanDurationMs")
	assert.NotContains(t, raw, "buildId")
	assert.NotContains(t, raw, "preservedFromNewer")
	assert.NotContains(t, raw, "error")

	comps := raw["components"].([]any)
	c := comps[0].(map[string]any)
	assert.Equal(t, "atom", c["category"])
	assert.Equal(t, "SyntaxTree", c["detectionMethod"])
	prop := c["props"].([]any)[0].(map[string]any)
	assert.NotContains(t, prop, "defaultValue")
}

// --- Load ---

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "component-registry.json")

	doc := NewDocument(time.Now())
	doc.Components = []ComponentRecord{rec("a/Button.tsx", "Button")}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Len(t, loaded.Components, 1)
	assert.Equal(t, "Button", loaded.Components[0].Name)
}

func TestLoadFromBytes_Invalid(t *testing.T) {
	_, err := LoadFromBytes([]byte("{not json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse registry JSON")

	_, err = LoadFromBytes([]byte(`{"components":[{"path":"a","name":"A"},{"path":"a","name":"A"}],"version":"1.0.0"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry validation failed")
}

func TestLoadFromBytes_NullComponents(t *testing.T) {
	doc, err := LoadFromBytes([]byte(`{"version":"1.0.0"}`))
	require.NoError(t, err)
	assert.NotNil(t, doc.Components)
	assert.NotNil(t, doc.Warnings)
}
