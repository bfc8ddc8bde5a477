package parser

import (
	"path/filepath"
	"strings"
	"unsafe"

	ts_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	ts_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// Grammar identifies one tree-sitter grammar configuration.
type Grammar int

const (
	// GrammarTSX is TypeScript with JSX: the richest feature set.
	GrammarTSX Grammar = iota
	// GrammarTypeScript is TypeScript without JSX. Accepts `<T>expr` casts
	// that the TSX grammar rejects.
	GrammarTypeScript
	// GrammarJavaScript is plain JavaScript (JSX included, no type syntax).
	GrammarJavaScript
)

// String returns the string representation of the grammar.
func (g Grammar) String() string {
	switch g {
	case GrammarTSX:
		return "tsx"
	case GrammarTypeScript:
		return "typescript"
	case GrammarJavaScript:
		return "javascript"
	default:
		return "unknown"
	}
}

// languagePointer returns the tree-sitter language for the grammar.
func (g Grammar) languagePointer() unsafe.Pointer {
	switch g {
	case GrammarTSX:
		return ts_typescript.LanguageTSX()
	case GrammarTypeScript:
		return ts_typescript.LanguageTypescript()
	case GrammarJavaScript:
		return ts_javascript.Language()
	default:
		return nil
	}
}

// Tier is one rung of the leniency ladder.
type Tier struct {
	Name    string
	Grammar Grammar
}

// DefaultTiers returns the ladder in descending order of grammar features.
func DefaultTiers() []Tier {
	return []Tier{
		{Name: "tsx", Grammar: GrammarTSX},
		{Name: "typescript", Grammar: GrammarTypeScript},
		{Name: "javascript", Grammar: GrammarJavaScript},
	}
}

// componentExtensions are the extensions that may hold a UI component.
var componentExtensions = map[string]bool{
	".tsx": true,
	".jsx": true,
	".ts":  true,
	".js":  true,
}

// IsComponentEligible reports whether the file extension may hold a component.
func IsComponentEligible(filePath string) bool {
	return componentExtensions[strings.ToLower(filepath.Ext(filePath))]
}

// IsJSXCapable reports whether the file extension permits JSX.
func IsJSXCapable(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	return ext == ".tsx" || ext == ".jsx"
}
