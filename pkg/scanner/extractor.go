package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"time"
	"unicode"

	ts "github.com/tree-sitter/go-tree-sitter"

	"github.com/gnana997/compreg/pkg/catalog"
	"github.com/gnana997/compreg/pkg/parser"
)

var (
	// componentName is the naming gate: components start with an uppercase letter.
	componentName = regexp.MustCompile(`^[A-Z]`)

	pascalCaseBasename = regexp.MustCompile(`^[A-Z][A-Za-z0-9]*$`)

	// componentTokens mark text as plausibly holding a component when no
	// syntax tree is available.
	componentTokens = []string{"React", "react", "import ", "export ", "function ", "class ", "<"}
)

// Extractor turns one source file into component records. It performs no
// I/O; callers read files and persist results.
type Extractor struct {
	parser *parser.LadderParser
	logger *slog.Logger
	now    func() time.Time

	// walk is the tree walk. Replaced in tests.
	walk func(relPath string, root *ts.Node, source []byte, now time.Time) []catalog.ComponentRecord
}

// NewExtractor creates an Extractor over a shared LadderParser.
func NewExtractor(p *parser.LadderParser, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		parser: p,
		logger: logger,
		now:    time.Now,
		walk:   extractRecords,
	}
}

// Extract parses source and extracts its components. Parse failures and
// panics inside the tree walk degrade to the filename fallback; the cause is
// kept in Outcome.Err. A cancelled ctx yields no records and ctx.Err().
func (e *Extractor) Extract(ctx context.Context, relPath string, source []byte) Outcome {
	relPath = path.Clean(strings.ReplaceAll(relPath, "\\", "/"))

	if len(bytes.TrimSpace(source)) == 0 {
		return Outcome{Records: []catalog.ComponentRecord{}, Method: catalog.DetectionSyntaxTree}
	}

	res, err := e.parser.Parse(ctx, source)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Outcome{Err: err}
		}
		e.logger.Debug("syntax tree unavailable, using filename fallback",
			"path", relPath,
			"error", err)
		return e.fallback(relPath, source, err)
	}
	defer res.Close()

	records, err := e.safeWalk(relPath, res.Root(), source)
	if err != nil {
		e.logger.Debug("tree walk failed, using filename fallback",
			"path", relPath,
			"error", err)
		return e.fallback(relPath, source, err)
	}

	return Outcome{
		Records: records,
		Method:  catalog.DetectionSyntaxTree,
		Tier:    res.Tier.Name,
	}
}

func (e *Extractor) safeWalk(relPath string, root *ts.Node, source []byte) (records []catalog.ComponentRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			records = nil
			err = fmt.Errorf("%w: %v", catalog.ErrExtractionFailure, r)
		}
	}()
	return e.walk(relPath, root, source, e.now()), nil
}

func (e *Extractor) fallback(relPath string, source []byte, cause error) Outcome {
	out := Outcome{
		Records: []catalog.ComponentRecord{},
		Method:  catalog.DetectionFilenameFallback,
		Err:     cause,
	}
	if rec, ok := fallbackRecord(relPath, source, e.now()); ok {
		out.Records = append(out.Records, rec)
	}
	return out
}

// fallbackRecord builds the low-confidence record for a file whose syntax
// tree is unavailable.
func fallbackRecord(relPath string, source []byte, now time.Time) (catalog.ComponentRecord, bool) {
	base := path.Base(relPath)
	ext := path.Ext(base)
	name := strings.TrimSuffix(base, ext)

	if !parser.IsComponentEligible(base) || !pascalCaseBasename.MatchString(name) {
		return catalog.ComponentRecord{}, false
	}

	text := string(source)
	found := false
	for _, token := range componentTokens {
		if strings.Contains(text, token) {
			found = true
			break
		}
	}
	if !found {
		return catalog.ComponentRecord{}, false
	}

	return catalog.ComponentRecord{
		Path:            relPath,
		Name:            name,
		Category:        catalog.CategoryFromPath(relPath),
		Exports:         []string{"default", name},
		Props:           []catalog.PropRecord{},
		Description:     fmt.Sprintf("UI %s component (fallback detection)", name),
		LastUpdated:     now,
		DetectionMethod: catalog.DetectionFilenameFallback,
	}, true
}

// extractRecords walks the top-level declarations of a parsed file.
func extractRecords(relPath string, root *ts.Node, source []byte, now time.Time) []catalog.ComponentRecord {
	idx := indexFile(root, source)
	b := &recordBuilder{
		path:     relPath,
		idx:      idx,
		resolver: newPropsResolver(idx),
		now:      now,
		byName:   make(map[string]int),
		records:  []catalog.ComponentRecord{},
	}

	for _, decl := range idx.decls {
		switch d := decl.(type) {
		case namedExportDecl:
			b.add(d.name, []string{d.name}, d.local, d.stmt)

		case defaultExportDecl:
			name, local := d.name, d.local
			if d.ref != "" {
				name = d.ref
				local = idx.locals[d.ref]
			}
			if name == "" {
				name = componentNameFromPath(relPath)
			}
			b.add(name, []string{"default", name}, local, d.stmt)

		case reExportDecl:
			for _, spec := range d.specs {
				var local localDecl
				if !d.remote {
					local = idx.locals[spec.local]
				}
				b.add(spec.exported, []string{spec.exported}, local, d.stmt)
			}

		case wrappedDecl:
			b.add(d.name, []string{d.name}, d.local, d.stmt)
		}
	}
	return b.records
}

// recordBuilder accumulates one file's records. A name seen twice is
// merged: exports are unioned and the richer props and description kept.
type recordBuilder struct {
	path     string
	idx      *fileIndex
	resolver *propsResolver
	now      time.Time

	records []catalog.ComponentRecord
	byName  map[string]int
}

func (b *recordBuilder) add(name string, exports []string, local localDecl, site *ts.Node) {
	if !componentName.MatchString(name) {
		return
	}

	props := b.propsFor(name, local)
	description := leadingComment(local.stmt, b.idx.source)
	if description == "" && site != local.stmt {
		description = leadingComment(site, b.idx.source)
	}

	if i, ok := b.byName[name]; ok {
		existing := &b.records[i]
		for _, exp := range exports {
			if !containsString(existing.Exports, exp) {
				existing.Exports = append(existing.Exports, exp)
			}
		}
		if len(existing.Props) == 0 && len(props) > 0 {
			existing.Props = props
		}
		if description != "" && existing.Description == defaultDescription(name) {
			existing.Description = description
		}
		return
	}

	if description == "" {
		description = defaultDescription(name)
	}
	b.byName[name] = len(b.records)
	b.records = append(b.records, catalog.ComponentRecord{
		Path:            b.path,
		Name:            name,
		Category:        catalog.CategoryFromPath(b.path),
		Exports:         exports,
		Props:           props,
		Description:     description,
		LastUpdated:     b.now,
		DetectionMethod: catalog.DetectionSyntaxTree,
	})
}

func (b *recordBuilder) propsFor(name string, local localDecl) []catalog.PropRecord {
	var props []catalog.PropRecord
	switch {
	case local.fn != nil:
		props = b.resolver.fromFunction(local.fn, local.varType)
	case local.class != nil:
		props = b.resolver.fromClass(local.class)
	case local.call != nil:
		props = b.resolver.fromWrapped(name, local.call, local.varType)
	}
	props = applyStatics(props, b.idx.static[name], b.idx.source)
	if props == nil {
		props = []catalog.PropRecord{}
	}
	return props
}

func defaultDescription(name string) string {
	return fmt.Sprintf("UI %s component", name)
}

// componentNameFromPath derives a PascalCase name for an anonymous default
// export. index files take their directory's name.
func componentNameFromPath(relPath string) string {
	base := path.Base(relPath)
	name := strings.TrimSuffix(base, path.Ext(base))
	if name == "index" {
		if dir := path.Base(path.Dir(relPath)); dir != "." && dir != "/" {
			name = dir
		}
	}
	return toPascalCase(name)
}

func toPascalCase(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == '_' || r == '.' || unicode.IsSpace(r)
	})
	var sb strings.Builder
	for _, part := range parts {
		runes := []rune(part)
		runes[0] = unicode.ToUpper(runes[0])
		sb.WriteString(string(runes))
	}
	return sb.String()
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
