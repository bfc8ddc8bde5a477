package scanner

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ts "github.com/tree-sitter/go-tree-sitter"

	"github.com/gnana997/compreg/pkg/catalog"
	"github.com/gnana997/compreg/pkg/parser"
)

var fixedNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	lp := parser.NewLadderParser(parser.Options{Logger: logger})
	t.Cleanup(func() { _ = lp.Close() })

	e := NewExtractor(lp, logger)
	e.now = func() time.Time { return fixedNow }
	return e
}

func extract(t *testing.T, relPath, source string) Outcome {
	t.Helper()
	return newTestExtractor(t).Extract(context.Background(), relPath, []byte(source))
}

func byName(records []catalog.ComponentRecord) map[string]catalog.ComponentRecord {
	out := make(map[string]catalog.ComponentRecord, len(records))
	for _, r := range records {
		out[r.Name] = r
	}
	return out
}

func TestExtract_ButtonScenario(t *testing.T) {
	out := extract(t, "src/components/ui/atoms/Button.tsx", `
import React from 'react';

interface ButtonProps {
  label: string;
  disabled?: boolean;
}

/** Primary button */
export function Button({ label, disabled }: ButtonProps) {
  return <button disabled={disabled}>{label}</button>;
}
`)
	require.NoError(t, out.Err)
	assert.Equal(t, catalog.DetectionSyntaxTree, out.Method)
	assert.Equal(t, "tsx", out.Tier)
	require.Len(t, out.Records, 1)

	rec := out.Records[0]
	assert.Equal(t, "src/components/ui/atoms/Button.tsx", rec.Path)
	assert.Equal(t, "Button", rec.Name)
	assert.Equal(t, catalog.CategoryAtom, rec.Category)
	assert.Equal(t, []string{"Button"}, rec.Exports)
	assert.Equal(t, "Primary button", rec.Description)
	assert.Equal(t, catalog.DetectionSyntaxTree, rec.DetectionMethod)
	assert.Equal(t, fixedNow, rec.LastUpdated)
	assert.Equal(t, []catalog.PropRecord{
		{Name: "label", Type: "string", Required: true},
		{Name: "disabled", Type: "boolean", Required: false},
	}, rec.Props)
}

func TestExtract_NamingGate(t *testing.T) {
	out := extract(t, "src/components/ui/Card.tsx", `
export function formatDate(d: Date) { return d.toISOString(); }
export const useCard = () => ({ open: false });
export const Card = () => <div />;
`)
	require.Len(t, out.Records, 1)
	assert.Equal(t, "Card", out.Records[0].Name)
	assert.Equal(t, "UI Card component", out.Records[0].Description)
	assert.NotNil(t, out.Records[0].Props)
	assert.Empty(t, out.Records[0].Props)
}

func TestExtract_AnonymousDefaultUsesFileName(t *testing.T) {
	out := extract(t, "src/components/ui/molecules/button-group.tsx", `export default () => <div className="group" />;`)
	require.Len(t, out.Records, 1)
	rec := out.Records[0]
	assert.Equal(t, "ButtonGroup", rec.Name)
	assert.Equal(t, []string{"default", "ButtonGroup"}, rec.Exports)
	assert.Equal(t, catalog.CategoryMolecule, rec.Category)
}

func TestExtract_DefaultExportReference(t *testing.T) {
	out := extract(t, "src/components/ui/Card.tsx", `
// Content container
const Card = ({ title }: { title: string }) => <div>{title}</div>;

export default Card;
`)
	require.Len(t, out.Records, 1)
	rec := out.Records[0]
	assert.Equal(t, []string{"default", "Card"}, rec.Exports)
	assert.Equal(t, "Content container", rec.Description)
	assert.Equal(t, []catalog.PropRecord{{Name: "title", Type: "string", Required: true}}, rec.Props)
}

func TestExtract_ReExports(t *testing.T) {
	out := extract(t, "src/components/ui/index.ts", `
export { Button, Badge as Tag } from './atoms';
export { helpers } from './helpers';
`)
	names := byName(out.Records)
	require.Len(t, names, 2)
	for _, name := range []string{"Button", "Tag"} {
		rec, ok := names[name]
		require.True(t, ok, name)
		assert.Empty(t, rec.Props)
		assert.Equal(t, []string{name}, rec.Exports)
	}
}

func TestExtract_ForwardRefTypeArguments(t *testing.T) {
	out := extract(t, "src/components/ui/atoms/Input.tsx", `
import * as React from 'react';

interface InputProps { value?: string }

export const Input = React.forwardRef<HTMLInputElement, InputProps>((props, ref) => <input ref={ref} />);
`)
	require.Len(t, out.Records, 1)
	rec := out.Records[0]
	assert.Equal(t, []string{"Input"}, rec.Exports)
	assert.Equal(t, []catalog.PropRecord{{Name: "value", Type: "string", Required: false}}, rec.Props)
}

func TestExtract_WrappedConventionalInterface(t *testing.T) {
	out := extract(t, "src/components/ui/atoms/Chip.tsx", `
import { memo } from 'react';

export interface ChipProps { label: string }

const Chip = memo(function (props) { return <span>{props.label}</span>; });

export default Chip;
`)
	require.Len(t, out.Records, 1)
	rec := out.Records[0]
	assert.Equal(t, []string{"default", "Chip"}, rec.Exports)
	assert.Equal(t, []catalog.PropRecord{{Name: "label", Type: "string", Required: true}}, rec.Props)
}

func TestExtract_WrappedWithoutMatchDegradesToEmptyProps(t *testing.T) {
	out := extract(t, "src/components/ui/Panel.tsx", `
interface PanelOptions { x: string }
interface PanelPropsLegacy { y: string }

const Panel = memo((props) => <div />);

export { Panel };
`)
	require.Len(t, out.Records, 1)
	rec := out.Records[0]
	assert.Equal(t, "Panel", rec.Name)
	assert.Equal(t, []string{"Panel"}, rec.Exports)
	assert.Empty(t, rec.Props)
}

func TestExtract_UnexportedComponentsSkipped(t *testing.T) {
	out := extract(t, "src/components/ui/Card.tsx", `
import { memo, Component } from 'react';

const InnerRow = memo(function InnerRow(props) { return <tr />; });

class LegacyHelper extends Component {
  render() { return null; }
}

export function Card() {
  return <table><InnerRow /></table>;
}
`)
	require.NoError(t, out.Err)
	require.Len(t, out.Records, 1)
	assert.Equal(t, "Card", out.Records[0].Name)
	assert.Equal(t, []string{"Card"}, out.Records[0].Exports)
}

func TestExtract_LocallyExportedClass(t *testing.T) {
	out := extract(t, "src/components/ui/Legacy.jsx", `
class Legacy extends React.Component {
  render() { return null; }
}

export { Legacy };
`)
	require.Len(t, out.Records, 1)
	assert.Equal(t, "Legacy", out.Records[0].Name)
	assert.Equal(t, []string{"Legacy"}, out.Records[0].Exports)
}

func TestExtract_PropTypeRendering(t *testing.T) {
	out := extract(t, "src/components/ui/organisms/Card.tsx", `
interface BaseProps { id: string }

interface CardProps extends BaseProps {
  title?: string;
  tags: string[];
  size: 'sm' | 'lg';
  onClick: () => void;
  kind: Variant;
  meta: React.ReactNode;
  data: { a: number };
}

export function Card(props: CardProps & { extra: number } & ExternalProps) {
  return <div />;
}
`)
	require.Len(t, out.Records, 1)
	assert.Equal(t, []catalog.PropRecord{
		{Name: "id", Type: "string", Required: true},
		{Name: "title", Type: "string", Required: false},
		{Name: "tags", Type: "string[]", Required: true},
		{Name: "size", Type: "literal | literal", Required: true},
		{Name: "onClick", Type: "function", Required: true},
		{Name: "kind", Type: "Variant", Required: true},
		{Name: "meta", Type: "React.ReactNode", Required: true},
		{Name: "data", Type: "unknown", Required: true},
		{Name: "extra", Type: "number", Required: true},
		{Name: "ExternalProps", Type: "interface", Required: true},
	}, out.Records[0].Props)
}

func TestExtract_UnresolvedReferencePlaceholder(t *testing.T) {
	out := extract(t, "src/components/ui/Tooltip.tsx", `
import type { TooltipProps } from './types';
export const Tooltip = (props: TooltipProps) => <span />;
`)
	require.Len(t, out.Records, 1)
	assert.Equal(t, []catalog.PropRecord{{Name: "TooltipProps", Type: "interface", Required: true}}, out.Records[0].Props)
}

func TestExtract_ClassStaticPropTypes(t *testing.T) {
	out := extract(t, "src/components/ui/atoms/Toggle.jsx", `
import React from 'react';
import PropTypes from 'prop-types';

/**
 * Two-state switch.
 * @deprecated use Switch
 */
export class Toggle extends React.Component {
  static propTypes = {
    on: PropTypes.bool.isRequired,
    label: PropTypes.string,
    onChange: PropTypes.func,
  };

  static defaultProps = {
    label: 'Toggle',
    onChange: () => {},
  };

  render() {
    return <button>{this.props.label}</button>;
  }
}
`)
	require.Len(t, out.Records, 1)
	rec := out.Records[0]
	assert.Equal(t, "Two-state switch.", rec.Description)
	assert.Equal(t, []catalog.PropRecord{
		{Name: "on", Type: "bool", Required: true},
		{Name: "label", Type: "string", Required: false, DefaultValue: "'Toggle'"},
		{Name: "onChange", Type: "func", Required: false, DefaultValue: "function(){}"},
	}, rec.Props)
}

func TestExtract_AssignedStaticsAndDefaults(t *testing.T) {
	out := extract(t, "src/components/ui/Badge.jsx", `
function Badge({ size }) {
  return <span style={{ fontSize: size }} />;
}

Badge.propTypes = { size: PropTypes.number, items: PropTypes.array, meta: PropTypes.object };
Badge.defaultProps = { size: 12, items: [], meta: {} };

export default Badge;
`)
	require.Len(t, out.Records, 1)
	assert.Equal(t, []catalog.PropRecord{
		{Name: "size", Type: "number", Required: false, DefaultValue: "12"},
		{Name: "items", Type: "array", Required: false, DefaultValue: "[]"},
		{Name: "meta", Type: "object", Required: false, DefaultValue: "{}"},
	}, out.Records[0].Props)
}

func TestExtract_DestructuredDefaults(t *testing.T) {
	out := extract(t, "src/components/ui/Avatar.tsx", `
type AvatarProps = { size: number; shape?: 'circle' | 'square'; alt: string | number };
export const Avatar = ({ size = 32, shape = 'circle' }: AvatarProps) => <img />;
`)
	require.Len(t, out.Records, 1)
	assert.Equal(t, []catalog.PropRecord{
		{Name: "size", Type: "number", Required: false, DefaultValue: "32"},
		{Name: "shape", Type: "literal | literal", Required: false, DefaultValue: "'circle'"},
		{Name: "alt", Type: "string | number", Required: true},
	}, out.Records[0].Props)
}

func TestExtract_DuplicateNamesMerged(t *testing.T) {
	out := extract(t, "src/components/ui/Menu.tsx", `
export const Menu = (props: { open: boolean }) => <ul />;
export default Menu;
`)
	require.Len(t, out.Records, 1)
	assert.Equal(t, []string{"Menu", "default"}, out.Records[0].Exports)
	assert.Len(t, out.Records[0].Props, 1)
}

func TestExtract_AngleBracketCastUsesTypeScriptTier(t *testing.T) {
	out := extract(t, "src/components/ui/Legacy.ts", `
const size = <number>defaults.size;
export function Legacy(props: { size: number }) { return null; }
`)
	require.NoError(t, out.Err)
	assert.Equal(t, "typescript", out.Tier)
	require.Len(t, out.Records, 1)
	assert.Equal(t, "Legacy", out.Records[0].Name)
}

func TestExtract_FallbackIsolation(t *testing.T) {
	e := newTestExtractor(t)

	broken := e.Extract(context.Background(), "src/components/ui/Widget.tsx",
		[]byte("import React from 'react';\nexport const Widget = ( => <div {{{"))
	require.Error(t, broken.Err)
	assert.True(t, errors.Is(broken.Err, catalog.ErrParseFailure))
	assert.True(t, broken.Degraded())
	assert.Equal(t, catalog.DetectionFilenameFallback, broken.Method)
	require.Len(t, broken.Records, 1)
	rec := broken.Records[0]
	assert.Equal(t, "Widget", rec.Name)
	assert.Equal(t, catalog.DetectionFilenameFallback, rec.DetectionMethod)
	assert.Equal(t, []string{"default", "Widget"}, rec.Exports)
	assert.Equal(t, "UI Widget component (fallback detection)", rec.Description)
	assert.Empty(t, rec.Props)

	sibling := e.Extract(context.Background(), "src/components/ui/Card.tsx", []byte("export const Card = () => <div />;"))
	require.NoError(t, sibling.Err)
	require.Len(t, sibling.Records, 1)
	assert.Equal(t, catalog.DetectionSyntaxTree, sibling.Records[0].DetectionMethod)
}

func TestExtract_FallbackRequiresPascalCaseAndTokens(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		source string
	}{
		{"lowercase basename", "src/ui/widget.tsx", "import React from 'react'; export const ( =>"},
		{"no component token", "src/ui/Widget.tsx", "%%%% @@@ ((( ]]]"},
		{"ineligible extension", "src/ui/Widget.vue", "import React from 'react'; export const ( =>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := extract(t, tt.path, tt.source)
			require.Error(t, out.Err)
			assert.Equal(t, catalog.DetectionFilenameFallback, out.Method)
			assert.Empty(t, out.Records)
		})
	}
}

func TestExtract_EmptyFile(t *testing.T) {
	out := extract(t, "src/components/ui/Empty.tsx", "  \n\t\n")
	assert.NoError(t, out.Err)
	assert.False(t, out.Degraded())
	assert.NotNil(t, out.Records)
	assert.Empty(t, out.Records)
}

func TestExtract_WalkPanicFallsBack(t *testing.T) {
	e := newTestExtractor(t)
	e.walk = func(string, *ts.Node, []byte, time.Time) []catalog.ComponentRecord {
		panic("unexpected node shape")
	}

	out := e.Extract(context.Background(), "src/components/ui/Dialog.tsx", []byte("export const Dialog = () => <div />;"))
	require.Error(t, out.Err)
	assert.True(t, errors.Is(out.Err, catalog.ErrExtractionFailure))
	require.Len(t, out.Records, 1)
	assert.Equal(t, catalog.DetectionFilenameFallback, out.Records[0].DetectionMethod)
}

func TestExtract_CancelledContext(t *testing.T) {
	e := newTestExtractor(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := e.Extract(ctx, "src/components/ui/Card.tsx", []byte("export const Card = () => <div />;"))
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Empty(t, out.Records)
}

func TestParseDocComment(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/** Primary button */", "Primary button"},
		{"/**\n * First line\n * Second line\n * @param x the value\n */", "First line\nSecond line"},
		{"// Single line note", "Single line note"},
		{"/* plain block */", "plain block"},
		{"/**\n ** starred\n */", "starred"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseDocComment(tt.in))
	}
}

func TestComponentNameFromPath(t *testing.T) {
	assert.Equal(t, "DatePicker", componentNameFromPath("src/ui/date-picker.tsx"))
	assert.Equal(t, "Modal", componentNameFromPath("src/ui/Modal/index.tsx"))
	assert.Equal(t, "Button", componentNameFromPath("Button.jsx"))
}
