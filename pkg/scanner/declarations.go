package scanner

import (
	ts "github.com/tree-sitter/go-tree-sitter"
)

// declaration is one top-level component-shaped statement. The concrete
// variants below form a closed set; extraction switches on the type.
type declaration interface {
	// site is the top-level statement the declaration came from.
	site() *ts.Node
}

// namedExportDecl is `export function X`, `export class X` or
// `export const X = () => ...`.
type namedExportDecl struct {
	stmt  *ts.Node
	name  string
	local localDecl
}

// defaultExportDecl is `export default function X`, `export default class X`,
// `export default X` or `export default () => ...`.
type defaultExportDecl struct {
	stmt *ts.Node
	// name is empty for anonymous defaults.
	name string
	// ref is set for `export default X` where X is an identifier.
	ref   string
	local localDecl
}

// reExportDecl is `export { X, Y as Z } from '...'` or a local export
// clause `export { X }`.
type reExportDecl struct {
	stmt   *ts.Node
	specs  []exportSpec
	remote bool
}

type exportSpec struct {
	local    string
	exported string
}

// wrappedDecl is `export const X = wrapper(fn)`. Unexported wrappers only
// become records through a local export clause or `export default X`.
type wrappedDecl struct {
	stmt  *ts.Node
	name  string
	local localDecl
}

func (d namedExportDecl) site() *ts.Node   { return d.stmt }
func (d defaultExportDecl) site() *ts.Node { return d.stmt }
func (d reExportDecl) site() *ts.Node      { return d.stmt }
func (d wrappedDecl) site() *ts.Node       { return d.stmt }

// localDecl is what a top-level name is bound to.
type localDecl struct {
	stmt *ts.Node
	// Exactly one of fn, class or call is set.
	fn    *ts.Node
	class *ts.Node
	call  *ts.Node
	// varType is the declarator's own type annotation, as in
	// `const X: FC<Props> = ...`.
	varType *ts.Node
}

// staticMaps holds `X.propTypes = {...}` and `X.defaultProps = {...}`
// assignments and their `static` class field equivalents.
type staticMaps struct {
	propTypes    *ts.Node
	defaultProps *ts.Node
}

// fileIndex is the per-file symbol table built in one pass over the
// top-level statements.
type fileIndex struct {
	source []byte
	decls  []declaration
	locals map[string]localDecl
	types  map[string]*ts.Node
	static map[string]*staticMaps
}

// indexFile classifies every top-level statement of root.
func indexFile(root *ts.Node, source []byte) *fileIndex {
	idx := &fileIndex{
		source: source,
		locals: make(map[string]localDecl),
		types:  make(map[string]*ts.Node),
		static: make(map[string]*staticMaps),
	}

	for i := uint(0); i < root.NamedChildCount(); i++ {
		stmt := root.NamedChild(i)
		switch stmt.Kind() {
		case "export_statement":
			idx.classifyExport(stmt)
		case "function_declaration", "generator_function_declaration":
			if name := nodeName(stmt, source); name != "" {
				idx.locals[name] = localDecl{stmt: stmt, fn: stmt}
			}
		case "class_declaration", "abstract_class_declaration":
			if name := nodeName(stmt, source); name != "" {
				idx.locals[name] = localDecl{stmt: stmt, class: stmt}
			}
		case "lexical_declaration", "variable_declaration":
			idx.classifyVariables(stmt, stmt, false)
		case "interface_declaration", "type_alias_declaration":
			idx.addType(stmt)
		case "expression_statement":
			idx.classifyAssignment(stmt)
		}
	}

	for name, local := range idx.locals {
		if local.class != nil {
			idx.collectClassStatics(name, local.class)
		}
	}
	return idx
}

func (idx *fileIndex) classifyExport(stmt *ts.Node) {
	source := idx.source
	isDefault := hasChildKind(stmt, "default")

	if decl := stmt.ChildByFieldName("declaration"); decl != nil {
		switch decl.Kind() {
		case "function_declaration", "generator_function_declaration", "function_expression", "function":
			name := nodeName(decl, source)
			local := localDecl{stmt: stmt, fn: decl}
			if name != "" {
				idx.locals[name] = local
			}
			if isDefault {
				idx.decls = append(idx.decls, defaultExportDecl{stmt: stmt, name: name, local: local})
			} else if name != "" {
				idx.decls = append(idx.decls, namedExportDecl{stmt: stmt, name: name, local: local})
			}
		case "class_declaration", "abstract_class_declaration", "class":
			name := nodeName(decl, source)
			local := localDecl{stmt: stmt, class: decl}
			if name != "" {
				idx.locals[name] = local
			}
			if isDefault {
				idx.decls = append(idx.decls, defaultExportDecl{stmt: stmt, name: name, local: local})
			} else if name != "" {
				idx.decls = append(idx.decls, namedExportDecl{stmt: stmt, name: name, local: local})
			}
		case "lexical_declaration", "variable_declaration":
			idx.classifyVariables(decl, stmt, true)
		case "interface_declaration", "type_alias_declaration":
			idx.addType(decl)
		}
		return
	}

	if value := stmt.ChildByFieldName("value"); value != nil && isDefault {
		switch value.Kind() {
		case "identifier":
			idx.decls = append(idx.decls, defaultExportDecl{stmt: stmt, ref: value.Utf8Text(source)})
		case "arrow_function", "function_expression", "function":
			idx.decls = append(idx.decls, defaultExportDecl{stmt: stmt, local: localDecl{stmt: stmt, fn: value}})
		case "class":
			idx.decls = append(idx.decls, defaultExportDecl{stmt: stmt, name: nodeName(value, source), local: localDecl{stmt: stmt, class: value}})
		case "call_expression":
			if wrapsFunction(value) {
				idx.decls = append(idx.decls, defaultExportDecl{stmt: stmt, local: localDecl{stmt: stmt, call: value}})
			} else if ref := innermostIdentifierArg(value, source); ref != "" {
				// export default connect(...)(Button) and similar.
				idx.decls = append(idx.decls, defaultExportDecl{stmt: stmt, ref: ref})
			}
		}
		return
	}

	if clause := findChildByKind(stmt, "export_clause"); clause != nil {
		specs := exportSpecs(clause, source)
		if len(specs) > 0 {
			idx.decls = append(idx.decls, reExportDecl{
				stmt:   stmt,
				specs:  specs,
				remote: stmt.ChildByFieldName("source") != nil,
			})
		}
	}
}

// classifyVariables handles every declarator of a lexical or variable
// declaration.
func (idx *fileIndex) classifyVariables(decl, stmt *ts.Node, exported bool) {
	source := idx.source
	for i := uint(0); i < decl.NamedChildCount(); i++ {
		declarator := decl.NamedChild(i)
		if declarator.Kind() != "variable_declarator" {
			continue
		}
		nameNode := declarator.ChildByFieldName("name")
		value := declarator.ChildByFieldName("value")
		if nameNode == nil || value == nil || nameNode.Kind() != "identifier" {
			continue
		}
		name := nameNode.Utf8Text(source)
		varType := unwrapTypeAnnotation(declarator.ChildByFieldName("type"))

		value = unwrapExpression(value)
		switch value.Kind() {
		case "arrow_function", "function_expression", "function":
			local := localDecl{stmt: stmt, fn: value, varType: varType}
			idx.locals[name] = local
			if exported {
				idx.decls = append(idx.decls, namedExportDecl{stmt: stmt, name: name, local: local})
			}
		case "class":
			local := localDecl{stmt: stmt, class: value}
			idx.locals[name] = local
			if exported {
				idx.decls = append(idx.decls, namedExportDecl{stmt: stmt, name: name, local: local})
			}
		case "call_expression":
			if !wrapsFunction(value) {
				continue
			}
			local := localDecl{stmt: stmt, call: value, varType: varType}
			idx.locals[name] = local
			if exported {
				idx.decls = append(idx.decls, wrappedDecl{stmt: stmt, name: name, local: local})
			}
		}
	}
}

func (idx *fileIndex) addType(decl *ts.Node) {
	if name := nodeName(decl, idx.source); name != "" {
		idx.types[name] = decl
	}
}

// classifyAssignment records `X.propTypes = {...}` and `X.defaultProps = {...}`.
func (idx *fileIndex) classifyAssignment(stmt *ts.Node) {
	expr := stmt.NamedChild(0)
	if expr == nil || expr.Kind() != "assignment_expression" {
		return
	}
	left := expr.ChildByFieldName("left")
	right := expr.ChildByFieldName("right")
	if left == nil || right == nil || left.Kind() != "member_expression" {
		return
	}
	object := left.ChildByFieldName("object")
	property := left.ChildByFieldName("property")
	if object == nil || property == nil || object.Kind() != "identifier" {
		return
	}
	idx.setStatic(object.Utf8Text(idx.source), property.Utf8Text(idx.source), right, false)
}

// setStatic records a static map. Later assignments replace earlier ones
// unless keepExisting is set.
func (idx *fileIndex) setStatic(owner, key string, value *ts.Node, keepExisting bool) {
	if value == nil || value.Kind() != "object" {
		return
	}
	m := idx.static[owner]
	if m == nil {
		m = &staticMaps{}
		idx.static[owner] = m
	}
	switch key {
	case "propTypes":
		if m.propTypes == nil || !keepExisting {
			m.propTypes = value
		}
	case "defaultProps":
		if m.defaultProps == nil || !keepExisting {
			m.defaultProps = value
		}
	}
}

// collectClassStatics records `static propTypes` and `static defaultProps`
// fields of a class body under the class name. Explicit `X.propTypes`
// assignments win.
func (idx *fileIndex) collectClassStatics(name string, class *ts.Node) {
	body := class.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := uint(0); i < body.NamedChildCount(); i++ {
		field := body.NamedChild(i)
		if field.Kind() != "public_field_definition" && field.Kind() != "field_definition" {
			continue
		}
		if !hasChildKind(field, "static") {
			continue
		}
		key := field.ChildByFieldName("name")
		if key == nil {
			key = field.ChildByFieldName("property")
		}
		if key == nil {
			continue
		}
		idx.setStatic(name, key.Utf8Text(idx.source), field.ChildByFieldName("value"), true)
	}
}

// wrapsFunction reports whether a call has a function argument, directly
// or through nested wrapper calls such as memo(forwardRef(fn)).
func wrapsFunction(call *ts.Node) bool {
	return wrappedFunction(call) != nil
}

// wrappedFunction returns the first function argument of a wrapper call.
func wrappedFunction(call *ts.Node) *ts.Node {
	if call == nil || call.Kind() != "call_expression" {
		return nil
	}
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return nil
	}
	for i := uint(0); i < args.NamedChildCount(); i++ {
		arg := unwrapExpression(args.NamedChild(i))
		switch arg.Kind() {
		case "arrow_function", "function_expression", "function":
			return arg
		case "call_expression":
			if fn := wrappedFunction(arg); fn != nil {
				return fn
			}
		}
	}
	return nil
}

// innermostIdentifierArg returns the identifier passed to the last call of
// a call chain, as in hoc(options)(Button).
func innermostIdentifierArg(call *ts.Node, source []byte) string {
	args := call.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() != 1 {
		return ""
	}
	arg := args.NamedChild(0)
	if arg.Kind() == "identifier" {
		return arg.Utf8Text(source)
	}
	return ""
}

// unwrapExpression strips parentheses and `as`/`satisfies` casts.
func unwrapExpression(node *ts.Node) *ts.Node {
	for node != nil {
		switch node.Kind() {
		case "parenthesized_expression", "as_expression", "satisfies_expression", "non_null_expression":
			inner := node.NamedChild(0)
			if inner == nil {
				return node
			}
			node = inner
		default:
			return node
		}
	}
	return node
}

func exportSpecs(clause *ts.Node, source []byte) []exportSpec {
	var specs []exportSpec
	for i := uint(0); i < clause.NamedChildCount(); i++ {
		spec := clause.NamedChild(i)
		if spec.Kind() != "export_specifier" {
			continue
		}
		nameNode := spec.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		s := exportSpec{local: unquoteString(nameNode.Utf8Text(source))}
		s.exported = s.local
		if alias := spec.ChildByFieldName("alias"); alias != nil {
			s.exported = unquoteString(alias.Utf8Text(source))
		}
		specs = append(specs, s)
	}
	return specs
}

func nodeName(node *ts.Node, source []byte) string {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return ""
	}
	return nameNode.Utf8Text(source)
}

func hasChildKind(node *ts.Node, kind string) bool {
	return findChildByKind(node, kind) != nil
}

func findChildByKind(node *ts.Node, kind string) *ts.Node {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child.Kind() == kind {
			return child
		}
	}
	return nil
}
