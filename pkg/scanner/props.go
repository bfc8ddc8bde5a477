package scanner

import (
	"regexp"
	"strings"

	ts "github.com/tree-sitter/go-tree-sitter"

	"github.com/gnana997/compreg/pkg/catalog"
)

// propTypesPattern captures the validator name of a PropTypes expression,
// e.g. PropTypes.string.isRequired or PropTypes.oneOf([...]).
var propTypesPattern = regexp.MustCompile(`PropTypes\.(\w+)`)

// renderedPredefined are the predefined types rendered by name.
var renderedPredefined = map[string]bool{
	"string":  true,
	"number":  true,
	"boolean": true,
	"any":     true,
	"void":    true,
	"object":  true,
}

// passThroughGenerics wrap a props type without changing its members.
var passThroughGenerics = map[string]bool{
	"PropsWithChildren":       true,
	"React.PropsWithChildren": true,
	"Readonly":                true,
}

// propsResolver resolves props declarations against a file's symbol table.
type propsResolver struct {
	idx *fileIndex
	// visiting guards against recursive type references.
	visiting map[string]bool
}

func newPropsResolver(idx *fileIndex) *propsResolver {
	return &propsResolver{idx: idx, visiting: make(map[string]bool)}
}

// fromFunction extracts props from the first parameter of a function node.
// varType is the declarator annotation (`const X: FC<P> = ...`), consulted
// when the parameter itself carries no type.
func (r *propsResolver) fromFunction(fn, varType *ts.Node) []catalog.PropRecord {
	param := firstParam(fn)

	var props []catalog.PropRecord
	if param != nil {
		if typeNode := unwrapTypeAnnotation(param.ChildByFieldName("type")); typeNode != nil {
			props = r.fromTypeNode(typeNode)
		}
	}
	if props == nil && varType != nil {
		if arg := typeArgument(varType, 0); arg != nil {
			props = r.fromTypeNode(arg)
		}
	}

	if param != nil {
		applyDefaults(props, destructuredDefaults(param, r.idx.source))
	}
	return props
}

// fromClass extracts props from `extends Component<Props>`.
func (r *propsResolver) fromClass(class *ts.Node) []catalog.PropRecord {
	heritage := findChildByKind(class, "class_heritage")
	if heritage == nil {
		return nil
	}
	args := findDescendantByKind(heritage, "type_arguments")
	if args == nil {
		return nil
	}
	first := args.NamedChild(0)
	if first == nil {
		return nil
	}
	return r.fromTypeNode(first)
}

// fromWrapped extracts props for `const X = wrapper(fn)`: the wrapped
// function's first parameter first, then the call's type arguments, then a
// same-file props declaration named by convention.
func (r *propsResolver) fromWrapped(name string, call, varType *ts.Node) []catalog.PropRecord {
	if fn := wrappedFunction(call); fn != nil {
		if props := r.fromFunction(fn, nil); len(props) > 0 {
			return props
		}
	}
	if typeNode := wrapperTypeArgument(call); typeNode != nil {
		if props := r.fromTypeNode(typeNode); len(props) > 0 {
			return props
		}
	}
	if varType != nil {
		if arg := typeArgument(varType, -1); arg != nil {
			if props := r.fromTypeNode(arg); len(props) > 0 {
				return props
			}
		}
	}
	for _, candidate := range conventionalPropsNames(name) {
		if decl, ok := r.idx.types[candidate]; ok {
			if props := r.fromDeclaration(candidate, decl); len(props) > 0 {
				return props
			}
		}
	}
	return nil
}

// conventionalPropsNames lists the props declaration names tried for a
// wrapped component.
func conventionalPropsNames(name string) []string {
	names := []string{name + "Props", "I" + name + "Props"}
	if trimmed := strings.TrimPrefix(name, "I"); trimmed != name && trimmed != "" {
		names = append(names, trimmed+"Props")
	}
	return append(names, name+"PropsWithChildren")
}

// fromTypeNode resolves a props type expression.
func (r *propsResolver) fromTypeNode(node *ts.Node) []catalog.PropRecord {
	if node == nil {
		return nil
	}
	source := r.idx.source

	switch node.Kind() {
	case "object_type":
		return r.fromBody(node)
	case "type_identifier":
		return r.fromReference(node.Utf8Text(source))
	case "nested_type_identifier":
		return r.fromReference(node.Utf8Text(source))
	case "generic_type":
		name := node.Utf8Text(source)
		if n := node.ChildByFieldName("name"); n != nil {
			name = n.Utf8Text(source)
		}
		if _, local := r.idx.types[name]; !local && passThroughGenerics[name] {
			return r.fromTypeNode(typeArgument(node, 0))
		}
		return r.fromReference(name)
	case "intersection_type":
		var props []catalog.PropRecord
		for i := uint(0); i < node.NamedChildCount(); i++ {
			props = append(props, r.fromTypeNode(node.NamedChild(i))...)
		}
		return props
	case "parenthesized_type":
		return r.fromTypeNode(node.NamedChild(0))
	}
	return nil
}

// fromReference resolves a named type in the same file. An unresolved name
// yields a single placeholder prop.
func (r *propsResolver) fromReference(name string) []catalog.PropRecord {
	decl, ok := r.idx.types[name]
	if !ok {
		return []catalog.PropRecord{{Name: name, Type: "interface", Required: true}}
	}
	return r.fromDeclaration(name, decl)
}

func (r *propsResolver) fromDeclaration(name string, decl *ts.Node) []catalog.PropRecord {
	if r.visiting[name] {
		return nil
	}
	r.visiting[name] = true
	defer delete(r.visiting, name)

	switch decl.Kind() {
	case "interface_declaration":
		var props []catalog.PropRecord
		for _, parent := range interfaceParents(decl, r.idx.source) {
			if parentDecl, ok := r.idx.types[parent]; ok {
				props = append(props, r.fromDeclaration(parent, parentDecl)...)
			}
		}
		body := decl.ChildByFieldName("body")
		if body == nil {
			body = findChildByKind(decl, "interface_body")
		}
		if body == nil {
			body = findChildByKind(decl, "object_type")
		}
		if body != nil {
			props = append(props, r.fromBody(body)...)
		}
		return props
	case "type_alias_declaration":
		return r.fromTypeNode(decl.ChildByFieldName("value"))
	}
	return nil
}

// interfaceParents returns the same-file names listed in an extends clause.
func interfaceParents(decl *ts.Node, source []byte) []string {
	clause := findChildByKind(decl, "extends_type_clause")
	if clause == nil {
		return nil
	}
	var names []string
	for i := uint(0); i < clause.NamedChildCount(); i++ {
		child := clause.NamedChild(i)
		switch child.Kind() {
		case "type_identifier":
			names = append(names, child.Utf8Text(source))
		case "generic_type":
			if n := child.ChildByFieldName("name"); n != nil {
				names = append(names, n.Utf8Text(source))
			}
		}
	}
	return names
}

// fromBody extracts props from an interface_body or object_type node.
func (r *propsResolver) fromBody(body *ts.Node) []catalog.PropRecord {
	source := r.idx.source
	var props []catalog.PropRecord

	for i := uint(0); i < body.NamedChildCount(); i++ {
		child := body.NamedChild(i)
		switch child.Kind() {
		case "property_signature":
			nameNode := child.ChildByFieldName("name")
			if nameNode == nil {
				continue
			}
			typeName := "unknown"
			if typeNode := unwrapTypeAnnotation(child.ChildByFieldName("type")); typeNode != nil {
				typeName = renderType(typeNode, source)
			}
			props = append(props, catalog.PropRecord{
				Name:     unquoteString(nameNode.Utf8Text(source)),
				Type:     typeName,
				Required: !hasChildKind(child, "?"),
			})
		case "method_signature":
			nameNode := child.ChildByFieldName("name")
			if nameNode == nil {
				continue
			}
			props = append(props, catalog.PropRecord{
				Name:     unquoteString(nameNode.Utf8Text(source)),
				Type:     "function",
				Required: !hasChildKind(child, "?"),
			})
		}
	}
	return props
}

// renderType renders a type node as the registry's type string.
func renderType(node *ts.Node, source []byte) string {
	if node == nil {
		return "unknown"
	}

	switch node.Kind() {
	case "predefined_type":
		text := node.Utf8Text(source)
		if renderedPredefined[text] {
			return text
		}
		return "unknown"

	case "type_identifier", "nested_type_identifier":
		return node.Utf8Text(source)

	case "generic_type":
		if n := node.ChildByFieldName("name"); n != nil {
			return n.Utf8Text(source)
		}
		return node.Utf8Text(source)

	case "array_type":
		return renderType(node.NamedChild(0), source) + "[]"

	case "union_type":
		members := flattenUnionMembers(node)
		parts := make([]string, 0, len(members))
		for _, m := range members {
			parts = append(parts, renderType(m, source))
		}
		return strings.Join(parts, " | ")

	case "function_type", "constructor_type":
		return "function"

	case "literal_type":
		return "literal"

	case "parenthesized_type":
		return renderType(node.NamedChild(0), source)
	}
	return "unknown"
}

// flattenUnionMembers recursively flattens a binary union tree into its leaf members.
func flattenUnionMembers(node *ts.Node) []*ts.Node {
	if node == nil {
		return nil
	}
	if node.Kind() != "union_type" {
		return []*ts.Node{node}
	}
	var members []*ts.Node
	for i := uint(0); i < node.NamedChildCount(); i++ {
		members = append(members, flattenUnionMembers(node.NamedChild(i))...)
	}
	return members
}

// applyStatics merges a PropTypes map and backfills defaults from a
// defaultProps map.
func applyStatics(props []catalog.PropRecord, maps *staticMaps, source []byte) []catalog.PropRecord {
	if maps == nil {
		return props
	}

	if maps.propTypes != nil {
		known := make(map[string]bool, len(props))
		for _, p := range props {
			known[p.Name] = true
		}
		for _, pair := range objectPairs(maps.propTypes, source) {
			if known[pair.key] {
				continue
			}
			text := pair.value.Utf8Text(source)
			typeName := "unknown"
			if m := propTypesPattern.FindStringSubmatch(text); m != nil {
				typeName = m[1]
			}
			props = append(props, catalog.PropRecord{
				Name:     pair.key,
				Type:     typeName,
				Required: strings.HasSuffix(text, ".isRequired"),
			})
			known[pair.key] = true
		}
	}

	if maps.defaultProps != nil {
		defaults := make(map[string]string)
		for _, pair := range objectPairs(maps.defaultProps, source) {
			defaults[pair.key] = renderDefault(pair.value, source)
		}
		applyDefaults(props, defaults)
	}
	return props
}

// applyDefaults sets DefaultValue and clears Required for props with a default.
func applyDefaults(props []catalog.PropRecord, defaults map[string]string) {
	for i := range props {
		if def, ok := defaults[props[i].Name]; ok {
			props[i].DefaultValue = def
			props[i].Required = false
		}
	}
}

type objectPair struct {
	key   string
	value *ts.Node
}

func objectPairs(object *ts.Node, source []byte) []objectPair {
	var pairs []objectPair
	for i := uint(0); i < object.NamedChildCount(); i++ {
		child := object.NamedChild(i)
		if child.Kind() != "pair" {
			continue
		}
		key := child.ChildByFieldName("key")
		value := child.ChildByFieldName("value")
		if key == nil || value == nil {
			continue
		}
		pairs = append(pairs, objectPair{key: unquoteString(key.Utf8Text(source)), value: value})
	}
	return pairs
}

// renderDefault renders a default value literal.
func renderDefault(node *ts.Node, source []byte) string {
	node = unwrapExpression(node)
	text := node.Utf8Text(source)

	switch node.Kind() {
	case "string", "template_string":
		return "'" + unquoteString(text) + "'"
	case "number", "true", "false":
		return text
	case "null":
		return "null"
	case "array":
		return "[]"
	case "object":
		return "{}"
	case "arrow_function", "function_expression", "function":
		return "function(){}"
	}
	return text
}

// destructuredDefaults reads `{ size = 'md' }` defaults from a parameter.
func destructuredDefaults(param *ts.Node, source []byte) map[string]string {
	defaults := make(map[string]string)

	pattern := param
	if param.Kind() == "required_parameter" || param.Kind() == "optional_parameter" {
		pattern = param.ChildByFieldName("pattern")
	}
	if pattern != nil && pattern.Kind() == "assignment_pattern" {
		pattern = pattern.ChildByFieldName("left")
	}
	if pattern == nil || pattern.Kind() != "object_pattern" {
		return defaults
	}

	for i := uint(0); i < pattern.NamedChildCount(); i++ {
		child := pattern.NamedChild(i)
		switch child.Kind() {
		case "object_assignment_pattern", "assignment_pattern":
			left := child.ChildByFieldName("left")
			right := child.ChildByFieldName("right")
			if left != nil && right != nil {
				defaults[left.Utf8Text(source)] = renderDefault(right, source)
			}
		case "pair_pattern":
			key := child.ChildByFieldName("key")
			value := child.ChildByFieldName("value")
			if key == nil || value == nil {
				continue
			}
			if value.Kind() == "assignment_pattern" || value.Kind() == "object_assignment_pattern" {
				if right := value.ChildByFieldName("right"); right != nil {
					defaults[unquoteString(key.Utf8Text(source))] = renderDefault(right, source)
				}
			}
		}
	}
	return defaults
}

// firstParam returns the first parameter node of a function, arrow or
// method. JavaScript grammars yield the pattern itself.
func firstParam(fn *ts.Node) *ts.Node {
	if fn == nil {
		return nil
	}
	if single := fn.ChildByFieldName("parameter"); single != nil {
		return single
	}
	params := fn.ChildByFieldName("parameters")
	if params == nil {
		return nil
	}
	for i := uint(0); i < params.NamedChildCount(); i++ {
		child := params.NamedChild(i)
		if child.Kind() == "comment" {
			continue
		}
		return child
	}
	return nil
}

// unwrapTypeAnnotation returns the type inside a type_annotation node.
func unwrapTypeAnnotation(anno *ts.Node) *ts.Node {
	if anno == nil {
		return nil
	}
	if anno.Kind() != "type_annotation" {
		return anno
	}
	return anno.NamedChild(0)
}

// typeArgument returns the index-th type argument of a generic type. A
// negative index counts from the end.
func typeArgument(node *ts.Node, index int) *ts.Node {
	if node == nil || node.Kind() != "generic_type" {
		return nil
	}
	return nthTypeArgument(findChildByKind(node, "type_arguments"), index)
}

// wrapperTypeArgument returns the props type argument of a wrapper call:
// the second of two (forwardRef<El, Props>), otherwise the first.
func wrapperTypeArgument(call *ts.Node) *ts.Node {
	args := call.ChildByFieldName("type_arguments")
	if args == nil {
		args = findChildByKind(call, "type_arguments")
	}
	if args == nil {
		return nil
	}
	if args.NamedChildCount() >= 2 {
		return args.NamedChild(1)
	}
	return args.NamedChild(0)
}

func nthTypeArgument(args *ts.Node, index int) *ts.Node {
	if args == nil {
		return nil
	}
	n := int(args.NamedChildCount())
	if index < 0 {
		index = n + index
	}
	if index < 0 || index >= n {
		return nil
	}
	return args.NamedChild(uint(index))
}

func findDescendantByKind(node *ts.Node, kind string) *ts.Node {
	if node == nil {
		return nil
	}
	if node.Kind() == kind {
		return node
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		if found := findDescendantByKind(node.Child(i), kind); found != nil {
			return found
		}
	}
	return nil
}

func isStringLiteral(s string) bool {
	return len(s) >= 2 && ((strings.HasPrefix(s, "\"") && strings.HasSuffix(s, "\"")) ||
		(strings.HasPrefix(s, "'") && strings.HasSuffix(s, "'")) ||
		(strings.HasPrefix(s, "`") && strings.HasSuffix(s, "`")))
}

func unquoteString(s string) string {
	if isStringLiteral(s) {
		return s[1 : len(s)-1]
	}
	return s
}
