package extractor

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// languageForExt selects the tree-sitter grammar for a source file. The JS
// grammar handles JSX natively; TS and TSX need their own grammars.
func languageForExt(ext string) *sitter.Language {
	switch ext {
	case ".js", ".jsx":
		return javascript.GetLanguage()
	case ".ts":
		return typescript.GetLanguage()
	case ".tsx":
		return tsx.GetLanguage()
	default:
		return nil
	}
}

// symbolQuery captures every construct the extractor turns into a CodeNode,
// plus call expressions for the call-reference pass. The node type names are
// shared across the javascript, typescript and tsx grammars.
const symbolQuery = `
(function_declaration) @function
(generator_function_declaration) @function
(variable_declarator) @variable
(class_declaration) @class
(import_statement) @import
(export_statement) @export
(call_expression) @call
`

// funcSpan remembers a function node's byte range so call sites can be
// attributed to their innermost enclosing function.
type funcSpan struct {
	node  *CodeNode
	start uint32
	end   uint32
}

type callSite struct {
	name string
	pos  uint32
}

func extractFunction(n *sitter.Node, src []byte, path string) *CodeNode {
	name := "anonymous"
	if nameNode := n.ChildByFieldName("name"); nameNode != nil {
		name = nameNode.Content(src)
	}

	return &CodeNode{
		ID:        SymbolID(path, name),
		Kind:      KindFunction,
		Name:      name,
		Filepath:  path,
		Content:   n.Content(src),
		StartLine: int(n.StartPoint().Row) + 1,
		EndLine:   int(n.EndPoint().Row) + 1,
		Params:    paramNames(n.ChildByFieldName("parameters"), src),
		Calls:     []string{},
		Metadata: Metadata{
			Function: &FunctionMeta{
				Async:     hasTokenChild(n, "async"),
				Generator: n.Type() == "generator_function_declaration",
			},
		},
	}
}

// extractArrow handles `const f = (...) => ...` declarators. Other
// variable declarators produce no node.
func extractArrow(n *sitter.Node, src []byte, path string) *CodeNode {
	value := n.ChildByFieldName("value")
	if value == nil || value.Type() != "arrow_function" {
		return nil
	}
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil || nameNode.Type() != "identifier" {
		return nil
	}
	name := nameNode.Content(src)

	params := paramNames(value.ChildByFieldName("parameters"), src)
	if params == nil {
		// Single bare parameter form: x => ...
		if p := value.ChildByFieldName("parameter"); p != nil {
			params = []string{p.Content(src)}
		}
	}

	return &CodeNode{
		ID:        SymbolID(path, name),
		Kind:      KindFunction,
		Name:      name,
		Filepath:  path,
		Content:   value.Content(src),
		StartLine: int(value.StartPoint().Row) + 1,
		EndLine:   int(value.EndPoint().Row) + 1,
		Params:    params,
		Calls:     []string{},
		Metadata: Metadata{
			Function: &FunctionMeta{
				Async: hasTokenChild(value, "async"),
				Arrow: true,
			},
		},
	}
}

func extractClass(n *sitter.Node, src []byte, path string) *CodeNode {
	name := "anonymous"
	if nameNode := n.ChildByFieldName("name"); nameNode != nil {
		name = nameNode.Content(src)
	}

	return &CodeNode{
		ID:        SymbolID(path, name),
		Kind:      KindClass,
		Name:      name,
		Filepath:  path,
		Content:   n.Content(src),
		StartLine: int(n.StartPoint().Row) + 1,
		EndLine:   int(n.EndPoint().Row) + 1,
		Metadata: Metadata{
			Class: &ClassMeta{SuperClass: superclassName(n, src)},
		},
	}
}

// superclassName returns the extended class name, "unknown" for non-identifier
// heritage expressions, or "" when the class extends nothing.
func superclassName(class *sitter.Node, src []byte) string {
	var heritage *sitter.Node
	for i := 0; i < int(class.ChildCount()); i++ {
		if c := class.Child(i); c.Type() == "class_heritage" {
			heritage = c
			break
		}
	}
	if heritage == nil {
		return ""
	}

	expr := heritage.NamedChild(0)
	// The typescript grammar nests an extends_clause inside the heritage.
	if expr != nil && expr.Type() == "extends_clause" {
		expr = expr.ChildByFieldName("value")
		if expr == nil {
			expr = heritage.NamedChild(0).NamedChild(0)
		}
	}
	if expr == nil {
		return ""
	}
	if expr.Type() == "identifier" {
		return expr.Content(src)
	}
	return "unknown"
}

func extractImport(n *sitter.Node, src []byte, path string) *CodeNode {
	sourceNode := n.ChildByFieldName("source")
	if sourceNode == nil {
		return nil
	}
	source := strings.Trim(sourceNode.Content(src), "\"'`")

	var specifiers []string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		clause := n.NamedChild(i)
		if clause.Type() != "import_clause" {
			continue
		}
		for j := 0; j < int(clause.NamedChildCount()); j++ {
			spec := clause.NamedChild(j)
			switch spec.Type() {
			case "identifier": // default import
				specifiers = append(specifiers, spec.Content(src))
			case "named_imports":
				for k := 0; k < int(spec.NamedChildCount()); k++ {
					imp := spec.NamedChild(k)
					if imp.Type() != "import_specifier" {
						continue
					}
					if nameNode := imp.ChildByFieldName("name"); nameNode != nil {
						specifiers = append(specifiers, nameNode.Content(src))
					} else {
						specifiers = append(specifiers, "unknown")
					}
				}
			default: // namespace imports and friends
				specifiers = append(specifiers, "unknown")
			}
		}
	}

	return &CodeNode{
		ID:        importID(path, source),
		Kind:      KindImport,
		Name:      source,
		Filepath:  path,
		Content:   n.Content(src),
		StartLine: int(n.StartPoint().Row) + 1,
		EndLine:   int(n.EndPoint().Row) + 1,
		Metadata: Metadata{
			Import: &ImportMeta{Specifiers: specifiers},
		},
	}
}

// extractExport captures named exports of function and variable declarations.
// Default exports, re-exports and export lists produce no node.
func extractExport(n *sitter.Node, src []byte, path string) *CodeNode {
	if hasTokenChild(n, "default") {
		return nil
	}
	decl := n.ChildByFieldName("declaration")
	if decl == nil {
		return nil
	}

	var names []string
	switch decl.Type() {
	case "function_declaration", "generator_function_declaration":
		if nameNode := decl.ChildByFieldName("name"); nameNode != nil {
			names = append(names, nameNode.Content(src))
		}
	case "lexical_declaration", "variable_declaration":
		for i := 0; i < int(decl.NamedChildCount()); i++ {
			d := decl.NamedChild(i)
			if d.Type() != "variable_declarator" {
				continue
			}
			if nameNode := d.ChildByFieldName("name"); nameNode != nil && nameNode.Type() == "identifier" {
				names = append(names, nameNode.Content(src))
			}
		}
	}
	if len(names) == 0 {
		return nil
	}

	return &CodeNode{
		ID:        exportID(path, names),
		Kind:      KindExport,
		Name:      strings.Join(names, ", "),
		Filepath:  path,
		Content:   n.Content(src),
		StartLine: int(n.StartPoint().Row) + 1,
		EndLine:   int(n.EndPoint().Row) + 1,
		Metadata: Metadata{
			Export: &ExportMeta{Names: names},
		},
	}
}

// extractCall returns the callee name for a call expression: the identifier
// itself, or the property name for member calls like obj.method().
func extractCall(n *sitter.Node, src []byte) (callSite, bool) {
	callee := n.ChildByFieldName("function")
	if callee == nil {
		return callSite{}, false
	}
	switch callee.Type() {
	case "identifier":
		return callSite{name: callee.Content(src), pos: n.StartByte()}, true
	case "member_expression":
		if prop := callee.ChildByFieldName("property"); prop != nil {
			return callSite{name: prop.Content(src), pos: n.StartByte()}, true
		}
	}
	return callSite{}, false
}

func paramNames(params *sitter.Node, src []byte) []string {
	if params == nil {
		return nil
	}
	var names []string
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		switch p.Type() {
		case "identifier":
			names = append(names, p.Content(src))
		case "required_parameter", "optional_parameter":
			// typescript wraps the binding in a parameter node
			if pattern := p.ChildByFieldName("pattern"); pattern != nil && pattern.Type() == "identifier" {
				names = append(names, pattern.Content(src))
			} else {
				names = append(names, "unknown")
			}
		case "assignment_pattern":
			if left := p.ChildByFieldName("left"); left != nil && left.Type() == "identifier" {
				names = append(names, left.Content(src))
			} else {
				names = append(names, "unknown")
			}
		default:
			names = append(names, "unknown")
		}
	}
	return names
}

func hasTokenChild(n *sitter.Node, token string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.Child(i).Type() == token {
			return true
		}
	}
	return false
}

// attributeCalls assigns each call site to its innermost enclosing function
// node and deduplicates the resulting callee sets. Top-level calls that fall
// outside every function span are dropped.
func attributeCalls(spans []funcSpan, calls []callSite) {
	for _, call := range calls {
		var best *funcSpan
		for i := range spans {
			s := &spans[i]
			if call.pos < s.start || call.pos >= s.end {
				continue
			}
			if best == nil || s.end-s.start < best.end-best.start {
				best = s
			}
		}
		if best == nil {
			continue
		}
		if !containsString(best.node.Calls, call.name) {
			best.node.Calls = append(best.node.Calls, call.name)
		}
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
