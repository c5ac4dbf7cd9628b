package extractor

import (
	"fmt"
	"strings"
)

// NodeKind classifies a CodeNode.
type NodeKind string

const (
	KindFile     NodeKind = "file"
	KindFunction NodeKind = "function"
	KindClass    NodeKind = "class"
	KindImport   NodeKind = "import"
	KindExport   NodeKind = "export"
)

// filePreviewLimit bounds the content stored on file-summary nodes.
const filePreviewLimit = 500

// CodeNode is the atomic indexed unit: one file summary per parsed file plus
// one node per function, class, import and export found in it.
type CodeNode struct {
	ID        string   `json:"id"`
	Kind      NodeKind `json:"kind"`
	Name      string   `json:"name"`
	Filepath  string   `json:"filepath"`
	Content   string   `json:"content"`
	StartLine int      `json:"start_line"`
	EndLine   int      `json:"end_line"`
	Params    []string `json:"params,omitempty"`
	Calls     []string `json:"calls,omitempty"`
	Metadata  Metadata `json:"metadata,omitempty"`
}

// Metadata is a tagged union keyed by node kind. Exactly one field is set,
// matching the node's Kind; the zero value means no metadata.
type Metadata struct {
	File     *FileMeta     `json:"file,omitempty"`
	Function *FunctionMeta `json:"function,omitempty"`
	Class    *ClassMeta    `json:"class,omitempty"`
	Import   *ImportMeta   `json:"import,omitempty"`
	Export   *ExportMeta   `json:"export,omitempty"`
}

type FileMeta struct {
	LOC  int `json:"loc"`
	Size int `json:"size"`
}

type FunctionMeta struct {
	Async     bool `json:"async"`
	Generator bool `json:"generator"`
	Arrow     bool `json:"arrow,omitempty"`
}

type ClassMeta struct {
	SuperClass string `json:"super_class,omitempty"`
}

type ImportMeta struct {
	// Specifiers are the local names bound by the import statement.
	Specifiers []string `json:"specifiers"`
}

type ExportMeta struct {
	Names []string `json:"names"`
}

// SymbolID derives the stable identifier for a symbol node. File nodes use
// the bare path so containment lookups can key on the parent's filepath.
func SymbolID(path, name string) string {
	return fmt.Sprintf("%s:%s", path, name)
}

func importID(path, source string) string {
	return fmt.Sprintf("%s:import:%s", path, source)
}

func exportID(path string, names []string) string {
	return fmt.Sprintf("%s:export:%s", path, strings.Join(names, ","))
}

func fileNode(path string, source []byte) *CodeNode {
	preview := string(source)
	if len(preview) > filePreviewLimit {
		preview = preview[:filePreviewLimit]
	}
	lines := strings.Count(string(source), "\n") + 1

	name := path
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		name = path[idx+1:]
	}

	return &CodeNode{
		ID:        path,
		Kind:      KindFile,
		Name:      name,
		Filepath:  path,
		Content:   preview,
		StartLine: 1,
		EndLine:   lines,
		Metadata: Metadata{
			File: &FileMeta{LOC: lines, Size: len(source)},
		},
	}
}
