package graph

import (
	"codeatlas/internal/extractor"
)

// EdgeKind labels a directed relationship between two nodes.
type EdgeKind string

const (
	EdgeContains EdgeKind = "CONTAINS"
	EdgeCalls    EdgeKind = "CALLS"
	EdgeExtends  EdgeKind = "EXTENDS"
	EdgeImports  EdgeKind = "IMPORTS"
)

// Edge is a directed typed relationship between two node ids.
type Edge struct {
	From string
	To   string
	Kind EdgeKind
}

// Graph holds one indexing run's nodes with name indexes for relation
// linking. It is a build-time structure; durable storage lives in the
// storage package.
type Graph struct {
	Nodes []*extractor.CodeNode

	functionIdx map[string][]*extractor.CodeNode
	classIdx    map[string][]*extractor.CodeNode
}

// Build indexes a node set for relation linking.
func Build(nodes []*extractor.CodeNode) *Graph {
	g := &Graph{
		Nodes:       nodes,
		functionIdx: make(map[string][]*extractor.CodeNode),
		classIdx:    make(map[string][]*extractor.CodeNode),
	}
	for _, n := range nodes {
		switch n.Kind {
		case extractor.KindFunction:
			g.functionIdx[n.Name] = append(g.functionIdx[n.Name], n)
		case extractor.KindClass:
			g.classIdx[n.Name] = append(g.classIdx[n.Name], n)
		}
	}
	return g
}

// Link resolves name-based references into CALLS and EXTENDS edges.
// Resolution prefers a declaration in the caller's own file and falls back to
// a global name match; names that resolve nowhere are skipped silently, which
// tolerates references to code outside the indexed set.
func (g *Graph) Link() []Edge {
	var edges []Edge

	for _, n := range g.Nodes {
		switch n.Kind {
		case extractor.KindFunction:
			for _, callee := range n.Calls {
				for _, target := range g.resolve(g.functionIdx, callee, n.Filepath) {
					if target.ID == n.ID {
						continue
					}
					edges = append(edges, Edge{From: n.ID, To: target.ID, Kind: EdgeCalls})
				}
			}
		case extractor.KindClass:
			meta := n.Metadata.Class
			if meta == nil || meta.SuperClass == "" || meta.SuperClass == "unknown" {
				continue
			}
			for _, target := range g.resolve(g.classIdx, meta.SuperClass, n.Filepath) {
				if target.ID == n.ID {
					continue
				}
				edges = append(edges, Edge{From: n.ID, To: target.ID, Kind: EdgeExtends})
			}
		}
	}

	return edges
}

// resolve finds declarations for name, preferring the caller's file.
func (g *Graph) resolve(idx map[string][]*extractor.CodeNode, name, fromPath string) []*extractor.CodeNode {
	candidates := idx[name]
	if len(candidates) == 0 {
		return nil
	}
	var local []*extractor.CodeNode
	for _, c := range candidates {
		if c.Filepath == fromPath {
			local = append(local, c)
		}
	}
	if len(local) > 0 {
		return local
	}
	return candidates
}
