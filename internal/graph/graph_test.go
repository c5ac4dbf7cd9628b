package graph

import (
	"testing"

	"codeatlas/internal/extractor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fn(path, name string, calls ...string) *extractor.CodeNode {
	return &extractor.CodeNode{
		ID:       extractor.SymbolID(path, name),
		Kind:     extractor.KindFunction,
		Name:     name,
		Filepath: path,
		Calls:    calls,
	}
}

func class(path, name, super string) *extractor.CodeNode {
	return &extractor.CodeNode{
		ID:       extractor.SymbolID(path, name),
		Kind:     extractor.KindClass,
		Name:     name,
		Filepath: path,
		Metadata: extractor.Metadata{Class: &extractor.ClassMeta{SuperClass: super}},
	}
}

func edgesOfKind(edges []Edge, kind EdgeKind) []Edge {
	var out []Edge
	for _, e := range edges {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func TestLink_CallsPreferSameFile(t *testing.T) {
	// bar exists in both files; foo's call should resolve to its own file only.
	g := Build([]*extractor.CodeNode{
		fn("a.js", "foo", "bar"),
		fn("a.js", "bar"),
		fn("b.js", "bar"),
	})

	calls := edgesOfKind(g.Link(), EdgeCalls)
	require.Len(t, calls, 1)
	assert.Equal(t, "a.js:foo", calls[0].From)
	assert.Equal(t, "a.js:bar", calls[0].To)
}

func TestLink_CallsFallBackToGlobal(t *testing.T) {
	g := Build([]*extractor.CodeNode{
		fn("a.js", "foo", "helper"),
		fn("b.js", "helper"),
	})

	calls := edgesOfKind(g.Link(), EdgeCalls)
	require.Len(t, calls, 1)
	assert.Equal(t, "b.js:helper", calls[0].To)
}

func TestLink_UnresolvedAndSelfCallsSkipped(t *testing.T) {
	g := Build([]*extractor.CodeNode{
		fn("a.js", "loop", "loop", "missing"),
	})
	assert.Empty(t, g.Link())
}

func TestLink_Extends(t *testing.T) {
	g := Build([]*extractor.CodeNode{
		class("a.js", "Base", ""),
		class("a.js", "Child", "Base"),
		class("b.js", "Weird", "unknown"),
	})

	extends := edgesOfKind(g.Link(), EdgeExtends)
	require.Len(t, extends, 1)
	assert.Equal(t, "a.js:Child", extends[0].From)
	assert.Equal(t, "a.js:Base", extends[0].To)
}

func TestLink_FanOutAcrossCallers(t *testing.T) {
	g := Build([]*extractor.CodeNode{
		fn("a.js", "foo", "target"),
		fn("b.js", "bar", "target"),
		fn("b.js", "target"),
		fn("c.js", "unrelated", "other"),
	})

	calls := edgesOfKind(g.Link(), EdgeCalls)
	froms := make([]string, 0, len(calls))
	for _, e := range calls {
		require.Equal(t, "b.js:target", e.To)
		froms = append(froms, e.From)
	}
	assert.ElementsMatch(t, []string{"a.js:foo", "b.js:bar"}, froms)
}
