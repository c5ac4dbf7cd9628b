package extractor

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// byName indexes nodes by kind and name for assertion lookups.
func byName(nodes []*CodeNode, kind NodeKind, name string) *CodeNode {
	for _, n := range nodes {
		if n.Kind == kind && n.Name == name {
			return n
		}
	}
	return nil
}

func countKind(nodes []*CodeNode, kind NodeKind) int {
	count := 0
	for _, n := range nodes {
		if n.Kind == kind {
			count++
		}
	}
	return count
}

func TestParseFile_JavaScript(t *testing.T) {
	nodes, err := New().ParseFile(filepath.Join("testdata", "sample.js"))
	require.NoError(t, err)

	t.Run("file summary node", func(t *testing.T) {
		require.NotEmpty(t, nodes)
		file := nodes[0]
		assert.Equal(t, KindFile, file.Kind)
		assert.Equal(t, "sample.js", file.Name)
		assert.Equal(t, 1, file.StartLine)
		require.NotNil(t, file.Metadata.File)
		assert.Equal(t, file.EndLine, file.Metadata.File.LOC)
		assert.LessOrEqual(t, len(file.Content), 500)
	})

	t.Run("function declarations", func(t *testing.T) {
		fn := byName(nodes, KindFunction, "readConfig")
		require.NotNil(t, fn)
		assert.Equal(t, "testdata/sample.js:readConfig", fn.ID)
		assert.Equal(t, []string{"root"}, fn.Params)
		require.NotNil(t, fn.Metadata.Function)
		assert.False(t, fn.Metadata.Function.Async)
		assert.False(t, fn.Metadata.Function.Arrow)
	})

	t.Run("arrow functions", func(t *testing.T) {
		fn := byName(nodes, KindFunction, "formatEntry")
		require.NotNil(t, fn)
		assert.Equal(t, []string{"entry", "indent"}, fn.Params)
		require.NotNil(t, fn.Metadata.Function)
		assert.True(t, fn.Metadata.Function.Arrow)
	})

	t.Run("call tracking", func(t *testing.T) {
		fn := byName(nodes, KindFunction, "readConfig")
		require.NotNil(t, fn)
		assert.ElementsMatch(t, []string{"readFileSync", "join", "parseConfig"}, fn.Calls)

		fn = byName(nodes, KindFunction, "init")
		require.NotNil(t, fn)
		assert.Equal(t, []string{"readConfig"}, fn.Calls)
	})

	t.Run("calls attach to the innermost function", func(t *testing.T) {
		inner := byName(nodes, KindFunction, "inner")
		require.NotNil(t, inner)
		assert.Equal(t, []string{"helper"}, inner.Calls)

		outer := byName(nodes, KindFunction, "outer")
		require.NotNil(t, outer)
		assert.Empty(t, outer.Calls)
	})

	t.Run("classes", func(t *testing.T) {
		base := byName(nodes, KindClass, "Logger")
		require.NotNil(t, base)
		require.NotNil(t, base.Metadata.Class)
		assert.Empty(t, base.Metadata.Class.SuperClass)

		sub := byName(nodes, KindClass, "FileLogger")
		require.NotNil(t, sub)
		require.NotNil(t, sub.Metadata.Class)
		assert.Equal(t, "Logger", sub.Metadata.Class.SuperClass)
	})

	t.Run("imports", func(t *testing.T) {
		imp := byName(nodes, KindImport, "fs")
		require.NotNil(t, imp)
		assert.Equal(t, "testdata/sample.js:import:fs", imp.ID)
		require.NotNil(t, imp.Metadata.Import)
		assert.Equal(t, []string{"fs"}, imp.Metadata.Import.Specifiers)

		imp = byName(nodes, KindImport, "path")
		require.NotNil(t, imp)
		require.NotNil(t, imp.Metadata.Import)
		assert.Equal(t, []string{"join", "resolve"}, imp.Metadata.Import.Specifiers)
	})

	t.Run("exports capture declared names only", func(t *testing.T) {
		assert.Equal(t, 2, countKind(nodes, KindExport))

		exp := byName(nodes, KindExport, "init")
		require.NotNil(t, exp)
		require.NotNil(t, exp.Metadata.Export)
		assert.Equal(t, []string{"init"}, exp.Metadata.Export.Names)

		exp = byName(nodes, KindExport, "VERSION")
		require.NotNil(t, exp)
		assert.Equal(t, "testdata/sample.js:export:VERSION", exp.ID)
	})
}

func TestParseFile_TypeScript(t *testing.T) {
	nodes, err := New().ParseFile(filepath.Join("testdata", "sample.ts"))
	require.NoError(t, err)

	t.Run("async functions with typed parameters", func(t *testing.T) {
		fn := byName(nodes, KindFunction, "handleRequest")
		require.NotNil(t, fn)
		assert.Equal(t, []string{"req", "res"}, fn.Params)
		require.NotNil(t, fn.Metadata.Function)
		assert.True(t, fn.Metadata.Function.Async)
		assert.ElementsMatch(t, []string{"loadBody", "send"}, fn.Calls)
	})

	t.Run("extends clause", func(t *testing.T) {
		sub := byName(nodes, KindClass, "UserRoute")
		require.NotNil(t, sub)
		require.NotNil(t, sub.Metadata.Class)
		assert.Equal(t, "BaseRoute", sub.Metadata.Class.SuperClass)
	})

	t.Run("interface exports produce no node", func(t *testing.T) {
		assert.Nil(t, byName(nodes, KindExport, "RoutePlan"))
	})
}

func TestParseFile_SyntaxErrorKeepsFileNode(t *testing.T) {
	nodes, err := New().ParseFile(filepath.Join("testdata", "broken.js"))
	require.NoError(t, err)

	require.NotEmpty(t, nodes)
	file := nodes[0]
	assert.Equal(t, KindFile, file.Kind)
	assert.NotEmpty(t, file.Content)

	assert.Zero(t, countKind(nodes, KindFunction))
	assert.Zero(t, countKind(nodes, KindClass))
}

func TestParseFile_UnsupportedExtension(t *testing.T) {
	nodes, err := New().ParseFile(filepath.Join("testdata", "notes.txt"))
	require.NoError(t, err)

	// Only the file summary; no grammar matches .txt.
	require.Len(t, nodes, 1)
	assert.Equal(t, KindFile, nodes[0].Kind)
}

func TestParseDirectory(t *testing.T) {
	nodes, err := New().ParseDirectory(context.Background(), "testdata", Options{})
	require.NoError(t, err)

	// Walk order is deterministic, so broken.js leads and each file's summary
	// node precedes its symbols. The unparseable file contributes only its
	// file node without disturbing the others.
	require.NotEmpty(t, nodes)
	assert.Equal(t, KindFile, nodes[0].Kind)
	assert.Equal(t, "broken.js", nodes[0].Name)

	assert.NotNil(t, byName(nodes, KindFunction, "readConfig"))
	assert.NotNil(t, byName(nodes, KindFunction, "handleRequest"))
	assert.Equal(t, 3, countKind(nodes, KindFile))
}
