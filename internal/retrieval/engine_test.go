package retrieval

import (
	"context"
	"fmt"
	"testing"

	"codeatlas/internal/extractor"
	"codeatlas/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = f.vector
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return len(f.vector) }

type fakeVectors struct {
	chunks []storage.Chunk
	err    error

	gotLimit  int
	gotMinSim float64
	gotRepo   string
}

func (f *fakeVectors) SearchSimilar(ctx context.Context, vector []float32, repoName string, limit int, minSimilarity float64) ([]storage.Chunk, error) {
	f.gotRepo, f.gotLimit, f.gotMinSim = repoName, limit, minSimilarity
	if f.err != nil {
		return nil, f.err
	}
	chunks := f.chunks
	if limit > 0 && len(chunks) > limit {
		chunks = chunks[:limit]
	}
	return chunks, nil
}

func (f *fakeVectors) SimilarFunctions(ctx context.Context, repoName, functionName string, limit int) ([]storage.Chunk, error) {
	return f.chunks, f.err
}

func (f *fakeVectors) CodeByFilepath(ctx context.Context, repoName, path string) ([]storage.Chunk, error) {
	return f.chunks, f.err
}

func (f *fakeVectors) SearchPattern(ctx context.Context, repoName, pattern string, kind extractor.NodeKind) ([]storage.Chunk, error) {
	return f.chunks, f.err
}

type fakeGraph struct {
	triples []storage.Triple
	err     error

	calls   int
	gotIDs  []string
	gotMax  int
}

func (f *fakeGraph) Relationships(ctx context.Context, ids []string, max int) ([]storage.Triple, error) {
	f.calls++
	f.gotIDs, f.gotMax = ids, max
	return f.triples, f.err
}

func chunk(id string, kind extractor.NodeKind, sim float64) storage.Chunk {
	return storage.Chunk{ID: id, Kind: kind, Name: id, Similarity: sim}
}

func TestQuery_Hybrid(t *testing.T) {
	vectors := &fakeVectors{chunks: []storage.Chunk{
		chunk("a.ts:login", extractor.KindFunction, 0.95),
		chunk("a.ts", extractor.KindFile, 0.85),
		chunk("a.ts:Session", extractor.KindClass, 0.8),
	}}
	graph := &fakeGraph{triples: []storage.Triple{{
		From:     storage.NodeRef{Name: "login", Filepath: "a.ts"},
		Relation: "CALLS",
		To:       storage.NodeRef{Name: "verify", Filepath: "b.ts"},
	}}}
	engine := NewEngine(&fakeEmbedder{vector: []float32{1, 0}}, vectors, graph)

	result, err := engine.Query(context.Background(), "how does login work", "myrepo", DefaultOptions())
	require.NoError(t, err)
	require.Len(t, result.CodeChunks, 3)
	require.Len(t, result.Relationships, 1)
	assert.Equal(t, "verify", result.Relationships[0].To.Name)

	// Only function and class chunks seed the graph lookup.
	assert.Equal(t, []string{"a.ts:login", "a.ts:Session"}, graph.gotIDs)
	assert.Equal(t, 50, graph.gotMax)
	assert.Equal(t, "myrepo", vectors.gotRepo)
}

func TestQuery_DefaultsApplied(t *testing.T) {
	vectors := &fakeVectors{}
	engine := NewEngine(&fakeEmbedder{vector: []float32{1}}, vectors, &fakeGraph{})

	_, err := engine.Query(context.Background(), "q", "r", Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultLimit, vectors.gotLimit)
	assert.Equal(t, DefaultMinSimilarity, vectors.gotMinSim)
}

func TestQuery_NegativeMinSimilarityDisablesThreshold(t *testing.T) {
	vectors := &fakeVectors{}
	engine := NewEngine(&fakeEmbedder{vector: []float32{1}}, vectors, &fakeGraph{})

	_, err := engine.Query(context.Background(), "q", "r", Options{MinSimilarity: -1})
	require.NoError(t, err)

	// A negative threshold is an explicit "no floor" and must reach the
	// store untouched; only zero means the default.
	assert.Equal(t, -1.0, vectors.gotMinSim)
}

func TestQuery_GraphSkippedWhenDisabled(t *testing.T) {
	graph := &fakeGraph{}
	vectors := &fakeVectors{chunks: []storage.Chunk{chunk("a.ts:f", extractor.KindFunction, 0.9)}}
	engine := NewEngine(&fakeEmbedder{vector: []float32{1}}, vectors, graph)

	result, err := engine.Query(context.Background(), "q", "r", Options{IncludeGraph: false, Limit: 5, MinSimilarity: 0.5})
	require.NoError(t, err)
	assert.Len(t, result.CodeChunks, 1)
	assert.Empty(t, result.Relationships)
	assert.Zero(t, graph.calls)
}

func TestQuery_GraphSkippedWithoutSymbolSeeds(t *testing.T) {
	graph := &fakeGraph{}
	vectors := &fakeVectors{chunks: []storage.Chunk{chunk("a.ts", extractor.KindFile, 0.9)}}
	engine := NewEngine(&fakeEmbedder{vector: []float32{1}}, vectors, graph)

	result, err := engine.Query(context.Background(), "q", "r", DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, result.CodeChunks, 1)
	assert.Zero(t, graph.calls)
	assert.NotNil(t, result.Relationships)
}

func TestQuery_GraphFailureDegrades(t *testing.T) {
	graph := &fakeGraph{err: fmt.Errorf("graph store down")}
	vectors := &fakeVectors{chunks: []storage.Chunk{chunk("a.ts:f", extractor.KindFunction, 0.9)}}
	engine := NewEngine(&fakeEmbedder{vector: []float32{1}}, vectors, graph)

	result, err := engine.Query(context.Background(), "q", "r", DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, result.CodeChunks, 1)
	assert.Empty(t, result.Relationships)
	assert.Equal(t, 1, graph.calls)
}

func TestQuery_EmbedFailure(t *testing.T) {
	engine := NewEngine(&fakeEmbedder{err: fmt.Errorf("api down")}, &fakeVectors{}, &fakeGraph{})

	_, err := engine.Query(context.Background(), "q", "r", DefaultOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to embed query")
}

func TestQuery_VectorFailure(t *testing.T) {
	engine := NewEngine(&fakeEmbedder{vector: []float32{1}}, &fakeVectors{err: fmt.Errorf("db locked")}, &fakeGraph{})

	_, err := engine.Query(context.Background(), "q", "r", DefaultOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vector search failed")
}

func TestQuery_NoResults(t *testing.T) {
	engine := NewEngine(&fakeEmbedder{vector: []float32{1}}, &fakeVectors{}, &fakeGraph{})

	result, err := engine.Query(context.Background(), "q", "r", Options{MinSimilarity: 0.99})
	require.NoError(t, err)
	assert.Empty(t, result.CodeChunks)
	assert.NotNil(t, result.Relationships)
}
