package retrieval

import (
	"context"
	"fmt"
	"log"

	"codeatlas/internal/extractor"
	"codeatlas/internal/knowledge"
	"codeatlas/internal/storage"
)

const (
	DefaultLimit         = 10
	DefaultMinSimilarity = 0.7

	// maxTriples bounds the graph-enrichment result per query.
	maxTriples = 50
)

// Options tunes one hybrid query.
type Options struct {
	Limit int
	// MinSimilarity is the strict lower bound on cosine similarity. Zero
	// means the default threshold; pass a negative value to rank without
	// a threshold.
	MinSimilarity float64
	IncludeGraph  bool
}

// DefaultOptions returns the standard query settings.
func DefaultOptions() Options {
	return Options{
		Limit:         DefaultLimit,
		MinSimilarity: DefaultMinSimilarity,
		IncludeGraph:  true,
	}
}

// Result is a hybrid query's combined answer: similarity-ranked code chunks
// plus their one-hop graph context.
type Result struct {
	CodeChunks    []storage.Chunk  `json:"code_chunks"`
	Relationships []storage.Triple `json:"relationships"`
}

// VectorSearcher is the slice of the vector store the engine reads from.
type VectorSearcher interface {
	SearchSimilar(ctx context.Context, vector []float32, repoName string, limit int, minSimilarity float64) ([]storage.Chunk, error)
	SimilarFunctions(ctx context.Context, repoName, functionName string, limit int) ([]storage.Chunk, error)
	CodeByFilepath(ctx context.Context, repoName, path string) ([]storage.Chunk, error)
	SearchPattern(ctx context.Context, repoName, pattern string, kind extractor.NodeKind) ([]storage.Chunk, error)
}

// GraphReader is the slice of the graph store the engine reads from.
type GraphReader interface {
	Relationships(ctx context.Context, ids []string, max int) ([]storage.Triple, error)
}

// Engine answers natural-language queries over the two indexes. It is
// stateless; all durable state lives in the stores.
type Engine struct {
	embedder knowledge.Embedder
	vectors  VectorSearcher
	graph    GraphReader
}

func NewEngine(embedder knowledge.Embedder, vectors VectorSearcher, graph GraphReader) *Engine {
	return &Engine{embedder: embedder, vectors: vectors, graph: graph}
}

// Query embeds the text, ranks stored chunks by cosine similarity and, when
// requested, attaches one-hop relationship context for the function and
// class results. Graph enrichment is best-effort: a graph failure degrades
// to an empty relationship list, never an error.
func (e *Engine) Query(ctx context.Context, text, repoName string, opts Options) (*Result, error) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.MinSimilarity == 0 {
		opts.MinSimilarity = DefaultMinSimilarity
	}

	vectors, err := e.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedder returned no vector for query")
	}

	chunks, err := e.vectors.SearchSimilar(ctx, vectors[0], repoName, opts.Limit, opts.MinSimilarity)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	result := &Result{CodeChunks: chunks, Relationships: []storage.Triple{}}
	if !opts.IncludeGraph || len(chunks) == 0 {
		return result, nil
	}

	var seedIDs []string
	for _, c := range chunks {
		if c.Kind == extractor.KindFunction || c.Kind == extractor.KindClass {
			seedIDs = append(seedIDs, c.ID)
		}
	}
	if len(seedIDs) == 0 {
		return result, nil
	}

	triples, err := e.graph.Relationships(ctx, seedIDs, maxTriples)
	if err != nil {
		log.Printf("failed to fetch graph context: %v", err)
		return result, nil
	}
	if triples != nil {
		result.Relationships = triples
	}
	return result, nil
}

// CodeByFilepath returns a file's indexed chunks in line order.
func (e *Engine) CodeByFilepath(ctx context.Context, repoName, path string) ([]storage.Chunk, error) {
	return e.vectors.CodeByFilepath(ctx, repoName, path)
}

// SearchPattern returns chunks whose content contains the pattern.
func (e *Engine) SearchPattern(ctx context.Context, repoName, pattern string, kind extractor.NodeKind) ([]storage.Chunk, error) {
	return e.vectors.SearchPattern(ctx, repoName, pattern, kind)
}

// SimilarFunctions ranks functions against a named function's stored vector,
// reusing the index-time embedding instead of computing a fresh one.
func (e *Engine) SimilarFunctions(ctx context.Context, repoName, functionName string, limit int) ([]storage.Chunk, error) {
	return e.vectors.SimilarFunctions(ctx, repoName, functionName, limit)
}
