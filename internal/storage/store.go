package storage

import (
	"context"

	"codeatlas/internal/extractor"
	"codeatlas/internal/knowledge"
)

// Store combines graph and vector storage capabilities.
type Store interface {
	GraphStore
	VectorStore
	Close() error
}

// GraphStore persists the code graph and answers relationship reads.
type GraphStore interface {
	// StoreAST upserts the repository node and all code nodes, then the
	// containment and relationship edges. Idempotent under repetition.
	StoreAST(ctx context.Context, nodes []*extractor.CodeNode, repoName, commitHash string) error

	// Relationships returns up to max outgoing (from, relation, to) triples
	// for the given node ids.
	Relationships(ctx context.Context, ids []string, max int) ([]Triple, error)

	// RepoCommit returns the last-indexed commit hash for a repository.
	RepoCommit(ctx context.Context, repoName string) (string, error)

	// FunctionCallers returns every function in the repository with a CALLS
	// edge to a function of the given name.
	FunctionCallers(ctx context.Context, repoName, name string) ([]CallerRef, error)

	// ImportUsage returns every file in the repository importing a module
	// whose source contains the given fragment.
	ImportUsage(ctx context.Context, repoName, module string) ([]ImportRef, error)
}

// VectorStore persists embeddings and answers similarity and lookup reads.
type VectorStore interface {
	// SaveEmbeddings upserts records by id. A failing record is logged and
	// skipped; it never aborts the rest of the batch.
	SaveEmbeddings(ctx context.Context, records []knowledge.Record) error

	// SearchSimilar ranks a repository's embeddings by cosine similarity
	// against the query vector, keeping results strictly above minSimilarity.
	// Results are scoped to the repository's current commit when known.
	SearchSimilar(ctx context.Context, vector []float32, repoName string, limit int, minSimilarity float64) ([]Chunk, error)

	// SimilarFunctions ranks functions against the stored vector of the
	// named function, excluding the function itself.
	SimilarFunctions(ctx context.Context, repoName, functionName string, limit int) ([]Chunk, error)

	// CodeByFilepath returns a file's records ordered by start line.
	CodeByFilepath(ctx context.Context, repoName, path string) ([]Chunk, error)

	// SearchPattern returns records whose content contains the pattern,
	// optionally filtered by kind.
	SearchPattern(ctx context.Context, repoName, pattern string, kind extractor.NodeKind) ([]Chunk, error)

	// ClearStaleEmbeddings deletes a repository's records from commits other
	// than the current one, returning the number removed.
	ClearStaleEmbeddings(ctx context.Context, repoName, currentCommit string) (int64, error)
}

// Chunk is one retrieval result row.
type Chunk struct {
	ID         string             `json:"id"`
	Filepath   string             `json:"filepath"`
	Kind       extractor.NodeKind `json:"kind"`
	Name       string             `json:"name"`
	Content    string             `json:"content"`
	StartLine  int                `json:"start_line"`
	EndLine    int                `json:"end_line"`
	Similarity float64            `json:"similarity,omitempty"`
}

// NodeRef identifies a graph node in a relationship triple.
type NodeRef struct {
	Name     string `json:"name"`
	Filepath string `json:"filepath"`
}

// Triple is one (from, relation, to) graph fact.
type Triple struct {
	From     NodeRef `json:"from"`
	Relation string  `json:"relation"`
	To       NodeRef `json:"to"`
}

// CallerRef locates a calling function.
type CallerRef struct {
	Name      string `json:"name"`
	Filepath  string `json:"filepath"`
	StartLine int    `json:"start_line"`
}

// ImportRef describes one file's use of an imported module.
type ImportRef struct {
	Filepath   string   `json:"filepath"`
	Source     string   `json:"source"`
	Specifiers []string `json:"specifiers"`
}

// Counts summarizes stored row counts, mostly for reporting and tests.
type Counts struct {
	Nodes      int
	Edges      int
	Embeddings int
}
