package knowledge

import (
	"context"

	"codeatlas/internal/extractor"
)

// Embedder converts text into fixed-length vectors. Implementations batch
// and rate-limit internally; an error is fatal for the whole call.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Record is one embeddable unit: a CodeNode's denormalized identity plus the
// rendered text that gets embedded. The vector is populated by Generate.
type Record struct {
	ID         string             `json:"id"`
	RepoName   string             `json:"repo_name"`
	CommitHash string             `json:"commit_hash"`
	Filepath   string             `json:"filepath"`
	Kind       extractor.NodeKind `json:"kind"`
	Name       string             `json:"name"`
	Content    string             `json:"content"`
	StartLine  int                `json:"start_line"`
	EndLine    int                `json:"end_line"`
	Embedding  []float32          `json:"-"`
}
