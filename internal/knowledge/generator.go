package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"codeatlas/internal/extractor"
)

const (
	// batchSize nodes are embedded per model call, with a short pause
	// between batches to stay under upstream rate limits.
	batchSize  = 100
	batchDelay = 100 * time.Millisecond

	// renderContentLimit bounds the code excerpt in a rendered block.
	renderContentLimit = 2000

	// costPerMillionTokens is the text-embedding-3-small rate in USD.
	costPerMillionTokens = 0.02
)

// Generator turns CodeNodes into embedding Records.
type Generator struct {
	embedder Embedder
}

func NewGenerator(embedder Embedder) *Generator {
	return &Generator{embedder: embedder}
}

// Generate renders every node and embeds the results. It does not persist
// anything; a failed batch aborts the whole call with no partial result.
func (g *Generator) Generate(ctx context.Context, nodes []*extractor.CodeNode, repoName, commitHash string) ([]Record, error) {
	records := Render(nodes, repoName, commitHash)
	if err := g.Embed(ctx, records); err != nil {
		return nil, err
	}
	return records, nil
}

// Embed populates the vectors of pre-rendered records in fixed-size batches.
func (g *Generator) Embed(ctx context.Context, records []Record) error {
	for i := 0; i < len(records); i += batchSize {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(batchDelay):
			}
		}

		end := i + batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[i:end]

		texts := make([]string, len(batch))
		for j, r := range batch {
			texts[j] = r.Content
		}

		vectors, err := g.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed batch %d: %w", i/batchSize+1, err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embedding count mismatch: got %d, expected %d", len(vectors), len(batch))
		}
		for j := range batch {
			records[i+j].Embedding = vectors[j]
		}
	}
	return nil
}

// Render normalizes nodes into embeddable Records. The structured text block
// embeds better than raw source.
func Render(nodes []*extractor.CodeNode, repoName, commitHash string) []Record {
	records := make([]Record, 0, len(nodes))
	for _, n := range nodes {
		records = append(records, Record{
			ID:         n.ID,
			RepoName:   repoName,
			CommitHash: commitHash,
			Filepath:   n.Filepath,
			Kind:       n.Kind,
			Name:       n.Name,
			Content:    renderNode(n),
			StartLine:  n.StartLine,
			EndLine:    n.EndLine,
		})
	}
	return records
}

func renderNode(n *extractor.CodeNode) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Type: %s\n", n.Kind)
	fmt.Fprintf(&sb, "Name: %s\n", n.Name)
	fmt.Fprintf(&sb, "File: %s\n", n.Filepath)
	if n.StartLine > 0 {
		fmt.Fprintf(&sb, "Lines: %d-%d\n", n.StartLine, n.EndLine)
	}
	if len(n.Params) > 0 {
		fmt.Fprintf(&sb, "Parameters: %s\n", strings.Join(n.Params, ", "))
	}

	content := n.Content
	if len(content) > renderContentLimit {
		content = content[:renderContentLimit]
	}
	fmt.Fprintf(&sb, "\nCode:\n%s", content)
	return sb.String()
}

// EstimateTokens approximates the token count of the rendered records at
// roughly four characters per token. Advisory only.
func EstimateTokens(records []Record) int {
	total := 0
	for _, r := range records {
		total += len(r.Content)
	}
	return (total + 3) / 4
}

// Cost converts a token count into USD at the fixed per-million rate.
func Cost(tokens int) float64 {
	return float64(tokens) / 1_000_000 * costPerMillionTokens
}
