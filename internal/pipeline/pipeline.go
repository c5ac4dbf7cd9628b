package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"codeatlas/internal/extractor"
	"codeatlas/internal/git"
	"codeatlas/internal/knowledge"
)

// ErrCostNotConfirmed is returned when the estimated embedding cost exceeds
// the confirmation threshold and the run was not confirmed. The graph store
// phase has already completed when this is returned.
var ErrCostNotConfirmed = errors.New("embedding cost above threshold; run not confirmed")

// costThreshold is the USD estimate above which a run needs confirmation.
const costThreshold = 0.10

// Sink is the slice of the store the pipeline writes to.
type Sink interface {
	StoreAST(ctx context.Context, nodes []*extractor.CodeNode, repoName, commitHash string) error
	SaveEmbeddings(ctx context.Context, records []knowledge.Record) error
	ClearStaleEmbeddings(ctx context.Context, repoName, currentCommit string) (int64, error)
}

// Options configures one indexing run.
type Options struct {
	Root     string
	RepoName string
	// CommitHash overrides git discovery; empty means `git rev-parse HEAD`.
	CommitHash  string
	Extensions  []string
	Exclude     []string
	Workers     int
	AutoConfirm bool
}

// Report summarizes one indexing run.
type Report struct {
	CommitHash      string                     `json:"commit_hash"`
	NodeCounts      map[extractor.NodeKind]int `json:"node_counts"`
	TotalNodes      int                        `json:"total_nodes"`
	EmbeddingCount  int                        `json:"embedding_count"`
	EstimatedTokens int                        `json:"estimated_tokens"`
	EstimatedCost   float64                    `json:"estimated_cost"`
	StalePruned     int64                      `json:"stale_pruned"`
	GraphFailed     bool                       `json:"graph_failed,omitempty"`

	ParseDuration time.Duration `json:"parse_duration"`
	GraphDuration time.Duration `json:"graph_duration"`
	EmbedDuration time.Duration `json:"embed_duration"`
	StoreDuration time.Duration `json:"store_duration"`
}

// Pipeline drives one full indexing run: walk, extract, graph store,
// embedding generation, vector store, stale pruning.
type Pipeline struct {
	extractor *extractor.Extractor
	generator *knowledge.Generator
	sink      Sink
	logf      func(format string, args ...any)
}

func New(sink Sink, generator *knowledge.Generator, logf func(format string, args ...any)) *Pipeline {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Pipeline{
		extractor: extractor.New(),
		generator: generator,
		sink:      sink,
		logf:      logf,
	}
}

// Run indexes one repository snapshot. A graph-store failure is logged and
// the embedding path continues; an embedding failure aborts the run. Both
// stores are idempotent, so re-running after a partial failure is safe.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Report, error) {
	report := &Report{NodeCounts: make(map[extractor.NodeKind]int)}

	commitHash := opts.CommitHash
	if commitHash == "" {
		var err error
		commitHash, err = git.Head(opts.Root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve commit hash: %w", err)
		}
	}
	report.CommitHash = commitHash
	p.logf("indexing %s at %s", opts.RepoName, git.Short(commitHash))

	start := time.Now()
	nodes, err := p.extractor.ParseDirectory(ctx, opts.Root, extractor.Options{
		Extensions: opts.Extensions,
		Exclude:    opts.Exclude,
		Workers:    opts.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("parse stage failed: %w", err)
	}
	report.ParseDuration = time.Since(start)
	report.TotalNodes = len(nodes)
	for _, n := range nodes {
		report.NodeCounts[n.Kind]++
	}
	p.logf("parsed %d nodes in %v", len(nodes), report.ParseDuration)

	start = time.Now()
	if err := p.sink.StoreAST(ctx, nodes, opts.RepoName, commitHash); err != nil {
		// The embedding path is independent of the graph path; keep going.
		p.logf("graph store failed: %v (continuing with embeddings)", err)
		report.GraphFailed = true
	}
	report.GraphDuration = time.Since(start)

	records := knowledge.Render(nodes, opts.RepoName, commitHash)
	report.EstimatedTokens = knowledge.EstimateTokens(records)
	report.EstimatedCost = knowledge.Cost(report.EstimatedTokens)
	p.logf("estimated %d tokens ($%.4f)", report.EstimatedTokens, report.EstimatedCost)

	if report.EstimatedCost > costThreshold && !opts.AutoConfirm {
		return report, ErrCostNotConfirmed
	}

	start = time.Now()
	if err := p.generator.Embed(ctx, records); err != nil {
		return report, fmt.Errorf("embedding stage failed: %w", err)
	}
	report.EmbedDuration = time.Since(start)
	report.EmbeddingCount = len(records)

	start = time.Now()
	if err := p.sink.SaveEmbeddings(ctx, records); err != nil {
		return report, fmt.Errorf("embedding store stage failed: %w", err)
	}
	report.StoreDuration = time.Since(start)

	// Pruning is keyed to the repos row advancing to this commit. When the
	// graph store failed the row still points at the previous commit, and
	// deleting its records would empty the commit-scoped query surface.
	if report.GraphFailed {
		p.logf("skipping stale-embedding prune: repository commit not advanced")
	} else {
		pruned, err := p.sink.ClearStaleEmbeddings(ctx, opts.RepoName, commitHash)
		if err != nil {
			p.logf("failed to prune stale embeddings: %v", err)
		} else {
			report.StalePruned = pruned
		}
	}

	p.logf("indexed %d nodes, %d embeddings", report.TotalNodes, report.EmbeddingCount)
	return report, nil
}
