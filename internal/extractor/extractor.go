package extractor

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	sitter "github.com/smacker/go-tree-sitter"
	"golang.org/x/sync/errgroup"

	"codeatlas/internal/crawler"
)

// Extractor parses JS/TS source files into CodeNodes.
type Extractor struct {
	workers int
}

// Options controls a directory parse.
type Options struct {
	Extensions []string
	Exclude    []string
	Workers    int
}

const defaultWorkers = 8

func New() *Extractor {
	return &Extractor{workers: defaultWorkers}
}

// ParseFile parses a single source file. The path is used verbatim as the
// node filepath, so callers indexing a repository should pass
// repository-relative paths via ParseDirectory instead.
func (e *Extractor) ParseFile(path string) ([]*CodeNode, error) {
	return e.parse(context.Background(), path, filepath.ToSlash(path))
}

// ParseDirectory walks root, parses every matching file and concatenates the
// results. Files are parsed concurrently; output order follows walk order.
// Per-file parse failures are logged and never abort the walk.
func (e *Extractor) ParseDirectory(ctx context.Context, root string, opts Options) ([]*CodeNode, error) {
	files, err := crawler.Walk(root, crawler.Options{
		Extensions: opts.Extensions,
		Exclude:    opts.Exclude,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = e.workers
	}

	results := make([][]*CodeNode, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, f := range files {
		g.Go(func() error {
			nodes, err := e.parse(gctx, f.Path, f.Rel)
			if err != nil {
				// Unreadable files contribute nothing; the walk continues.
				log.Printf("skipping %s: %v", f.Rel, err)
				return nil
			}
			results[i] = nodes
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []*CodeNode
	for _, nodes := range results {
		all = append(all, nodes...)
	}
	return all, nil
}

// parse reads and parses one file. The file-summary node is always emitted
// for readable files; a hard parse failure discards any symbol nodes and
// returns only the file node.
func (e *Extractor) parse(ctx context.Context, diskPath, repoPath string) ([]*CodeNode, error) {
	src, err := os.ReadFile(diskPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	nodes := []*CodeNode{fileNode(repoPath, src)}

	lang := languageForExt(filepath.Ext(diskPath))
	if lang == nil {
		return nodes, nil
	}

	parser := sitter.NewParser()
	parser.SetLanguage(lang)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		log.Printf("failed to parse %s: %v", repoPath, err)
		return nodes, nil
	}
	defer tree.Close()

	query, err := sitter.NewQuery([]byte(symbolQuery), lang)
	if err != nil {
		return nil, fmt.Errorf("failed to compile symbol query: %w", err)
	}
	defer query.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(query, tree.RootNode())

	var spans []funcSpan
	var calls []callSite

	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		for _, c := range m.Captures {
			var node *CodeNode
			switch query.CaptureNameForId(c.Index) {
			case "function":
				node = extractFunction(c.Node, src, repoPath)
			case "variable":
				node = extractArrow(c.Node, src, repoPath)
			case "class":
				node = extractClass(c.Node, src, repoPath)
			case "import":
				node = extractImport(c.Node, src, repoPath)
			case "export":
				node = extractExport(c.Node, src, repoPath)
			case "call":
				if site, ok := extractCall(c.Node, src); ok {
					calls = append(calls, site)
				}
				continue
			}
			if node == nil {
				continue
			}
			nodes = append(nodes, node)
			if node.Kind == KindFunction {
				spans = append(spans, funcSpan{node: node, start: c.Node.StartByte(), end: c.Node.EndByte()})
			}
		}
	}

	attributeCalls(spans, calls)
	return nodes, nil
}
