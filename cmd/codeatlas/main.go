package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"codeatlas/internal/config"
	"codeatlas/internal/extractor"
	"codeatlas/internal/knowledge"
	"codeatlas/internal/pipeline"
	"codeatlas/internal/retrieval"
	"codeatlas/internal/storage"

	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:   "codeatlas",
		Short: "Hybrid code knowledge base: structural graph + semantic search",
	}
	dbPath     string
	configPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "codeatlas.db", "Path to the local knowledge database (SQLite)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the config file")

	indexCmd.Flags().BoolP("yes", "y", false, "Proceed without confirmation regardless of estimated cost")
	indexCmd.Flags().String("repo", "", "Repository name (defaults to the directory name)")

	queryCmd.Flags().Int("limit", retrieval.DefaultLimit, "Maximum number of code chunks")
	queryCmd.Flags().Float64("min-similarity", retrieval.DefaultMinSimilarity, "Similarity threshold (0-1)")
	queryCmd.Flags().Bool("no-graph", false, "Skip graph context for the results")
	queryCmd.Flags().String("repo", "", "Restrict to one repository")

	similarCmd.Flags().Int("limit", 5, "Maximum number of similar functions")
	similarCmd.Flags().String("repo", "", "Repository to look in")

	searchCmd.Flags().String("kind", "", "Restrict to a node kind (function, class, file, import, export)")
	searchCmd.Flags().String("repo", "", "Repository to look in")

	fileCmd.Flags().String("repo", "", "Repository to look in")
	callersCmd.Flags().String("repo", "", "Repository to look in")
	importsCmd.Flags().String("repo", "", "Repository to look in")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(similarCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(callersCmd)
	rootCmd.AddCommand(importsCmd)
	rootCmd.AddCommand(fileCmd)
}

func initStore() (*storage.SQLiteStore, error) {
	return storage.NewSQLiteStore(dbPath)
}

// resolveRepo picks the repository name from the --repo flag, falling back
// to the config file. Store reads are always repo-scoped.
func resolveRepo(cmd *cobra.Command) string {
	repoName, _ := cmd.Flags().GetString("repo")
	if repoName == "" {
		if cfg, err := config.LoadConfig(configPath); err == nil {
			repoName = cfg.Repo.Name
		}
	}
	if repoName == "" {
		log.Fatalf("Repository name required: pass --repo or set repo.name in %s", configPath)
	}
	return repoName
}

func initEmbedder(ctx context.Context, cfg *config.Config) (knowledge.Embedder, error) {
	if cfg.AI.APIKey == "" && cfg.AI.Provider != "ollama" {
		return nil, fmt.Errorf("AI API key not configured")
	}
	return knowledge.NewEmbedder(ctx, knowledge.EmbedderOptions{
		Provider:  cfg.AI.Provider,
		APIKey:    cfg.AI.APIKey,
		Model:     cfg.AI.Model,
		Dimension: cfg.AI.Dimension,
		BaseURL:   cfg.AI.BaseURL,
	})
}

// initEngine wires the retrieval engine against the store and embedder.
func initEngine(ctx context.Context, store *storage.SQLiteStore) (*retrieval.Engine, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	embedder, err := initEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return retrieval.NewEngine(embedder, store, store), nil
}

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Parse a repository and store its graph and embeddings",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		root := "."
		if len(args) > 0 {
			root = args[0]
		}
		absRoot, err := filepath.Abs(root)
		if err != nil {
			log.Fatalf("Failed to resolve path: %v", err)
		}

		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}

		repoName, _ := cmd.Flags().GetString("repo")
		if repoName == "" {
			repoName = cfg.Repo.Name
		}
		if repoName == "" {
			repoName = filepath.Base(absRoot)
		}

		autoConfirm, _ := cmd.Flags().GetBool("yes")
		autoConfirm = autoConfirm || cfg.Indexing.AutoConfirm

		store, err := initStore()
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer store.Close()

		embedder, err := initEmbedder(ctx, cfg)
		if err != nil {
			log.Fatalf("Failed to create embedder: %v", err)
		}

		fmt.Printf("📂 Indexing %s (%s)\n", repoName, absRoot)

		p := pipeline.New(store, knowledge.NewGenerator(embedder), log.Printf)
		report, err := p.Run(ctx, pipeline.Options{
			Root:        absRoot,
			RepoName:    repoName,
			Extensions:  cfg.Indexing.Extensions,
			Exclude:     cfg.Indexing.Exclude,
			Workers:     cfg.Indexing.Workers,
			AutoConfirm: autoConfirm,
		})
		if errors.Is(err, pipeline.ErrCostNotConfirmed) {
			fmt.Printf("⚠️  Estimated embedding cost $%.4f exceeds $0.10.\n", report.EstimatedCost)
			fmt.Println("   Re-run with --yes (or set CODEATLAS_CONFIRM_EMBEDDINGS=true) to proceed.")
			os.Exit(1)
		}
		if err != nil {
			log.Fatalf("Indexing failed: %v", err)
		}

		fmt.Printf("✅ Parsed %d nodes in %v", report.TotalNodes, report.ParseDuration)
		for kind, count := range report.NodeCounts {
			fmt.Printf(" %s=%d", kind, count)
		}
		fmt.Println()
		if report.GraphFailed {
			fmt.Println("⚠️  Graph store failed; embeddings were still written.")
		}
		fmt.Printf("🧠 Stored %d embeddings (~%d tokens, $%.4f) in %v\n",
			report.EmbeddingCount, report.EstimatedTokens, report.EstimatedCost,
			report.EmbedDuration+report.StoreDuration)
		if report.StalePruned > 0 {
			fmt.Printf("🧹 Pruned %d stale embeddings.\n", report.StalePruned)
		}
		fmt.Printf("🎉 Done. Database: %s\n", dbPath)
	},
}

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Search the codebase semantically, with graph context",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		question := strings.Join(args, " ")

		store, err := initStore()
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer store.Close()

		engine, err := initEngine(ctx, store)
		if err != nil {
			log.Fatalf("Setup failed: %v\nCheck your config.yaml and API keys.", err)
		}

		limit, _ := cmd.Flags().GetInt("limit")
		minSim, _ := cmd.Flags().GetFloat64("min-similarity")
		noGraph, _ := cmd.Flags().GetBool("no-graph")
		repoName := resolveRepo(cmd)

		result, err := engine.Query(ctx, question, repoName, retrieval.Options{
			Limit:         limit,
			MinSimilarity: minSim,
			IncludeGraph:  !noGraph,
		})
		if err != nil {
			log.Fatalf("Query failed: %v", err)
		}

		if len(result.CodeChunks) == 0 {
			fmt.Println("No results above the similarity threshold.")
			return
		}

		for i, chunk := range result.CodeChunks {
			fmt.Printf("%d. [%s] %s (%s:%d-%d) similarity=%.3f\n",
				i+1, chunk.Kind, chunk.Name, chunk.Filepath, chunk.StartLine, chunk.EndLine, chunk.Similarity)
			fmt.Println(indent(chunk.Content, "   "))
		}

		if len(result.Relationships) > 0 {
			fmt.Println("\n🔗 Relationships:")
			for _, t := range result.Relationships {
				fmt.Printf("   %s (%s) -[%s]-> %s (%s)\n",
					t.From.Name, t.From.Filepath, t.Relation, t.To.Name, t.To.Filepath)
			}
		}
	},
}

var similarCmd = &cobra.Command{
	Use:   "similar <function>",
	Short: "Find functions semantically similar to a named function",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		store, err := initStore()
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer store.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		chunks, err := store.SimilarFunctions(ctx, resolveRepo(cmd), args[0], limit)
		if err != nil {
			log.Fatalf("Lookup failed: %v", err)
		}
		if len(chunks) == 0 {
			fmt.Printf("No function named %q is indexed.\n", args[0])
			return
		}
		for i, chunk := range chunks {
			fmt.Printf("%d. %s (%s:%d-%d) similarity=%.3f\n",
				i+1, chunk.Name, chunk.Filepath, chunk.StartLine, chunk.EndLine, chunk.Similarity)
		}
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <pattern>",
	Short: "Search indexed code by name or content substring",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		store, err := initStore()
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer store.Close()

		kind, _ := cmd.Flags().GetString("kind")
		chunks, err := store.SearchPattern(ctx, resolveRepo(cmd), args[0], extractor.NodeKind(kind))
		if err != nil {
			log.Fatalf("Search failed: %v", err)
		}
		if len(chunks) == 0 {
			fmt.Println("No matches.")
			return
		}
		for _, chunk := range chunks {
			fmt.Printf("[%s] %s (%s:%d-%d)\n", chunk.Kind, chunk.Name, chunk.Filepath, chunk.StartLine, chunk.EndLine)
		}
	},
}

var callersCmd = &cobra.Command{
	Use:   "callers <function>",
	Short: "List functions that call the named function",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		store, err := initStore()
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer store.Close()

		callers, err := store.FunctionCallers(ctx, resolveRepo(cmd), args[0])
		if err != nil {
			log.Fatalf("Lookup failed: %v", err)
		}
		if len(callers) == 0 {
			fmt.Printf("No indexed callers of %q.\n", args[0])
			return
		}
		for _, c := range callers {
			fmt.Printf("%s (%s:%d)\n", c.Name, c.Filepath, c.StartLine)
		}
	},
}

var importsCmd = &cobra.Command{
	Use:   "imports <module>",
	Short: "List files importing the named module",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		store, err := initStore()
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer store.Close()

		refs, err := store.ImportUsage(ctx, resolveRepo(cmd), args[0])
		if err != nil {
			log.Fatalf("Lookup failed: %v", err)
		}
		if len(refs) == 0 {
			fmt.Printf("No indexed imports of %q.\n", args[0])
			return
		}
		for _, ref := range refs {
			fmt.Printf("%s imports %q", ref.Filepath, ref.Source)
			if len(ref.Specifiers) > 0 {
				fmt.Printf(" { %s }", strings.Join(ref.Specifiers, ", "))
			}
			fmt.Println()
		}
	},
}

var fileCmd = &cobra.Command{
	Use:   "file <path>",
	Short: "Show the indexed structure of one file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		store, err := initStore()
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer store.Close()

		chunks, err := store.CodeByFilepath(ctx, resolveRepo(cmd), args[0])
		if err != nil {
			log.Fatalf("Lookup failed: %v", err)
		}
		if len(chunks) == 0 {
			fmt.Printf("Nothing indexed for %q.\n", args[0])
			return
		}
		for _, chunk := range chunks {
			fmt.Printf("[%s] %s (lines %d-%d)\n", chunk.Kind, chunk.Name, chunk.StartLine, chunk.EndLine)
		}
	},
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
