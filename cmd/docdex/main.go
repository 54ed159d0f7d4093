package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/docdex/docdex/internal/arxiv"
	"github.com/docdex/docdex/internal/chunker"
	"github.com/docdex/docdex/internal/config"
	"github.com/docdex/docdex/internal/embed"
	"github.com/docdex/docdex/internal/ingest"
	"github.com/docdex/docdex/internal/store"
	"github.com/docdex/docdex/internal/version"
	"github.com/docdex/docdex/internal/web"
)

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var (
	flagVerbose      bool
	flagFetchLimit   int
	flagSearchLimit  int
	flagSimilarLimit int
	flagJSON         bool
	flagQuery        string
	flagTitle        string
	flagHost         string
	flagPort         int
)

var rootCmd = &cobra.Command{
	Use:     "docdex",
	Short:   "Local document embedding and retrieval store",
	Version: version.Full(),
	Long: `docdex indexes document text for semantic search. Documents are
chunked into overlapping word windows, embedded through Ollama or OpenAI
(falling back to keyword matching when neither is available), and searched
by similarity.`,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize docdex in the current directory",
	Long: `Initialize docdex in the current directory. This creates a .docdex
directory holding the configuration and index snapshot.`,
	RunE: runInit,
}

var addCmd = &cobra.Command{
	Use:   "add <path>...",
	Short: "Add text documents to the index",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAdd,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [arxiv-id]",
	Short: "Fetch an Arxiv paper into the index",
	Long: `Fetch a paper from Arxiv by id and index its title and abstract.
With --query, search Arxiv instead and index the top matches.`,
	RunE: runFetch,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the indexed documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var similarCmd = &cobra.Command{
	Use:   "similar <document-id>",
	Short: "Show a document's chunks in storage order",
	Args:  cobra.ExactArgs(1),
	RunE:  runSimilar,
}

var removeCmd = &cobra.Command{
	Use:   "remove <document-id>",
	Short: "Remove a document from the index",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index statistics",
	RunE:  runStatus,
}

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Watch a directory and keep its documents indexed",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the index over a JSON HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose logging")

	addCmd.Flags().StringVar(&flagTitle, "title", "", "override the document title")
	fetchCmd.Flags().StringVar(&flagQuery, "query", "", "search Arxiv instead of fetching by id")
	fetchCmd.Flags().IntVar(&flagFetchLimit, "limit", 3, "number of search results to index")
	searchCmd.Flags().IntVarP(&flagSearchLimit, "limit", "k", 5, "maximum number of results")
	searchCmd.Flags().BoolVar(&flagJSON, "json", false, "output results as JSON")
	similarCmd.Flags().IntVarP(&flagSimilarLimit, "limit", "k", 3, "maximum number of chunks")
	serveCmd.Flags().StringVar(&flagHost, "host", "", "bind address (default from config)")
	serveCmd.Flags().IntVar(&flagPort, "port", 0, "port (default from config)")

	rootCmd.AddCommand(initCmd, addCmd, fetchCmd, searchCmd, similarCmd, removeCmd, statusCmd, watchCmd, serveCmd)
}

func newLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if flagVerbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// openIndex loads config and constructs the retrieval index with the
// configured similarity backend.
func openIndex(ctx context.Context, logger *zap.Logger) (*store.Index, *config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(cwd)
	if err != nil {
		return nil, nil, err
	}

	backend, err := buildBackend(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	c, err := chunker.New(chunker.Config{
		ChunkSize:    cfg.Chunking.ChunkSize,
		ChunkOverlap: cfg.Chunking.ChunkOverlap,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("chunking config: %w", err)
	}

	idx, err := store.Open(store.Options{
		Path:    cfg.IndexPath,
		Backend: backend,
		Chunker: c,
		Logger:  logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return idx, cfg, nil
}

func buildBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Backend, error) {
	switch cfg.Embedding.Provider {
	case "lexical", "none":
		return store.NewLexicalBackend(), nil

	case "ollama":
		provider := embed.NewOllamaProvider(embed.OllamaConfig{
			URL:        cfg.Embedding.OllamaURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
		})
		return store.NewDenseBackend(embed.WithCache(provider, 4096)), nil

	case "openai":
		provider := embed.NewOpenAIProvider(embed.OpenAIConfig{
			APIKey: cfg.Embedding.OpenAIAPIKey,
		})
		return store.NewDenseBackend(embed.WithCache(provider, 4096)), nil

	case "auto", "":
		provider, err := embed.Detect(ctx, embed.DetectConfig{
			OllamaURL:      cfg.Embedding.OllamaURL,
			PreferredModel: cfg.Embedding.Model,
		})
		if err != nil {
			logger.Warn("no embedding provider available, using keyword matching")
			return store.NewLexicalBackend(), nil
		}
		logger.Debug("embedding provider detected", zap.String("model", provider.Model()))
		return store.NewDenseBackend(embed.WithCache(provider, 4096)), nil

	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	cfg := config.DefaultConfig(cwd)
	if err := cfg.Write(); err != nil {
		return err
	}
	fmt.Printf("Initialized docdex in %s\n", cfg.DataDir)
	return nil
}

func runAdd(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	defer logger.Sync()
	ctx := cmd.Context()

	idx, _, err := openIndex(ctx, logger)
	if err != nil {
		return err
	}

	var docs []*ingest.Document
	for _, path := range args {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if info.IsDir() {
			dirDocs, err := ingest.LoadDir(path)
			if err != nil {
				return err
			}
			docs = append(docs, dirDocs...)
			continue
		}
		doc, err := ingest.LoadFile(path)
		if err != nil {
			return err
		}
		if flagTitle != "" {
			doc.Title = flagTitle
			doc.Metadata["title"] = flagTitle
		}
		docs = append(docs, doc)
	}

	for _, doc := range docs {
		if err := idx.AddDocument(ctx, doc.Text, doc.Metadata); err != nil {
			return fmt.Errorf("add %q: %w", doc.Title, err)
		}
		fmt.Printf("Indexed %q (document %s)\n", doc.Title, doc.ID)
	}

	stats := idx.Stats()
	fmt.Printf("%d documents, %d chunks indexed\n", stats.TotalDocuments, stats.TotalChunks)
	return nil
}

func runFetch(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	defer logger.Sync()
	ctx := cmd.Context()

	if flagQuery == "" && len(args) == 0 {
		return fmt.Errorf("provide an arxiv id or --query")
	}

	idx, _, err := openIndex(ctx, logger)
	if err != nil {
		return err
	}
	client := arxiv.NewClient("")

	var papers []arxiv.Paper
	if flagQuery != "" {
		papers, err = client.Search(ctx, flagQuery, flagFetchLimit)
		if err != nil {
			return err
		}
	} else {
		paper, err := client.Fetch(ctx, args[0])
		if err != nil {
			return err
		}
		papers = []arxiv.Paper{*paper}
	}

	for i := range papers {
		p := &papers[i]
		if err := idx.AddDocument(ctx, p.Text(), p.Metadata()); err != nil {
			return fmt.Errorf("index %q: %w", p.Title, err)
		}
		fmt.Printf("Indexed %q (arxiv:%s)\n", p.Title, p.ID)
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	defer logger.Sync()
	ctx := cmd.Context()

	idx, _, err := openIndex(ctx, logger)
	if err != nil {
		return err
	}

	query := strings.Join(args, " ")
	results, err := idx.Search(ctx, query, flagSearchLimit)
	if err != nil {
		return err
	}

	if flagJSON {
		return json.NewEncoder(os.Stdout).Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for i, r := range results {
		title, _ := r.Metadata["title"].(string)
		docID, _ := r.Metadata[store.MetaDocumentID].(string)
		fmt.Printf("%d. [%.3f] %s (%s)\n", i+1, r.Score, title, docID)
		fmt.Printf("   %s\n", preview(r.Text, 160))
	}
	return nil
}

func runSimilar(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	defer logger.Sync()

	idx, _, err := openIndex(cmd.Context(), logger)
	if err != nil {
		return err
	}

	chunks := idx.SimilarChunks(args[0], flagSimilarLimit)
	if len(chunks) == 0 {
		fmt.Printf("No chunks for document %s\n", args[0])
		return nil
	}
	for i, chunk := range chunks {
		fmt.Printf("--- chunk %d ---\n%s\n", i, preview(chunk, 400))
	}
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	defer logger.Sync()

	idx, _, err := openIndex(cmd.Context(), logger)
	if err != nil {
		return err
	}

	removed, err := idx.RemoveDocument(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if removed == 0 {
		fmt.Printf("No chunks found for document %s\n", args[0])
		return nil
	}
	fmt.Printf("Removed %d chunks of document %s\n", removed, args[0])
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	defer logger.Sync()

	idx, cfg, err := openIndex(cmd.Context(), logger)
	if err != nil {
		return err
	}

	stats := idx.Stats()
	fmt.Printf("Index:     %s\n", cfg.IndexPath)
	fmt.Printf("Backend:   %s\n", idx.Backend().Name())
	fmt.Printf("Documents: %d\n", stats.TotalDocuments)
	fmt.Printf("Chunks:    %d\n", stats.TotalChunks)
	fmt.Printf("Vectors:   %d\n", stats.IndexSize)
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	defer logger.Sync()

	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	idx, _, err := openIndex(ctx, logger)
	if err != nil {
		return err
	}

	watcher, err := ingest.NewWatcher(dir, idx, logger)
	if err != nil {
		return err
	}
	fmt.Printf("Watching %s (ctrl-c to stop)\n", dir)
	if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	idx, cfg, err := openIndex(ctx, logger)
	if err != nil {
		return err
	}

	host := cfg.Server.Host
	if flagHost != "" {
		host = flagHost
	}
	port := cfg.Server.Port
	if flagPort != 0 {
		port = flagPort
	}

	server := web.NewServer(web.ServerConfig{
		Host:   host,
		Port:   port,
		Index:  idx,
		Logger: logger,
	})
	fmt.Printf("Serving on http://%s:%d\n", host, port)
	return server.Start(ctx)
}

func preview(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= max {
		return s
	}
	// Cut on a rune boundary so truncation never emits invalid UTF-8.
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
