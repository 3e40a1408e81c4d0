// Package main is the shiori CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/shiori/internal/chunker"
	"github.com/hyperjump/shiori/internal/cli"
	"github.com/hyperjump/shiori/internal/config"
	"github.com/hyperjump/shiori/internal/embedding"
	"github.com/hyperjump/shiori/internal/extract"
	"github.com/hyperjump/shiori/internal/gateway"
	"github.com/hyperjump/shiori/internal/loader"
	"github.com/hyperjump/shiori/internal/pipeline"
	"github.com/hyperjump/shiori/internal/server"
	"github.com/hyperjump/shiori/internal/splitter"
	"github.com/hyperjump/shiori/internal/vector"
	"github.com/hyperjump/shiori/internal/watcher"
	"github.com/hyperjump/shiori/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}
	config.LoadDotEnv()
	args := os.Args[2:]
	var code int
	switch os.Args[1] {
	case "ingest":
		code = runIngest(args, os.Stdout)
	case "query":
		code = runQuery(args, os.Stdin, os.Stdout)
	case "status":
		code = runStatus(args, os.Stdout)
	case "reset":
		code = runReset(args, os.Stdout)
	case "serve":
		code = runServe(args)
	case "watch":
		code = runWatch(args)
	case "version", "--version", "-v":
		fmt.Printf("shiori version %s\n", version)
	case "help", "--help", "-h":
		printUsage(os.Stdout)
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage(os.Stdout)
		code = 1
	}
	os.Exit(code)
}

// commonFlags are accepted by every command that opens a collection.
type commonFlags struct {
	configPath string
	collection string
	persistDir string
	backend    string
	debug      bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "config file path (default: ./"+config.DefaultConfigFile+")")
	fs.StringVar(&c.collection, "collection", "", "collection name")
	fs.StringVar(&c.persistDir, "persist-dir", "", "directory holding the collection data")
	fs.StringVar(&c.backend, "backend", "", "storage backend: sqlite, memory or bleve")
	fs.BoolVar(&c.debug, "debug", false, "enable debug logging")
}

// loadConfig loads the config at path, or shiori.yaml in the working directory when
// path is empty, then applies flag overrides and validates the result.
func loadConfig(flags *commonFlags, override func(*config.Config)) (*config.Config, error) {
	path := flags.configPath
	if path == "" {
		path = config.DefaultConfigFile
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if flags.collection != "" {
		cfg.Collection.Name = flags.collection
	}
	if flags.persistDir != "" {
		cfg.Collection.PersistDirectory = flags.persistDir
	}
	if flags.backend != "" {
		cfg.Collection.Backend = strings.ToLower(flags.backend)
	}
	if flags.debug {
		cfg.Debug = true
	}
	if override != nil {
		override(cfg)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// argsReorder moves flags that follow positional arguments to the front so that
// flag.Parse sees them: "shiori ingest ./docs --chunk-size 500".
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// buildQuery joins positional args so multi-word queries work with or without quotes.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// Components holds the wired services for one collection.
type Components struct {
	Logger   *zap.Logger
	Embedder embedding.Embedder
	Client   vector.Client
	Gateway  *gateway.Gateway
	Pipeline *pipeline.Pipeline
}

// Close releases the storage client and the embedder.
func (c *Components) Close() {
	if c.Client != nil {
		_ = c.Client.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config) (*Components, error) {
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	c := &Components{Logger: logger}

	var splitOpts []splitter.Option
	if len(cfg.Chunking.Separators) > 0 {
		splitOpts = append(splitOpts, splitter.WithSeparators(cfg.Chunking.Separators...))
	}
	s, err := splitter.New(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap, splitOpts...)
	if err != nil {
		return nil, err
	}
	c.Embedder, err = embedding.New(cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.Client, err = vector.NewClient(cfg.Collection.Backend, cfg.Collection.PersistDirectory, c.Embedder, vector.WithLogger(logger))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize %s backend: %w", cfg.Collection.Backend, err)
	}
	metric, err := vector.ParseMetric(cfg.Collection.Metric)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Gateway, err = gateway.New(ctx, c.Client, gateway.Config{
		CollectionName:   cfg.Collection.Name,
		PersistDirectory: cfg.Collection.PersistDirectory,
		Metric:           metric,
		BatchSize:        cfg.Collection.BatchSize,
	}, gateway.WithLogger(logger))
	if err != nil {
		c.Close()
		return nil, err
	}
	ld := loader.New(extract.NewExtractor(), cfg.Loader.Extensions, loader.WithLogger(logger))
	asm := chunker.NewAssembler(s, chunker.WithIDStrategy(chunker.IDStrategy(cfg.Collection.IDs)))
	c.Pipeline = pipeline.New(ld, asm, c.Gateway, pipeline.WithLogger(logger))
	logger.Debug("components initialized",
		zap.String("collection", cfg.Collection.Name),
		zap.String("backend", cfg.Collection.Backend),
		zap.String("embedding", cfg.Embedding.Provider),
		zap.String("persist_directory", cfg.Collection.PersistDirectory))
	return c, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runIngest(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	chunkSize := fs.Int("chunk-size", 0, "maximum characters per chunk")
	chunkOverlap := fs.Int("chunk-overlap", -1, "characters shared by consecutive chunks")
	batchSize := fs.Int("batch-size", 0, "chunks per upsert batch")
	ids := fs.String("ids", "", "chunk id strategy: random or deterministic")
	reset := fs.Bool("reset", false, "reset the collection before ingesting")
	_ = fs.Parse(argsReorder(args))

	if fs.NArg() < 1 {
		fmt.Fprintln(out, "Usage: shiori ingest [flags] <folder>")
		return 1
	}
	folder := fs.Arg(0)

	cfg, err := loadConfig(&common, func(cfg *config.Config) {
		if *chunkSize > 0 {
			cfg.Chunking.ChunkSize = *chunkSize
		}
		if *chunkOverlap >= 0 {
			cfg.Chunking.ChunkOverlap = *chunkOverlap
		}
		if *batchSize > 0 {
			cfg.Collection.BatchSize = *batchSize
		}
		if *ids != "" {
			cfg.Collection.IDs = *ids
		}
	})
	if err != nil {
		fmt.Fprintf(out, "Invalid configuration: %v\n", err)
		return 1
	}

	ctx, cancel := signalContext()
	defer cancel()
	components, err := initializeComponents(ctx, cfg)
	if err != nil {
		fmt.Fprintf(out, "Failed to initialize: %v\n", err)
		return 1
	}
	defer components.Close()

	var ingestOpts []pipeline.IngestOption
	if *reset {
		ingestOpts = append(ingestOpts, pipeline.WithReset())
	}

	fmt.Fprintf(out, "Ingesting documents from: %s\n", folder)
	added, err := components.Pipeline.Ingest(ctx, folder, ingestOpts...)
	var partial *gateway.PartialIngestionError
	switch {
	case err == nil:
	case errors.Is(err, loader.ErrFolderNotFound):
		fmt.Fprintf(out, "Error: %v\n", err)
		return 1
	case errors.Is(err, pipeline.ErrNoDocuments):
		fmt.Fprintf(out, "No documents to ingest: %v\n", err)
		return 1
	case errors.As(err, &partial):
		fmt.Fprintf(out, "Ingestion stopped after %d of %d chunks: %v\n", partial.Added, partial.Total, partial.Err)
		return 1
	default:
		fmt.Fprintf(out, "Ingestion failed: %v\n", err)
		return 1
	}

	if *reset {
		fmt.Fprintf(out, "Collection '%s' was reset before adding.\n", cfg.Collection.Name)
	}
	stats, err := components.Pipeline.Stats(ctx)
	if err != nil {
		fmt.Fprintf(out, "Stats failed: %v\n", err)
		return 1
	}
	cli.WriteIngestSummary(out, added, stats)
	return 0
}

func runQuery(args []string, in io.Reader, out io.Writer) int {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	queryText := fs.String("query", "", "query text (omit for interactive mode)")
	nResults := fs.Int("n-results", 0, "number of results to return")
	preview := fs.Int("preview", 0, "characters of content shown per result")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(args))

	format, err := cli.ParseOutputFormat(*output)
	if err != nil {
		fmt.Fprintln(out, err)
		return 1
	}
	cfg, err := loadConfig(&common, func(cfg *config.Config) {
		if *nResults > 0 {
			cfg.Query.NResults = *nResults
		}
		if *preview > 0 {
			cfg.Query.PreviewChars = *preview
		}
	})
	if err != nil {
		fmt.Fprintf(out, "Invalid configuration: %v\n", err)
		return 1
	}

	ctx, cancel := signalContext()
	defer cancel()
	components, err := initializeComponents(ctx, cfg)
	if err != nil {
		fmt.Fprintf(out, "Failed to initialize: %v\n", err)
		return 1
	}
	defer components.Close()

	stats, err := components.Pipeline.Stats(ctx)
	if err != nil {
		fmt.Fprintf(out, "Stats failed: %v\n", err)
		return 1
	}
	if stats.TotalChunks == 0 {
		fmt.Fprintf(out, "Collection '%s' is empty. Run 'shiori ingest <folder>' first.\n", stats.CollectionName)
		return 0
	}

	text := *queryText
	if text == "" {
		text = buildQuery(fs.Args())
	}
	if text == "" {
		repl := &cli.Interactive{
			Search:       components.Pipeline.Search,
			NResults:     cfg.Query.NResults,
			Format:       format,
			PreviewChars: cfg.Query.PreviewChars,
		}
		if err := repl.Run(ctx, in, out, stats); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(out, "Interactive mode failed: %v\n", err)
			return 1
		}
		return 0
	}

	result, err := components.Pipeline.Search(ctx, text, cfg.Query.NResults)
	if err != nil {
		fmt.Fprintf(out, "Query failed: %v\n", err)
		return 1
	}
	if err := cli.WriteQueryResult(out, result, format, cfg.Query.PreviewChars); err != nil {
		fmt.Fprintf(out, "Output failed: %v\n", err)
		return 1
	}
	return 0
}

func runStatus(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(args))

	format, err := cli.ParseOutputFormat(*output)
	if err != nil {
		fmt.Fprintln(out, err)
		return 1
	}
	cfg, err := loadConfig(&common, nil)
	if err != nil {
		fmt.Fprintf(out, "Invalid configuration: %v\n", err)
		return 1
	}
	ctx, cancel := signalContext()
	defer cancel()
	components, err := initializeComponents(ctx, cfg)
	if err != nil {
		fmt.Fprintf(out, "Failed to initialize: %v\n", err)
		return 1
	}
	defer components.Close()

	stats, err := components.Pipeline.Stats(ctx)
	if err != nil {
		fmt.Fprintf(out, "Status failed: %v\n", err)
		return 1
	}
	diskBytes, err := utils.DiskUsageBytes(cfg.Collection.PersistDirectory)
	if err != nil {
		diskBytes = -1
	}
	if err := cli.WriteStats(out, stats, diskBytes, format); err != nil {
		fmt.Fprintf(out, "Output failed: %v\n", err)
		return 1
	}
	return 0
}

func runReset(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	_ = fs.Parse(argsReorder(args))

	cfg, err := loadConfig(&common, nil)
	if err != nil {
		fmt.Fprintf(out, "Invalid configuration: %v\n", err)
		return 1
	}
	ctx, cancel := signalContext()
	defer cancel()
	components, err := initializeComponents(ctx, cfg)
	if err != nil {
		fmt.Fprintf(out, "Failed to initialize: %v\n", err)
		return 1
	}
	defer components.Close()

	if err := components.Pipeline.Reset(ctx); err != nil {
		fmt.Fprintf(out, "Reset failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Collection '%s' reset.\n", cfg.Collection.Name)
	return 0
}

// stringList collects a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func newWatcher(cfg *config.Config, p *pipeline.Pipeline, roots []string, logger *zap.Logger) *watcher.Watcher {
	return watcher.New(p, roots,
		watcher.WithLogger(logger),
		watcher.WithDebounce(time.Duration(cfg.Watch.DebounceMillis)*time.Millisecond),
		watcher.WithRecursive(cfg.Watch.RecursiveOrDefault()),
	)
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	host := fs.String("host", "", "listen host")
	port := fs.Int("port", 0, "listen port")
	var watchDirs stringList
	fs.Var(&watchDirs, "watch", "directory to watch and keep ingested (repeatable)")
	_ = fs.Parse(argsReorder(args))

	cfg, err := loadConfig(&common, func(cfg *config.Config) {
		if *host != "" {
			cfg.Server.Host = *host
		}
		if *port > 0 {
			cfg.Server.Port = *port
		}
	})
	if err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		return 1
	}
	ctx, cancel := signalContext()
	defer cancel()
	components, err := initializeComponents(ctx, cfg)
	if err != nil {
		fmt.Printf("Failed to initialize: %v\n", err)
		return 1
	}
	defer components.Close()
	logger := components.Logger

	w := newWatcher(cfg, components.Pipeline, watchDirs, logger)
	if err := w.Start(ctx); err != nil {
		logger.Error("Failed to start watcher", zap.Error(err))
		return 1
	}
	defer w.Stop()
	go w.SyncExistingFiles()

	srv := server.NewServer(components.Pipeline, &cfg.Server, logger,
		server.WithWatch(w),
		server.WithDefaultNResults(cfg.Query.NResults),
	)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		logger.Error("Server failed", zap.Error(err))
		return 1
	case <-ctx.Done():
	}
	logger.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	syncExisting := fs.Bool("sync", true, "ingest files already in the folder before watching")
	_ = fs.Parse(argsReorder(args))

	if fs.NArg() < 1 {
		fmt.Println("Usage: shiori watch [flags] <folder>")
		return 1
	}
	cfg, err := loadConfig(&common, nil)
	if err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		return 1
	}
	ctx, cancel := signalContext()
	defer cancel()
	components, err := initializeComponents(ctx, cfg)
	if err != nil {
		fmt.Printf("Failed to initialize: %v\n", err)
		return 1
	}
	defer components.Close()

	w := newWatcher(cfg, components.Pipeline, fs.Args(), components.Logger)
	if err := w.Start(ctx); err != nil {
		fmt.Printf("Failed to start watcher: %v\n", err)
		return 1
	}
	defer w.Stop()
	if *syncExisting {
		w.SyncExistingFiles()
	}
	fmt.Printf("Watching %s (collection '%s'). Press Ctrl+C to stop.\n", strings.Join(w.Directories(), ", "), cfg.Collection.Name)
	<-ctx.Done()
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `shiori - chunked document ingestion and similarity query

Usage:
  shiori ingest [flags] <folder>   Load, chunk and store every document in folder
  shiori query [flags] [text]      Query the collection (interactive without text)
  shiori status [flags]            Show collection statistics
  shiori reset [flags]             Delete and recreate the collection
  shiori serve [flags]             Start the HTTP API
  shiori watch [flags] <folder>    Keep a collection in step with a folder
  shiori version                   Show version
  shiori help                      Show this help

Common Flags:
  --config string       Config file path (default: ./shiori.yaml)
  --collection string   Collection name (default: documents)
  --persist-dir string  Collection data directory (default: ./shiori_db)
  --backend string      sqlite, memory or bleve (default: sqlite)
  --debug               Enable debug logging

Ingest Flags:
  --chunk-size int      Maximum characters per chunk (default: 1000)
  --chunk-overlap int   Characters shared by consecutive chunks (default: 200)
  --batch-size int      Chunks per upsert batch (default: 100)
  --ids string          random or deterministic (default: random)
  --reset               Reset the collection first

Query Flags:
  --query string        Query text; omit for interactive mode
  --n-results int       Number of results (default: 5)
  --preview int         Content characters per result (default: 300)
  --output string       text or json (default: text)

Serve Flags:
  --host string         Listen host (default: localhost)
  --port int            Listen port (default: 8080)
  --watch string        Directory to watch (repeatable)

Examples:
  shiori ingest ./docs --chunk-size 500 --chunk-overlap 50
  shiori query --query "how do goroutines communicate" --n-results 3
  shiori query
  shiori status --output json
  shiori serve --watch ./docs`)
}
