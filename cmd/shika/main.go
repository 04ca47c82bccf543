// Package main is the Shika CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/shika/internal/cli"
	"github.com/hyperjump/shika/internal/config"
	"github.com/hyperjump/shika/internal/corpus"
	"github.com/hyperjump/shika/internal/embedding"
	"github.com/hyperjump/shika/internal/knowledge"
	"github.com/hyperjump/shika/internal/models"
	"github.com/hyperjump/shika/internal/retrieval"
	"github.com/hyperjump/shika/internal/server"
	"github.com/hyperjump/shika/internal/storage"
	"github.com/hyperjump/shika/internal/telemetry"
	"github.com/hyperjump/shika/internal/vector"
	"github.com/hyperjump/shika/internal/watcher"
	"github.com/hyperjump/shika/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/shika/config.yaml"

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory wins if it exists, and a missing default file means built-in defaults.
// Returns the config and the path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			var cfg config.Config
			config.ApplyDefaults(&cfg)
			return &cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	args := os.Args[2:]
	switch command {
	case "serve", "server":
		runServe(args)
	case "seed":
		runSeed(args)
	case "add":
		runAdd(args)
	case "update":
		runUpdate(args)
	case "duplicate":
		runDuplicate(args)
	case "delete":
		runDelete(args)
	case "get":
		runGet(args)
	case "list":
		runList(args)
	case "categories":
		runDistinct(args, "categories")
	case "sources":
		runDistinct(args, "sources")
	case "search":
		runSearch(args)
	case "rebuild":
		runRebuild(args, false)
	case "reembed":
		runRebuild(args, true)
	case "status":
		runStatus(args)
	case "version", "--version", "-v":
		fmt.Printf("shika version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// setup loads config, builds the logger and wires every component.
func setup(configPath string, debug bool) (*config.Config, *zap.Logger, *Components) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	logger, err := utils.NewLogger(cfg.Debug || debug)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		_ = logger.Sync()
		fatalf("Failed to initialize: %v", err)
	}
	return cfg, logger, components
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := components.Manager.Initialize(ctx); err != nil {
		logger.Fatal("Failed to initialize knowledge base", zap.Error(err))
	}
	if cfg.Corpus.BuiltinOrDefault() {
		if _, err := components.Seeder.Seed(ctx, corpus.Builtin()); err != nil {
			logger.Error("built-in corpus seed failed", zap.Error(err))
		}
	}
	if cfg.Corpus.Path != "" {
		if err := seedFile(ctx, components.Seeder, cfg.Corpus.Path, false); err != nil {
			logger.Error("corpus seed failed", zap.String("path", cfg.Corpus.Path), zap.Error(err))
		}
	}

	if cfg.Corpus.Watch && cfg.Corpus.Path != "" {
		debounce, err := time.ParseDuration(cfg.Corpus.Debounce)
		if err != nil {
			logger.Fatal("invalid corpus.debounce", zap.String("value", cfg.Corpus.Debounce), zap.Error(err))
		}
		watchSvc, err := watcher.NewWatcher(
			[]string{cfg.Corpus.Path},
			func(path string) {
				if err := seedFile(ctx, components.Seeder, path, true); err != nil {
					logger.Warn("corpus sync failed", zap.String("path", path), zap.Error(err))
				}
			},
			watcher.WithLogger(logger),
			watcher.WithDebounce(debounce),
		)
		if err != nil {
			logger.Fatal("Failed to create watcher", zap.Error(err))
		}
		if err := watchSvc.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer watchSvc.Stop()
	}

	srv := server.NewServer(components.Manager, components.Metrics, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

// seedFile loads a corpus file and seeds it, or syncs it when sync is set.
func seedFile(ctx context.Context, s *corpus.Seeder, path string, sync bool) error {
	c, err := corpus.LoadFile(path)
	if err != nil {
		return err
	}
	if sync {
		_, err = s.Sync(ctx, c)
	} else {
		_, err = s.Seed(ctx, c)
	}
	return err
}

func runSeed(args []string) {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	file := fs.String("file", "", "corpus file (.yaml, .yml or .xlsx); default is the built-in corpus")
	sync := fs.Bool("sync", false, "also update entries whose answer or category changed")
	_ = fs.Parse(args)

	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	c := corpus.Builtin()
	if *file != "" {
		var err error
		if c, err = corpus.LoadFile(*file); err != nil {
			fatalf("Load corpus failed: %v", err)
		}
	}
	ctx := context.Background()
	var (
		res corpus.Result
		err error
	)
	if *sync {
		res, err = components.Seeder.Sync(ctx, c)
	} else {
		res, err = components.Seeder.Seed(ctx, c)
	}
	if err != nil {
		fatalf("Seed failed: %v", err)
	}
	fmt.Printf("Source %s: %d added, %d updated, %d skipped\n", c.Source, res.Added, res.Updated, res.Skipped)
}

// reorderArgs moves any flags (and their values) that appear after the positional arguments
// to the front of the slice so that flag.Parse() sees them. Go's flag package stops at the
// first non-flag argument, so "shika search \"query\" -limit 3" would otherwise leave -limit unparsed.
func reorderArgs(args []string) []string {
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

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// flagSet reports whether the named flag was given on the command line.
func flagSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func parseFormat(s string) cli.SearchOutputFormat {
	format, err := cli.ParseFormat(s)
	if err != nil {
		fatalf("%v", err)
	}
	return format
}

func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: shika search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  shika search how often should I brush
  shika search --threshold 0.3 --limit 3 "root canal"
  shika search --category oral_hygiene --output json flossing
`)
}

func runSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = use direct storage)")
	limit := fs.Int("limit", 0, "number of results (default from config)")
	threshold := fs.Float64("threshold", 0, "minimum similarity (default from config)")
	category := fs.String("category", "", "only return entries of this category")
	session := fs.String("session", "", "session id; logs the search when set")
	outputFormat := fs.String("output", "text", "output format: text, compact or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(reorderArgs(args))

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format := parseFormat(*outputFormat)

	q := &models.SearchQuery{
		Query:     queryStr,
		Limit:     *limit,
		Category:  *category,
		SessionID: *session,
	}
	if flagSet(fs, "threshold") {
		q.Threshold = threshold
	}

	var response *models.SearchResponse
	if *serverURL != "" {
		var err error
		if response, err = searchViaHTTP(*serverURL, q); err != nil {
			fatalf("Search failed: %v", err)
		}
	} else {
		_, logger, components := setup(*configPath, false)
		defer logger.Sync()
		defer components.Close()
		var err error
		if response, err = components.Manager.SearchQA(context.Background(), q); err != nil {
			fatalf("Search failed: %v", err)
		}
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func searchViaHTTP(serverURL string, query *models.SearchQuery) (*models.SearchResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(strings.TrimRight(serverURL, "/")+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runAdd(args []string) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	question := fs.String("question", "", "question text (required)")
	answer := fs.String("answer", "", "answer text (required)")
	category := fs.String("category", "", "category")
	source := fs.String("source", "", "source tag (default "+models.SourceUserDefined+")")
	sourceURL := fs.String("url", "", "source URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	in := models.KnowledgeInput{
		Question:  *question,
		Answer:    *answer,
		Category:  *category,
		Source:    *source,
		SourceURL: *sourceURL,
	}
	if err := in.Validate(); err != nil {
		fatalf("Invalid entry: %v", err)
	}
	format := parseFormat(*outputFormat)

	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	e, err := components.Manager.AddQA(context.Background(), in)
	if err != nil {
		fatalf("Add failed: %v", err)
	}
	if err := cli.WriteEntry(os.Stdout, e, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runUpdate(args []string) {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	question := fs.String("question", "", "new question text")
	answer := fs.String("answer", "", "new answer text")
	category := fs.String("category", "", "new category (empty clears it)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(reorderArgs(args))

	if fs.NArg() < 1 {
		fatalf("Usage: shika update [flags] <id>")
	}
	var u models.KnowledgeUpdate
	if flagSet(fs, "question") {
		u.Question = question
	}
	if flagSet(fs, "answer") {
		u.Answer = answer
	}
	if flagSet(fs, "category") {
		u.Category = category
	}
	format := parseFormat(*outputFormat)

	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	e, err := components.Manager.UpdateQA(context.Background(), fs.Arg(0), u)
	if err != nil {
		fatalf("Update failed: %v", err)
	}
	if err := cli.WriteEntry(os.Stdout, e, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runDuplicate(args []string) {
	fs := flag.NewFlagSet("duplicate", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	question := fs.String("question", "", "question for the copy (default \"Copy of: <question>\")")
	_ = fs.Parse(reorderArgs(args))

	if fs.NArg() < 1 {
		fatalf("Usage: shika duplicate [flags] <id>")
	}
	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	e, err := components.Manager.DuplicateQA(context.Background(), fs.Arg(0), *question)
	if err != nil {
		fatalf("Duplicate failed: %v", err)
	}
	fmt.Printf("Entry duplicated: %s\n", e.ID)
}

func runDelete(args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(reorderArgs(args))

	if fs.NArg() < 1 {
		fatalf("Usage: shika delete [flags] <id>")
	}
	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	if err := components.Manager.DeleteQA(context.Background(), fs.Arg(0)); err != nil {
		fatalf("Deletion failed: %v", err)
	}
	fmt.Printf("Entry deleted: %s\n", fs.Arg(0))
}

func runGet(args []string) {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(reorderArgs(args))

	if fs.NArg() < 1 {
		fatalf("Usage: shika get [flags] <id>")
	}
	format := parseFormat(*outputFormat)
	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	e, err := components.Manager.GetQA(context.Background(), fs.Arg(0))
	if err != nil {
		fatalf("Get failed: %v", err)
	}
	if err := cli.WriteEntry(os.Stdout, e, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	category := fs.String("category", "", "filter by category")
	source := fs.String("source", "", "filter by source")
	limit := fs.Int("limit", 50, "maximum entries")
	offset := fs.Int("offset", 0, "entries to skip")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	format := parseFormat(*outputFormat)
	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	entries, err := components.Manager.ListQA(context.Background(), models.ListFilter{
		Category: *category,
		Source:   *source,
		Limit:    *limit,
		Offset:   *offset,
	})
	if err != nil {
		fatalf("List failed: %v", err)
	}
	if err := cli.WriteEntries(os.Stdout, entries, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runDistinct(args []string, what string) {
	fs := flag.NewFlagSet(what, flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(args)

	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	var (
		values []string
		err    error
	)
	if what == "categories" {
		values, err = components.Manager.Categories(context.Background())
	} else {
		values, err = components.Manager.Sources(context.Background())
	}
	if err != nil {
		fatalf("Listing %s failed: %v", what, err)
	}
	for _, v := range values {
		fmt.Println(v)
	}
}

func runRebuild(args []string, reembed bool) {
	name := "rebuild"
	if reembed {
		name = "reembed"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(args)

	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	var err error
	if reembed {
		err = components.Manager.ReembedAll(ctx)
	} else {
		err = components.Manager.Rebuild(ctx)
	}
	if err != nil {
		fatalf("%s failed: %v", name, err)
	}
	fmt.Printf("Index rebuilt: %d entries\n", components.Index.Size())
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	format := parseFormat(*outputFormat)
	var stats *models.Stats
	if *serverURL != "" {
		var err error
		if stats, err = statusViaHTTP(*serverURL); err != nil {
			fatalf("Status failed: %v", err)
		}
	} else {
		_, logger, components := setup(*configPath, false)
		defer logger.Sync()
		defer components.Close()
		ctx := context.Background()
		if err := components.Manager.Initialize(ctx); err != nil {
			fatalf("Initialize failed: %v", err)
		}
		var err error
		if stats, err = components.Manager.Stats(ctx); err != nil {
			fatalf("Status failed: %v", err)
		}
	}
	if err := cli.WriteStats(os.Stdout, stats, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func statusViaHTTP(serverURL string) (*models.Stats, error) {
	resp, err := http.Get(strings.TrimRight(serverURL, "/") + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s models.Stats
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

// Components holds initialized services.
type Components struct {
	Storage   *storage.SQLiteStorage
	Metrics   *telemetry.Metrics
	Generator *embedding.Generator
	Store     *knowledge.Store
	Index     *vector.Index
	Manager   *retrieval.Manager
	Seeder    *corpus.Seeder
}

func (c *Components) Close() {
	if c.Index != nil {
		_ = c.Index.Close()
	}
	if c.Generator != nil {
		_ = c.Generator.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	for _, p := range []string{cfg.Storage.DatabasePath, cfg.Storage.IndexPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	st, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	metrics := telemetry.New()
	gen := embedding.NewGeneratorFromConfig(cfg.Embedding, logger, metrics)
	store := knowledge.NewStore(st, gen, knowledge.WithLogger(logger))
	idx := vector.NewIndex(gen,
		vector.WithBackend(cfg.Storage.IndexType),
		vector.WithPath(cfg.Storage.IndexPath),
		vector.WithSource(store),
		vector.WithLogger(logger),
		vector.WithMetrics(metrics),
	)
	logger.Info("vector index configured",
		zap.String("type", cfg.Storage.IndexType),
		zap.String("path", cfg.Storage.IndexPath),
		zap.String("embedding_mode", string(gen.Mode())))

	manager := retrieval.NewManager(store, idx, gen, &cfg.Retrieval,
		retrieval.WithLogger(logger),
		retrieval.WithMetrics(metrics),
	)
	return &Components{
		Storage:   st,
		Metrics:   metrics,
		Generator: gen,
		Store:     store,
		Index:     idx,
		Manager:   manager,
		Seeder:    corpus.NewSeeder(manager, corpus.WithLogger(logger)),
	}, nil
}

func printUsage() {
	fmt.Println(`shika - Dental clinic knowledge base retrieval

Usage:
  shika serve [flags]               Seed the corpus, watch it and start the ops HTTP server
  shika seed [flags]                Seed the built-in corpus or --file
  shika add [flags]                 Add a question/answer entry
  shika update [flags] <id>         Edit an entry
  shika duplicate [flags] <id>      Copy an entry
  shika delete [flags] <id>         Deactivate an entry
  shika get [flags] <id>            Show an entry
  shika list [flags]                List active entries
  shika categories                  List categories in use
  shika sources                     List sources in use
  shika search [flags] <query>      Semantic search
  shika rebuild                     Rebuild the vector index from the database
  shika reembed                     Re-embed every active entry and rebuild
  shika status [flags]              Show store, index and embedding status
  shika version                     Show version
  shika help                        Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/shika/config.yaml, or ./config.yaml)
  --output string    Output format: text or json (search also accepts compact)

Search Flags:
  --server string      Server URL; empty uses direct storage
  --limit int          Number of results (default from config)
  --threshold float    Minimum similarity (default from config)
  --category string    Only return entries of this category
  --session string     Log the search under this session id

Examples:
  shika serve
  shika seed --file clinic_faq.xlsx
  shika add --question "Do you offer Saturday appointments?" --answer "Yes, 9am to 1pm." --category clinic
  shika search --threshold 0.3 how often should I floss
  shika update --answer "Twice a day." 5f0c...
  shika status --output json`)
}
