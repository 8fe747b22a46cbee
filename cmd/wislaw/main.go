// Package main is the wislaw CLI entry point.
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
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/wislaw/internal/cli"
	"github.com/hyperjump/wislaw/internal/config"
	"github.com/hyperjump/wislaw/internal/metrics"
	"github.com/hyperjump/wislaw/internal/models"
	"github.com/hyperjump/wislaw/internal/search"
	"github.com/hyperjump/wislaw/internal/server"
	"github.com/hyperjump/wislaw/internal/storage"
	"github.com/hyperjump/wislaw/internal/watcher"
	"github.com/hyperjump/wislaw/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/wislaw/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development). If neither exists the
// built-in defaults are used.
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
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			return cfg, "", nil
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
	switch command {
	case "serve", "server":
		runServe()
	case "search":
		runSearch()
	case "index":
		runIndex()
	case "remove":
		runRemove()
	case "watch":
		runWatch()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("wislaw version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config and builds the logger and components shared by local subcommands.
func setup(configPath string, debugFlag bool, m *metrics.Metrics) (*config.Config, string, *zap.Logger, *Components) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debugFlag
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))

	components, err := initializeComponents(context.Background(), cfg, logger, m)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return cfg, resolved, logger, components
}

func runServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (requests, file loading, cross references)")
	_ = fs.Parse(os.Args[2:])

	m := metrics.New()
	cfg, resolvedConfigPath, logger, components := setup(*configPath, *debug, m)
	defer logger.Sync()
	defer components.Close()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.String("backend", cfg.Index.Backend),
		zap.Bool("debug", cfg.Debug || *debug),
	)

	watchSvc := watcher.New(components.Indexer, cfg.Watch.Directories, cfg.Watch.RecursiveOrDefault(),
		watcher.WithLogger(logger))
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if err := watchSvc.Start(watchCtx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	go watchSvc.SyncExistingFiles()

	opts := []server.Option{
		server.WithLoader(components.Indexer),
		server.WithWatch(watchSvc),
		server.WithMetrics(m),
	}
	if resolvedConfigPath != "" {
		opts = append(opts, server.WithConfigPath(resolvedConfigPath))
	}
	srv := server.NewServer(components.Engine, components.Index, cfg, logger, opts...)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchSvc.Stop()
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
	if err := components.SaveVectors(); err != nil {
		logger.Warn("vector index save failed", zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(err))
	}
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: wislaw search [flags] <question>\n\n")
	fmt.Fprintf(fs.Output(), "The question is all remaining arguments joined by spaces. Multi-word questions work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Section numbers in the question (e.g. 346.63) boost passages that quote them.
Cross references cited by the top passages are appended after the ranked results.

Examples:
  wislaw search what is 346.63
  wislaw search --type statute "operating while intoxicated penalties"
  wislaw search --output context -n 3 implied consent   # labeled source block
  wislaw search --server "" OWI 3rd offense             # without a running server
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word questions
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchConfigPathFromArgs returns the value of -config/--config from args if present, else defaultPath.
func searchConfigPathFromArgs(args []string, defaultPath string) string {
	for i, a := range args {
		if (a == "-config" || a == "--config") && i+1 < len(args) {
			return args[i+1]
		}
	}
	return defaultPath
}

// searchDefaultResultsFromConfig loads config at path and returns search.default_results.
// On load failure, returns models.DefaultResults.
func searchDefaultResultsFromConfig(path string) int {
	cfg, _, err := loadConfig(path)
	if err != nil || cfg == nil {
		return models.DefaultResults
	}
	return cfg.Search.DefaultResults
}

// searchArgsReorder moves any flags (and their values) that appear after the question
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument.
func searchArgsReorder(args []string) []string {
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

func runSearch() {
	searchArgs := searchArgsReorder(os.Args[2:])
	configPath := searchConfigPathFromArgs(searchArgs, defaultConfigPath)

	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPathFlag := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = open the index directly when the server is not running)")
	nResults := fs.Int("n", searchDefaultResultsFromConfig(configPath), "number of ranked results")
	docType := fs.String("type", "", "restrict to a document type: statute, case_law, department_policy, other")
	outputFormat := fs.String("output", "text", "output format: text, json (parseable), or context (labeled source block)")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgs)

	question := buildSearchQuery(fs.Args())
	if question == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	req := &models.RetrievalRequest{Question: question, DocTypeFilter: *docType, NResults: *nResults}

	var rs *models.ResultSet
	if *serverURL != "" {
		// Use the HTTP API when the server is running (avoids Bleve/SQLite lock conflict).
		rs, err = retrieveViaHTTP(*serverURL, req)
	} else {
		_, _, logger, components := setup(*configPathFlag, false, nil)
		defer logger.Sync()
		defer components.Close()
		rs, err = components.Engine.Retrieve(context.Background(), req)
		if errors.Is(err, search.ErrNoRelevantDocuments) {
			err = nil
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, rs, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// retrieveViaHTTP posts req to the server. A 404 (nothing relevant) yields an empty result set.
func retrieveViaHTTP(serverURL string, req *models.RetrievalRequest) (*models.ResultSet, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/retrieve", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return &models.ResultSet{Query: req.Question}, nil
	default:
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var out models.RetrievalResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.Results == nil {
		return &models.ResultSet{Query: req.Question}, nil
	}
	return out.Results, nil
}

// statusResponse is the shape of GET /api/v1/status.
type statusResponse struct {
	Passages  int            `json:"passages"`
	Sources   *int           `json:"sources,omitempty"`
	Backend   string         `json:"backend"`
	Config    map[string]any `json:"config,omitempty"`
	DiskUsage *storage.Usage `json:"disk_usage,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = open the index directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status *statusResponse
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = res
	} else {
		cfg, _, logger, components := setup(*configPath, false, nil)
		defer logger.Sync()
		defer components.Close()
		res, err := localStatus(context.Background(), cfg, components)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = res
	}
	if err := writeStatus(os.Stdout, status, *outputFormat); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func localStatus(ctx context.Context, cfg *config.Config, c *Components) (*statusResponse, error) {
	count, err := c.Index.Count(ctx)
	if err != nil {
		return nil, err
	}
	sources, err := c.Indexer.Sources(ctx)
	if err != nil {
		return nil, err
	}
	n := len(sources)
	status := &statusResponse{
		Passages: count,
		Sources:  &n,
		Backend:  cfg.Index.Backend,
		Config: map[string]any{
			"embedding_provider":   cfg.Embedding.Provider,
			"embedding_dimensions": cfg.Embedding.Dimensions,
			"overfetch_factor":     cfg.Search.OverfetchFactor,
			"max_cross_refs":       cfg.Search.CrossRefLimit(),
			"database_path":        cfg.Storage.DatabasePath,
		},
	}
	if cfg.Index.Backend == config.BackendLocal {
		if usage, err := storage.MeasureUsage(map[string]string{
			"database":       cfg.Storage.DatabasePath,
			"metadata_index": cfg.Storage.MetadataIndexPath,
			"vector_index":   cfg.Storage.VectorIndexPath,
		}); err == nil {
			status.DiskUsage = usage
		}
	}
	return status, nil
}

func writeStatus(w io.Writer, status *statusResponse, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	case "text":
		fmt.Fprintf(w, "backend:            %s\n", status.Backend)
		fmt.Fprintf(w, "passages:           %d   # indexed passages\n", status.Passages)
		if status.Sources != nil {
			fmt.Fprintf(w, "sources:            %d   # loaded passage files\n", *status.Sources)
		}
		if status.DiskUsage != nil {
			fmt.Fprintf(w, "disk_usage_bytes:   %d   # storage + indices on disk\n", status.DiskUsage.Total)
		}
		if len(status.Config) > 0 {
			fmt.Fprintln(w)
			fmt.Fprintln(w, "# configuration")
			for _, key := range []string{"embedding_provider", "embedding_dimensions", "overfetch_factor",
				"max_cross_refs", "citation_boost", "keyword_boost", "max_boost",
				"database_path", "qdrant_url", "qdrant_collection"} {
				if v, ok := status.Config[key]; ok {
					fmt.Fprintf(w, "%-20s%v\n", key+":", v)
				}
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown output format %q; use text or json", format)
	}
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

func runIndex() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: wislaw index [flags] <passages.jsonl-or-directory>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	_, _, logger, components := setup(*configPath, *debug, nil)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Failed to stat path: %v\n", err)
		os.Exit(1)
	}
	var n int
	if info.IsDir() {
		n, err = components.Indexer.IndexDirectory(ctx, path)
	} else {
		n, err = components.Indexer.IndexFile(ctx, path)
	}
	if err != nil {
		fmt.Printf("Indexing failed: %v\n", err)
		os.Exit(1)
	}
	if err := components.SaveVectors(); err != nil {
		fmt.Printf("Saving vectors failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d passage(s) from %s\n", n, path)
}

func runRemove() {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: wislaw remove [flags] <passages.jsonl>")
		os.Exit(1)
	}
	path, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		fmt.Printf("Invalid path: %v\n", err)
		os.Exit(1)
	}

	_, _, logger, components := setup(*configPath, false, nil)
	defer logger.Sync()
	defer components.Close()

	if err := components.Indexer.RemoveFile(context.Background(), path); err != nil {
		fmt.Printf("Removal failed: %v\n", err)
		os.Exit(1)
	}
	if err := components.SaveVectors(); err != nil {
		fmt.Printf("Saving vectors failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Removed passages loaded from %s\n", path)
}

func runWatch() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: wislaw watch <add|remove|list> [path]")
		fmt.Println("  wislaw watch add <path>     Add directory to watch")
		fmt.Println("  wislaw watch remove <path>  Remove directory from watch")
		fmt.Println("  wislaw watch list           List watched directories")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(os.Args[3:])
	endpoint := *serverURL + "/api/v1/watch/directories"

	switch sub {
	case "add":
		if fs.NArg() < 1 {
			fmt.Println("Usage: wislaw watch add <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		body, _ := json.Marshal(map[string]interface{}{"path": path, "sync": true})
		if err := expectStatus(http.Post(endpoint, "application/json", bytes.NewReader(body))); err != nil {
			fmt.Printf("Add failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added: %s\n", path)
	case "remove":
		if fs.NArg() < 1 {
			fmt.Println("Usage: wislaw watch remove <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		req, _ := http.NewRequest(http.MethodDelete, endpoint+"?path="+url.QueryEscape(path), nil)
		if err := expectStatus(http.DefaultClient.Do(req)); err != nil {
			fmt.Printf("Remove failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Removed: %s\n", path)
	case "list":
		dirs, err := listWatchDirectories(endpoint)
		if err != nil {
			fmt.Printf("List failed: %v\n", err)
			os.Exit(1)
		}
		for _, d := range dirs {
			fmt.Println(d)
		}
	default:
		fmt.Printf("Unknown watch subcommand: %s\n", sub)
		os.Exit(1)
	}
}

// expectStatus drains resp and returns an error for any non-2xx status.
func expectStatus(resp *http.Response, err error) error {
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func listWatchDirectories(endpoint string) ([]string, error) {
	resp, err := http.Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var out struct {
		Directories []string `json:"directories"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.Directories, nil
}

func printUsage() {
	fmt.Println(`wislaw - Wisconsin legal passage retrieval

Usage:
  wislaw serve [flags]             Start the HTTP server
  wislaw search [flags] <question> Retrieve passages for a question
  wislaw index [flags] <path>      Load a passage file (.jsonl) or directory
  wislaw remove [flags] <file>     Remove the passages loaded from a file
  wislaw status [flags]            Show index status
  wislaw watch <add|remove|list>   Manage watched directories
  wislaw version                   Show version
  wislaw help                      Show this help

Serve Flags:
  --config string    Config file path (default: /usr/local/etc/wislaw/config.yaml)
  --debug            Enable debug logging

Search Flags:
  --config string    Config file path (direct mode; also supplies the default for -n)
  --server string    Server URL (default: http://localhost:8080). Use --server "" to open the index directly.
  -n int             Number of ranked results (default from search.default_results)
  --type string      Document type filter: statute, case_law, department_policy, other
  --output string    Output format: text, json or context (default: text)

Index / Remove Flags:
  --config string    Config file path

Status Flags:
  --config string    Config file path (direct mode)
  --server string    Server URL (default: http://localhost:8080). Use --server "" to open the index directly.
  --output string    Output format: text or json (default: text)

Watch Flags:
  --server string    Server URL (default: http://localhost:8080)

Examples:
  wislaw serve
  wislaw index ./corpus
  wislaw search "what is 346.63"
  wislaw search --type statute --output json OWI penalties
  wislaw status --output json
  wislaw watch add /path/to/passages`)
}
