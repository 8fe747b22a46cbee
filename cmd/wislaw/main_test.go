package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/wislaw/internal/config"
	"github.com/hyperjump/wislaw/internal/models"
	"go.uber.org/zap"
)

func TestSearchArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after question are moved first",
			args:     []string{"what is 346.63", "-n", "3"},
			expected: []string{"-n", "3", "what is 346.63"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-type", "statute", "what is 346.63"},
			expected: []string{"-type", "statute", "what is 346.63"},
		},
		{
			name:     "question only returns unchanged",
			args:     []string{"implied consent"},
			expected: []string{"implied consent"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"OWI", "penalties", "-n", "5"},
			expected: []string{"-n", "5", "OWI", "penalties"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := searchArgsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("searchArgsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildSearchQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"OWI"}, "OWI"},
		{"multiple words", []string{"implied", "consent"}, "implied consent"},
		{"single quoted phrase", []string{"implied consent"}, "implied consent"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildSearchQuery(tt.args); got != tt.expected {
				t.Errorf("buildSearchQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestSearchConfigPathFromArgs(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		defaultPath string
		want        string
	}{
		{"no config flag", []string{"-n", "5", "question"}, "/default.yaml", "/default.yaml"},
		{"-config present", []string{"-config", "/custom.yaml", "question"}, "/default.yaml", "/custom.yaml"},
		{"--config present", []string{"--config", "/other.yaml"}, "/default.yaml", "/other.yaml"},
		{"config at end", []string{"question", "-config", "/end.yaml"}, "/default.yaml", "/end.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := searchConfigPathFromArgs(tt.args, tt.defaultPath); got != tt.want {
				t.Errorf("searchConfigPathFromArgs() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSearchDefaultResultsFromConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("search:\n  default_results: 8\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if got := searchDefaultResultsFromConfig(configPath); got != 8 {
		t.Errorf("searchDefaultResultsFromConfig() = %d, want 8", got)
	}
	if got := searchDefaultResultsFromConfig(filepath.Join(dir, "nonexistent.yaml")); got != models.DefaultResults {
		t.Errorf("missing config: got %d, want %d", got, models.DefaultResults)
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "./passages.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if _, _, err := loadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("explicit missing path should fail")
	}
}

func localConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Storage: config.StorageConfig{
			DatabasePath:      filepath.Join(dir, "passages.db"),
			MetadataIndexPath: filepath.Join(dir, "metadata.bleve"),
			VectorIndexPath:   filepath.Join(dir, "vectors.bin"),
		},
		Embedding: config.EmbeddingConfig{Dimensions: 64},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestInitializeComponents_localRoundTrip(t *testing.T) {
	cfg := localConfig(t)
	ctx := context.Background()
	c, err := initializeComponents(ctx, cfg, zap.NewNop(), nil)
	if err != nil {
		t.Fatal(err)
	}

	corpus := filepath.Join(t.TempDir(), "346.jsonl")
	lines := []string{
		`{"id":"a","text":"No person may drive or operate a motor vehicle while under the influence. See s. 346.65.","metadata":{"source_file":"346.pdf","section_number":"346.63"}}`,
		`{"id":"b","text":"Penalties for violating 346.63.","metadata":{"source_file":"346.pdf","section_number":"346.65"}}`,
	}
	if err := os.WriteFile(corpus, []byte(strings.Join(lines, "\n")+"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if n, err := c.Indexer.IndexFile(ctx, corpus); err != nil || n != 2 {
		t.Fatalf("IndexFile = %d, %v", n, err)
	}
	rs, err := c.Engine.Retrieve(ctx, &models.RetrievalRequest{Question: "operate a motor vehicle under the influence", NResults: 1})
	if err != nil {
		t.Fatal(err)
	}
	if rs.Results[0].ID != "a" {
		t.Errorf("top result = %s, want a", rs.Results[0].ID)
	}

	status, err := localStatus(ctx, cfg, c)
	if err != nil {
		t.Fatal(err)
	}
	if status.Passages != 2 || status.Sources == nil || *status.Sources != 1 {
		t.Errorf("status = %+v", status)
	}
	c.Close()

	// Reopen: passages and vectors persist.
	c2, err := initializeComponents(ctx, cfg, zap.NewNop(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()
	if n, err := c2.Index.Count(ctx); err != nil || n != 2 {
		t.Errorf("reopened count = %d, %v", n, err)
	}
}

func TestInitializeComponents_invalidConfig(t *testing.T) {
	cfg := localConfig(t)
	cfg.Index.Backend = "chroma"
	if _, err := initializeComponents(context.Background(), cfg, zap.NewNop(), nil); err == nil {
		t.Error("expected an error for an unknown backend")
	}
}

func TestNewEmbedder(t *testing.T) {
	cfg := localConfig(t)
	e, err := newEmbedder(cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if e.Dimensions() != 64 {
		t.Errorf("dimensions = %d", e.Dimensions())
	}
	cfg.Embedding.Provider = config.ProviderOllama
	cfg.Embedding.Model = ""
	if _, err := newEmbedder(cfg, zap.NewNop()); err == nil {
		t.Error("ollama without a model should fail")
	}
}

func TestRetrieveViaHTTP(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req models.RetrievalRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		switch req.Question {
		case "nothing":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"No relevant documents found for this query."}`))
		case "broken":
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"similarity index unavailable"}`))
		default:
			_ = json.NewEncoder(w).Encode(models.RetrievalResponse{Results: &models.ResultSet{
				Query:      req.Question,
				Confidence: 0.9,
				Results:    []*models.ScoredCandidate{{Score: 0.9, Passage: models.Passage{ID: "a"}}},
			}})
		}
	}))
	defer ts.Close()

	rs, err := retrieveViaHTTP(ts.URL, &models.RetrievalRequest{Question: "OWI"})
	if err != nil || len(rs.Results) != 1 || rs.Confidence != 0.9 {
		t.Fatalf("ok response: %+v, %v", rs, err)
	}
	rs, err = retrieveViaHTTP(ts.URL, &models.RetrievalRequest{Question: "nothing"})
	if err != nil || !rs.Empty() {
		t.Errorf("404 should be an empty result set: %+v, %v", rs, err)
	}
	if _, err := retrieveViaHTTP(ts.URL, &models.RetrievalRequest{Question: "broken"}); err == nil || !strings.Contains(err.Error(), "503") {
		t.Errorf("503 should be an error, got %v", err)
	}
}

func TestWriteStatus(t *testing.T) {
	n := 4
	status := &statusResponse{
		Passages: 120,
		Sources:  &n,
		Backend:  "local",
		Config:   map[string]any{"embedding_provider": "hashing", "max_cross_refs": 2},
	}
	var buf bytes.Buffer
	if err := writeStatus(&buf, status, "text"); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"passages:           120", "sources:            4", "max_cross_refs:", "hashing"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("text status missing %q:\n%s", want, buf.String())
		}
	}
	buf.Reset()
	if err := writeStatus(&buf, status, "json"); err != nil {
		t.Fatal(err)
	}
	var decoded statusResponse
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil || decoded.Passages != 120 {
		t.Errorf("json status: %+v, %v", decoded, err)
	}
	if err := writeStatus(&buf, status, "yaml"); err == nil {
		t.Error("unknown format should fail")
	}
}
