// Package config provides configuration loading and structs for the wislaw server and CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/wislaw/internal/ranking"
	"github.com/hyperjump/wislaw/internal/resilience"
)

// Index backends.
const (
	BackendLocal  = "local"
	BackendQdrant = "qdrant"
)

// Embedding providers.
const (
	ProviderHashing = "hashing"
	ProviderOllama  = "ollama"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Index     IndexConfig     `yaml:"index"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Watch     WatchConfig     `yaml:"watch"`
}

// WatchConfig holds passage directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// RateLimit caps API requests per second across all clients; 0 disables it.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// StorageConfig holds paths of the local index components. The database also
// records loaded passage files when the qdrant backend is used.
type StorageConfig struct {
	DatabasePath      string `yaml:"database_path"`
	MetadataIndexPath string `yaml:"metadata_index_path"`
	VectorIndexPath   string `yaml:"vector_index_path"`
}

// IndexConfig selects and configures the similarity index backend.
type IndexConfig struct {
	Backend string            `yaml:"backend"`
	Qdrant  QdrantConfig      `yaml:"qdrant"`
	Breaker resilience.Config `yaml:"breaker"`
}

// QdrantConfig holds Qdrant REST settings.
type QdrantConfig struct {
	URL        string        `yaml:"url"`
	Collection string        `yaml:"collection"`
	Timeout    time.Duration `yaml:"timeout"`
}

// EmbeddingConfig holds embedder settings.
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider"`
	URL        string        `yaml:"url"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	CacheSize  int           `yaml:"cache_size"`
	Timeout    time.Duration `yaml:"timeout"`
}

// SearchConfig holds retrieval settings. Ranking weights sit inline under search.
type SearchConfig struct {
	Ranking ranking.RankingConfig `yaml:",inline"`
	// Candidates fetched per requested result before re-ranking.
	OverfetchFactor int `yaml:"overfetch_factor"`
	// Cross references appended after the primary results; negative disables them.
	MaxCrossRefs   int `yaml:"max_cross_refs"`
	DefaultResults int `yaml:"default_results"`
	MaxResults     int `yaml:"max_results"`
}

// MaxCrossRefsLimit is the largest number of cross references a result set may carry.
const MaxCrossRefsLimit = 2

// CrossRefLimit returns the number of cross references to keep, 0 when disabled.
// It never exceeds MaxCrossRefsLimit.
func (s *SearchConfig) CrossRefLimit() int {
	if s.MaxCrossRefs < 0 {
		return 0
	}
	return min(s.MaxCrossRefs, MaxCrossRefsLimit)
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// Seed the weights so a weight set to 0 in the file stays 0.
	cfg := Config{Search: SearchConfig{Ranking: *ranking.DefaultRankingConfig()}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.MetadataIndexPath = expandPath(cfg.Storage.MetadataIndexPath, configDir)
	cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Save writes the config to path. Used for persisting watch directory add/remove.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate rejects unknown backends and providers and out-of-range search settings.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		return fmt.Errorf("server.rate_limit and server.rate_burst must be >= 0")
	}
	switch c.Index.Backend {
	case BackendLocal:
	case BackendQdrant:
		if c.Index.Qdrant.URL == "" {
			return fmt.Errorf("index.qdrant.url is required for the qdrant backend")
		}
		if c.Index.Qdrant.Collection == "" {
			return fmt.Errorf("index.qdrant.collection is required for the qdrant backend")
		}
	default:
		return fmt.Errorf("unknown index.backend %q", c.Index.Backend)
	}
	switch c.Embedding.Provider {
	case ProviderHashing:
	case ProviderOllama:
		if c.Embedding.URL == "" || c.Embedding.Model == "" {
			return fmt.Errorf("embedding.url and embedding.model are required for the ollama provider")
		}
	default:
		return fmt.Errorf("unknown embedding.provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be > 0, got %d", c.Embedding.Dimensions)
	}
	if err := c.Search.Ranking.Validate(); err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if c.Search.MaxCrossRefs > MaxCrossRefsLimit {
		return fmt.Errorf("search.max_cross_refs must be <= %d, got %d", MaxCrossRefsLimit, c.Search.MaxCrossRefs)
	}
	if c.Search.OverfetchFactor < 1 {
		return fmt.Errorf("search.overfetch_factor must be >= 1, got %d", c.Search.OverfetchFactor)
	}
	if c.Search.DefaultResults > c.Search.MaxResults {
		return fmt.Errorf("search.default_results (%d) exceeds search.max_results (%d)",
			c.Search.DefaultResults, c.Search.MaxResults)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
