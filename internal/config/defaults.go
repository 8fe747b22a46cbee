package config

import (
	"time"

	"github.com/hyperjump/wislaw/internal/embedding"
	"github.com/hyperjump/wislaw/internal/models"
	"github.com/hyperjump/wislaw/internal/resilience"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimit > 0 && cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = max(1, int(cfg.Server.RateLimit))
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/wislaw/data/db/passages.db"
	}
	if cfg.Storage.MetadataIndexPath == "" {
		cfg.Storage.MetadataIndexPath = "/usr/local/var/wislaw/data/indices/metadata.bleve"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = "/usr/local/var/wislaw/data/indices/vectors.bin"
	}
	if cfg.Index.Backend == "" {
		cfg.Index.Backend = BackendLocal
	}
	if cfg.Index.Qdrant.Collection == "" {
		cfg.Index.Qdrant.Collection = "wisconsin_law"
	}
	if cfg.Index.Qdrant.Timeout == 0 {
		cfg.Index.Qdrant.Timeout = 10 * time.Second
	}
	// A breaker section left out entirely gets the enabled defaults.
	if cfg.Index.Breaker == (resilience.Config{}) {
		cfg.Index.Breaker = resilience.DefaultConfig()
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = ProviderHashing
	}
	if cfg.Embedding.Provider == ProviderOllama && cfg.Embedding.URL == "" {
		cfg.Embedding.URL = "http://localhost:11434"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = embedding.DefaultHashingDimensions
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}
	cfg.Search.Ranking.ApplyDefaults()
	if cfg.Search.OverfetchFactor == 0 {
		cfg.Search.OverfetchFactor = 3
	}
	if cfg.Search.MaxCrossRefs == 0 {
		cfg.Search.MaxCrossRefs = 2
	}
	if cfg.Search.DefaultResults == 0 {
		cfg.Search.DefaultResults = models.DefaultResults
	}
	if cfg.Search.MaxResults == 0 {
		cfg.Search.MaxResults = 50
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
