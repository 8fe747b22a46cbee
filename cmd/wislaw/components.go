package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hyperjump/wislaw/internal/config"
	"github.com/hyperjump/wislaw/internal/embedding"
	"github.com/hyperjump/wislaw/internal/index"
	"github.com/hyperjump/wislaw/internal/indexer"
	"github.com/hyperjump/wislaw/internal/metrics"
	"github.com/hyperjump/wislaw/internal/qdrant"
	"github.com/hyperjump/wislaw/internal/resilience"
	"github.com/hyperjump/wislaw/internal/search"
	"github.com/hyperjump/wislaw/internal/storage"
	"go.uber.org/zap"
)

// Components holds initialized services.
type Components struct {
	Index    index.ReadWriter
	Local    *index.LocalIndex // nil for the qdrant backend
	Sources  storage.Storage
	Embedder embedding.Embedder
	Engine   *search.Engine
	Indexer  *indexer.Indexer
}

// Close releases every component. The local index owns its store and embedder.
func (c *Components) Close() {
	if c.Local != nil {
		_ = c.Local.Close()
		return
	}
	if c.Index != nil {
		_ = c.Index.Close()
	}
	if c.Sources != nil {
		_ = c.Sources.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

// SaveVectors persists the local vector index; a no-op for the qdrant backend.
func (c *Components) SaveVectors() error {
	if c.Local == nil {
		return nil
	}
	return c.Local.Save()
}

func newEmbedder(cfg *config.Config, logger *zap.Logger) (embedding.Embedder, error) {
	var embedder embedding.Embedder
	switch cfg.Embedding.Provider {
	case config.ProviderOllama:
		breaker := resilience.NewBreaker("ollama", cfg.Index.Breaker, resilience.WithLogger(logger))
		ollama, err := embedding.NewOllamaEmbedder(
			cfg.Embedding.URL,
			cfg.Embedding.Model,
			cfg.Embedding.Dimensions,
			embedding.WithLogger(logger),
			embedding.WithBreaker(breaker),
			embedding.WithHTTPClient(&http.Client{Timeout: cfg.Embedding.Timeout}),
		)
		if err != nil {
			return nil, err
		}
		embedder = ollama
	case config.ProviderHashing:
		embedder = embedding.NewHashingEmbedder(cfg.Embedding.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
	if cfg.Embedding.CacheSize > 0 {
		embedder = embedding.NewCachedEmbedder(embedder, cfg.Embedding.CacheSize)
	}
	return embedder, nil
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (*Components, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	embedder, err := newEmbedder(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	c := &Components{Embedder: embedder}
	switch cfg.Index.Backend {
	case config.BackendQdrant:
		sources, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
		if err != nil {
			_ = embedder.Close()
			return nil, fmt.Errorf("failed to initialize source store: %w", err)
		}
		breaker := resilience.NewBreaker("qdrant", cfg.Index.Breaker,
			resilience.WithLogger(logger),
			resilience.WithClassifier(qdrant.BreakerClassifier))
		c.Index = qdrant.New(cfg.Index.Qdrant.URL, cfg.Index.Qdrant.Collection, embedder,
			qdrant.WithLogger(logger),
			qdrant.WithBreaker(breaker),
			qdrant.WithHTTPClient(&http.Client{Timeout: cfg.Index.Qdrant.Timeout}))
		c.Sources = sources
	default:
		local, err := index.OpenLocal(index.LocalPaths{
			Database: cfg.Storage.DatabasePath,
			Metadata: cfg.Storage.MetadataIndexPath,
			Vectors:  cfg.Storage.VectorIndexPath,
		}, embedder, index.WithLogger(logger))
		if err != nil {
			_ = embedder.Close()
			return nil, fmt.Errorf("failed to initialize local index: %w", err)
		}
		n, err := local.RebuildVectors(ctx)
		if err != nil {
			logger.Warn("vector rebuild incomplete", zap.Int("embedded", n), zap.Error(err))
		} else if n > 0 {
			logger.Info("vector index rebuilt", zap.Int("passages", n))
		}
		c.Local = local
		c.Index = local
		c.Sources = local.Store()
	}
	logger.Info("index initialized",
		zap.String("backend", cfg.Index.Backend),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.Int("dimensions", cfg.Embedding.Dimensions))

	c.Engine = search.NewEngine(c.Index, &cfg.Search, search.WithLogger(logger), search.WithMetrics(m))
	c.Indexer = indexer.NewIndexer(c.Index, c.Sources, indexer.WithLogger(logger), indexer.WithMetrics(m))
	return c, nil
}
