package index

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/wislaw/internal/embedding"
	"github.com/hyperjump/wislaw/internal/keyword"
	"github.com/hyperjump/wislaw/internal/models"
	"github.com/hyperjump/wislaw/internal/storage"
	"github.com/hyperjump/wislaw/internal/vector"
)

const rebuildPageSize = 100

// LocalIndex is a SimilarityIndex over on-disk components: SQLite holds passage
// text and metadata, Bleve answers metadata filters, and an in-memory vector
// index ranks by cosine similarity of embeddings.
type LocalIndex struct {
	store      storage.Storage
	meta       keyword.MetadataIndex
	vectors    vector.VectorIndex
	embedder   embedding.Embedder
	vectorPath string
	logger     *zap.Logger
}

// LocalOption configures a LocalIndex.
type LocalOption func(*LocalIndex)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) LocalOption {
	return func(x *LocalIndex) {
		if l != nil {
			x.logger = l
		}
	}
}

// WithVectorPath sets where Save persists the vector index.
func WithVectorPath(path string) LocalOption {
	return func(x *LocalIndex) {
		x.vectorPath = path
	}
}

// NewLocalIndex assembles a LocalIndex from its components.
// The embedder and vector index must agree on dimensions.
func NewLocalIndex(store storage.Storage, meta keyword.MetadataIndex, vectors vector.VectorIndex, embedder embedding.Embedder, opts ...LocalOption) (*LocalIndex, error) {
	if store == nil || meta == nil || vectors == nil || embedder == nil {
		return nil, fmt.Errorf("local index requires storage, metadata index, vector index and embedder")
	}
	if embedder.Dimensions() != vectors.Dimensions() {
		return nil, fmt.Errorf("embedder dimensions %d do not match vector index dimensions %d", embedder.Dimensions(), vectors.Dimensions())
	}
	x := &LocalIndex{
		store:    store,
		meta:     meta,
		vectors:  vectors,
		embedder: embedder,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x, nil
}

// LocalPaths locates the on-disk components of a LocalIndex.
type LocalPaths struct {
	Database string
	Metadata string
	Vectors  string
}

// OpenLocal opens (or creates) every component under paths and loads persisted vectors.
func OpenLocal(paths LocalPaths, embedder embedding.Embedder, opts ...LocalOption) (*LocalIndex, error) {
	store, err := storage.NewSQLiteStorage(paths.Database)
	if err != nil {
		return nil, err
	}
	meta, err := keyword.NewBleveIndex(paths.Metadata)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	vectors, err := vector.NewMemoryIndex(embedder.Dimensions())
	if err != nil {
		_ = meta.Close()
		_ = store.Close()
		return nil, err
	}
	if err := vectors.Load(paths.Vectors); err != nil {
		_ = meta.Close()
		_ = store.Close()
		return nil, fmt.Errorf("failed to load vector index: %w", err)
	}
	return NewLocalIndex(store, meta, vectors, embedder, append([]LocalOption{WithVectorPath(paths.Vectors)}, opts...)...)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrIndexUnavailable, op, err)
}

// Query embeds text and returns the k nearest passages that satisfy filter.
func (x *LocalIndex) Query(ctx context.Context, text string, k int, filter Filter) ([]Hit, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	qv, err := x.embedder.Embed(ctx, text)
	if err != nil {
		return nil, unavailable("embed query", err)
	}

	var allow vector.AllowFunc
	if len(filter) > 0 {
		ids, err := x.meta.Match(ctx, filter, 0)
		if err != nil {
			return nil, unavailable("match filter", err)
		}
		if len(ids) == 0 {
			return nil, nil
		}
		allowed := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			allowed[id] = struct{}{}
		}
		allow = func(id string) bool {
			_, ok := allowed[id]
			return ok
		}
	}

	results, err := x.vectors.Search(ctx, qv, k, allow)
	if err != nil {
		return nil, unavailable("vector search", err)
	}
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	passages, err := x.store.GetPassages(ctx, ids)
	if err != nil {
		return nil, unavailable("load passages", err)
	}
	byID := make(map[string]*models.Passage, len(passages))
	for _, p := range passages {
		byID[p.ID] = p
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		p, ok := byID[r.ID]
		if !ok {
			x.logger.Warn("vector without stored passage", zap.String("id", r.ID))
			continue
		}
		hits = append(hits, Hit{Passage: p, Distance: r.Distance()})
	}
	return hits, nil
}

// GetByMetadata returns all passages matching filter, ordered by source file and chunk index.
// An empty filter is rejected.
func (x *LocalIndex) GetByMetadata(ctx context.Context, filter Filter) ([]*models.Passage, error) {
	if len(filter) == 0 {
		return nil, fmt.Errorf("empty filter: %w", ErrMalformedFilter)
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	ids, err := x.meta.Match(ctx, filter, 0)
	if err != nil {
		return nil, unavailable("match filter", err)
	}
	passages, err := x.store.GetPassages(ctx, ids)
	if err != nil {
		return nil, unavailable("load passages", err)
	}
	return passages, nil
}

// Count returns the number of stored passages.
func (x *LocalIndex) Count(ctx context.Context) (int, error) {
	n, err := x.store.CountPassages(ctx)
	if err != nil {
		return 0, unavailable("count passages", err)
	}
	return int(n), nil
}

// Upsert embeds passages and writes them to every component.
func (x *LocalIndex) Upsert(ctx context.Context, passages []*models.Passage) error {
	if len(passages) == 0 {
		return nil
	}
	texts := make([]string, len(passages))
	ids := make([]string, len(passages))
	for i, p := range passages {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("passage %d has no id", i)
		}
		if p.Metadata.SourceFile == "" {
			return fmt.Errorf("passage %s has no source_file", p.ID)
		}
		texts[i] = p.Text
		ids[i] = p.ID
	}
	vecs, err := x.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed passages: %w", err)
	}
	if err := x.store.UpsertPassages(ctx, passages); err != nil {
		return fmt.Errorf("failed to store passages: %w", err)
	}
	if err := x.meta.IndexPassages(ctx, passages); err != nil {
		return fmt.Errorf("failed to index passage metadata: %w", err)
	}
	if err := x.vectors.Upsert(ctx, ids, vecs); err != nil {
		return fmt.Errorf("failed to add passage vectors: %w", err)
	}
	x.logger.Debug("passages upserted", zap.Int("count", len(passages)))
	return nil
}

// DeleteBySource removes every passage loaded from sourceFile.
func (x *LocalIndex) DeleteBySource(ctx context.Context, sourceFile string) error {
	ids, err := x.store.PassageIDsBySource(ctx, sourceFile)
	if err != nil {
		return fmt.Errorf("failed to list passages of %s: %w", sourceFile, err)
	}
	if err := x.Delete(ctx, ids); err != nil {
		return err
	}
	x.logger.Debug("passages deleted", zap.String("source_file", sourceFile), zap.Int("count", len(ids)))
	return nil
}

// Delete removes the passages with the given IDs from every component.
func (x *LocalIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := x.meta.Delete(ctx, ids); err != nil {
		return fmt.Errorf("failed to delete passage metadata: %w", err)
	}
	if err := x.vectors.Remove(ctx, ids); err != nil {
		return fmt.Errorf("failed to delete passage vectors: %w", err)
	}
	if err := x.store.DeletePassages(ctx, ids); err != nil {
		return fmt.Errorf("failed to delete passages: %w", err)
	}
	return nil
}

// RebuildVectors re-embeds every stored passage when the vector index is out of
// step with storage, e.g. after the vector file was removed or the embedder changed.
// Returns the number of passages embedded.
func (x *LocalIndex) RebuildVectors(ctx context.Context) (int, error) {
	count, err := x.store.CountPassages(ctx)
	if err != nil {
		return 0, err
	}
	if int(count) == x.vectors.Size() {
		return 0, nil
	}
	x.logger.Info("rebuilding vector index", zap.Int64("passages", count), zap.Int("vectors", x.vectors.Size()))

	var stale []string
	total := 0
	for offset := 0; ; offset += rebuildPageSize {
		page, err := x.store.ListPassages(ctx, offset, rebuildPageSize)
		if err != nil {
			return total, err
		}
		if len(page) == 0 {
			break
		}
		texts := make([]string, len(page))
		ids := make([]string, len(page))
		for i, p := range page {
			texts[i] = p.Text
			ids[i] = p.ID
		}
		vecs, err := x.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return total, fmt.Errorf("failed to embed passages: %w", err)
		}
		if err := x.vectors.Upsert(ctx, ids, vecs); err != nil {
			return total, err
		}
		total += len(page)
	}

	// Drop vectors whose passages no longer exist.
	if x.vectors.Size() > total {
		stale, err = x.staleVectorIDs(ctx)
		if err != nil {
			return total, err
		}
		if err := x.vectors.Remove(ctx, stale); err != nil {
			return total, err
		}
	}
	return total, nil
}

func (x *LocalIndex) staleVectorIDs(ctx context.Context) ([]string, error) {
	dim := x.vectors.Dimensions()
	query := make([]float32, dim)
	results, err := x.vectors.Search(ctx, query, x.vectors.Size(), nil)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	present, err := x.store.GetPassages(ctx, ids)
	if err != nil {
		return nil, err
	}
	keep := make(map[string]struct{}, len(present))
	for _, p := range present {
		keep[p.ID] = struct{}{}
	}
	var stale []string
	for _, id := range ids {
		if _, ok := keep[id]; !ok {
			stale = append(stale, id)
		}
	}
	return stale, nil
}

// Store returns the passage store, which also records loaded source files.
func (x *LocalIndex) Store() storage.Storage {
	return x.store
}

// Save persists the vector index. It is a no-op without a vector path.
func (x *LocalIndex) Save() error {
	return x.vectors.Save(x.vectorPath)
}

// Close saves vectors and closes every component.
func (x *LocalIndex) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	keep(x.Save())
	keep(x.vectors.Close())
	keep(x.meta.Close())
	keep(x.store.Close())
	keep(x.embedder.Close())
	return firstErr
}
