// Package search runs the retrieval pipeline: normalize the query, over-fetch
// from the similarity index, re-rank with literal matches, follow citations and
// estimate confidence.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/wislaw/internal/config"
	"github.com/hyperjump/wislaw/internal/crossref"
	"github.com/hyperjump/wislaw/internal/index"
	"github.com/hyperjump/wislaw/internal/metrics"
	"github.com/hyperjump/wislaw/internal/models"
	"github.com/hyperjump/wislaw/internal/query"
	"github.com/hyperjump/wislaw/internal/ranking"
	"go.uber.org/zap"
)

// ErrNoRelevantDocuments is returned by Retrieve when nothing matched.
var ErrNoRelevantDocuments = errors.New("no relevant documents found for this query")

// Engine runs retrieval against a similarity index. It holds no per-request
// state and is safe for concurrent use.
type Engine struct {
	index    index.SimilarityIndex
	ranker   *ranking.Ranker
	resolver *crossref.Resolver
	config   config.SearchConfig
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger for query and cross-reference events.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics records query outcomes, latency and cross-reference lookups.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates a search engine over idx. A nil cfg uses defaults.
func NewEngine(idx index.SimilarityIndex, cfg *config.SearchConfig, opts ...Option) *Engine {
	e := &Engine{index: idx, logger: zap.NewNop()}
	if cfg != nil {
		e.config = *cfg
	}
	defaults := config.Config{Search: e.config}
	config.ApplyDefaults(&defaults)
	e.config = defaults.Search

	for _, opt := range opts {
		opt(e)
	}
	weights := e.config.Ranking
	e.ranker = ranking.NewRanker(&weights)
	e.resolver = crossref.NewResolver(idx, crossref.WithLogger(e.logger), crossref.WithMetrics(e.metrics))
	return e
}

// Config returns the effective search configuration.
func (e *Engine) Config() config.SearchConfig {
	return e.config
}

// Search returns up to nResults ranked passages for q followed by at most
// max_cross_refs cross references. nResults <= 0 uses default_results.
// An empty index or no candidates yields an empty ResultSet, not an error.
func (e *Engine) Search(ctx context.Context, q string, nResults int, filter index.Filter) (*models.ResultSet, error) {
	start := time.Now()
	rs, err := e.search(ctx, q, nResults, filter)
	elapsed := time.Since(start)

	outcome := metrics.OutcomeOK
	switch {
	case errors.Is(err, index.ErrMalformedFilter):
		outcome = metrics.OutcomeBadFilter
	case errors.Is(err, index.ErrIndexUnavailable):
		outcome = metrics.OutcomeUnavailable
	case err != nil:
		outcome = metrics.OutcomeError
	case rs.Empty():
		outcome = metrics.OutcomeEmpty
	}
	if err != nil {
		e.metrics.RecordQuery(outcome, 0, 0, elapsed)
		e.logger.Warn("search failed", zap.String("query", q), zap.String("filter", filter.String()), zap.Error(err))
		return nil, err
	}
	rs.QueryTime = elapsed.Milliseconds()
	e.metrics.RecordQuery(outcome, len(rs.Results), rs.Confidence, elapsed)
	e.logger.Debug("search completed",
		zap.String("query", rs.Query),
		zap.Int("results", len(rs.Results)),
		zap.Float64("confidence", rs.Confidence),
		zap.Int("cross_ref_failures", rs.CrossRefFailures),
		zap.Duration("elapsed", elapsed))
	return rs, nil
}

func (e *Engine) search(ctx context.Context, q string, nResults int, filter index.Filter) (*models.ResultSet, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if nResults <= 0 {
		nResults = e.config.DefaultResults
	}
	normalized := query.Normalize(q)
	rs := &models.ResultSet{Query: normalized, Results: []*models.ScoredCandidate{}}

	count, err := e.index.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count passages: %w", err)
	}
	fetch := min(nResults*e.config.OverfetchFactor, count)
	if fetch <= 0 {
		return rs, nil
	}

	hits, err := e.index.Query(ctx, normalized, fetch, filter)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	ranked := ranking.Rank(e.ranker.Score(query.Extract(normalized), hits), nResults)
	if len(ranked) == 0 {
		return rs, nil
	}

	rs.Confidence = ranking.Confidence(ranked)
	rs.TopScore = ranked[0].Score
	rs.Results = append(rs.Results, ranked...)

	if limit := e.config.CrossRefLimit(); limit > 0 {
		seen := make(map[string]struct{}, len(ranked))
		for _, c := range ranked {
			seen[c.IdentityKey()] = struct{}{}
		}
		res := e.resolver.Resolve(ctx, ranked, seen)
		rs.CrossRefFailures = res.Failed()
		refs := res.CrossRefs
		if len(refs) > limit {
			refs = refs[:limit]
		}
		rs.Results = append(rs.Results, refs...)
	}

	ranking.ApplySimilarityScores(rs.Results)
	return rs, nil
}

// Retrieve validates req and runs Search with its doc type filter.
// It returns ErrNoRelevantDocuments, together with the empty result set, when
// nothing matched.
func (e *Engine) Retrieve(ctx context.Context, req *models.RetrievalRequest) (*models.ResultSet, error) {
	filter, err := ProcessRequest(req, &e.config)
	if err != nil {
		return nil, err
	}
	rs, err := e.Search(ctx, req.Question, req.NResults, filter)
	if err != nil {
		return nil, err
	}
	if rs.Empty() {
		return rs, ErrNoRelevantDocuments
	}
	return rs, nil
}
