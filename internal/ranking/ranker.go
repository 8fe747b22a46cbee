// Package ranking blends semantic similarity with literal citation and keyword
// matches, and summarizes a ranked list as a confidence value.
package ranking

import (
	"sort"
	"strings"

	"github.com/hyperjump/wislaw/internal/index"
	"github.com/hyperjump/wislaw/internal/models"
	"github.com/hyperjump/wislaw/internal/query"
	"github.com/hyperjump/wislaw/pkg/utils"
)

// Ranker re-scores similarity hits against the literal terms of a query.
type Ranker struct {
	config *RankingConfig
}

// NewRanker creates a new Ranker with the given configuration.
func NewRanker(config *RankingConfig) *Ranker {
	if config == nil {
		config = DefaultRankingConfig()
	}
	config.ApplyDefaults()
	return &Ranker{config: config}
}

// Config returns the active configuration.
func (r *Ranker) Config() RankingConfig {
	return *r.config
}

// Boost returns the literal-match boost of text for the given terms, in [0, MaxBoost].
// Duplicate terms are counted once per occurrence in terms.
func (r *Ranker) Boost(terms query.Terms, text string) float64 {
	var boost float64
	for _, c := range terms.Citations {
		if strings.Contains(text, c) {
			boost += r.config.CitationBoost
		}
	}
	lower := strings.ToLower(text)
	for _, k := range terms.Keywords {
		if strings.Contains(lower, k) {
			boost += r.config.KeywordBoost
		}
	}
	return min(boost, r.config.MaxBoost, MaxBoostLimit)
}

// Score converts hits into scored candidates: semantic score is 1 - distance,
// final score is semantic plus boost. Order of hits is preserved.
func (r *Ranker) Score(terms query.Terms, hits []index.Hit) []*models.ScoredCandidate {
	out := make([]*models.ScoredCandidate, 0, len(hits))
	for _, h := range hits {
		if h.Passage == nil {
			continue
		}
		semantic := 1 - h.Distance
		boost := r.Boost(terms, h.Passage.Text)
		out = append(out, &models.ScoredCandidate{
			Score:         semantic + boost,
			SemanticScore: semantic,
			Boost:         boost,
			Passage:       *h.Passage,
		})
	}
	return out
}

// Rank sorts candidates by descending score, keeps the first candidate of each
// identity key and truncates to n. Ties keep their input order. n <= 0 means no limit.
func Rank(candidates []*models.ScoredCandidate, n int) []*models.ScoredCandidate {
	sorted := make([]*models.ScoredCandidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	seen := make(map[string]struct{}, len(sorted))
	out := make([]*models.ScoredCandidate, 0, len(sorted))
	for _, c := range sorted {
		key := c.IdentityKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
		if n > 0 && len(out) == n {
			break
		}
	}
	return out
}

// Confidence returns the top score of ranked clamped into [0,1] and rounded to
// three decimals. An empty list has confidence 0.
func Confidence(ranked []*models.ScoredCandidate) float64 {
	if len(ranked) == 0 {
		return 0
	}
	top := ranked[0].Score
	if top <= 0 {
		return 0
	}
	c := top / max(top, 1.0)
	return utils.Round3(min(c, 1.0))
}

// ApplySimilarityScores sets each candidate's metadata similarity score to its
// final score clamped to at most 1 and rounded to three decimals.
func ApplySimilarityScores(candidates []*models.ScoredCandidate) {
	for _, c := range candidates {
		c.Metadata.SimilarityScore = utils.Round3(min(c.Score, 1.0))
	}
}
