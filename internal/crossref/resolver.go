// Package crossref finds statute citations inside retrieved passages and fetches
// the cited sections as supplementary results.
package crossref

import (
	"context"
	"regexp"

	"github.com/hyperjump/wislaw/internal/index"
	"github.com/hyperjump/wislaw/internal/metrics"
	"github.com/hyperjump/wislaw/internal/models"
	"go.uber.org/zap"
)

// Score is the fixed score given to every cross reference.
const Score = 0.5

// Lookup statuses.
const (
	StatusResolved = "resolved"
	StatusNotFound = "not_found"
	StatusFailed   = "failed"
)

var referencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:§|s\.)\s*(\d{3}\.\d{2,3})`),
	regexp.MustCompile(`(?i)\bsec(?:tion)?\.?\s+(\d{3}\.\d{2,3})`),
}

// ExtractReferences returns the distinct section identifiers cited in texts,
// in the order they are first seen. Texts are scanned in order, each text by
// the "§"/"s." form first and the "sec"/"section" form second.
func ExtractReferences(texts ...string) []string {
	var refs []string
	seen := make(map[string]struct{})
	for _, text := range texts {
		for _, re := range referencePatterns {
			for _, m := range re.FindAllStringSubmatch(text, -1) {
				id := m[1]
				if _, ok := seen[id]; ok {
					continue
				}
				seen[id] = struct{}{}
				refs = append(refs, id)
			}
		}
	}
	return refs
}

// Lookup is the outcome of fetching one cited section.
type Lookup struct {
	Section string
	Status  string
	Err     error
	// Added is the number of cross references this lookup contributed.
	Added int
}

// Resolution is the result of one Resolve call.
type Resolution struct {
	CrossRefs []*models.ScoredCandidate
	Lookups   []Lookup
}

// Failed returns the number of lookups that failed.
func (r *Resolution) Failed() int {
	n := 0
	for _, l := range r.Lookups {
		if l.Status == StatusFailed {
			n++
		}
	}
	return n
}

// Resolver turns citations in top-ranked passages into cross references.
type Resolver struct {
	index   index.SimilarityIndex
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for lookup failures.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics counts lookups by status.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver creates a resolver reading cited sections from idx.
func NewResolver(idx index.SimilarityIndex, opts ...Option) *Resolver {
	r := &Resolver{index: idx, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve scans the text of top for section citations and fetches each cited
// section by exact section_number match. Fetched passages whose identity key
// is not already in seen become cross references with score 0.5; their keys
// are added to seen. A failed lookup is recorded and skipped, never returned
// as an error.
func (r *Resolver) Resolve(ctx context.Context, top []*models.ScoredCandidate, seen map[string]struct{}) *Resolution {
	texts := make([]string, len(top))
	for i, c := range top {
		texts[i] = c.Text
	}
	res := &Resolution{}
	for _, section := range ExtractReferences(texts...) {
		lookup := Lookup{Section: section}
		passages, err := r.index.GetByMetadata(ctx, index.Filter{models.MetaSectionNumber: section})
		switch {
		case err != nil:
			lookup.Status = StatusFailed
			lookup.Err = err
			r.logger.Warn("cross-reference lookup failed",
				zap.String("section", section), zap.Error(err))
		case len(passages) == 0:
			lookup.Status = StatusNotFound
		default:
			lookup.Status = StatusResolved
			for _, p := range passages {
				key := p.IdentityKey()
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				ref := &models.ScoredCandidate{Score: Score, Passage: *p}
				ref.Metadata.IsCrossRef = true
				res.CrossRefs = append(res.CrossRefs, ref)
				lookup.Added++
			}
		}
		r.metrics.RecordCrossRefLookup(lookup.Status)
		res.Lookups = append(res.Lookups, lookup)
	}
	return res
}
